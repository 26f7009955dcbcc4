package runner

import (
	"os"
	"path/filepath"
)

// sanitizeName filters s down to letters only (digits and punctuation
// stripped), capped at 31 characters.
func sanitizeName(s string) string {
	out := make([]byte, 0, len(s))

	for i := 0; i < len(s) && len(out) < 31; i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			out = append(out, c)
		}
	}

	return string(out)
}

// ScratchDir returns the freshly-recreated scratch directory for name:
// `<OS-temp>/arcana-nexus/tmpdata_<sanitized-name>/`. If the directory
// already exists, it is recursively deleted first.
func ScratchDir(name string) (string, error) {
	dir := filepath.Join(os.TempDir(), "arcana-nexus", "tmpdata_"+sanitizeName(name))

	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	return dir, nil
}
