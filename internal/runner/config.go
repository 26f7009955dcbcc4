package runner

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// RunConfig is the optional `--config` document: per-test seed
// overrides, disabled tests, and opt-in group selection, read once at
// startup. The file is JSON with comments and trailing commas allowed,
// standardized by hujson before json.Unmarshal sees it.
type RunConfig struct {
	DisabledTests []string         `json:"disabled_tests,omitempty"` //nolint:tagliatelle // snake_case for config file
	OptInGroups   []string         `json:"opt_in_groups,omitempty"`  //nolint:tagliatelle // snake_case for config file
	SeedOverrides map[string]int64 `json:"seed_overrides,omitempty"` //nolint:tagliatelle // snake_case for config file
}

// LoadRunConfig reads and parses path, or returns a zero RunConfig if
// path is empty. A missing or malformed file is a hard error so a typo
// in --config doesn't silently run with defaults.
func LoadRunConfig(path string) (RunConfig, error) {
	if path == "" {
		return RunConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("runner: reading config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return RunConfig{}, fmt.Errorf("runner: %s is not valid JSONC: %w", path, err)
	}

	var cfg RunConfig

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("runner: %s is not valid JSON: %w", path, err)
	}

	return cfg, nil
}

// disabledSet returns DisabledTests as a lookup set.
func (c RunConfig) disabledSet() map[string]bool {
	out := make(map[string]bool, len(c.DisabledTests))
	for _, n := range c.DisabledTests {
		out[n] = true
	}

	return out
}
