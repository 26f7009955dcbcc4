package nexus

import "github.com/arcana-nexus/nexus/internal/runner"

// ScratchDir returns a freshly-recreated scratch directory scoped to
// t's test name. It is deleted and recreated on every call, and is not
// cleaned up afterward.
func (t *T) ScratchDir() (string, error) {
	return runner.ScratchDir(t.handle.Test.Name)
}
