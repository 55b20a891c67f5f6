// Package testutil provides small helpers shared by this module's test
// files, grounded on the teacher's own use of cespare/cp in test setup code
// requiring an isolated, disposable copy of fixture data.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/cespare/cp"
)

// CopyFixture copies the golden fixture at srcPath into a fresh temporary
// directory and returns the copy's path, so a test that mutates a fixture
// file (e.g. a golden-image archive or a bank file) never dirties the
// checked-in original.
func CopyFixture(t *testing.T, srcPath string) string {
	t.Helper()
	dstPath := filepath.Join(t.TempDir(), filepath.Base(srcPath))
	if err := cp.CopyFile(dstPath, srcPath); err != nil {
		t.Fatalf("copy fixture %s: %v", srcPath, err)
	}
	return dstPath
}
