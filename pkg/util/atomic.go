package util

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/gnana997/migr8/pkg/errs"
)

// Replaceable for testing.
var renameFunc = (*renameio.PendingFile).CloseAtomicallyReplace

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place. Readers observe either the old content or the new content,
// never a partial write. On any failure the temporary file is removed and
// path is left untouched.
//
// If path already exists its permission bits are preserved; otherwise perm
// is used.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	t, err := renameio.NewPendingFile(path,
		renameio.WithTempDir(filepath.Dir(path)),
		renameio.WithPermissions(perm),
		renameio.WithExistingPermissions(),
	)
	if err != nil {
		return errs.NewIOError("create temp", path, err)
	}
	// No-op once the rename has happened.
	defer t.Cleanup()

	if _, err := t.Write(data); err != nil {
		return errs.NewIOError("write temp", path, err)
	}
	if err := renameFunc(t); err != nil {
		return errs.NewIOError("rename", path, err)
	}
	return nil
}
