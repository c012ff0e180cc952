//go:build windows

package storage

import (
	"os"
	"path/filepath"
)

// atomicWriteFile replaces path with data via a temp file and rename.
// renameio has no Windows support; a same-volume rename is the closest
// equivalent.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
