//go:build !windows

package storage

import (
	"os"

	"github.com/google/renameio/v2"
)

// atomicWriteFile replaces path with data in one step, so readers never
// observe a partially written partition file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
