package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Backend names accepted by the factory.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// New creates a Store for the given backend at path. For sqlite the path
// is the database file; for json it is the state directory.
func New(backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		if !strings.HasSuffix(path, ".db") {
			path = filepath.Join(path, "store.db")
		}
		return NewSQLiteStore(path)
	case BackendJSON:
		return NewJSONStore(path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
