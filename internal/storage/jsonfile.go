package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/covalent-hq/conclave/internal/fsutil"
)

// JSONStore implements Store with one JSON file per partition under a
// state directory. Files are written atomically so a crash never leaves
// a partially-written partition behind.
type JSONStore struct {
	dir string
	mu  sync.RWMutex
}

// partitionFile is the on-disk shape of one partition.
type partitionFile struct {
	Version   int               `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
	Blobs     map[string][]byte `json:"blobs"`
}

// NewJSONStore creates a JSON file store rooted at dir.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &JSONStore{dir: dir}, nil
}

// partitionPath maps a partition name to its file. Partition names may
// contain characters that are unsafe in filenames, so they are escaped.
func (s *JSONStore) partitionPath(partition string) string {
	return filepath.Join(s.dir, url.PathEscape(partition)+".json")
}

func (s *JSONStore) readPartition(partition string) (*partitionFile, error) {
	data, err := fsutil.ReadFileScoped(s.partitionPath(partition))
	if os.IsNotExist(err) {
		return &partitionFile{Version: 1, Blobs: make(map[string][]byte)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading partition %s: %w", partition, err)
	}
	var pf partitionFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing partition %s: %w", partition, err)
	}
	if pf.Blobs == nil {
		pf.Blobs = make(map[string][]byte)
	}
	return &pf, nil
}

func (s *JSONStore) writePartition(partition string, pf *partitionFile) error {
	pf.Version = 1
	pf.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling partition %s: %w", partition, err)
	}
	if err := atomicWriteFile(s.partitionPath(partition), data, 0o644); err != nil {
		return fmt.Errorf("writing partition %s: %w", partition, err)
	}
	return nil
}

// Get returns the blob stored under key, or ErrNotFound.
func (s *JSONStore) Get(_ context.Context, partition, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pf, err := s.readPartition(partition)
	if err != nil {
		return nil, err
	}
	value, ok := pf.Blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

// Put inserts or replaces the blob stored under key.
func (s *JSONStore) Put(_ context.Context, partition, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.readPartition(partition)
	if err != nil {
		return err
	}
	pf.Blobs[key] = value
	return s.writePartition(partition, pf)
}

// PutMulti writes several blobs in a single partition-file replace, so
// the update is all-or-nothing.
func (s *JSONStore) PutMulti(_ context.Context, partition string, blobs map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.readPartition(partition)
	if err != nil {
		return err
	}
	for key, value := range blobs {
		pf.Blobs[key] = value
	}
	return s.writePartition(partition, pf)
}

// Delete removes the blob stored under key.
func (s *JSONStore) Delete(_ context.Context, partition, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.readPartition(partition)
	if err != nil {
		return err
	}
	if _, ok := pf.Blobs[key]; !ok {
		return nil
	}
	delete(pf.Blobs, key)
	return s.writePartition(partition, pf)
}

// List returns every blob in the partition.
func (s *JSONStore) List(_ context.Context, partition string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pf, err := s.readPartition(partition)
	if err != nil {
		return nil, err
	}
	blobs := make(map[string][]byte, len(pf.Blobs))
	for k, v := range pf.Blobs {
		blobs[k] = v
	}
	return blobs, nil
}

// DeletePartition removes the partition file.
func (s *JSONStore) DeletePartition(_ context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.partitionPath(partition))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing partition %s: %w", partition, err)
	}
	return nil
}

// Close is a no-op for the JSON backend.
func (s *JSONStore) Close() error {
	return nil
}
