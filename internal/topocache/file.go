// Package topocache persists topology snapshots keyed by server hash, so a
// client can bootstrap its node list before any cluster member answers.
package topocache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/NathDevAU/ravendb/pkg/types"
)

// snapshot is the on-disk blob format: one file per server hash.
type snapshot struct {
	ServerHash string                  `json:"server_hash"`
	SavedAt    time.Time               `json:"saved_at"`
	Nodes      []*types.NodeDescriptor `json:"nodes"`
}

// FileStore keeps one JSON snapshot file per server hash under a directory.
type FileStore struct {
	directory string
}

// NewFileStore creates the snapshot directory if needed and returns a store
// over it.
func NewFileStore(directory string) (*FileStore, error) {
	if err := os.MkdirAll(directory, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileStore{directory: directory}, nil
}

// Load reads the snapshot for a server hash. A missing or unreadable file
// yields (nil, nil): the caller treats any load problem as a cache miss.
func (s *FileStore) Load(_ context.Context, serverHash string) ([]*types.NodeDescriptor, error) {
	data, err := os.ReadFile(s.path(serverHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return snap.Nodes, nil
}

// Save writes the snapshot atomically: write to a temp file in the same
// directory, then rename over the destination.
func (s *FileStore) Save(_ context.Context, serverHash string, nodes []*types.NodeDescriptor) error {
	snap := snapshot{
		ServerHash: serverHash,
		SavedAt:    time.Now(),
		Nodes:      nodes,
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.directory, serverHash+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path(serverHash))
}

func (s *FileStore) path(serverHash string) string {
	return filepath.Join(s.directory, serverHash+".json")
}
