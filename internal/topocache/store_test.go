package topocache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/NathDevAU/ravendb/internal/config"
	"github.com/NathDevAU/ravendb/pkg/types"
)

func sampleNodes() []*types.NodeDescriptor {
	return []*types.NodeDescriptor{
		{
			URL:         "http://a:8080",
			Database:    "orders",
			ClusterInfo: &types.ClusterInfo{IsLeader: true},
		},
		{URL: "http://b:8080", Database: "orders"},
		{URL: "http://c:8080"},
	}
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hash := types.ServerHash("http://a:8080")

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	nodes := sampleNodes()
	if err := store.Save(context.Background(), hash, nodes); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store instance over the same directory must see the snapshot,
	// including per-node leader bits.
	fresh, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	loaded, err := fresh.Load(context.Background(), hash)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(loaded) != len(nodes) {
		t.Fatalf("loaded %d nodes, want %d", len(loaded), len(nodes))
	}
	for i, node := range nodes {
		if loaded[i].URL != node.URL {
			t.Errorf("node %d URL = %q, want %q", i, loaded[i].URL, node.URL)
		}
		if loaded[i].Database != node.Database {
			t.Errorf("node %d Database = %q, want %q", i, loaded[i].Database, node.Database)
		}
		if loaded[i].IsLeader() != node.IsLeader() {
			t.Errorf("node %d IsLeader = %v, want %v", i, loaded[i].IsLeader(), node.IsLeader())
		}
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	nodes, err := store.Load(context.Background(), types.ServerHash("http://never-saved:8080"))
	if err != nil {
		t.Fatalf("missing snapshot should not error, got %v", err)
	}
	if nodes != nil {
		t.Errorf("missing snapshot should be absent, got %v", nodes)
	}
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	hash := types.ServerHash("http://a:8080")
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Save(ctx, hash, sampleNodes()); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, hash, sampleNodes()[:1]); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(ctx, hash)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 {
		t.Errorf("loaded %d nodes after overwrite, want 1", len(loaded))
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Errorf("stray temp file: %s", entry.Name())
		}
	}
}

func TestFileStore_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	hashA := types.ServerHash("http://a:8080")
	hashB := types.ServerHash("http://b:8080")

	if err := store.Save(ctx, hashA, sampleNodes()); err != nil {
		t.Fatal(err)
	}

	nodes, err := store.Load(ctx, hashB)
	if err != nil {
		t.Fatal(err)
	}
	if nodes != nil {
		t.Error("snapshot for a different server hash should be absent")
	}
}

func TestNewStore(t *testing.T) {
	t.Parallel()

	t.Run("none mode yields nil store", func(t *testing.T) {
		t.Parallel()
		store, err := NewStore(context.Background(), config.SnapshotConfig{Mode: "none"})
		if err != nil || store != nil {
			t.Errorf("NewStore(none) = (%v, %v), want (nil, nil)", store, err)
		}
	})

	t.Run("file mode", func(t *testing.T) {
		t.Parallel()
		store, err := NewStore(context.Background(), config.SnapshotConfig{
			Mode:      "file",
			Directory: t.TempDir(),
		})
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := store.(*FileStore); !ok {
			t.Errorf("store type = %T, want *FileStore", store)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		t.Parallel()
		_, err := NewStore(context.Background(), config.SnapshotConfig{Mode: "redis"})
		if err == nil {
			t.Error("unknown mode should error")
		}
	})
}

func TestS3Store_KeyLayout(t *testing.T) {
	t.Parallel()

	s := &S3Store{bucket: "snapshots", prefix: normalizePrefix("topology")}
	if got := s.key("abc123"); got != "topology/abc123.json" {
		t.Errorf("key() = %q", got)
	}

	bare := &S3Store{bucket: "snapshots"}
	if got := bare.key("abc123"); got != "abc123.json" {
		t.Errorf("key() without prefix = %q", got)
	}
}
