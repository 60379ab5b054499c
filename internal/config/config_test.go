package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/NathDevAU/ravendb/pkg/errors"
	"github.com/NathDevAU/ravendb/pkg/types"
)

func TestNewDefault(t *testing.T) {
	t.Parallel()

	c := NewDefault()

	if c.FailoverBehavior != types.ReadFromLeaderWriteToLeader {
		t.Errorf("FailoverBehavior = %v", c.FailoverBehavior)
	}
	if c.WaitForLeaderTimeout != 5*time.Second {
		t.Errorf("WaitForLeaderTimeout = %v, want 5s", c.WaitForLeaderTimeout)
	}
	if c.ReplicationTopologyTimeout != 2*time.Second {
		t.Errorf("ReplicationTopologyTimeout = %v, want 2s", c.ReplicationTopologyTimeout)
	}
	if !c.PromotePrimary() {
		t.Error("PromotePrimary should default to true")
	}
	if c.Snapshot.Mode != "file" {
		t.Errorf("Snapshot.Mode = %q, want file", c.Snapshot.Mode)
	}
	if c.Metrics.Namespace != "ravendb" {
		t.Errorf("Metrics.Namespace = %q", c.Metrics.Namespace)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "client.yaml")
	content := `
failover_behavior: read_from_all_write_to_leader
promote_primary_when_no_topology: false
failover_servers:
  - url: http://standby-1:8080
    database: orders
  - url: http://standby-2:8080
snapshot:
  mode: none
logging:
  level: DEBUG
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.FailoverBehavior != types.ReadFromAllWriteToLeader {
		t.Errorf("FailoverBehavior = %v", c.FailoverBehavior)
	}
	if c.PromotePrimary() {
		t.Error("PromotePrimary should be false when explicitly disabled")
	}
	if len(c.FailoverServers) != 2 || c.FailoverServers[0].Database != "orders" {
		t.Errorf("FailoverServers = %+v", c.FailoverServers)
	}
	if c.Snapshot.Mode != "none" {
		t.Errorf("Snapshot.Mode = %q", c.Snapshot.Mode)
	}
	// Defaults still applied for everything the file omits.
	if c.WaitForLeaderTimeout != 5*time.Second {
		t.Errorf("WaitForLeaderTimeout = %v", c.WaitForLeaderTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.IsCode(err, errors.ErrCodeConfigLoad) {
		t.Errorf("expected CONFIG_LOAD, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Conventions)
		wantErr bool
	}{
		{"defaults are valid", func(c *Conventions) {}, false},
		{"s3 without bucket", func(c *Conventions) { c.Snapshot.Mode = "s3" }, true},
		{"s3 with bucket", func(c *Conventions) {
			c.Snapshot.Mode = "s3"
			c.Snapshot.Bucket = "topology-snapshots"
		}, false},
		{"unknown snapshot mode", func(c *Conventions) { c.Snapshot.Mode = "redis" }, true},
		{"bad failover behavior", func(c *Conventions) { c.FailoverBehavior = "sideways" }, true},
		{"failover server without url", func(c *Conventions) {
			c.FailoverServers = []types.FailoverServer{{Database: "orders"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewDefault()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateFrom(t *testing.T) {
	t.Parallel()

	c := NewDefault()
	if got := c.CurrentFailoverBehavior(); got != types.ReadFromLeaderWriteToLeader {
		t.Fatalf("initial behavior = %v", got)
	}

	striped := types.ReadFromAllWriteToLeader
	c.UpdateFrom(&types.ClientConfiguration{FailoverBehavior: &striped})
	if got := c.CurrentFailoverBehavior(); got != types.ReadFromAllWriteToLeader {
		t.Errorf("behavior after override = %v", got)
	}

	// The configured value is untouched underneath.
	if c.FailoverBehavior != types.ReadFromLeaderWriteToLeader {
		t.Errorf("configured value mutated: %v", c.FailoverBehavior)
	}

	c.UpdateFrom(nil)
	if got := c.CurrentFailoverBehavior(); got != types.ReadFromLeaderWriteToLeader {
		t.Errorf("behavior after clearing override = %v", got)
	}
}
