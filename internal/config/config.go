package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/NathDevAU/ravendb/pkg/errors"
	"github.com/NathDevAU/ravendb/pkg/types"
)

// Conventions is the client-side configuration surface of the request
// executor. Fields are yaml-loadable; FailoverBehavior may additionally be
// overridden at runtime by a server-pushed client configuration, so reads of
// it must go through CurrentFailoverBehavior.
type Conventions struct {
	// FailoverBehavior is the configured dispatch policy. Runtime reads go
	// through CurrentFailoverBehavior, which honors server overrides.
	FailoverBehavior types.FailoverBehavior `yaml:"failover_behavior"`

	// WaitForLeaderTimeout bounds how long a request blocks waiting for a
	// leader to be elected before dispatching.
	WaitForLeaderTimeout time.Duration `yaml:"wait_for_leader_timeout"`

	// ReplicationTopologyTimeout is the overall deadline for one topology
	// probe fan-out.
	ReplicationTopologyTimeout time.Duration `yaml:"replication_topology_timeout"`

	// FailoverServers are consulted by the topology refresher when no
	// regular node answers.
	FailoverServers []types.FailoverServer `yaml:"failover_servers"`

	// PromotePrimaryWhenNoTopology installs the primary node as leader when
	// every probe fails and no failover servers remain. Defaults to true.
	PromotePrimaryWhenNoTopology *bool `yaml:"promote_primary_when_no_topology"`

	Snapshot SnapshotConfig `yaml:"snapshot"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`

	mu       sync.RWMutex
	override *types.FailoverBehavior
}

// SnapshotConfig configures the durable topology snapshot store.
type SnapshotConfig struct {
	// Mode selects the store backend: "file", "s3", or "none".
	Mode string `yaml:"mode"`

	// Directory holds per-server snapshot files in file mode.
	Directory string `yaml:"directory"`

	// S3 settings for s3 mode. AccessKey/SecretKey are optional; when empty
	// the default AWS credential chain applies.
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig configures executor logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// NewDefault returns conventions with the standard defaults.
func NewDefault() *Conventions {
	c := &Conventions{}
	c.applyDefaults()
	return c
}

// applyDefaults fills zero-valued fields with defaults.
func (c *Conventions) applyDefaults() {
	if c.FailoverBehavior == "" {
		c.FailoverBehavior = types.ReadFromLeaderWriteToLeader
	}
	if c.WaitForLeaderTimeout <= 0 {
		c.WaitForLeaderTimeout = 5 * time.Second
	}
	if c.ReplicationTopologyTimeout <= 0 {
		c.ReplicationTopologyTimeout = 2 * time.Second
	}
	if c.PromotePrimaryWhenNoTopology == nil {
		promote := true
		c.PromotePrimaryWhenNoTopology = &promote
	}
	if c.Snapshot.Mode == "" {
		c.Snapshot.Mode = "file"
	}
	if c.Snapshot.Directory == "" {
		c.Snapshot.Directory = defaultSnapshotDirectory()
	}
	if c.Snapshot.Prefix == "" {
		c.Snapshot.Prefix = "topology/"
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9135
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "ravendb"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
}

func defaultSnapshotDirectory() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/ravendb/topology"
	}
	return os.TempDir() + "/ravendb-topology"
}

// Load reads conventions from a yaml file and applies defaults.
func Load(path string) (*Conventions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeConfigLoad,
			fmt.Sprintf("failed to read config file %s", path)).WithCause(err)
	}

	c := &Conventions{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.NewError(errors.ErrCodeConfigLoad,
			fmt.Sprintf("failed to parse config file %s", path)).WithCause(err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Conventions) Validate() error {
	if _, err := types.ParseFailoverBehavior(string(c.FailoverBehavior)); err != nil {
		return errors.NewError(errors.ErrCodeInvalidConfig, err.Error())
	}
	switch c.Snapshot.Mode {
	case "file", "none":
	case "s3":
		if c.Snapshot.Bucket == "" {
			return errors.NewError(errors.ErrCodeInvalidConfig,
				"snapshot mode s3 requires a bucket")
		}
	default:
		return errors.NewError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unknown snapshot mode: %q", c.Snapshot.Mode))
	}
	for _, fs := range c.FailoverServers {
		if fs.URL == "" {
			return errors.NewError(errors.ErrCodeInvalidConfig,
				"failover server without a url")
		}
	}
	return nil
}

// CurrentFailoverBehavior returns the effective dispatch policy, preferring
// a server-pushed override over the configured value.
func (c *Conventions) CurrentFailoverBehavior() types.FailoverBehavior {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.override != nil {
		return *c.override
	}
	return c.FailoverBehavior
}

// UpdateFrom applies a client configuration pushed by the server inside a
// topology document. A nil configuration clears any previous override.
func (c *Conventions) UpdateFrom(cfg *types.ClientConfiguration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg == nil || cfg.FailoverBehavior == nil {
		c.override = nil
		return
	}
	behavior := *cfg.FailoverBehavior
	c.override = &behavior
}

// PromotePrimary reports whether the refresher may install the primary node
// as leader when the whole cluster is silent.
func (c *Conventions) PromotePrimary() bool {
	return c.PromotePrimaryWhenNoTopology == nil || *c.PromotePrimaryWhenNoTopology
}
