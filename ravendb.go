// Package ravendb provides a cluster-aware request executor for a replicated
// database. It hides a multi-node cluster behind a single request-issuing
// surface: the client discovers the topology and its leader, routes each
// operation according to the configured failover policy, retries on surviving
// nodes when members fail, and keeps a durable topology snapshot so startup
// works even when no node is initially reachable.
//
// The actual request transport is supplied by the caller as an Operation
// closure; the client decides which node the closure runs against and
// classifies the errors it returns.
package ravendb

import (
	"context"
	"os"

	"github.com/NathDevAU/ravendb/internal/cluster"
	"github.com/NathDevAU/ravendb/internal/config"
	"github.com/NathDevAU/ravendb/internal/metrics"
	"github.com/NathDevAU/ravendb/internal/topocache"
	"github.com/NathDevAU/ravendb/pkg/types"
	"github.com/NathDevAU/ravendb/pkg/utils"
)

// Client is the public handle over the request executor.
type Client struct {
	executor  *cluster.Executor
	collector *metrics.Collector
	log       *utils.Logger
}

type options struct {
	configFile      string
	behavior        types.FailoverBehavior
	failoverServers []types.FailoverServer
	credentials     types.Credentials
	store           types.TopologyStore
	storeSet        bool
	logger          *utils.Logger
}

// Option customizes Open.
type Option func(*options)

// WithConfigFile loads conventions from a yaml file before applying the
// other options.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configFile = path }
}

// WithFailoverBehavior overrides the configured dispatch policy.
func WithFailoverBehavior(behavior types.FailoverBehavior) Option {
	return func(o *options) { o.behavior = behavior }
}

// WithFailoverServers sets the fallback servers consulted when no regular
// cluster member answers a topology probe.
func WithFailoverServers(servers ...types.FailoverServer) Option {
	return func(o *options) { o.failoverServers = servers }
}

// WithCredentials attaches an opaque credentials handle to the primary node.
// It is passed through to the operation closure untouched.
func WithCredentials(credentials types.Credentials) Option {
	return func(o *options) { o.credentials = credentials }
}

// WithTopologyStore replaces the configured snapshot store. Passing nil
// disables snapshot persistence.
func WithTopologyStore(store types.TopologyStore) Option {
	return func(o *options) {
		o.store = store
		o.storeSet = true
	}
}

// WithLogger sets the logger for all client components.
func WithLogger(logger *utils.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Open creates a client for the cluster reachable through primaryURL. The
// fetch function is the topology transport: it asks one node for its view of
// the cluster. A non-empty database scopes the primary to that database.
func Open(primaryURL, database string, fetch types.TopologyFetcher, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	conventions := config.NewDefault()
	if o.configFile != "" {
		loaded, err := config.Load(o.configFile)
		if err != nil {
			return nil, err
		}
		conventions = loaded
	}
	if o.behavior != "" {
		conventions.FailoverBehavior = o.behavior
	}
	if len(o.failoverServers) > 0 {
		conventions.FailoverServers = o.failoverServers
	}
	if err := conventions.Validate(); err != nil {
		return nil, err
	}

	log := o.logger
	if log == nil {
		level, _ := utils.ParseLogLevel(conventions.Logging.Level)
		log = utils.NewLogger(level, os.Stderr)
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   conventions.Metrics.Enabled,
		Port:      conventions.Metrics.Port,
		Path:      conventions.Metrics.Path,
		Namespace: conventions.Metrics.Namespace,
	})
	if err != nil {
		return nil, err
	}
	if err := collector.Start(context.Background()); err != nil {
		return nil, err
	}

	store := o.store
	if !o.storeSet {
		store, err = topocache.NewStore(context.Background(), conventions.Snapshot)
		if err != nil {
			return nil, err
		}
	}

	url := primaryURL
	if database != "" {
		url = types.ForDatabase(types.RootDatabaseURL(primaryURL), database)
	}
	primary := &types.NodeDescriptor{
		URL:         url,
		Database:    database,
		Credentials: o.credentials,
	}

	return &Client{
		executor:  cluster.NewExecutor(primary, fetch, conventions, store, collector, log),
		collector: collector,
		log:       log,
	}, nil
}

// Execute dispatches one operation against the cluster, retrying and failing
// over per the configured policy. The method selects routing: GET requests
// may be striped across members under a read-from-all policy.
func (c *Client) Execute(ctx context.Context, method string, op types.Operation) (interface{}, error) {
	return c.executor.Execute(ctx, method, op)
}

// Leader returns the currently known cluster leader, or nil.
func (c *Client) Leader() *types.NodeDescriptor {
	return c.executor.Leader()
}

// Nodes returns the currently known cluster membership.
func (c *Client) Nodes() []*types.NodeDescriptor {
	return c.executor.Nodes()
}

// RefreshTopology starts (or joins) a background topology refresh. The
// returned channel closes when it completes.
func (c *Client) RefreshTopology() <-chan struct{} {
	return c.executor.RequestTopologyRefresh()
}

// ForceReadFromMaster pins reads to the leader until the returned release
// function runs.
func (c *Client) ForceReadFromMaster() func() {
	return c.executor.ForceReadFromMaster()
}

// GetReadStripingBase exposes the read striping base, post-incrementing it
// when increment is true.
func (c *Client) GetReadStripingBase(increment bool) int64 {
	return c.executor.GetReadStripingBase(increment)
}

// Close stops the background refresher and the metrics endpoint.
func (c *Client) Close() error {
	c.executor.Close()
	return c.collector.Stop(context.Background())
}
