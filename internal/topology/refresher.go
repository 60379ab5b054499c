// Package topology implements the single-flight cluster topology refresher.
// It probes cluster members for their topology documents, picks the freshest
// one, and feeds the result into the leader cell, the node list, and the
// snapshot store.
package topology

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NathDevAU/ravendb/internal/config"
	"github.com/NathDevAU/ravendb/internal/failure"
	"github.com/NathDevAU/ravendb/internal/leader"
	"github.com/NathDevAU/ravendb/internal/metrics"
	"github.com/NathDevAU/ravendb/pkg/types"
	"github.com/NathDevAU/ravendb/pkg/utils"
)

// refreshBackoff is the pause between refresh rounds when a document was
// found but no leader could be settled.
const refreshBackoff = 500 * time.Millisecond

// Refresher discovers cluster topology. At most one refresh task runs per
// instance; concurrent requesters join the in-flight task through the handle
// channel RequestRefresh returns, which is closed when the task finishes.
type Refresher struct {
	conventions *config.Conventions
	store       types.TopologyStore
	cell        *leader.Cell
	counters    *failure.Counters
	collector   *metrics.Collector
	log         *utils.Logger
	clock       types.Clock

	// nodes holds the current []*types.NodeDescriptor membership, replaced
	// wholesale on refresh.
	nodes atomic.Value

	// mu guards only the in-flight handle, the firstTime bit, and lastUpdate.
	mu         sync.Mutex
	inflight   chan struct{}
	firstTime  bool
	lastUpdate time.Time

	// backoff between rounds; tests shorten it.
	backoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRefresher creates a refresher. The store may be nil when snapshot
// persistence is disabled, and the collector may be nil when metrics are
// disabled.
func NewRefresher(conventions *config.Conventions, store types.TopologyStore,
	cell *leader.Cell, counters *failure.Counters, collector *metrics.Collector,
	log *utils.Logger) *Refresher {

	if conventions == nil {
		conventions = config.NewDefault()
	}
	if log == nil {
		log = utils.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		conventions: conventions,
		store:       store,
		cell:        cell,
		counters:    counters,
		collector:   collector,
		log:         log.WithComponent("topology"),
		clock:       types.SystemClock(),
		firstTime:   true,
		backoff:     refreshBackoff,
		ctx:         ctx,
		cancel:      cancel,
	}
	r.nodes.Store([]*types.NodeDescriptor(nil))
	return r
}

// Close cancels any in-flight refresh task. Callers joined on an in-flight
// handle are released when the task observes cancellation.
func (r *Refresher) Close() {
	r.cancel()
}

// Nodes returns the current membership snapshot. The returned slice must not
// be mutated.
func (r *Refresher) Nodes() []*types.NodeDescriptor {
	nodes, _ := r.nodes.Load().([]*types.NodeDescriptor)
	return nodes
}

// SetNodes atomically replaces the membership list.
func (r *Refresher) SetNodes(nodes []*types.NodeDescriptor) {
	r.nodes.Store(nodes)
	r.collector.SetKnownNodes(len(nodes))
}

// LastUpdate returns when the most recent refresh task completed.
func (r *Refresher) LastUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdate
}

// RequestRefresh starts a background refresh against the cluster reachable
// through primary, or joins the one already running. The returned channel is
// closed when that refresh completes.
//
// On the very first call the snapshot store is consulted before any network
// traffic: a hit installs the cached node list (and leader, when one was
// cached) so requests can proceed immediately. The network refresh still runs
// to validate the cached view.
func (r *Refresher) RequestRefresh(primary *types.NodeDescriptor, fetch types.TopologyFetcher) <-chan struct{} {
	r.mu.Lock()
	if r.inflight != nil {
		handle := r.inflight
		r.mu.Unlock()
		return handle
	}

	if r.firstTime {
		r.firstTime = false
		r.bootstrapFromSnapshot(primary)
	}

	handle := make(chan struct{})
	r.inflight = handle
	r.mu.Unlock()

	go r.run(primary, fetch, handle)
	return handle
}

func (r *Refresher) bootstrapFromSnapshot(primary *types.NodeDescriptor) {
	if r.store == nil {
		return
	}

	nodes, err := r.store.Load(r.ctx, types.ServerHash(primary.URL))
	if err != nil {
		r.log.Warn("snapshot load failed for %s: %v", primary.URL, err)
		return
	}
	if len(nodes) == 0 {
		return
	}

	r.SetNodes(nodes)

	var cachedLeader *types.NodeDescriptor
	for _, node := range nodes {
		if node.IsLeader() {
			cachedLeader = node
			break
		}
	}
	if cachedLeader != nil {
		r.cell.SetKnownLeader(cachedLeader)
		r.collector.SetLeaderKnown(true)
		r.log.Info("bootstrapped %d nodes from snapshot, leader %s", len(nodes), cachedLeader.URL)
	} else {
		r.cell.ForceClear()
		r.collector.SetLeaderKnown(false)
		r.log.Info("bootstrapped %d nodes from snapshot, no leader cached", len(nodes))
	}
}

func (r *Refresher) run(primary *types.NodeDescriptor, fetch types.TopologyFetcher, handle chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.inflight = nil
		r.lastUpdate = r.clock.Now()
		r.mu.Unlock()
		close(handle)
		r.collector.RecordTopologyRefresh()
	}()

	failoverTried := false

	for {
		if r.ctx.Err() != nil {
			return
		}

		prevLeader := r.cell.Get()
		probes := r.probeSet(primary, failoverTried)

		docs := r.fanOut(probes, fetch)

		for i, doc := range docs {
			if doc != nil {
				r.counters.Reset(probes[i].URL)
			}
		}

		winnerIdx := pickWinner(docs)
		if winnerIdx < 0 {
			if !failoverTried && len(r.conventions.FailoverServers) > 0 {
				failoverTried = true
				r.log.Info("no topology document received, trying failover servers")
				continue
			}

			// The whole cluster is silent. Install the primary so requests
			// can proceed against it, unless the operator disabled that.
			if r.conventions.PromotePrimary() {
				if r.cell.SetIfNil(primary, true) {
					r.collector.SetLeaderKnown(true)
					r.log.Warn("no topology reachable, promoting primary %s", primary.URL)
				}
			}
			if len(r.Nodes()) == 0 {
				r.SetNodes([]*types.NodeDescriptor{primary})
			}
			return
		}

		winnerNode := probes[winnerIdx]
		doc := docs[winnerIdx]
		if r.applyDocument(primary, winnerNode, doc, prevLeader) {
			return
		}

		if !r.sleep() {
			return
		}
	}
}

// probeSet picks which nodes to ask for topology this round. Before the
// failover flip it is the known membership, or just the primary when nothing
// is known yet. After the flip it is the primary plus the configured failover
// servers.
func (r *Refresher) probeSet(primary *types.NodeDescriptor, failoverTried bool) []*types.NodeDescriptor {
	if !failoverTried {
		if nodes := r.Nodes(); len(nodes) > 0 {
			return nodes
		}
		return []*types.NodeDescriptor{primary}
	}

	probes := []*types.NodeDescriptor{primary}
	for _, fs := range r.conventions.FailoverServers {
		url := fs.URL
		if fs.Database != "" {
			url = types.ForDatabase(types.RootDatabaseURL(url), fs.Database)
		}
		probes = append(probes, &types.NodeDescriptor{
			URL:         url,
			Database:    fs.Database,
			Credentials: primary.Credentials,
		})
	}
	return probes
}

// fanOut fetches topology from every probe node concurrently under one
// overall deadline. docs[i] is non-nil iff probes[i] answered.
func (r *Refresher) fanOut(probes []*types.NodeDescriptor, fetch types.TopologyFetcher) []*types.Topology {
	ctx, cancel := context.WithTimeout(r.ctx, r.conventions.ReplicationTopologyTimeout)
	defer cancel()

	docs := make([]*types.Topology, len(probes))
	var wg sync.WaitGroup
	for i, node := range probes {
		wg.Add(1)
		go func(i int, node *types.NodeDescriptor) {
			defer wg.Done()
			doc, err := fetch(ctx, node)
			if err != nil {
				r.log.Debug("topology fetch from %s failed: %v", node.URL, err)
				return
			}
			docs[i] = doc
		}(i, node)
	}
	wg.Wait()
	return docs
}

// pickWinner returns the index of the freshest document by (term, commit
// index + leader bonus), or -1 when nothing answered. Ties keep the earliest
// probe.
func pickWinner(docs []*types.Topology) int {
	winner := -1
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		if winner < 0 || doc.Newer(docs[winner]) {
			winner = i
		}
	}
	return winner
}

// applyDocument installs the winning document: new node list, snapshot save,
// client-configuration override, and the leader transition. It returns true
// when the refresh is settled and false when another round is needed.
func (r *Refresher) applyDocument(primary, winnerNode *types.NodeDescriptor,
	doc *types.Topology, prevLeader *types.NodeDescriptor) bool {

	info := doc.ClusterInfo
	winner := winnerNode.Clone()
	winner.ClusterInfo = &info

	nodes := convertDestinations(doc.Destinations)

	// The responding node itself belongs in the membership, carrying the
	// cluster info it just reported.
	replaced := false
	for i, node := range nodes {
		if node.Equal(winner) {
			nodes[i] = winner
			replaced = true
			break
		}
	}
	if !replaced {
		nodes = append(nodes, winner)
	}

	r.SetNodes(nodes)

	if r.store != nil {
		if err := r.store.Save(r.ctx, types.ServerHash(primary.URL), nodes); err != nil {
			r.log.Warn("snapshot save failed for %s: %v", primary.URL, err)
		}
	}

	r.conventions.UpdateFrom(doc.ClientConfiguration)

	if info.IsLeader {
		installed := winner
		for _, node := range nodes {
			if node.Equal(winner) {
				installed = node
				break
			}
		}
		r.cell.SetKnownLeader(installed)
		r.collector.RecordLeaderChange()
		r.collector.SetLeaderKnown(true)
		r.log.Info("leader confirmed: %s (term %d)", installed.URL, doc.Term)
		return true
	}

	// The freshest view came from a follower. Drop the stale leader we
	// started the round with; if someone else installed a leader in the
	// meantime, keep theirs and stop.
	if !r.cell.CompareAndClear(prevLeader) && r.cell.Get() != nil {
		return true
	}
	r.collector.SetLeaderKnown(false)
	r.log.Debug("no leader in freshest topology (term %d), retrying", doc.Term)
	return false
}

// sleep pauses between rounds, returning false on teardown.
func (r *Refresher) sleep() bool {
	timer := time.NewTimer(r.backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// convertDestinations turns replication destinations into node descriptors.
// Destinations without a usable URL or not marked as failover candidates are
// dropped. Database-scoped destinations get a database URL composed from the
// server root.
func convertDestinations(destinations []types.ReplicationDestination) []*types.NodeDescriptor {
	nodes := make([]*types.NodeDescriptor, 0, len(destinations))
	for _, d := range destinations {
		url := d.EffectiveURL()
		if url == "" || !d.CanBeFailover {
			continue
		}
		if d.Database != "" {
			url = types.ForDatabase(types.RootDatabaseURL(url), d.Database)
		}
		node := &types.NodeDescriptor{
			URL:         url,
			Database:    d.Database,
			Credentials: d.Credentials,
		}
		if d.ClusterInfo != nil {
			info := *d.ClusterInfo
			node.ClusterInfo = &info
		}
		nodes = append(nodes, node)
	}
	return nodes
}
