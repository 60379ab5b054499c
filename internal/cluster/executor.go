// Package cluster contains the request executor: the public dispatch loop
// that routes operations to cluster members, classifies failures, retries on
// surviving nodes, and follows leader redirects.
package cluster

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/NathDevAU/ravendb/internal/config"
	"github.com/NathDevAU/ravendb/internal/failure"
	"github.com/NathDevAU/ravendb/internal/leader"
	"github.com/NathDevAU/ravendb/internal/metrics"
	"github.com/NathDevAU/ravendb/internal/topology"
	"github.com/NathDevAU/ravendb/pkg/errors"
	"github.com/NathDevAU/ravendb/pkg/types"
	"github.com/NathDevAU/ravendb/pkg/utils"
)

// defaultRetries is the retry budget per Execute call: one initial attempt
// plus this many budgeted retries. Retries forced by leader churn are free.
const defaultRetries = 2

// Executor is the cluster-aware dispatch entry point. It owns the leader
// cell, the failure counters, the topology refresher, and the router, and is
// safe for concurrent use by many callers.
type Executor struct {
	conventions *config.Conventions
	primary     *types.NodeDescriptor
	fetch       types.TopologyFetcher

	cell      *leader.Cell
	counters  *failure.Counters
	refresher *topology.Refresher
	router    *Router
	collector *metrics.Collector
	log       *utils.Logger
	clock     types.Clock

	// failoverHint is raised after a budgeted failure under a policy that
	// tolerates a missing leader. Subsequent dispatches carry the failover
	// header so servers relax their leader checks.
	failoverHint atomic.Bool
}

// NewExecutor builds an executor for the cluster reachable through primary.
// The store and collector may be nil when snapshot persistence or metrics
// are disabled.
func NewExecutor(primary *types.NodeDescriptor, fetch types.TopologyFetcher,
	conventions *config.Conventions, store types.TopologyStore,
	collector *metrics.Collector, log *utils.Logger) *Executor {

	if conventions == nil {
		conventions = config.NewDefault()
	}
	if log == nil {
		log = utils.Default()
	}

	cell := leader.NewCell(log)
	counters := failure.NewCounters()

	return &Executor{
		conventions: conventions,
		primary:     primary,
		fetch:       fetch,
		cell:        cell,
		counters:    counters,
		refresher:   topology.NewRefresher(conventions, store, cell, counters, collector, log),
		router:      NewRouter(counters),
		collector:   collector,
		log:         log.WithComponent("executor"),
		clock:       types.SystemClock(),
	}
}

// Close cancels the background topology refresher.
func (e *Executor) Close() {
	e.refresher.Close()
}

// Leader returns the current leader snapshot, or nil.
func (e *Executor) Leader() *types.NodeDescriptor {
	return e.cell.Get()
}

// Nodes returns the current membership snapshot.
func (e *Executor) Nodes() []*types.NodeDescriptor {
	return e.refresher.Nodes()
}

// GetReadStripingBase exposes the router's striping base.
func (e *Executor) GetReadStripingBase(increment bool) int64 {
	return e.router.GetReadStripingBase(increment)
}

// ForceReadFromMaster pins reads to the leader until the returned release
// function runs.
func (e *Executor) ForceReadFromMaster() func() {
	return e.router.ForceReadFromMaster()
}

// RequestTopologyRefresh starts (or joins) a background topology refresh and
// returns its completion handle.
func (e *Executor) RequestTopologyRefresh() <-chan struct{} {
	return e.refresher.RequestRefresh(e.primary, e.fetch)
}

// Execute dispatches one operation against the cluster. The method selects
// routing (GET may be striped across members); the operation closure performs
// the actual transport call against the node the executor picked.
func (e *Executor) Execute(ctx context.Context, method string, op types.Operation) (interface{}, error) {
	start := e.clock.Now()
	result, err := e.dispatch(ctx, method, op, defaultRetries)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	e.collector.RecordRequest(method, outcome, e.clock.Now().Sub(start))
	return result, err
}

func (e *Executor) dispatch(ctx context.Context, method string, op types.Operation, retries int) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, errors.NewError(errors.ErrCodeOperationCanceled,
			"operation canceled").WithCause(ctx.Err())
	}

	policy := e.conventions.CurrentFailoverBehavior()
	node := e.cell.Get()
	if node == nil {
		e.RequestTopologyRefresh()

		known, err := e.cell.AwaitLeader(ctx, e.conventions.WaitForLeaderTimeout)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeOperationCanceled,
				"canceled while waiting for a leader").WithCause(err)
		}
		if !known && !policy.ToleratesMissingLeader() {
			return nil, errors.NewError(errors.ErrCodeNoStableLeader,
				"Cluster is not in a stable state")
		}
		node = e.cell.Get()
	}

	selected, err := e.router.SelectNode(node, e.refresher.Nodes(), method, policy)
	if err != nil {
		return nil, err
	}
	if selected == nil {
		e.collector.RecordFailoverWalk()
		return e.failoverWalk(ctx, method, op, policy)
	}

	res := e.tryCall(ctx, selected, op, e.newDispatch(method, policy, false))
	if res.err == nil {
		return res.result, nil
	}
	if !res.retry {
		return nil, res.err
	}

	if !e.cell.CompareAndClear(selected) {
		// The leader rotated while this attempt was in flight, or the
		// attempt went to a striped read target that is not the leader.
		// Either way the next attempt costs no budget.
		if !selected.Equal(node) {
			e.counters.Increment(selected.URL)
		}
		e.log.Debug("leader rotated during dispatch to %s, retrying", selected.URL)
		return e.dispatch(ctx, method, op, retries)
	}

	e.counters.Increment(selected.URL)
	e.collector.SetLeaderKnown(false)
	if policy.ToleratesMissingLeader() {
		e.failoverHint.Store(true)
	}

	if retries <= 0 {
		return nil, errors.NewError(errors.ErrCodeClusterUnreachable,
			"Cluster is not reachable. Out of retries.").
			WithNode(selected.URL).WithCause(res.err)
	}
	e.collector.RecordRetry()
	e.log.Warn("dispatch to %s failed (%v), retrying (%d left)", selected.URL, res.err, retries)
	return e.dispatch(ctx, method, op, retries-1)
}

// failoverWalk tries every eligible member in order when no leader is known
// under a tolerant policy. Each attempt carries the failover flag so servers
// relax their leader checks.
func (e *Executor) failoverWalk(ctx context.Context, method string, op types.Operation,
	policy types.FailoverBehavior) (interface{}, error) {

	nodes := e.refresher.Nodes()
	eligible := make([]*types.NodeDescriptor, 0, len(nodes))
	for _, node := range nodes {
		if e.counters.Eligible(node.URL) {
			eligible = append(eligible, node)
		}
	}

	var lastErr error
	for i, node := range eligible {
		if ctx.Err() != nil {
			return nil, errors.NewError(errors.ErrCodeOperationCanceled,
				"operation canceled").WithCause(ctx.Err())
		}

		res := e.tryCall(ctx, node, op, e.newDispatch(method, policy, true))
		if res.err == nil {
			return res.result, nil
		}

		e.counters.Increment(node.URL)
		lastErr = res.err

		// The last candidate propagates a fatal error as-is; anything
		// retryable falls through to the unreachable verdict.
		if i == len(eligible)-1 && !res.retry {
			return nil, res.err
		}
		e.log.Debug("failover walk: %s failed (%v)", node.URL, res.err)
	}

	return nil, errors.NewError(errors.ErrCodeClusterUnreachable,
		"Cluster is not reachable.").WithCause(lastErr)
}

// callResult is the classified outcome of one attempt against one node.
type callResult struct {
	result     interface{}
	err        error
	retry      bool
	wasTimeout bool
}

// tryCall runs the operation against a node and classifies the outcome.
// Server-down and 417 responses are retryable; a 302 carrying the leader
// redirect header installs the redirect target as leader and re-dispatches
// against it; any other failure is final.
func (e *Executor) tryCall(ctx context.Context, node *types.NodeDescriptor,
	op types.Operation, dispatch *types.Dispatch) callResult {

	result, err := op(ctx, node, dispatch)
	if err == nil {
		e.counters.Reset(node.URL)
		return callResult{result: result}
	}

	if down, timeout := errors.IsServerDown(err); down {
		return callResult{err: err, retry: true, wasTimeout: timeout}
	}

	var respErr *errors.ResponseError
	if stderrors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusFound:
			return e.followRedirect(ctx, node, op, dispatch, respErr)
		case http.StatusExpectationFailed:
			return callResult{err: err, retry: true}
		}
	}

	return callResult{err: err}
}

// followRedirect handles a 302 from a non-leader. The redirect is only
// trusted when the node marked it as a leader hint; a bare redirect is
// refused because it may come from an intermediary, not the cluster.
func (e *Executor) followRedirect(ctx context.Context, node *types.NodeDescriptor,
	op types.Operation, dispatch *types.Dispatch, respErr *errors.ResponseError) callResult {

	if !strings.EqualFold(respErr.HeaderValue(types.HeaderLeaderRedirect), "true") {
		return callResult{err: errors.NewError(errors.ErrCodeBadRedirect,
			"got a redirect without a leader hint, maybe there is a proxy in the middle").
			WithNode(node.URL)}
	}

	location := respErr.Location()
	if location == "" {
		return callResult{err: errors.NewError(errors.ErrCodeBadRedirect,
			"got a leader redirect without a location").WithNode(node.URL)}
	}

	redirected := e.findNode(location)
	if redirected == nil {
		redirected = node.WithURL(location)
	}

	e.cell.SetKnownLeader(redirected)
	e.collector.RecordLeaderChange()
	e.collector.SetLeaderKnown(true)
	e.log.Info("leader redirect from %s to %s", node.URL, redirected.URL)

	return e.tryCall(ctx, redirected, op, dispatch)
}

func (e *Executor) findNode(url string) *types.NodeDescriptor {
	url = strings.TrimRight(url, "/")
	for _, node := range e.refresher.Nodes() {
		if strings.TrimRight(node.URL, "/") == url {
			return node
		}
	}
	return nil
}

// newDispatch builds the per-call dispatch context with the cluster headers
// the current policy calls for.
func (e *Executor) newDispatch(method string, policy types.FailoverBehavior, clusterFailover bool) *types.Dispatch {
	headers := map[string]string{
		types.HeaderClusterAware: "true",
	}
	if policy.StripesReads() {
		headers[types.HeaderReadBehavior] = "All"
	}

	failover := clusterFailover || e.failoverHint.Load()
	if failover {
		headers[types.HeaderFailoverBehavior] = "true"
	}

	return &types.Dispatch{
		Method:          method,
		Headers:         headers,
		ClusterFailover: failover,
		StartedAt:       e.clock.Now(),
	}
}
