package cluster

import (
	"net/http"
	"sync/atomic"

	"github.com/NathDevAU/ravendb/internal/failure"
	"github.com/NathDevAU/ravendb/pkg/errors"
	"github.com/NathDevAU/ravendb/pkg/types"
)

// Router picks the dispatch target for an operation from the current leader,
// the membership list, and the failover policy. It also owns the read
// striping base that distributes GET requests across members.
type Router struct {
	counters     *failure.Counters
	stripingBase atomic.Int64
}

// NewRouter creates a router over the given failure counters.
func NewRouter(counters *failure.Counters) *Router {
	return &Router{counters: counters}
}

// GetReadStripingBase returns the striping base, post-incrementing it when
// increment is true so consecutive reads rotate across members. While reads
// are forced to the leader the base is pinned and never incremented.
func (r *Router) GetReadStripingBase(increment bool) int64 {
	if !increment {
		return r.stripingBase.Load()
	}
	for {
		current := r.stripingBase.Load()
		if current == types.ForcedToMaster {
			return current
		}
		if r.stripingBase.CompareAndSwap(current, current+1) {
			return current
		}
	}
}

// SetReadStripingBase overrides the striping base.
func (r *Router) SetReadStripingBase(base int64) {
	r.stripingBase.Store(base)
}

// ForceReadFromMaster pins every read to the leader until the returned
// release function runs. Release restores the base that was in effect at
// acquisition.
func (r *Router) ForceReadFromMaster() func() {
	previous := r.stripingBase.Swap(types.ForcedToMaster)
	return func() {
		r.stripingBase.Store(previous)
	}
}

// SelectNode resolves the target for one dispatch. A (nil, nil) return means
// no leader is known and the policy tolerates that: the caller must run the
// failover walk instead.
func (r *Router) SelectNode(leaderNode *types.NodeDescriptor, nodes []*types.NodeDescriptor,
	method string, policy types.FailoverBehavior) (*types.NodeDescriptor, error) {

	if policy.StripesReads() && method == http.MethodGet {
		base := r.GetReadStripingBase(true)
		if base != types.ForcedToMaster && len(nodes) > 0 {
			candidate := nodes[int(base%int64(len(nodes)))]
			if r.counters.Eligible(candidate.URL) {
				return candidate, nil
			}
		}
	}

	if leaderNode != nil {
		return leaderNode, nil
	}
	if policy.ToleratesMissingLeader() {
		return nil, nil
	}
	return nil, errors.NewError(errors.ErrCodeNoStableLeader,
		"Cluster is not in a stable state")
}
