// Package leader holds the atomic leader cell and its readiness latch.
package leader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NathDevAU/ravendb/pkg/types"
	"github.com/NathDevAU/ravendb/pkg/utils"
)

// Cell is the atomic holder of the current cluster leader, paired with a
// one-shot latch that callers can await. The latch is raised whenever a real
// leader is installed and lowered whenever the leader transitions to nil;
// outside of a transition, the latch is raised iff the cell is non-nil.
//
// The three write primitives (SetKnownLeader, CompareAndClear, SetIfNil) are
// the only ways leadership transitions happen, which keeps transitions
// linearizable with respect to request dispatch. Get is lock-free.
type Cell struct {
	mu      sync.Mutex
	current atomic.Value // *types.NodeDescriptor, possibly typed nil
	latch   chan struct{}
	latched bool
	log     *utils.Logger
}

// NewCell creates an empty cell with a lowered latch.
func NewCell(log *utils.Logger) *Cell {
	if log == nil {
		log = utils.Default()
	}
	c := &Cell{
		latch: make(chan struct{}),
		log:   log.WithComponent("leader"),
	}
	c.current.Store((*types.NodeDescriptor)(nil))
	return c
}

// Get returns the current leader, or nil. Lock-free.
func (c *Cell) Get() *types.NodeDescriptor {
	node, _ := c.current.Load().(*types.NodeDescriptor)
	return node
}

// SetKnownLeader installs a confirmed leader and raises the latch. A nil
// argument is a no-op.
func (c *Cell) SetKnownLeader(node *types.NodeDescriptor) {
	if node == nil {
		c.log.Warn("ignoring attempt to install a nil leader")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Store(node)
	c.raiseLatchLocked()
}

// CompareAndClear stores nil iff the current leader equals prev, lowering
// the latch on a real transition. It returns true when the cell ends up nil
// because of this call or already was nil, so callers can treat "someone
// cleared it before me" as success.
func (c *Cell) CompareAndClear(prev *types.NodeDescriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.Get()
	if current == nil {
		return true
	}
	if !current.Equal(prev) {
		return false
	}

	c.current.Store((*types.NodeDescriptor)(nil))
	c.lowerLatchLocked()
	return true
}

// SetIfNil installs node iff no leader is currently set, raising the latch
// when raiseLatch is true. Returns whether the install happened. Installing
// without raising the latch leaves the node visible to Get without waking
// leader waiters; the refresher uses that for the promote-primary fallback
// only when it explicitly wants a silent install.
func (c *Cell) SetIfNil(node *types.NodeDescriptor, raiseLatch bool) bool {
	if node == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Get() != nil {
		return false
	}

	c.current.Store(node)
	if raiseLatch {
		c.raiseLatchLocked()
	}
	return true
}

// ForceClear unconditionally clears the leader and lowers the latch. Only
// the topology refresher calls this, during a controlled refresh.
func (c *Cell) ForceClear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Store((*types.NodeDescriptor)(nil))
	c.lowerLatchLocked()
}

// AwaitLeader blocks until the latch is raised, the timeout elapses, or the
// context is canceled. It returns true when a leader became known.
func (c *Cell) AwaitLeader(ctx context.Context, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	if c.latched {
		c.mu.Unlock()
		return true, nil
	}
	latch := c.latch
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-latch:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *Cell) raiseLatchLocked() {
	if !c.latched {
		close(c.latch)
		c.latched = true
	}
}

func (c *Cell) lowerLatchLocked() {
	if c.latched {
		c.latch = make(chan struct{})
		c.latched = false
	}
}
