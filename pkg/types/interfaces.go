package types

import (
	"context"
	"time"
)

// Operation is the user-supplied request closure. The executor chooses the
// node and fills in the dispatch context; the closure performs the actual
// transport call and returns the raw result. The executor never inspects the
// result, only the error.
type Operation func(ctx context.Context, node *NodeDescriptor, dispatch *Dispatch) (interface{}, error)

// TopologyFetcher asks a single node for its view of the cluster topology.
// Implementations must honor the context deadline; a nil document with a nil
// error is treated the same as a fetch failure.
type TopologyFetcher func(ctx context.Context, node *NodeDescriptor) (*Topology, error)

// TopologyStore persists node lists keyed by server hash so a client can
// start against a known topology before any node answers. Semantics are
// best-effort: Load returns (nil, nil) when no snapshot exists, and callers
// swallow Save errors.
type TopologyStore interface {
	Load(ctx context.Context, serverHash string) ([]*NodeDescriptor, error)
	Save(ctx context.Context, serverHash string, nodes []*NodeDescriptor) error
}

// Clock abstracts time for components that stamp or schedule; tests inject
// a fake.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return ClockFunc(time.Now) }
