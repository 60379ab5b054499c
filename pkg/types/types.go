package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Request headers understood by cluster-aware servers.
const (
	// HeaderClusterAware marks a request as coming from a cluster-aware client.
	HeaderClusterAware = "Raven-Cluster-Aware"

	// HeaderReadBehavior advertises that reads may be served by any member.
	HeaderReadBehavior = "Raven-Cluster-Read-Behavior"

	// HeaderFailoverBehavior marks a request dispatched after a prior failure
	// under a failover-tolerant policy.
	HeaderFailoverBehavior = "Raven-Cluster-Failover-Behavior"

	// HeaderLeaderRedirect is set by a non-leader on a 302 response pointing
	// at the current leader.
	HeaderLeaderRedirect = "Raven-Leader-Redirect"
)

// Credentials is an opaque credentials handle. The executor never inspects
// it; it is attached to node descriptors and passed through to the request
// transport.
type Credentials interface{}

// ClusterInfo carries the cluster role a node reported for itself.
type ClusterInfo struct {
	IsLeader bool `json:"is_leader"`
}

// NodeDescriptor identifies an addressable cluster member. Descriptors are
// immutable after construction; per-request state (such as the failover
// header) lives in the Dispatch, not here. Equality is by URL.
type NodeDescriptor struct {
	URL         string       `json:"url"`
	Database    string       `json:"database,omitempty"`
	Credentials Credentials  `json:"-"`
	ClusterInfo *ClusterInfo `json:"cluster_info,omitempty"`
}

// Equal reports whether both descriptors address the same node.
func (n *NodeDescriptor) Equal(other *NodeDescriptor) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.URL == other.URL
}

// IsLeader reports whether the node declared itself the cluster leader.
func (n *NodeDescriptor) IsLeader() bool {
	return n != nil && n.ClusterInfo != nil && n.ClusterInfo.IsLeader
}

// Clone returns a copy of the descriptor. ClusterInfo is copied by value so
// the clone can be installed independently.
func (n *NodeDescriptor) Clone() *NodeDescriptor {
	if n == nil {
		return nil
	}
	clone := &NodeDescriptor{
		URL:         n.URL,
		Database:    n.Database,
		Credentials: n.Credentials,
	}
	if n.ClusterInfo != nil {
		info := *n.ClusterInfo
		clone.ClusterInfo = &info
	}
	return clone
}

// WithURL returns a copy of the descriptor pointing at a different URL,
// keeping credentials and cluster info. Used when a leader redirect names a
// node the client has never seen in a topology document.
func (n *NodeDescriptor) WithURL(url string) *NodeDescriptor {
	clone := n.Clone()
	clone.URL = url
	return clone
}

// Topology is the cluster membership document returned by a node. Term and
// ClusterCommitIndex order competing documents: the highest (term, index +
// leader bonus) wins.
type Topology struct {
	Term                int64                    `json:"term"`
	ClusterCommitIndex  int64                    `json:"cluster_commit_index"`
	ClusterInfo         ClusterInfo              `json:"cluster_info"`
	Destinations        []ReplicationDestination `json:"destinations"`
	ClientConfiguration *ClientConfiguration     `json:"client_configuration,omitempty"`
}

// SortKey returns the freshness key for winner selection. A document from a
// node that believes itself leader outranks an equal-index document from a
// follower.
func (t *Topology) SortKey() (term int64, index int64) {
	index = t.ClusterCommitIndex
	if t.ClusterInfo.IsLeader {
		index++
	}
	return t.Term, index
}

// Newer reports whether t outranks other by (term, index) ordering.
func (t *Topology) Newer(other *Topology) bool {
	if other == nil {
		return true
	}
	tTerm, tIdx := t.SortKey()
	oTerm, oIdx := other.SortKey()
	if tTerm != oTerm {
		return tTerm > oTerm
	}
	return tIdx > oIdx
}

// ReplicationDestination is one replication target listed in a topology
// document.
type ReplicationDestination struct {
	URL              string       `json:"url"`
	ClientVisibleURL string       `json:"client_visible_url,omitempty"`
	Database         string       `json:"database,omitempty"`
	CanBeFailover    bool         `json:"can_be_failover"`
	Credentials      Credentials  `json:"-"`
	ClusterInfo      *ClusterInfo `json:"cluster_info,omitempty"`
}

// EffectiveURL picks the client-visible URL when the destination advertises
// one, otherwise the internal URL.
func (d *ReplicationDestination) EffectiveURL() string {
	if d.ClientVisibleURL != "" {
		return d.ClientVisibleURL
	}
	return d.URL
}

// ClientConfiguration is a server-pushed override of client behavior,
// delivered inside a topology document.
type ClientConfiguration struct {
	FailoverBehavior *FailoverBehavior `json:"failover_behavior,omitempty"`
}

// FailoverServer is a statically configured fallback server consulted when
// no regular topology node answers.
type FailoverServer struct {
	URL      string `yaml:"url" json:"url"`
	Database string `yaml:"database,omitempty" json:"database,omitempty"`
}

// Dispatch is the per-call request context handed to the operation closure.
// The executor pre-populates the cluster headers; the transport is expected
// to copy them onto the outgoing request.
type Dispatch struct {
	Method          string
	Headers         map[string]string
	ClusterFailover bool
	StartedAt       time.Time
}

// ForcedToMaster is the striping base value that pins all reads to the
// leader.
const ForcedToMaster = -1

// RootDatabaseURL strips the database suffix from a node URL, yielding the
// server root.
func RootDatabaseURL(url string) string {
	url = strings.TrimRight(url, "/")
	if idx := strings.Index(strings.ToLower(url), "/databases/"); idx >= 0 {
		return url[:idx]
	}
	return url
}

// ForDatabase composes a database-scoped URL from a server root.
func ForDatabase(rootURL, database string) string {
	return strings.TrimRight(rootURL, "/") + "/databases/" + database
}

// ServerHash derives the stable key under which topology for a primary node
// is cached. Case and trailing slashes do not affect the hash.
func ServerHash(url string) string {
	normalized := strings.ToLower(strings.TrimRight(url, "/"))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}
