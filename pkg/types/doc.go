/*
Package types defines the data model and ports of the cluster-aware request
executor.

The executor hides a replicated database cluster behind a single
request-issuing interface. This package holds the contracts shared by its
components:

NodeDescriptor:
An addressable cluster member. Descriptors are immutable; equality is by URL.

Topology:
The membership document a node returns when probed, ordered against competing
documents by (term, commit index + leader bonus).

FailoverBehavior:
The policy governing read striping and what happens when the leader is
unknown.

Operation / TopologyFetcher / TopologyStore:
The injected ports. Operation is the user's transport closure, TopologyFetcher
probes a single node, and TopologyStore persists topology snapshots keyed by
server hash so startup works with no reachable node.

All types in this package are safe to share between goroutines once
constructed; anything mutable lives behind the components in internal/.
*/
package types
