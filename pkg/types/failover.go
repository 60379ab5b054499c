package types

import (
	"fmt"
	"strings"
)

// FailoverBehavior governs where reads and writes go when the leader is
// unknown or unreachable.
type FailoverBehavior string

const (
	// ReadFromLeaderWriteToLeader is the strict default: every request goes
	// to the leader, and a missing leader is an error.
	ReadFromLeaderWriteToLeader FailoverBehavior = "read_from_leader_write_to_leader"

	// ReadFromAllWriteToLeader stripes GET requests across all known members
	// while writes still require the leader.
	ReadFromAllWriteToLeader FailoverBehavior = "read_from_all_write_to_leader"

	// ReadFromAllWriteToLeaderWithFailovers stripes reads and, when the
	// leader is unknown, walks the member list looking for any node that
	// will take the request.
	ReadFromAllWriteToLeaderWithFailovers FailoverBehavior = "read_from_all_write_to_leader_with_failovers"

	// ReadFromLeaderWriteToLeaderWithFailovers sends everything to the
	// leader but falls back to the member walk when the leader is unknown.
	ReadFromLeaderWriteToLeaderWithFailovers FailoverBehavior = "read_from_leader_write_to_leader_with_failovers"
)

// ParseFailoverBehavior parses a configuration string into a behavior value.
func ParseFailoverBehavior(s string) (FailoverBehavior, error) {
	switch FailoverBehavior(strings.ToLower(strings.TrimSpace(s))) {
	case ReadFromLeaderWriteToLeader, "":
		return ReadFromLeaderWriteToLeader, nil
	case ReadFromAllWriteToLeader:
		return ReadFromAllWriteToLeader, nil
	case ReadFromAllWriteToLeaderWithFailovers:
		return ReadFromAllWriteToLeaderWithFailovers, nil
	case ReadFromLeaderWriteToLeaderWithFailovers:
		return ReadFromLeaderWriteToLeaderWithFailovers, nil
	default:
		return ReadFromLeaderWriteToLeader, fmt.Errorf("unknown failover behavior: %q", s)
	}
}

// String returns the configuration spelling of the behavior.
func (b FailoverBehavior) String() string {
	return string(b)
}

// StripesReads reports whether GET requests are distributed across members.
func (b FailoverBehavior) StripesReads() bool {
	return b == ReadFromAllWriteToLeader || b == ReadFromAllWriteToLeaderWithFailovers
}

// ToleratesMissingLeader reports whether dispatch may proceed via the
// failover walk when no leader is known.
func (b FailoverBehavior) ToleratesMissingLeader() bool {
	return b == ReadFromAllWriteToLeaderWithFailovers ||
		b == ReadFromLeaderWriteToLeaderWithFailovers
}
