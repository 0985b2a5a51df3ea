package cluster

// Quorum returns the number of external peers that must agree for a roster
// of n nodes: a majority of the roster with the local node's implicit vote
// excluded, floor(n/2).
//
// The same rule drives the replication success check and the coordinator's
// multiple-failure alert.
func Quorum(n int) int {
	if n <= 0 {
		return 0
	}
	return n / 2
}

// HasQuorum reports whether acks external acknowledgements satisfy Quorum(n).
func HasQuorum(acks, n int) bool {
	return acks >= Quorum(n)
}
