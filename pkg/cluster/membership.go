package cluster

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
)

// NewRoster creates a roster from peers, which must include selfID.
// Node IDs must be non-zero and unique and every node needs both addresses.
func NewRoster(selfID uint64, peers []PeerDescriptor) (*Roster, error) {
	if len(peers) == 0 {
		return nil, ErrEmptyRoster
	}
	if selfID == 0 {
		return nil, ErrInvalidNodeID
	}

	r := &Roster{
		selfID:          selfID,
		peers:           make(map[uint64]*PeerDescriptor, len(peers)),
		order:           make([]uint64, 0, len(peers)),
		metricsRegistry: metrics.DefaultRegistry(),
	}

	for _, p := range peers {
		if p.ID == 0 {
			return nil, ErrInvalidNodeID
		}
		if p.Addr == "" {
			return nil, fmt.Errorf("node %d: %w", p.ID, ErrInvalidNodeAddr)
		}
		if p.ElectionAddr == "" {
			return nil, fmt.Errorf("node %d: %w", p.ID, ErrInvalidElectionAddr)
		}
		if _, exists := r.peers[p.ID]; exists {
			return nil, fmt.Errorf("node %d: %w", p.ID, ErrNodeAlreadyExists)
		}
		peer := p
		peer.Status = StatusUnknown
		if peer.ID == selfID {
			peer.Status = StatusOnline
			peer.LastSeen = time.Now()
		}
		r.peers[p.ID] = &peer
		r.order = append(r.order, p.ID)
	}

	if _, ok := r.peers[selfID]; !ok {
		return nil, fmt.Errorf("node %d: %w", selfID, ErrSelfNotInRoster)
	}

	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })
	return r, nil
}

// SetMetricsRegistry replaces the registry membership gauges are published to
func (r *Roster) SetMetricsRegistry(registry *metrics.Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metricsRegistry = registry
	r.updateMetricsLocked()
}

// ParseRoster parses the textual roster format
//
//	id=dataHost:port/electionHost:port,id=...
//
// Whitespace around entries is ignored.
func ParseRoster(s string) ([]PeerDescriptor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyRoster
	}

	var peers []PeerDescriptor
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		idPart, addrs, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedRoster, entry)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(idPart), 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%w: bad node id in %q", ErrMalformedRoster, entry)
		}
		dataAddr, electionAddr, ok := strings.Cut(addrs, "/")
		if !ok || strings.TrimSpace(dataAddr) == "" || strings.TrimSpace(electionAddr) == "" {
			return nil, fmt.Errorf("%w: %q needs data/election addresses", ErrMalformedRoster, entry)
		}

		peers = append(peers, PeerDescriptor{
			ID:           id,
			Addr:         strings.TrimSpace(dataAddr),
			ElectionAddr: strings.TrimSpace(electionAddr),
		})
	}

	if len(peers) == 0 {
		return nil, ErrEmptyRoster
	}
	return peers, nil
}

// FormatRoster renders peers in the format accepted by ParseRoster
func FormatRoster(peers []PeerDescriptor) string {
	parts := make([]string, 0, len(peers))
	for _, p := range peers {
		parts = append(parts, fmt.Sprintf("%d=%s/%s", p.ID, p.Addr, p.ElectionAddr))
	}
	return strings.Join(parts, ",")
}

// DefaultRoster is the three sensor layout used when nothing is configured
func DefaultRoster() []PeerDescriptor {
	peers := make([]PeerDescriptor, 0, 3)
	for id := uint64(1); id <= 3; id++ {
		peers = append(peers, PeerDescriptor{
			ID:           id,
			Addr:         fmt.Sprintf("localhost:%d", 5000+id),
			ElectionAddr: fmt.Sprintf("localhost:%d", 6000+id),
		})
	}
	return peers
}
