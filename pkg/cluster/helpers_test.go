package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
)

var errPeerDown = errors.New("peer down")

// fakeNet routes election traffic between in-process managers
type fakeNet struct {
	mu       sync.Mutex
	managers map[uint64]*ElectionManager
	down     map[uint64]bool
	sent     map[string]int // "kind from->to" counters
}

func newFakeNet() *fakeNet {
	return &fakeNet{
		managers: make(map[uint64]*ElectionManager),
		down:     make(map[uint64]bool),
		sent:     make(map[string]int),
	}
}

func (n *fakeNet) setDown(id uint64, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[id] = down
}

func (n *fakeNet) target(id uint64) (*ElectionManager, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	m := n.managers[id]
	return m, m != nil && !n.down[id]
}

func (n *fakeNet) count(key string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[key]
}

func (n *fakeNet) record(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[key]++
}

// endpoint is one node's view of the fake network
type endpoint struct {
	net  *fakeNet
	from uint64
}

func (e endpoint) SendElection(ctx context.Context, peer PeerDescriptor) error {
	e.net.record(fmt.Sprintf("election %d->%d", e.from, peer.ID))
	m, ok := e.net.target(peer.ID)
	if !ok {
		return errPeerDown
	}
	m.HandleElection(e.from)
	return nil
}

func (e endpoint) SendCoordinator(ctx context.Context, peer PeerDescriptor, self PeerDescriptor) error {
	e.net.record(fmt.Sprintf("coordinator %d->%d", e.from, peer.ID))
	m, ok := e.net.target(peer.ID)
	if !ok {
		return errPeerDown
	}
	return m.HandleCoordinator(self.ID)
}

func testRoster(t *testing.T, self uint64, size int) *Roster {
	t.Helper()
	peers := make([]PeerDescriptor, 0, size)
	for id := uint64(1); id <= uint64(size); id++ {
		peers = append(peers, PeerDescriptor{
			ID:           id,
			Addr:         fmt.Sprintf("localhost:%d", 5000+id),
			ElectionAddr: fmt.Sprintf("localhost:%d", 6000+id),
		})
	}
	r, err := NewRoster(self, peers)
	if err != nil {
		t.Fatalf("NewRoster failed: %v", err)
	}
	r.SetMetricsRegistry(metrics.NewRegistry())
	return r
}

func testConfig(id uint64) ClusterConfig {
	return ClusterConfig{
		NodeID:           id,
		ProbeTimeout:     50 * time.Millisecond,
		DetectorInterval: 200 * time.Millisecond,
		SettleWindow:     50 * time.Millisecond,
		NotifyTimeout:    50 * time.Millisecond,
		StartupDelay:     10 * time.Millisecond,
	}
}

// newTestCluster builds size managers wired through one fakeNet
func newTestCluster(t *testing.T, size int) (*fakeNet, []*ElectionManager) {
	t.Helper()
	n := newFakeNet()
	managers := make([]*ElectionManager, 0, size)
	for id := uint64(1); id <= uint64(size); id++ {
		em := NewElectionManager(testConfig(id), testRoster(t, id, size), endpoint{net: n, from: id})
		em.SetLogger(logging.NewNopLogger())
		em.SetMetricsRegistry(metrics.NewRegistry())
		n.managers[id] = em
		managers = append(managers, em)
	}
	t.Cleanup(func() {
		for _, em := range managers {
			em.Stop()
		}
	})
	return n, managers
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func coordinatorOf(em *ElectionManager) uint64 {
	c, ok := em.Coordinator()
	if !ok {
		return 0
	}
	return c.ID
}
