package node

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/cluster"
	"github.com/dd0wney/cluso-sensornet/pkg/config"
	"github.com/dd0wney/cluso-sensornet/pkg/encryption"
	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
	"github.com/dd0wney/cluso-sensornet/pkg/transport"
)

// testEngine is shared so tests skip key derivation
var testEngine = func() *encryption.Engine {
	e, err := encryption.NewEngine(bytes.Repeat([]byte{0x42}, encryption.KeySize))
	if err != nil {
		panic(err)
	}
	return e
}()

func testPeers(size int) []cluster.PeerDescriptor {
	peers := make([]cluster.PeerDescriptor, 0, size)
	for id := 1; id <= size; id++ {
		peers = append(peers, cluster.PeerDescriptor{
			ID:           uint64(id),
			Addr:         fmt.Sprintf("sensor-%d:5000", id),
			ElectionAddr: fmt.Sprintf("sensor-%d:6000", id),
		})
	}
	return peers
}

// testConfig uses timings short enough for a cluster to converge in tests
func testConfig(id uint64, size int) *config.Config {
	cfg := config.Default()
	cfg.NodeID = id
	cfg.Peers = testPeers(size)
	cfg.ProbeTimeout = 50 * time.Millisecond
	cfg.DetectorInterval = 150 * time.Millisecond
	cfg.SettleWindow = 100 * time.Millisecond
	cfg.NotifyTimeout = 50 * time.Millisecond
	cfg.StartupDelay = 30 * time.Millisecond
	cfg.SendTimeout = 50 * time.Millisecond
	cfg.ReplicationInterval = 100 * time.Millisecond
	cfg.MutationInterval = 50 * time.Millisecond
	cfg.Seed = id
	return cfg
}

func newTestNode(t *testing.T, network *transport.MemoryNetwork, cfg *config.Config) (*Node, *metrics.Registry) {
	t.Helper()
	registry := metrics.NewRegistry()
	n, err := New(cfg, network.Transport(),
		WithLogger(logging.NewNopLogger()),
		WithMetricsRegistry(registry),
		WithEngine(testEngine))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return n, registry
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}

func coordinatorOf(n *Node) uint64 {
	ref, ok := n.Election().Coordinator()
	if !ok {
		return 0
	}
	return ref.ID
}
