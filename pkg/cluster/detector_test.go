package cluster

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dd0wney/cluso-sensornet/pkg/logging"
	"github.com/dd0wney/cluso-sensornet/pkg/metrics"
)

// fakeProber answers probes according to a per-peer down set
type fakeProber struct {
	mu     sync.Mutex
	down   map[uint64]bool
	probes map[uint64]int
	alerts map[uint64][]string
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		down:   make(map[uint64]bool),
		probes: make(map[uint64]int),
		alerts: make(map[uint64][]string),
	}
}

func (p *fakeProber) setDown(id uint64, down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down[id] = down
}

func (p *fakeProber) Probe(ctx context.Context, peer PeerDescriptor) error {
	p.mu.Lock()
	p.probes[peer.ID]++
	down := p.down[peer.ID]
	p.mu.Unlock()

	if down {
		// Simulate a probe that always times out
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakeProber) SendAlert(ctx context.Context, peer PeerDescriptor, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down[peer.ID] {
		return errPeerDown
	}
	p.alerts[peer.ID] = append(p.alerts[peer.ID], message)
	return nil
}

// fakeElector records election triggers without running them
type fakeElector struct {
	mu          sync.Mutex
	self        uint64
	coordinator *CoordinatorRef
	round       uint64
	triggers    atomic.Int32
}

func (e *fakeElector) Coordinator() (CoordinatorRef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.coordinator == nil {
		return CoordinatorRef{}, false
	}
	return *e.coordinator, true
}

func (e *fakeElector) IsCoordinator() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coordinator != nil && e.coordinator.ID == e.self
}

func (e *fakeElector) StartElection() bool {
	e.triggers.Add(1)
	return true
}

func (e *fakeElector) Round() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round
}

func (e *fakeElector) setCoordinator(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.coordinator = &CoordinatorRef{ID: id}
}

func (e *fakeElector) completeRound() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round++
}

func newTestDetector(t *testing.T, self uint64, size int) (*FailureDetector, *fakeProber, *fakeElector) {
	t.Helper()
	prober := newFakeProber()
	elector := &fakeElector{self: self}
	fd := NewFailureDetector(testConfig(self), testRoster(t, self, size), prober, elector)
	fd.SetLogger(logging.NewNopLogger())
	fd.SetMetricsRegistry(metrics.NewRegistry())
	return fd, prober, elector
}

// TestDetectorTriggersOncePerFailure tests that three failed probes of the
// coordinator start exactly one election
func TestDetectorTriggersOncePerFailure(t *testing.T) {
	fd, prober, elector := newTestDetector(t, 1, 3)
	elector.setCoordinator(3)
	prober.setDown(3, true)

	for i := 0; i < 3; i++ {
		report := fd.RunCycle(context.Background())
		if report.Role != CycleFollower || report.Active != 0 {
			t.Fatalf("cycle %d: unexpected report %+v", i, report)
		}
		if report.Triggered != (i == 0) {
			t.Errorf("cycle %d: Triggered = %v", i, report.Triggered)
		}
	}

	if got := elector.triggers.Load(); got != 1 {
		t.Errorf("Expected exactly 1 election trigger, got %d", got)
	}
	if got := prober.probes[3]; got != 3 {
		t.Errorf("Expected 3 probes of the coordinator, got %d", got)
	}
	if p, _ := fd.roster.Get(3); p.Status != StatusOffline {
		t.Errorf("Coordinator status = %v, want offline", p.Status)
	}
}

// TestDetectorLatchRelease tests the conditions that re-arm the detector
func TestDetectorLatchRelease(t *testing.T) {
	fd, prober, elector := newTestDetector(t, 1, 3)
	elector.setCoordinator(3)
	prober.setDown(3, true)

	fd.RunCycle(context.Background())
	fd.RunCycle(context.Background())
	if got := elector.triggers.Load(); got != 1 {
		t.Fatalf("Expected 1 trigger, got %d", got)
	}

	// A completed election that left the dead coordinator in place re-arms
	elector.completeRound()
	if report := fd.RunCycle(context.Background()); !report.Triggered {
		t.Error("Expected a new trigger after the election round completed")
	}

	// Recovery clears the latch
	prober.setDown(3, false)
	if report := fd.RunCycle(context.Background()); report.Triggered || report.Active != 1 {
		t.Errorf("Unexpected report after recovery: %+v", report)
	}
	prober.setDown(3, true)
	if report := fd.RunCycle(context.Background()); !report.Triggered {
		t.Error("Expected a new trigger after the coordinator failed again")
	}

	// A new coordinator failing is a new failure
	elector.setCoordinator(2)
	prober.setDown(2, true)
	if report := fd.RunCycle(context.Background()); !report.Triggered {
		t.Error("Expected a trigger for the new coordinator")
	}

	if got := elector.triggers.Load(); got != 4 {
		t.Errorf("Expected 4 triggers in total, got %d", got)
	}
}

// TestDetectorNoCoordinator tests that an unknown coordinator starts an election
func TestDetectorNoCoordinator(t *testing.T) {
	fd, prober, elector := newTestDetector(t, 1, 3)

	report := fd.RunCycle(context.Background())
	if report.Role != CycleNoCoordinator || !report.Triggered {
		t.Errorf("Unexpected report: %+v", report)
	}
	fd.RunCycle(context.Background())

	if got := elector.triggers.Load(); got != 1 {
		t.Errorf("Expected 1 trigger, got %d", got)
	}
	if len(prober.probes) != 0 {
		t.Error("No probes should be sent without a coordinator")
	}
}

// TestCoordinatorProbesAll tests the coordinator path and the alert threshold
func TestCoordinatorProbesAll(t *testing.T) {
	fd, prober, elector := newTestDetector(t, 3, 3)
	elector.setCoordinator(3)

	var alerts []string
	fd.SetOnAlert(func(msg string) { alerts = append(alerts, msg) })

	// All peers up
	report := fd.RunCycle(context.Background())
	if report.Role != CycleCoordinator || report.Probed != 2 || report.Active != 2 || report.Alerted {
		t.Errorf("Unexpected report with all peers up: %+v", report)
	}

	// One peer down is tolerated
	prober.setDown(1, true)
	report = fd.RunCycle(context.Background())
	if report.Active != 1 || report.Alerted {
		t.Errorf("Unexpected report with one peer down: %+v", report)
	}

	// More than one peer down raises the alert
	prober.setDown(2, true)
	report = fd.RunCycle(context.Background())
	if report.Active != 0 || !report.Alerted || len(report.Failed) != 2 {
		t.Errorf("Unexpected report with both peers down: %+v", report)
	}
	if len(alerts) != 1 {
		t.Errorf("Expected 1 alert hook call, got %d", len(alerts))
	}

	// The coordinator never triggers elections
	if got := elector.triggers.Load(); got != 0 {
		t.Errorf("Coordinator triggered %d elections", got)
	}
}

// TestAlertBroadcast tests that alerts reach reachable peers
func TestAlertBroadcast(t *testing.T) {
	fd, prober, elector := newTestDetector(t, 5, 5)
	elector.setCoordinator(5)

	// Quorum(5) = 2; with three peers down only one answers
	for _, id := range []uint64{1, 2, 3} {
		prober.setDown(id, true)
	}

	report := fd.RunCycle(context.Background())
	if !report.Alerted {
		t.Fatalf("Expected an alert, got %+v", report)
	}
	if got := len(prober.alerts[4]); got != 1 {
		t.Errorf("Reachable peer got %d alerts, want 1", got)
	}
	if len(prober.alerts[1]) != 0 {
		t.Error("Unreachable peer should not have received the alert")
	}
}

// TestDetectorStartStop tests the periodic loop
func TestDetectorStartStop(t *testing.T) {
	fd, prober, elector := newTestDetector(t, 1, 3)
	elector.setCoordinator(3)

	if err := fd.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Starting twice is a no-op
	if err := fd.Start(); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}

	ok := waitFor(t, 2*time.Second, func() bool {
		prober.mu.Lock()
		defer prober.mu.Unlock()
		return prober.probes[3] >= 2
	})
	if !ok {
		t.Error("Detector loop did not probe the coordinator")
	}

	if err := fd.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := fd.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
}

// TestDetectorDrivesRealElection tests the detector against the election manager
func TestDetectorDrivesRealElection(t *testing.T) {
	n, managers := newTestCluster(t, 3)
	managers[2].Elect(context.Background())
	if coordinatorOf(managers[1]) != 3 {
		t.Fatal("setup: node 2 should follow node 3")
	}

	// Node 3 dies; node 2's detector notices and node 2 takes over
	n.setDown(3, true)
	prober := newFakeProber()
	prober.setDown(3, true)
	fd := NewFailureDetector(testConfig(2), managers[1].roster, prober, managers[1])
	fd.SetLogger(logging.NewNopLogger())
	fd.SetMetricsRegistry(metrics.NewRegistry())

	if report := fd.RunCycle(context.Background()); !report.Triggered {
		t.Fatalf("Expected election trigger, got %+v", report)
	}

	ok := waitFor(t, 2*time.Second, func() bool {
		return coordinatorOf(managers[0]) == 2 && coordinatorOf(managers[1]) == 2
	})
	if !ok {
		t.Fatalf("Node 2 did not take over: node1=%d node2=%d",
			coordinatorOf(managers[0]), coordinatorOf(managers[1]))
	}
}
