package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func staticCheck(status Status) CheckFunc {
	return func() Check { return Check{Status: status} }
}

func TestRegisterCheck(t *testing.T) {
	hc := NewHealthChecker()

	called := false
	hc.RegisterCheck("test", func() Check {
		called = true
		return Check{Status: StatusHealthy}
	})

	resp := hc.Check()
	if !called {
		t.Error("registered check was not called")
	}
	check, exists := resp.Checks["test"]
	if !exists {
		t.Fatal("check result not in response")
	}
	if check.Name != "test" {
		t.Errorf("Expected name to default to registration key, got %q", check.Name)
	}
	if check.LastChecked.IsZero() {
		t.Error("LastChecked not set")
	}
}

func TestCheckSetsAreSeparate(t *testing.T) {
	hc := NewHealthChecker()

	var general, ready, live int
	hc.RegisterCheck("g", func() Check { general++; return Check{Status: StatusHealthy} })
	hc.RegisterReadinessCheck("r", func() Check { ready++; return Check{Status: StatusHealthy} })
	hc.RegisterLivenessCheck("l", func() Check { live++; return Check{Status: StatusHealthy} })

	hc.Check()
	hc.CheckReadiness()
	hc.CheckReadiness()
	hc.CheckLiveness()

	if general != 1 || ready != 2 || live != 1 {
		t.Errorf("Unexpected call counts: general=%d ready=%d live=%d", general, ready, live)
	}
}

func TestWorstStatusWins(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy beats degraded", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthChecker()
			for i, s := range tt.statuses {
				hc.RegisterCheck(string(rune('a'+i)), staticCheck(s))
			}
			if got := hc.Check().Status; got != tt.want {
				t.Errorf("Status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUptime(t *testing.T) {
	hc := NewHealthChecker()
	time.Sleep(10 * time.Millisecond)
	if up := hc.Check().Uptime; up <= 0 {
		t.Errorf("Expected positive uptime, got %v", up)
	}
}

func TestHTTPHandlerStatusCodes(t *testing.T) {
	tests := []struct {
		status Status
		health int
		ready  int
	}{
		{StatusHealthy, http.StatusOK, http.StatusOK},
		{StatusDegraded, http.StatusOK, http.StatusServiceUnavailable},
		{StatusUnhealthy, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			hc := NewHealthChecker()
			hc.RegisterCheck("c", staticCheck(tt.status))
			hc.RegisterReadinessCheck("c", staticCheck(tt.status))
			hc.RegisterLivenessCheck("c", staticCheck(tt.status))

			rec := httptest.NewRecorder()
			hc.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rec.Code != tt.health {
				t.Errorf("/health code = %d, want %d", rec.Code, tt.health)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("Body status = %s, want %s", resp.Status, tt.status)
			}

			rec = httptest.NewRecorder()
			hc.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.ready {
				t.Errorf("/ready code = %d, want %d", rec.Code, tt.ready)
			}

			rec = httptest.NewRecorder()
			hc.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
			if rec.Code != tt.ready {
				t.Errorf("/live code = %d, want %d", rec.Code, tt.ready)
			}
		})
	}
}

func TestListenerCheck(t *testing.T) {
	if got := ListenerCheck(func() bool { return true })().Status; got != StatusHealthy {
		t.Errorf("serving: %s", got)
	}
	if got := ListenerCheck(func() bool { return false })().Status; got != StatusUnhealthy {
		t.Errorf("not serving: %s", got)
	}
}

func TestCoordinatorCheck(t *testing.T) {
	tests := []struct {
		name  string
		state CoordinatorState
		want  Status
	}{
		{"unknown", CoordinatorState{}, StatusUnhealthy},
		{"electing", CoordinatorState{ElectionInFlight: true}, StatusDegraded},
		{"self", CoordinatorState{Known: true, CoordinatorID: 3, IsSelf: true}, StatusHealthy},
		{"follower", CoordinatorState{Known: true, CoordinatorID: 3}, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := CoordinatorCheck(func() CoordinatorState { return tt.state })()
			if check.Status != tt.want {
				t.Errorf("Status = %s, want %s (%s)", check.Status, tt.want, check.Message)
			}
		})
	}
}

func TestMembershipCheck(t *testing.T) {
	tests := []struct {
		name                  string
		online, total, quorum int
		want                  Status
	}{
		{"all reachable", 3, 3, 1, StatusHealthy},
		{"one peer down", 2, 3, 1, StatusDegraded},
		{"both peers down", 1, 3, 1, StatusUnhealthy},
		{"five node majority lost", 2, 5, 2, StatusUnhealthy},
		{"single node", 1, 1, 0, StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := MembershipCheck(func() (int, int, int) { return tt.online, tt.total, tt.quorum })()
			if check.Status != tt.want {
				t.Errorf("Status = %s, want %s", check.Status, tt.want)
			}
		})
	}
}

func TestReplicationCheck(t *testing.T) {
	tests := []struct {
		name  string
		state ReplicationState
		want  Status
	}{
		{"follower", ReplicationState{Version: 4}, StatusHealthy},
		{"coordinator before first round", ReplicationState{IsCoordinator: true}, StatusHealthy},
		{"quorum reached", ReplicationState{IsCoordinator: true, HasRound: true, LastSuccess: true}, StatusHealthy},
		{"quorum missed", ReplicationState{IsCoordinator: true, HasRound: true}, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := ReplicationCheck(func() ReplicationState { return tt.state })()
			if check.Status != tt.want {
				t.Errorf("Status = %s, want %s", check.Status, tt.want)
			}
		})
	}
}

func TestConcurrentChecks(t *testing.T) {
	hc := NewHealthChecker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			hc.RegisterCheck("c", staticCheck(StatusHealthy))
		}()
		go func() {
			defer wg.Done()
			hc.Check()
		}()
	}
	wg.Wait()
}
