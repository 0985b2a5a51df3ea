package health

import (
	"encoding/json"
	"net/http"
)

// HTTPHandler serves the general checks. Degraded still answers 200.
func (hc *HealthChecker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.Check()
		writeResponse(w, response, response.Status != StatusUnhealthy)
	}
}

// ReadinessHandler serves readiness checks; anything but healthy is 503
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.CheckReadiness()
		writeResponse(w, response, response.Status == StatusHealthy)
	}
}

// LivenessHandler serves liveness checks; anything but healthy is 503
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.CheckLiveness()
		writeResponse(w, response, response.Status == StatusHealthy)
	}
}

func writeResponse(w http.ResponseWriter, response Response, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(response)
}
