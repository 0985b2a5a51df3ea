package cluster

import "time"

// MarkOnline records a successful exchange with a peer
func (r *Roster) MarkOnline(id uint64) {
	r.setStatus(id, StatusOnline)
}

// MarkOffline records a failed exchange with a peer
func (r *Roster) MarkOffline(id uint64) {
	r.setStatus(id, StatusOffline)
}

func (r *Roster) setStatus(id uint64, status PeerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[id]
	if !ok || id == r.selfID {
		return
	}
	peer.Status = status
	if status == StatusOnline {
		peer.LastSeen = time.Now()
	}
	r.updateMetricsLocked()
}

// updateMetricsLocked must be called with r.mu held
func (r *Roster) updateMetricsLocked() {
	if r.metricsRegistry == nil {
		return
	}
	online := 0
	for id, p := range r.peers {
		if id != r.selfID && p.Status == StatusOnline {
			online++
		}
	}
	r.metricsRegistry.UpdateMembership(len(r.peers), online)
}
