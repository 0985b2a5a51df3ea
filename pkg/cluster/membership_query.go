package cluster

// SelfID returns the local node ID
func (r *Roster) SelfID() uint64 {
	return r.selfID
}

// Self returns the local node's descriptor
func (r *Roster) Self() PeerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return *r.peers[r.selfID]
}

// Size returns the number of nodes in the roster, self included
func (r *Roster) Size() int {
	return len(r.order)
}

// Get returns the descriptor for id
func (r *Roster) Get(id uint64) (PeerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	if !ok {
		return PeerDescriptor{}, false
	}
	return *p, true
}

// Contains reports whether id is a roster member
func (r *Roster) Contains(id uint64) bool {
	_, ok := r.peers[id]
	return ok
}

// All returns every node, self included, ordered by ID
func (r *Roster) All() []PeerDescriptor {
	return r.filter(func(uint64) bool { return true })
}

// Others returns every node except self, ordered by ID
func (r *Roster) Others() []PeerDescriptor {
	return r.filter(func(id uint64) bool { return id != r.selfID })
}

// Higher returns the nodes whose ID is strictly greater than self
func (r *Roster) Higher() []PeerDescriptor {
	return r.filter(func(id uint64) bool { return id > r.selfID })
}

// Lower returns the nodes whose ID is strictly lower than self
func (r *Roster) Lower() []PeerDescriptor {
	return r.filter(func(id uint64) bool { return id < r.selfID })
}

// OnlineCount returns how many peers other than self are marked online
func (r *Roster) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for id, p := range r.peers {
		if id != r.selfID && p.Status == StatusOnline {
			count++
		}
	}
	return count
}

func (r *Roster) filter(keep func(id uint64) bool) []PeerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PeerDescriptor, 0, len(r.order))
	for _, id := range r.order {
		if keep(id) {
			out = append(out, *r.peers[id])
		}
	}
	return out
}
