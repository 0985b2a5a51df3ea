// Package replication keeps the replicated record of a sensor node and
// pushes it from the coordinator to its peers with a majority quorum.
package replication

import (
	"maps"
	"sync"
	"time"
)

// Record is the replicated state: an opaque payload and a strictly
// increasing version.
type Record struct {
	Payload     map[string]any
	Version     uint64
	LastUpdated time.Time
}

// Clone returns a copy whose payload map is not shared with r
func (r Record) Clone() Record {
	r.Payload = maps.Clone(r.Payload)
	return r
}

// Store guards the node's record.
//
// Concurrent Safety:
// Every read returns a clone taken under the lock; every write replaces the
// record under the lock. No method blocks on anything but the mutex.
type Store struct {
	mu     sync.RWMutex
	record Record
	now    func() time.Time
}

// NewStore creates a store holding initial
func NewStore(initial Record) *Store {
	return &Store{record: initial.Clone(), now: time.Now}
}

// Snapshot returns a consistent copy of the record
func (s *Store) Snapshot() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Clone()
}

// Version returns the current record version
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Version
}

// Update replaces the payload locally, bumping the version
func (s *Store) Update(payload map[string]any) Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record = Record{
		Payload:     maps.Clone(payload),
		Version:     s.record.Version + 1,
		LastUpdated: s.now(),
	}
	return s.record.Clone()
}

// FastForward moves the local version past peerVersion so the next push
// is newer than what that peer holds. The payload is kept. It returns false
// when the local version is already ahead.
func (s *Store) FastForward(peerVersion uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record.Version > peerVersion {
		return false
	}
	s.record.Version = peerVersion + 1
	s.record.LastUpdated = s.now()
	return true
}

// Apply installs incoming when its version is strictly greater than the
// local one. Otherwise the local record is left untouched and ErrStaleWrite
// is returned.
func (s *Store) Apply(incoming Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if incoming.Version <= s.record.Version {
		return ErrStaleWrite
	}
	s.record = incoming.Clone()
	return nil
}
