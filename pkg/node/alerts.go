package node

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-sensornet/pkg/config"
)

// DefaultAlertLogSize is the number of alerts a node keeps
const DefaultAlertLogSize = config.DefaultAlertLogSize

// AlertSource tells whether an alert was raised here or received
type AlertSource string

const (
	SourceLocal  AlertSource = "local"
	SourceRemote AlertSource = "remote"
)

// Alert is one entry of the alert log
type Alert struct {
	ID         string      `json:"id"`
	Message    string      `json:"message"`
	Source     AlertSource `json:"source"`
	Lamport    uint64      `json:"lamport"`
	ReceivedAt time.Time   `json:"received_at"`
}

// AlertLog keeps the most recent alerts, oldest dropped first.
// Safe for concurrent use.
type AlertLog struct {
	mu      sync.Mutex
	entries []Alert
	limit   int
	total   uint64
}

// NewAlertLog creates a log holding at most limit alerts (minimum 1)
func NewAlertLog(limit int) *AlertLog {
	return &AlertLog{limit: max(limit, 1)}
}

// Append records an alert and returns it
func (l *AlertLog) Append(message string, source AlertSource, lamport uint64) Alert {
	a := Alert{
		ID:         uuid.NewString(),
		Message:    message,
		Source:     source,
		Lamport:    lamport,
		ReceivedAt: time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, a)
	l.total++
	return a
}

// List returns the retained alerts, oldest first
func (l *AlertLog) List() []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Alert(nil), l.entries...)
}

// Len returns the number of retained alerts
func (l *AlertLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Total returns how many alerts were ever appended
func (l *AlertLog) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
