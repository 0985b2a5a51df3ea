package logging

import (
	"time"
)

const (
	nodeIDKey  = "node_id"
	lamportKey = "lamport"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Sensor fleet helpers

func Component(name string) Field {
	return String("component", name)
}

// NodeID identifies the node that is logging
func NodeID(id uint64) Field {
	return Uint64(nodeIDKey, id)
}

// PeerID identifies the remote node an event concerns
func PeerID(id uint64) Field {
	return Uint64("peer_id", id)
}

// Lamport stamps an entry with the logical time of the event
func Lamport(t uint64) Field {
	return Uint64(lamportKey, t)
}

func Endpoint(addr string) Field {
	return String("endpoint", addr)
}

func Kind(kind string) Field {
	return String("kind", kind)
}

func Version(v uint64) Field {
	return Uint64("version", v)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}
