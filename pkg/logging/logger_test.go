package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("Level.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"nonsense", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFieldConstructors(t *testing.T) {
	if f := NodeID(3); f.Key != "node_id" || f.Value != uint64(3) {
		t.Errorf("NodeID() = %+v", f)
	}
	if f := Lamport(17); f.Key != "lamport" || f.Value != uint64(17) {
		t.Errorf("Lamport() = %+v", f)
	}
	if f := Duration("timeout", 2*time.Second); f.Value != "2s" {
		t.Errorf("Duration() = %+v", f)
	}
	if f := Error(errors.New("boom")); f.Key != "error" || f.Value != "boom" {
		t.Errorf("Error() = %+v", f)
	}
	if f := Error(nil); f.Value != nil {
		t.Errorf("Error(nil) = %+v", f)
	}
}

func TestJSONLogger_BasicLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	logger.Info("coordinator elected", NodeID(3), Lamport(9))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}

	if entry.Level != "INFO" {
		t.Errorf("Level = %v, want INFO", entry.Level)
	}
	if entry.Message != "coordinator elected" {
		t.Errorf("Message = %v", entry.Message)
	}
	if entry.Fields["node_id"] != float64(3) {
		t.Errorf("Fields[node_id] = %v, want 3", entry.Fields["node_id"])
	}
	if entry.Time == "" {
		t.Error("Time field is empty")
	}
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WarnLevel)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(lines))
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if entry.Level != "ERROR" {
		t.Errorf("Second entry level = %v, want ERROR", entry.Level)
	}
}

func TestJSONLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	child := logger.With(Component("election"), NodeID(1))
	child.Info("starting election", PeerID(2))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}

	if entry.Fields["component"] != "election" {
		t.Errorf("component field = %v", entry.Fields["component"])
	}
	if entry.Fields["peer_id"] != float64(2) {
		t.Errorf("peer_id field = %v", entry.Fields["peer_id"])
	}
}

func TestJSONLogger_ChildSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)
	child := logger.With(Component("detector"))

	logger.SetLevel(ErrorLevel)
	child.Info("suppressed")

	if buf.Len() != 0 {
		t.Errorf("Child logger should follow parent level, got %q", buf.String())
	}
	if child.GetLevel() != ErrorLevel {
		t.Errorf("child.GetLevel() = %v, want ERROR", child.GetLevel())
	}
}

func TestTextLogger_Prefix(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, InfoLevel).With(NodeID(2))

	logger.Info("alert received", Lamport(14), String("message", "multiple failures"))

	line := buf.String()
	if !strings.Contains(line, "[sensor 2][T14] alert received") {
		t.Errorf("Missing sensor/lamport prefix in %q", line)
	}
	if !strings.Contains(line, "message=multiple failures") {
		t.Errorf("Missing field in %q", line)
	}
	if strings.Contains(line, "node_id=") || strings.Contains(line, "lamport=") {
		t.Errorf("Prefix fields should not be repeated: %q", line)
	}
}

func TestTextLogger_SortedFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, DebugLevel)

	logger.Debug("probe", String("z", "1"), String("a", "2"))

	line := strings.TrimSpace(buf.String())
	if !strings.HasSuffix(line, "probe a=2 z=1") {
		t.Errorf("Fields not sorted: %q", line)
	}
}

func TestNewFormat(t *testing.T) {
	if _, ok := New(&bytes.Buffer{}, InfoLevel, FormatText).(*TextLogger); !ok {
		t.Error("FormatText should build a TextLogger")
	}
	if _, ok := New(&bytes.Buffer{}, InfoLevel, "xml").(*JSONLogger); !ok {
		t.Error("Unknown formats should fall back to JSON")
	}
}

func TestGlobalHelperFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefaultLogger(NewJSONLogger(&buf, DebugLevel))
	defer SetDefaultLogger(NewNopLogger())

	Info("info msg")
	Warn("warn msg")
	ErrorLog("error msg")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Errorf("Expected 3 log entries, got %d", len(lines))
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	op := StartTimer(logger, "replication round", Version(4))
	op.End(Count(2))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if _, ok := entry.Fields["latency"]; !ok {
		t.Error("Expected latency field")
	}
	if entry.Fields["count"] != float64(2) {
		t.Errorf("count field = %v", entry.Fields["count"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("nothing")
	if logger.With(NodeID(1)) == nil {
		t.Error("With should return a logger")
	}
}
