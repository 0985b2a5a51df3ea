package logging

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// NewTextLogger creates a console logger. Lines look like
//
//	15:04:05.000 INFO  [sensor 2][T14] coordinator announced peer=3
//
// The sensor and Lamport prefixes appear when the node_id and lamport
// fields are present.
func NewTextLogger(writer io.Writer, level Level) *TextLogger {
	return &TextLogger{base: newBase(writer, level)}
}

func (l *TextLogger) log(level Level, msg string, fields ...Field) {
	if level < l.level.get() {
		return
	}

	values := make(map[string]any, len(l.fields)+len(fields))
	for _, f := range l.fields {
		values[f.Key] = f.Value
	}
	for _, f := range fields {
		values[f.Key] = f.Value
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format("15:04:05.000"))
	fmt.Fprintf(&sb, " %-5s ", level.String())

	if id, ok := values[nodeIDKey]; ok {
		fmt.Fprintf(&sb, "[sensor %v]", id)
		delete(values, nodeIDKey)
	}
	if ts, ok := values[lamportKey]; ok {
		fmt.Fprintf(&sb, "[T%v]", ts)
		delete(values, lamportKey)
	}
	if sb.Len() > 0 && !strings.HasSuffix(sb.String(), " ") {
		sb.WriteByte(' ')
	}
	sb.WriteString(msg)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, values[k])
	}
	sb.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	io.WriteString(l.writer, sb.String())
}

func (l *TextLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }
func (l *TextLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields...) }
func (l *TextLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields...) }
func (l *TextLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

func (l *TextLogger) With(fields ...Field) Logger {
	return &TextLogger{base: l.child(fields)}
}

func (l *TextLogger) SetLevel(level Level) { l.level.set(level) }
func (l *TextLogger) GetLevel() Level      { return l.level.get() }
