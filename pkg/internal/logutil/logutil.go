package logutil

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync/atomic"
	"time"
)

var jsonMode atomic.Bool

func init() {
	if os.Getenv("COUNCIL_LOG_JSON") == "1" || os.Getenv("COUNCIL_LOG_FORMAT") == "json" {
		jsonMode.Store(true)
	}
}

// Fields carries structured context alongside a log line: a proposal
// number, a member or peer id, a message type. In JSON mode each key
// becomes its own field in the emitted event; in plain-text mode they are
// appended as a sorted "key=value" suffix so grep and JSON consumers see
// the same information.
type Fields map[string]any

func prefix(l *log.Logger, p string) *log.Logger {
	if l == nil {
		l = log.Default()
	}
	return log.New(l.Writer(), p, l.Flags())
}

// SetJSON overrides the COUNCIL_LOG_JSON/COUNCIL_LOG_FORMAT env detection,
// mainly for tests that need a deterministic format.
func SetJSON(enabled bool) { jsonMode.Store(enabled) }

// Infof logs a routine state transition (election started, value chosen).
func Infof(l *log.Logger, fields Fields, f string, args ...any) { logf(l, "info", fields, f, args...) }

// Warnf logs a recoverable fault (send failure, phase timeout, unknown
// message type) that does not stop the member.
func Warnf(l *log.Logger, fields Fields, f string, args ...any) { logf(l, "warn", fields, f, args...) }

// Errorf logs a failure a caller should investigate (listener error).
func Errorf(l *log.Logger, fields Fields, f string, args ...any) {
	logf(l, "error", fields, f, args...)
}

func logf(l *log.Logger, level string, fields Fields, f string, args ...any) {
	msg := fmt.Sprintf(f, args...)
	if jsonMode.Load() {
		evt := make(map[string]any, len(fields)+3)
		for k, v := range fields {
			evt[k] = v
		}
		evt["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
		evt["level"] = level
		evt["msg"] = msg
		b, _ := json.Marshal(evt)
		if l == nil {
			l = log.Default()
		}
		l.Println(string(b))
		return
	}
	if len(fields) > 0 {
		msg = msg + " " + fieldSuffix(fields)
	}
	switch level {
	case "info":
		prefix(l, "INFO ").Print(msg)
	case "warn":
		prefix(l, "WARN ").Print(msg)
	default:
		prefix(l, "ERROR ").Print(msg)
	}
}

// fieldSuffix renders fields as sorted "key=value" pairs so plain-text logs
// stay diffable across runs regardless of map iteration order.
func fieldSuffix(fields Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%v", k, fields[k])
	}
	return out
}
