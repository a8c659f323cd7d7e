// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
)

// captureOutput redirects the stdlib logger the package writes through
// and returns everything emitted by fn.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Writer()
	origFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(orig)
		log.SetFlags(origFlags)
	})
	fn()
	return buf.String()
}

func decodeEntry(t *testing.T, raw string) LogEntry {
	t.Helper()
	line := strings.TrimSpace(raw)
	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, line)
	}
	return entry
}

func TestNew_DefaultsInstanceID(t *testing.T) {
	t.Setenv("INSTANCE_ID", "")
	l := New("orchestrator")
	if l.Component != "orchestrator" {
		t.Errorf("Component = %q", l.Component)
	}
	if l.InstanceID != "unknown" {
		t.Errorf("InstanceID = %q, want unknown", l.InstanceID)
	}
}

func TestNew_ReadsInstanceID(t *testing.T) {
	t.Setenv("INSTANCE_ID", "fusiond-7")
	l := New("httpapi")
	if l.InstanceID != "fusiond-7" {
		t.Errorf("InstanceID = %q", l.InstanceID)
	}
}

func TestInfo_EmitsStructuredEntry(t *testing.T) {
	l := &Logger{Component: "orchestrator", InstanceID: "i-1", Container: "c-1"}

	out := captureOutput(t, func() {
		l.Info("trace-42", "req-9", "lane fan-out complete", map[string]interface{}{"lanes": 4})
	})

	entry := decodeEntry(t, out)
	if entry.Level != INFO {
		t.Errorf("Level = %q", entry.Level)
	}
	if entry.TraceID != "trace-42" {
		t.Errorf("TraceID = %q", entry.TraceID)
	}
	if entry.RequestID != "req-9" {
		t.Errorf("RequestID = %q", entry.RequestID)
	}
	if entry.Message != "lane fan-out complete" {
		t.Errorf("Message = %q", entry.Message)
	}
	if entry.Fields["lanes"] != float64(4) {
		t.Errorf("Fields = %v", entry.Fields)
	}
}

func TestErrorWithCode_TagsErrorKind(t *testing.T) {
	l := &Logger{Component: "lanes", InstanceID: "i-1", Container: "c-1"}

	out := captureOutput(t, func() {
		l.ErrorWithCode("trace-42", "", "vector lane failed", "lane_timeout", errors.New("context deadline exceeded"), nil)
	})

	entry := decodeEntry(t, out)
	if entry.Level != ERROR {
		t.Errorf("Level = %q", entry.Level)
	}
	if entry.Fields["error_kind"] != "lane_timeout" {
		t.Errorf("error_kind = %v", entry.Fields["error_kind"])
	}
	if entry.Fields["error"] != "context deadline exceeded" {
		t.Errorf("error = %v", entry.Fields["error"])
	}
}

func TestInfoWithDuration_AddsDurationField(t *testing.T) {
	l := &Logger{Component: "fusion", InstanceID: "i-1", Container: "c-1"}

	out := captureOutput(t, func() {
		l.InfoWithDuration("trace-42", "", "fusion pass", 12.5, nil)
	})

	entry := decodeEntry(t, out)
	if entry.Fields["duration_ms"] != 12.5 {
		t.Errorf("duration_ms = %v", entry.Fields["duration_ms"])
	}
}

func TestLog_LevelsRoundTrip(t *testing.T) {
	l := &Logger{Component: "audit", InstanceID: "i-1", Container: "c-1"}

	for _, level := range []LogLevel{DEBUG, INFO, WARN, ERROR} {
		out := captureOutput(t, func() {
			l.Log(level, "t", "", "msg", nil)
		})
		entry := decodeEntry(t, out)
		if entry.Level != level {
			t.Errorf("Level = %q, want %q", entry.Level, level)
		}
	}
}
