// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging keyed by trace id so log lines join
// audit records and streamed events for the same query.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// LogEntry represents a structured log entry.
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Container  string                 `json:"container"`
	TraceID    string                 `json:"trace_id"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	// Get instance ID from environment (set during deployment)
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	// Get container name from hostname
	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log creates a structured log entry and writes it through the standard log package
func (l *Logger) Log(level LogLevel, traceID, requestID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Container:  l.Container,
		TraceID:    traceID,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	// Write JSON log through the standard logger (stderr by default)
	log.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(traceID, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, traceID, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(traceID, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, traceID, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(traceID, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, traceID, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(traceID, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, traceID, requestID, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(traceID, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(traceID, requestID, message, fields)
}

// ErrorWithCode logs an error tagged with a taxonomy error kind (see internal/ferrors)
func (l *Logger) ErrorWithCode(traceID, requestID, message string, kind string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["error_kind"] = kind
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(traceID, requestID, message, fields)
}
