// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package streaming implements the SSE delivery surface: a bounded,
// per-request outbound channel carrying tagged envelopes, a heartbeat
// ticker that keeps idle connections alive, and the write-side encoding
// of the `data: ...\n\n` wire format consumed by any standard
// EventSource client.
package streaming

import (
	"encoding/json"
	"time"
)

// EventType names the kind of SSE event on the wire.
type EventType string

const (
	EventLaneStarted   EventType = "lane_started"
	EventLaneCompleted EventType = "lane_completed"
	EventPartial       EventType = "partial"
	EventDegraded      EventType = "degraded"
	EventToken         EventType = "token"
	EventCitation      EventType = "citation"
	EventDisagreement  EventType = "disagreement"
	EventHeartbeat     EventType = "heartbeat"
	EventFinal         EventType = "final"
	EventError         EventType = "error"
)

// Event is the envelope every SSE message is wrapped in: {event, seq,
// trace_id, data, ts}. seq is a strictly increasing per-connection
// counter so a client can detect a dropped message.
type Event struct {
	Event   EventType   `json:"event"`
	Seq     int64       `json:"seq"`
	TraceID string      `json:"trace_id"`
	Data    interface{} `json:"data,omitempty"`
	TS      time.Time   `json:"ts"`
}

// Encode renders the event in the `event: <type>\ndata: <json>\n\n`
// text/event-stream wire format.
func (e Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(payload)+32)
	out = append(out, "event: "...)
	out = append(out, string(e.Event)...)
	out = append(out, '\n')
	out = append(out, "data: "...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out, nil
}
