// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package gcs

import (
	"context"
	"testing"

	"github.com/lumenquery/fusion/connectors/base"
)

func TestConnect_RequiresBucket(t *testing.T) {
	conn := NewGCSConnector()
	err := conn.Connect(context.Background(), &base.ConnectorConfig{
		Name:    "gcs-archive",
		Options: map[string]interface{}{},
	})
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestObjectKey(t *testing.T) {
	if _, err := objectKey(map[string]interface{}{"key": "audit/2026/trace.json"}); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}
	if _, err := objectKey(map[string]interface{}{}); err == nil {
		t.Error("missing key accepted")
	}
	if _, err := objectKey(map[string]interface{}{"key": "../escape"}); err == nil {
		t.Error("traversal key accepted")
	}
}

func TestQuery_NotConnected(t *testing.T) {
	conn := NewGCSConnector()
	if _, err := conn.Query(context.Background(), &base.Query{Statement: "get_object"}); err == nil {
		t.Fatal("expected error for unconnected client")
	}
}

func TestExecute_NotConnected(t *testing.T) {
	conn := NewGCSConnector()
	if _, err := conn.Execute(context.Background(), &base.Command{Action: "put"}); err == nil {
		t.Fatal("expected error for unconnected client")
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	conn := NewGCSConnector()
	status, err := conn.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if status.Healthy {
		t.Error("Healthy = true for unconnected connector")
	}
}
