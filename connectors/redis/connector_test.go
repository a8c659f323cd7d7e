// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/lumenquery/fusion/connectors/base"
)

func connectMini(t *testing.T) (*RedisConnector, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)

	port, err := strconv.Atoi(mini.Port())
	if err != nil {
		t.Fatalf("miniredis port: %v", err)
	}

	conn := NewRedisConnector()
	cfg := &base.ConnectorConfig{
		Name: "cache-redis",
		Options: map[string]interface{}{
			"host": mini.Host(),
			"port": float64(port),
			"db":   float64(0),
		},
		Timeout: time.Second,
	}
	if err := conn.Connect(context.Background(), cfg); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Disconnect(context.Background()) })
	return conn, mini
}

func TestConnect_BadAddress(t *testing.T) {
	conn := NewRedisConnector()
	err := conn.Connect(context.Background(), &base.ConnectorConfig{
		Name: "cache-redis",
		Options: map[string]interface{}{
			"host": "127.0.0.1",
			"port": float64(1), // nothing listens here
		},
		Timeout: 100 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected connect error")
	}
}

func TestQuery_GetSetRoundTrip(t *testing.T) {
	conn, _ := connectMini(t)
	ctx := context.Background()

	result, err := conn.Execute(ctx, &base.Command{
		Action:     "set",
		Parameters: map[string]interface{}{"key": "embedding:abc", "value": "[0.1,0.2]", "ttl_seconds": float64(60)},
	})
	if err != nil {
		t.Fatalf("Execute set: %v", err)
	}
	if !result.Success || result.RowsAffected != 1 {
		t.Errorf("set result = %+v", result)
	}

	got, err := conn.Query(ctx, &base.Query{
		Statement:  "get",
		Parameters: map[string]interface{}{"key": "embedding:abc"},
	})
	if err != nil {
		t.Fatalf("Query get: %v", err)
	}
	if got.RowCount != 1 || got.Rows[0]["value"] != "[0.1,0.2]" {
		t.Errorf("get rows = %v", got.Rows)
	}
}

func TestQuery_GetMissingKey(t *testing.T) {
	conn, _ := connectMini(t)

	got, err := conn.Query(context.Background(), &base.Query{
		Statement:  "get",
		Parameters: map[string]interface{}{"key": "absent"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got.RowCount != 0 {
		t.Errorf("RowCount = %d, want 0", got.RowCount)
	}
}

func TestQuery_ExistsAndTTL(t *testing.T) {
	conn, mini := connectMini(t)
	ctx := context.Background()

	mini.Set("k", "v")
	mini.SetTTL("k", 90*time.Second)

	exists, err := conn.Query(ctx, &base.Query{Statement: "exists", Parameters: map[string]interface{}{"key": "k"}})
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists.Rows[0]["exists"] != true {
		t.Errorf("exists = %v", exists.Rows[0])
	}

	ttl, err := conn.Query(ctx, &base.Query{Statement: "ttl", Parameters: map[string]interface{}{"key": "k"}})
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl.Rows[0]["ttl_seconds"].(int64) != 90 {
		t.Errorf("ttl = %v", ttl.Rows[0])
	}
}

func TestQuery_Stats(t *testing.T) {
	conn, mini := connectMini(t)
	mini.Set("a", "1")
	mini.Set("b", "2")

	stats, err := conn.Query(context.Background(), &base.Query{Statement: "stats"})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Rows[0]["keys"].(int64) != 2 {
		t.Errorf("stats = %v", stats.Rows[0])
	}
}

func TestQuery_UnknownOperation(t *testing.T) {
	conn, _ := connectMini(t)
	if _, err := conn.Query(context.Background(), &base.Query{Statement: "scan_everything"}); err == nil {
		t.Fatal("expected error for unknown operation")
	}
}

func TestExecute_Delete(t *testing.T) {
	conn, mini := connectMini(t)
	mini.Set("doomed", "v")

	result, err := conn.Execute(context.Background(), &base.Command{
		Action:     "delete",
		Parameters: map[string]interface{}{"key": "doomed"},
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if result.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d", result.RowsAffected)
	}
	if mini.Exists("doomed") {
		t.Error("key should be gone")
	}
}

func TestExecute_Expire(t *testing.T) {
	conn, mini := connectMini(t)
	mini.Set("k", "v")

	result, err := conn.Execute(context.Background(), &base.Command{
		Action:     "expire",
		Parameters: map[string]interface{}{"key": "k", "ttl_seconds": float64(30)},
	})
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if result.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d", result.RowsAffected)
	}
	if mini.TTL("k") != 30*time.Second {
		t.Errorf("TTL = %v", mini.TTL("k"))
	}
}

func TestExecute_SetRequiresValue(t *testing.T) {
	conn, _ := connectMini(t)
	if _, err := conn.Execute(context.Background(), &base.Command{
		Action:     "set",
		Parameters: map[string]interface{}{"key": "k"},
	}); err == nil {
		t.Fatal("expected error for missing value")
	}
}

func TestHealthCheck(t *testing.T) {
	conn, _ := connectMini(t)
	status, err := conn.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if !status.Healthy {
		t.Errorf("Healthy = false: %s", status.Error)
	}
}
