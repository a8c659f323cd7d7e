// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package redis exposes the Redis instance behind the embedding cache
// and provider rate limiter through the shared connector surface. The
// cache and limiter talk to Redis directly for their hot paths; this
// connector exists so GET /health can probe the same instance the way
// it probes every other backend, and so operators can inspect cache
// keys through one consistent interface.
package redis

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lumenquery/fusion/connectors/base"
)

// RedisConnector wraps one Redis instance.
type RedisConnector struct {
	config *base.ConnectorConfig
	client *redis.Client
	logger *log.Logger
}

// NewRedisConnector creates a Redis connector.
func NewRedisConnector() *RedisConnector {
	return &RedisConnector{
		logger: log.New(os.Stdout, "[cache_redis] ", log.LstdFlags),
	}
}

// Connect dials the instance. Options: host, port, db; the password
// comes through Credentials like every other backend secret.
func (c *RedisConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	host := "localhost"
	if h, ok := config.Options["host"].(string); ok && h != "" {
		host = h
	}
	port := 6379
	if p, ok := config.Options["port"].(float64); ok && p > 0 {
		port = int(p)
	}
	db := 0
	if d, ok := config.Options["db"].(float64); ok && d >= 0 {
		db = int(d)
	}

	timeout := 5 * time.Second
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Password:     config.Credentials["password"],
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return base.NewConnectorError(config.Name, "Connect", "failed to ping redis", err)
	}

	c.client = client
	c.logger.Printf("connected redis %s (%s:%d db=%d)", config.Name, host, port, db)
	return nil
}

// Disconnect closes the client.
func (c *RedisConnector) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return base.NewConnectorError(c.Name(), "Disconnect", "failed to close client", err)
	}
	c.client = nil
	return nil
}

// HealthCheck pings the instance and reports keyspace size.
func (c *RedisConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.client == nil {
		return &base.HealthStatus{Healthy: false, Error: "client not connected", Timestamp: time.Now()}, nil
	}

	start := time.Now()
	err := c.client.Ping(ctx).Err()
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Latency: latency, Timestamp: time.Now(), Error: err.Error()}, nil
	}

	details := map[string]string{}
	if size, err := c.client.DBSize(ctx).Result(); err == nil {
		details["keys"] = strconv.FormatInt(size, 10)
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   details,
		Timestamp: time.Now(),
	}, nil
}

// Query supports the read operations an operator needs against the
// cache: "get", "exists", "ttl", and "stats".
func (c *RedisConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "client not connected", nil)
	}

	start := time.Now()
	var rows []map[string]interface{}
	var err error

	switch query.Statement {
	case "get":
		rows, err = c.get(ctx, query.Parameters)
	case "exists":
		rows, err = c.exists(ctx, query.Parameters)
	case "ttl":
		rows, err = c.ttl(ctx, query.Parameters)
	case "stats":
		rows, err = c.stats(ctx)
	default:
		err = fmt.Errorf("unknown operation %q", query.Statement)
	}
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "query failed", err)
	}

	return &base.QueryResult{
		Rows:      rows,
		RowCount:  len(rows),
		Duration:  time.Since(start),
		Connector: c.Name(),
	}, nil
}

// Execute supports "set" (with optional ttl_seconds), "delete", and
// "expire".
func (c *RedisConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "client not connected", nil)
	}

	start := time.Now()
	var affected int
	var err error

	switch cmd.Action {
	case "set":
		affected, err = c.set(ctx, cmd.Parameters)
	case "delete":
		affected, err = c.delete(ctx, cmd.Parameters)
	case "expire":
		affected, err = c.expire(ctx, cmd.Parameters)
	default:
		err = fmt.Errorf("unknown action %q", cmd.Action)
	}
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "command failed", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: affected,
		Duration:     time.Since(start),
		Message:      fmt.Sprintf("%d keys affected", affected),
		Connector:    c.Name(),
	}, nil
}

// Name returns the connector instance name.
func (c *RedisConnector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "cache-redis"
}

// Type returns the connector type.
func (c *RedisConnector) Type() string { return "redis" }

// Version returns the connector version.
func (c *RedisConnector) Version() string { return "1.0.0" }

// Capabilities returns the supported operations.
func (c *RedisConnector) Capabilities() []string {
	return []string{"query", "execute", "key-value"}
}

func requireKey(params map[string]interface{}) (string, error) {
	key, _ := params["key"].(string)
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	return key, nil
}

func (c *RedisConnector) get(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	key, err := requireKey(params)
	if err != nil {
		return nil, err
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{{"key": key, "value": val}}, nil
}

func (c *RedisConnector) exists(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	key, err := requireKey(params)
	if err != nil {
		return nil, err
	}
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{{"key": key, "exists": n > 0}}, nil
}

func (c *RedisConnector) ttl(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	key, err := requireKey(params)
	if err != nil {
		return nil, err
	}
	d, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{{"key": key, "ttl_seconds": int64(d.Seconds())}}, nil
}

func (c *RedisConnector) stats(ctx context.Context) ([]map[string]interface{}, error) {
	size, err := c.client.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{{"keys": size}}, nil
}

func (c *RedisConnector) set(ctx context.Context, params map[string]interface{}) (int, error) {
	key, err := requireKey(params)
	if err != nil {
		return 0, err
	}
	value, ok := params["value"].(string)
	if !ok {
		return 0, fmt.Errorf("value is required")
	}

	var ttl time.Duration
	if secs, ok := params["ttl_seconds"].(float64); ok && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c *RedisConnector) delete(ctx context.Context, params map[string]interface{}) (int, error) {
	key, err := requireKey(params)
	if err != nil {
		return 0, err
	}
	n, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (c *RedisConnector) expire(ctx context.Context, params map[string]interface{}) (int, error) {
	key, err := requireKey(params)
	if err != nil {
		return 0, err
	}
	secs, ok := params["ttl_seconds"].(float64)
	if !ok || secs <= 0 {
		return 0, fmt.Errorf("ttl_seconds is required")
	}
	set, err := c.client.Expire(ctx, key, time.Duration(secs)*time.Second).Result()
	if err != nil {
		return 0, err
	}
	if set {
		return 1, nil
	}
	return 0, nil
}
