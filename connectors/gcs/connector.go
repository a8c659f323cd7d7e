// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package gcs is the Google Cloud Storage archive backend, the GCS
// counterpart to the s3 connector: audit records past retention land
// here as JSON objects keyed by trace id.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/lumenquery/fusion/connectors/base"
)

// maxObjectSize caps a single archived object (50MB).
const maxObjectSize = 50 * 1024 * 1024

// GCSConnector implements the archive object store over GCS.
type GCSConnector struct {
	config *base.ConnectorConfig
	client *storage.Client
	logger *log.Logger
	bucket string
}

// NewGCSConnector creates a GCS archive connector.
func NewGCSConnector() *GCSConnector {
	return &GCSConnector{
		logger: log.New(os.Stdout, "[archive_gcs] ", log.LstdFlags),
	}
}

// Connect builds the storage client and verifies the bucket. Options:
// "bucket" (required), "credentials_file" (path to a service-account
// key; omitted means Application Default Credentials).
func (c *GCSConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	bucket, _ := config.Options["bucket"].(string)
	if bucket == "" {
		return base.NewConnectorError(config.Name, "Connect", "bucket is required", nil)
	}
	c.bucket = bucket

	var clientOpts []option.ClientOption
	if credFile, ok := config.Options["credentials_file"].(string); ok && credFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(credFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to create storage client", err)
	}

	if skip, _ := config.Options["skip_bucket_check"].(bool); !skip {
		if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
			_ = client.Close()
			return base.NewConnectorError(config.Name, "Connect", fmt.Sprintf("bucket %q not accessible", bucket), err)
		}
	}

	c.client = client
	c.logger.Printf("connected archive %s (bucket=%s)", config.Name, bucket)
	return nil
}

// Disconnect closes the client.
func (c *GCSConnector) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		return base.NewConnectorError(c.Name(), "Disconnect", "failed to close client", err)
	}
	return nil
}

// HealthCheck reads bucket attributes.
func (c *GCSConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.client == nil {
		return &base.HealthStatus{Healthy: false, Error: "not connected", Timestamp: time.Now()}, nil
	}

	start := time.Now()
	_, err := c.client.Bucket(c.bucket).Attrs(ctx)
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Latency: latency, Timestamp: time.Now(), Error: err.Error()}, nil
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   map[string]string{"bucket": c.bucket},
		Timestamp: time.Now(),
	}, nil
}

// Query supports "get_object" (key) and "list_objects" (prefix,
// max_keys).
func (c *GCSConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Query", "not connected", nil)
	}

	start := time.Now()
	var rows []map[string]interface{}
	var err error

	switch query.Statement {
	case "get_object":
		rows, err = c.getObject(ctx, query.Parameters)
	case "list_objects":
		rows, err = c.listObjects(ctx, query.Parameters)
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

// Execute supports "put" / "put_object" (key, content, content_type)
// and "delete_object" (key).
func (c *GCSConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
	if c.client == nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "not connected", nil)
	}

	start := time.Now()
	var err error

	switch cmd.Action {
	case "put", "put_object":
		err = c.putObject(ctx, cmd.Parameters)
	case "delete_object":
		err = c.deleteObject(ctx, cmd.Parameters)
	default:
		err = fmt.Errorf("unknown action %q", cmd.Action)
	}
	if err != nil {
		return nil, base.NewConnectorError(c.Name(), "Execute", "command failed", err)
	}

	return &base.CommandResult{
		Success:      true,
		RowsAffected: 1,
		Duration:     time.Since(start),
		Message:      "applied",
		Connector:    c.Name(),
	}, nil
}

func objectKey(params map[string]interface{}) (string, error) {
	key, _ := params["key"].(string)
	if key == "" {
		return "", errors.New("key is required")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return key, nil
}

func (c *GCSConnector) putObject(ctx context.Context, params map[string]interface{}) error {
	key, err := objectKey(params)
	if err != nil {
		return err
	}
	content, _ := params["content"].(string)
	if content == "" {
		return errors.New("content is required")
	}
	if len(content) > maxObjectSize {
		return fmt.Errorf("content exceeds %d byte limit", maxObjectSize)
	}

	writer := c.client.Bucket(c.bucket).Object(key).NewWriter(ctx)
	if ct, ok := params["content_type"].(string); ok && ct != "" {
		writer.ContentType = ct
	}
	if _, err := writer.Write([]byte(content)); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (c *GCSConnector) getObject(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	key, err := objectKey(params)
	if err != nil {
		return nil, err
	}

	reader, err := c.client.Bucket(c.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	body, err := io.ReadAll(io.LimitReader(reader, maxObjectSize))
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{{"key": key, "content": string(body)}}, nil
}

func (c *GCSConnector) deleteObject(ctx context.Context, params map[string]interface{}) error {
	key, err := objectKey(params)
	if err != nil {
		return err
	}
	return c.client.Bucket(c.bucket).Object(key).Delete(ctx)
}

func (c *GCSConnector) listObjects(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	query := &storage.Query{}
	if prefix, ok := params["prefix"].(string); ok && prefix != "" {
		query.Prefix = prefix
	}
	maxKeys := 1000
	if mk, ok := params["max_keys"].(float64); ok && mk > 0 {
		maxKeys = int(mk)
	}

	it := c.client.Bucket(c.bucket).Objects(ctx, query)
	var rows []map[string]interface{}
	for len(rows) < maxKeys {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, map[string]interface{}{
			"key":           attrs.Name,
			"size":          attrs.Size,
			"last_modified": attrs.Updated.UTC().Format(time.RFC3339),
		})
	}
	return rows, nil
}

// Name returns the connector instance name.
func (c *GCSConnector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "gcs-archive"
}

// Type returns the connector type.
func (c *GCSConnector) Type() string { return "gcs" }

// Version returns the connector version.
func (c *GCSConnector) Version() string { return "1.0.0" }

// Capabilities returns the supported operations.
func (c *GCSConnector) Capabilities() []string {
	return []string{"query", "execute", "object-storage"}
}
