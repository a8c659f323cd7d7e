// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package azureblob is the Azure Blob Storage archive backend, the
// Azure counterpart to the s3 connector: audit records past retention
// land here as JSON blobs keyed by trace id.
package azureblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/lumenquery/fusion/connectors/base"
)

// maxObjectSize caps a single archived blob (50MB).
const maxObjectSize = 50 * 1024 * 1024

// AzureBlobConnector implements the archive object store over Azure
// Blob Storage.
type AzureBlobConnector struct {
	config    *base.ConnectorConfig
	client    *azblob.Client
	logger    *log.Logger
	container string
}

// NewAzureBlobConnector creates an Azure Blob archive connector.
func NewAzureBlobConnector() *AzureBlobConnector {
	return &AzureBlobConnector{
		logger: log.New(os.Stdout, "[archive_azblob] ", log.LstdFlags),
	}
}

// Connect builds the blob client. Options: "container" (required),
// "account_url" (e.g. https://account.blob.core.windows.net, uses
// DefaultAzureCredential). Credentials may instead carry
// "connection_string" for shared-key access in dev.
func (c *AzureBlobConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	container, _ := config.Options["container"].(string)
	if container == "" {
		return base.NewConnectorError(config.Name, "Connect", "container is required", nil)
	}
	c.container = container

	if connStr, ok := config.Credentials["connection_string"]; ok && connStr != "" {
		client, err := azblob.NewClientFromConnectionString(connStr, nil)
		if err != nil {
			return base.NewConnectorError(config.Name, "Connect", "failed to create client from connection string", err)
		}
		c.client = client
	} else {
		accountURL, _ := config.Options["account_url"].(string)
		if accountURL == "" {
			return base.NewConnectorError(config.Name, "Connect", "account_url or connection_string is required", nil)
		}
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return base.NewConnectorError(config.Name, "Connect", "failed to acquire Azure credential", err)
		}
		client, err := azblob.NewClient(accountURL, cred, nil)
		if err != nil {
			return base.NewConnectorError(config.Name, "Connect", "failed to create blob client", err)
		}
		c.client = client
	}

	c.logger.Printf("connected archive %s (container=%s)", config.Name, container)
	return nil
}

// Disconnect is a no-op; the blob client holds no persistent
// connection.
func (c *AzureBlobConnector) Disconnect(ctx context.Context) error { return nil }

// HealthCheck lists one page of blobs to confirm the container is
// reachable.
func (c *AzureBlobConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.client == nil {
		return &base.HealthStatus{Healthy: false, Error: "not connected", Timestamp: time.Now()}, nil
	}

	start := time.Now()
	one := int32(1)
	pager := c.client.NewListBlobsFlatPager(c.container, &azblob.ListBlobsFlatOptions{MaxResults: &one})
	_, err := pager.NextPage(ctx)
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Latency: latency, Timestamp: time.Now(), Error: err.Error()}, nil
	}

	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   map[string]string{"container": c.container},
		Timestamp: time.Now(),
	}, nil
}

// Query supports "get_object" (key) and "list_objects" (prefix,
// max_keys).
func (c *AzureBlobConnector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
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
func (c *AzureBlobConnector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
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

func (c *AzureBlobConnector) putObject(ctx context.Context, params map[string]interface{}) error {
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

	_, err = c.client.UploadBuffer(ctx, c.container, key, []byte(content), nil)
	return err
}

func (c *AzureBlobConnector) getObject(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	key, err := objectKey(params)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.DownloadStream(ctx, c.container, key, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectSize))
	if err != nil {
		return nil, err
	}
	return []map[string]interface{}{{"key": key, "content": string(body)}}, nil
}

func (c *AzureBlobConnector) deleteObject(ctx context.Context, params map[string]interface{}) error {
	key, err := objectKey(params)
	if err != nil {
		return err
	}
	_, err = c.client.DeleteBlob(ctx, c.container, key, nil)
	return err
}

func (c *AzureBlobConnector) listObjects(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix, ok := params["prefix"].(string); ok && prefix != "" {
		opts.Prefix = &prefix
	}
	maxKeys := 1000
	if mk, ok := params["max_keys"].(float64); ok && mk > 0 {
		maxKeys = int(mk)
	}

	pager := c.client.NewListBlobsFlatPager(c.container, opts)
	var rows []map[string]interface{}
	for pager.More() && len(rows) < maxKeys {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, blob := range page.Segment.BlobItems {
			if len(rows) >= maxKeys {
				break
			}
			row := map[string]interface{}{}
			if blob.Name != nil {
				row["key"] = *blob.Name
			}
			if blob.Properties != nil && blob.Properties.ContentLength != nil {
				row["size"] = *blob.Properties.ContentLength
			}
			if blob.Properties != nil && blob.Properties.LastModified != nil {
				row["last_modified"] = blob.Properties.LastModified.UTC().Format(time.RFC3339)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// Name returns the connector instance name.
func (c *AzureBlobConnector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "azblob-archive"
}

// Type returns the connector type.
func (c *AzureBlobConnector) Type() string { return "azblob" }

// Version returns the connector version.
func (c *AzureBlobConnector) Version() string { return "1.0.0" }

// Capabilities returns the supported operations.
func (c *AzureBlobConnector) Capabilities() []string {
	return []string{"query", "execute", "object-storage"}
}
