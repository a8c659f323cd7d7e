// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package s3 is the AWS S3 archive backend: audit records past
// retention are written here as JSON objects keyed by trace id. The
// connector also supports get/delete/list so operators can inspect and
// prune the archive through the same surface.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/lumenquery/fusion/connectors/base"
)

// maxObjectSize caps a single archived object (50MB).
const maxObjectSize = 50 * 1024 * 1024

// s3API is the slice of the S3 client this connector drives; narrow so
// tests can fake it.
type s3API interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error)
}

// S3Connector implements the archive object store over S3.
type S3Connector struct {
	config *base.ConnectorConfig
	client s3API
	logger *log.Logger
	bucket string
}

// NewS3Connector creates an S3 archive connector.
func NewS3Connector() *S3Connector {
	return &S3Connector{
		logger: log.New(os.Stdout, "[archive_s3] ", log.LstdFlags),
	}
}

// Connect loads AWS configuration and verifies the bucket exists.
// Options: "bucket" (required), "region", "endpoint" (for S3-compatible
// stores in dev), "skip_head_bucket" (bool, when the deployment's IAM
// role lacks HeadBucket).
func (c *S3Connector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	c.config = config

	bucket, _ := config.Options["bucket"].(string)
	if bucket == "" {
		return base.NewConnectorError(config.Name, "Connect", "bucket is required", nil)
	}
	c.bucket = bucket

	var loadOpts []func(*awsconfig.LoadOptions) error
	if region, ok := config.Options["region"].(string); ok && region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	if accessKey, ok := config.Credentials["access_key_id"]; ok && accessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, config.Credentials["secret_access_key"], ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return base.NewConnectorError(config.Name, "Connect", "failed to load AWS config", err)
	}

	var clientOpts []func(*awss3.Options)
	if endpoint, ok := config.Options["endpoint"].(string); ok && endpoint != "" {
		clientOpts = append(clientOpts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	c.client = awss3.NewFromConfig(awsCfg, clientOpts...)

	if skip, _ := config.Options["skip_head_bucket"].(bool); !skip {
		if _, err := c.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
			return base.NewConnectorError(config.Name, "Connect", fmt.Sprintf("bucket %q not accessible", bucket), err)
		}
	}

	c.logger.Printf("connected archive %s (bucket=%s)", config.Name, bucket)
	return nil
}

// Disconnect is a no-op; the S3 client holds no persistent connection.
func (c *S3Connector) Disconnect(ctx context.Context) error { return nil }

// HealthCheck heads the bucket.
func (c *S3Connector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if c.client == nil {
		return &base.HealthStatus{Healthy: false, Error: "not connected", Timestamp: time.Now()}, nil
	}

	start := time.Now()
	_, err := c.client.HeadBucket(ctx, &awss3.HeadBucketInput{Bucket: aws.String(c.bucket)})
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
func (c *S3Connector) Query(ctx context.Context, query *base.Query) (*base.QueryResult, error) {
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
func (c *S3Connector) Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error) {
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

func (c *S3Connector) putObject(ctx context.Context, params map[string]interface{}) error {
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

	input := &awss3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader([]byte(content)),
	}
	if ct, ok := params["content_type"].(string); ok && ct != "" {
		input.ContentType = aws.String(ct)
	}

	_, err = c.client.PutObject(ctx, input)
	return err
}

func (c *S3Connector) getObject(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	key, err := objectKey(params)
	if err != nil {
		return nil, err
	}

	out, err := c.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize))
	if err != nil {
		return nil, err
	}

	return []map[string]interface{}{{"key": key, "content": string(body)}}, nil
}

func (c *S3Connector) deleteObject(ctx context.Context, params map[string]interface{}) error {
	key, err := objectKey(params)
	if err != nil {
		return err
	}
	_, err = c.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (c *S3Connector) listObjects(ctx context.Context, params map[string]interface{}) ([]map[string]interface{}, error) {
	input := &awss3.ListObjectsV2Input{Bucket: aws.String(c.bucket)}
	if prefix, ok := params["prefix"].(string); ok && prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if maxKeys, ok := params["max_keys"].(float64); ok && maxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(maxKeys))
	}

	out, err := c.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]interface{}, 0, len(out.Contents))
	for _, obj := range out.Contents {
		row := map[string]interface{}{"key": aws.ToString(obj.Key)}
		if obj.Size != nil {
			row["size"] = *obj.Size
		}
		if obj.LastModified != nil {
			row["last_modified"] = obj.LastModified.UTC().Format(time.RFC3339)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Name returns the connector instance name.
func (c *S3Connector) Name() string {
	if c.config != nil {
		return c.config.Name
	}
	return "s3-archive"
}

// Type returns the connector type.
func (c *S3Connector) Type() string { return "s3" }

// Version returns the connector version.
func (c *S3Connector) Version() string { return "1.0.0" }

// Capabilities returns the supported operations.
func (c *S3Connector) Capabilities() []string {
	return []string{"query", "execute", "object-storage"}
}
