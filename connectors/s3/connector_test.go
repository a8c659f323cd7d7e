// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package s3

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lumenquery/fusion/connectors/base"
)

// fakeS3 records calls and serves a tiny in-memory bucket.
type fakeS3 struct {
	objects map[string]string
	puts    []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]string)}
}

func (f *fakeS3) PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	body, _ := io.ReadAll(params.Body)
	key := aws.ToString(params.Key)
	f.objects[key] = string(body)
	f.puts = append(f.puts, key)
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	content, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(content))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(params.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	now := time.Now()
	var contents []types.Object
	for key := range f.objects {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			size := int64(len(f.objects[key]))
			keyCopy := key
			contents = append(contents, types.Object{Key: &keyCopy, Size: &size, LastModified: &now})
		}
	}
	return &awss3.ListObjectsV2Output{Contents: contents}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, optFns ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	return &awss3.HeadBucketOutput{}, nil
}

func fakeConnector(fake *fakeS3) *S3Connector {
	return &S3Connector{
		config: &base.ConnectorConfig{Name: "s3-archive"},
		client: fake,
		logger: log.New(io.Discard, "", 0),
		bucket: "audit-archive",
	}
}

func TestConnect_RequiresBucket(t *testing.T) {
	conn := NewS3Connector()
	err := conn.Connect(context.Background(), &base.ConnectorConfig{
		Name:    "s3-archive",
		Options: map[string]interface{}{},
	})
	if err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestExecute_PutAndQueryGet(t *testing.T) {
	fake := newFakeS3()
	conn := fakeConnector(fake)
	ctx := context.Background()

	result, err := conn.Execute(ctx, &base.Command{
		Action: "put",
		Parameters: map[string]interface{}{
			"key":          "audit/2026/03/01/trace-1.json",
			"content":      `{"trace_id":"trace-1"}`,
			"content_type": "application/json",
		},
	})
	if err != nil {
		t.Fatalf("Execute put: %v", err)
	}
	if !result.Success {
		t.Errorf("Success = false: %s", result.Message)
	}

	got, err := conn.Query(ctx, &base.Query{
		Statement:  "get_object",
		Parameters: map[string]interface{}{"key": "audit/2026/03/01/trace-1.json"},
	})
	if err != nil {
		t.Fatalf("Query get_object: %v", err)
	}
	if got.Rows[0]["content"] != `{"trace_id":"trace-1"}` {
		t.Errorf("content = %v", got.Rows[0]["content"])
	}
}

func TestExecute_PutObjectAlias(t *testing.T) {
	fake := newFakeS3()
	conn := fakeConnector(fake)

	_, err := conn.Execute(context.Background(), &base.Command{
		Action:     "put_object",
		Parameters: map[string]interface{}{"key": "k.json", "content": "{}"},
	})
	if err != nil {
		t.Fatalf("Execute put_object: %v", err)
	}
	if len(fake.puts) != 1 {
		t.Errorf("puts = %v", fake.puts)
	}
}

func TestExecute_PutRejectsTraversalKey(t *testing.T) {
	conn := fakeConnector(newFakeS3())
	_, err := conn.Execute(context.Background(), &base.Command{
		Action:     "put",
		Parameters: map[string]interface{}{"key": "../escape.json", "content": "{}"},
	})
	if err == nil {
		t.Fatal("expected error for traversal key")
	}
}

func TestExecute_PutRequiresContent(t *testing.T) {
	conn := fakeConnector(newFakeS3())
	_, err := conn.Execute(context.Background(), &base.Command{
		Action:     "put",
		Parameters: map[string]interface{}{"key": "k.json"},
	})
	if err == nil {
		t.Fatal("expected error for missing content")
	}
}

func TestQuery_ListObjects(t *testing.T) {
	fake := newFakeS3()
	fake.objects["audit/a.json"] = "{}"
	fake.objects["audit/b.json"] = "{}"
	fake.objects["other/c.json"] = "{}"
	conn := fakeConnector(fake)

	got, err := conn.Query(context.Background(), &base.Query{
		Statement:  "list_objects",
		Parameters: map[string]interface{}{"prefix": "audit/"},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", got.RowCount)
	}
}

func TestExecute_Delete(t *testing.T) {
	fake := newFakeS3()
	fake.objects["doomed.json"] = "{}"
	conn := fakeConnector(fake)

	if _, err := conn.Execute(context.Background(), &base.Command{
		Action:     "delete_object",
		Parameters: map[string]interface{}{"key": "doomed.json"},
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := fake.objects["doomed.json"]; ok {
		t.Error("object should be gone")
	}
}

func TestHealthCheck(t *testing.T) {
	conn := fakeConnector(newFakeS3())
	status, err := conn.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
	if !status.Healthy {
		t.Errorf("Healthy = false: %s", status.Error)
	}
}
