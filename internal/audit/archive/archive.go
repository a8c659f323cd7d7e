// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package archive moves AuditRecords from the primary Postgres table to
// cold object storage once they age past AUDIT_RETENTION_DAYS. The
// object-store connectors (s3, azureblob, gcs) serve as Store backends;
// this package only ever calls Execute with a put action, never Query.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenquery/fusion/connectors/base"
	"github.com/lumenquery/fusion/internal/domain"
)

// ArchivedRecord is the same AuditRecord content plus archive
// provenance, the blob actually written to cold storage.
type ArchivedRecord struct {
	Record     domain.AuditRecord `json:"record"`
	ArchivedAt time.Time          `json:"archived_at"`
	Backend    string             `json:"backend"`
}

// Store is the pluggable cold-archive destination for audit records
// past retention. One backend is selected per deployment via
// AUDIT_ARCHIVE_BACKEND; Noop is used when archiving is disabled.
type Store interface {
	Archive(ctx context.Context, record domain.AuditRecord) error
}

// connector is the subset of base.Connector every object-store backend
// here drives: a single write action keyed by object name.
type connector interface {
	Execute(ctx context.Context, cmd *base.Command) (*base.CommandResult, error)
}

// objectStore adapts any already-Connect()ed object-storage connector
// into a Store. All three backends accept the "put" action.
type objectStore struct {
	name      string
	client    connector
	putAction string
}

// NewS3Store builds an archive Store over a connected S3Connector.
func NewS3Store(client connector) Store {
	return &objectStore{name: "s3", client: client, putAction: "put"}
}

// NewAzureBlobStore builds an archive Store over a connected
// AzureBlobConnector.
func NewAzureBlobStore(client connector) Store {
	return &objectStore{name: "azblob", client: client, putAction: "put"}
}

// NewGCSStore builds an archive Store over a connected GCSConnector.
func NewGCSStore(client connector) Store {
	return &objectStore{name: "gcs", client: client, putAction: "put_object"}
}

func (s *objectStore) Archive(ctx context.Context, record domain.AuditRecord) error {
	archived := ArchivedRecord{Record: record, ArchivedAt: time.Now(), Backend: s.name}
	body, err := json.Marshal(archived)
	if err != nil {
		return fmt.Errorf("archive: failed to encode record %s: %w", record.TraceID, err)
	}

	_, err = s.client.Execute(ctx, &base.Command{
		Action: s.putAction,
		Parameters: map[string]interface{}{
			"key":          objectKey(record),
			"content":      string(body),
			"content_type": "application/json",
		},
	})
	if err != nil {
		return fmt.Errorf("archive: %s put failed for %s: %w", s.name, record.TraceID, err)
	}
	return nil
}

func objectKey(record domain.AuditRecord) string {
	return fmt.Sprintf("audit/%s/%s.json", record.WrittenAt.UTC().Format("2006/01/02"), record.TraceID)
}

// NoopStore discards every record; used when AUDIT_ARCHIVE_BACKEND=none.
type NoopStore struct{}

func (NoopStore) Archive(_ context.Context, _ domain.AuditRecord) error { return nil }
