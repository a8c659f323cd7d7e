// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenquery/fusion/internal/domain"
)

func sampleRecord(traceID string) domain.AuditRecord {
	return domain.AuditRecord{
		TraceID: traceID,
		Query:   domain.Query{Text: "capital of France"},
		Mode:    domain.ModeSimple,
		PerLaneResults: []domain.LaneOutcome{
			{LaneID: domain.LaneWeb, Status: domain.LaneStatusSuccess, LatencyMS: 812},
		},
		FusedDocIDs:      []string{"doc-a"},
		TotalLatencyMS:   2140,
		AnsweredUnderSLA: true,
		TTFTMs:           420,
	}
}

func TestSigner_RejectsEmptyKey(t *testing.T) {
	_, err := NewSigner("")
	require.Error(t, err)
}

func TestSigner_SignAndVerify(t *testing.T) {
	signer, err := NewSigner("test-signing-key")
	require.NoError(t, err)

	record := sampleRecord("trace-1")
	token, err := signer.Sign(record)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, signer.Verify(token, record))
}

func TestSigner_DetectsTampering(t *testing.T) {
	signer, err := NewSigner("test-signing-key")
	require.NoError(t, err)

	record := sampleRecord("trace-1")
	token, err := signer.Sign(record)
	require.NoError(t, err)

	record.AnsweredUnderSLA = false
	assert.Error(t, signer.Verify(token, record))
}

func TestSigner_WrittenAtDoesNotBreakVerification(t *testing.T) {
	signer, err := NewSigner("test-signing-key")
	require.NoError(t, err)

	record := sampleRecord("trace-1")
	token, err := signer.Sign(record)
	require.NoError(t, err)

	// An idempotent re-write only bumps WrittenAt.
	record.WrittenAt = time.Now().Add(time.Hour)
	assert.NoError(t, signer.Verify(token, record))
}

func TestSigner_RejectsForeignKey(t *testing.T) {
	signer1, _ := NewSigner("key-one")
	signer2, _ := NewSigner("key-two")

	record := sampleRecord("trace-1")
	token, err := signer1.Sign(record)
	require.NoError(t, err)

	assert.Error(t, signer2.Verify(token, record))
}

// mockSink builds a Sink over sqlmock without starting the background
// workers, so tests drive batching deterministically.
func mockSink(t *testing.T) (*Sink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &Sink{
		db:        db,
		queue:     make(chan domain.AuditRecord, 16),
		batchSize: 2,
		shutdown:  make(chan struct{}),
	}, mock
}

func TestSink_FlushWritesBatch(t *testing.T) {
	sink, mock := mockSink(t)

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO fusion_audit_records`)
	mock.ExpectExec(`INSERT INTO fusion_audit_records`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record := sampleRecord("trace-1")
	record.WrittenAt = time.Now()
	sink.enqueue(record)
	sink.flush()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_BatchSizeTriggersFlush(t *testing.T) {
	sink, mock := mockSink(t)

	mock.ExpectBegin()
	mock.ExpectPrepare(`INSERT INTO fusion_audit_records`)
	mock.ExpectExec(`INSERT INTO fusion_audit_records`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO fusion_audit_records`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// batchSize is 2; the second enqueue flushes without an explicit call.
	sink.enqueue(sampleRecord("trace-1"))
	sink.enqueue(sampleRecord("trace-2"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_GetReturnsRecord(t *testing.T) {
	sink, mock := mockSink(t)

	written := time.Now().UTC().Truncate(time.Second)
	rows := sqlmock.NewRows([]string{
		"query_text", "mode", "budget_json", "per_lane_results_json", "fused_doc_ids_json",
		"answer_sentences_json", "citations_json", "bibliography_json", "disagreements_json",
		"total_latency_ms", "answered_under_sla", "ttft_ms", "partial", "cancelled", "written_at",
	}).AddRow(
		"capital of France", "simple", []byte(`{}`), []byte(`[]`), []byte(`["doc-a"]`),
		[]byte(`[]`), []byte(`[]`), []byte(`[]`), []byte(`[]`),
		int64(2140), true, int64(420), false, false, written,
	)

	mock.ExpectQuery(`SELECT query_text, mode, budget_json`).
		WithArgs("trace-1").
		WillReturnRows(rows)

	record, err := sink.Get(context.Background(), "trace-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "trace-1", record.TraceID)
	assert.Equal(t, "capital of France", record.Query.Text)
	assert.Equal(t, []string{"doc-a"}, record.FusedDocIDs)
	assert.True(t, record.AnsweredUnderSLA)
}

func TestSink_GetUnknownTraceReturnsNil(t *testing.T) {
	sink, mock := mockSink(t)

	mock.ExpectQuery(`SELECT query_text, mode, budget_json`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"query_text"}))

	record, err := sink.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, record)
}

type fakeArchiveStore struct {
	archived []string
	fail     bool
}

func (f *fakeArchiveStore) Archive(_ context.Context, record domain.AuditRecord) error {
	if f.fail {
		return errors.New("archive unavailable")
	}
	f.archived = append(f.archived, record.TraceID)
	return nil
}

func retentionRows(traceIDs ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"trace_id", "query_text", "mode", "budget_json", "per_lane_results_json", "fused_doc_ids_json",
		"answer_sentences_json", "citations_json", "bibliography_json", "disagreements_json",
		"total_latency_ms", "answered_under_sla", "ttft_ms", "partial", "cancelled", "written_at",
	})
	old := time.Now().AddDate(0, 0, -120)
	for _, id := range traceIDs {
		rows.AddRow(id, "old query", "simple", []byte(`{}`), []byte(`[]`), []byte(`[]`),
			[]byte(`[]`), []byte(`[]`), []byte(`[]`), []byte(`[]`),
			int64(1000), true, int64(300), false, false, old)
	}
	return rows
}

func TestSink_SweepRetentionArchivesAndDeletes(t *testing.T) {
	sink, mock := mockSink(t)
	store := &fakeArchiveStore{}

	mock.ExpectQuery(`SELECT trace_id, query_text`).WillReturnRows(retentionRows("old-1", "old-2"))
	mock.ExpectExec(`DELETE FROM fusion_audit_records`).WithArgs("old-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM fusion_audit_records`).WithArgs("old-2").WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := sink.SweepRetention(context.Background(), 90, store)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"old-1", "old-2"}, store.archived)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSink_SweepRetentionLeavesRecordOnArchiveFailure(t *testing.T) {
	sink, mock := mockSink(t)
	store := &fakeArchiveStore{fail: true}

	mock.ExpectQuery(`SELECT trace_id, query_text`).WillReturnRows(retentionRows("old-1"))
	// No DELETE expected: the record stays in the primary store.

	n, err := sink.SweepRetention(context.Background(), 90, store)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
