// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package audit writes exactly one AuditRecord per query, on completion
// or abort, and retrieves it by trace id. Writes are batched through a
// background queue so the orchestrator's synthesis-completion path
// never blocks on a database round trip.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/lumenquery/fusion/internal/domain"
)

// Sink is a Postgres-backed, trace-id-keyed audit trail. Writes are
// idempotent on trace_id (an upsert), so a retried write after a
// connection blip never duplicates a record.
type Sink struct {
	db        *sql.DB
	signer    *Signer
	queue     chan domain.AuditRecord
	batchSize int

	mu      sync.Mutex
	pending []domain.AuditRecord

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// NewSink opens (or reuses) a Postgres connection, ensures the audit
// table exists, and starts the background batch writer. signer may be
// nil, in which case records are stored unsigned.
func NewSink(databaseURL string, signer *Signer) (*Sink, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if err := createAuditTable(db); err != nil {
		return nil, fmt.Errorf("creating audit table: %w", err)
	}

	s := &Sink{
		db:        db,
		signer:    signer,
		queue:     make(chan domain.AuditRecord, 10000),
		batchSize: 100,
		shutdown:  make(chan struct{}),
	}

	s.wg.Add(2)
	go s.drainQueue()
	go s.periodicFlush()

	return s, nil
}

// Write enqueues a record for background persistence. When the queue is
// full, the record is added to the pending batch on the caller's
// goroutine instead, which writes the batch to the database
// synchronously once it reaches the batch size; the record is never
// dropped.
func (s *Sink) Write(record domain.AuditRecord) {
	record.WrittenAt = time.Now()
	select {
	case s.queue <- record:
	default:
		log.Printf("audit queue full, flushing synchronously for trace %s", record.TraceID)
		s.enqueue(record)
	}
}

// Close flushes any pending records and stops the background workers.
func (s *Sink) Close() error {
	close(s.shutdown)
	s.wg.Wait()
	s.flush()
	return s.db.Close()
}

func (s *Sink) drainQueue() {
	defer s.wg.Done()
	for {
		select {
		case record := <-s.queue:
			s.enqueue(record)
		case <-s.shutdown:
			return
		}
	}
}

func (s *Sink) periodicFlush() {
	defer s.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.shutdown:
			return
		}
	}
}

func (s *Sink) enqueue(record domain.AuditRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, record)
	if len(s.pending) >= s.batchSize {
		s.flushLocked()
	}
}

func (s *Sink) flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Sink) flushLocked() {
	if len(s.pending) == 0 {
		return
	}
	if err := s.write(s.pending); err != nil {
		log.Printf("failed to write audit batch: %v", err)
	}
	s.pending = s.pending[:0]
}

func (s *Sink) write(records []domain.AuditRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO fusion_audit_records (
			trace_id, query_text, mode, budget_json, per_lane_results_json,
			fused_doc_ids_json, answer_sentences_json, citations_json,
			bibliography_json, disagreements_json, total_latency_ms,
			answered_under_sla, ttft_ms, partial, cancelled, signature, written_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (trace_id) DO UPDATE SET
			total_latency_ms = EXCLUDED.total_latency_ms,
			partial = EXCLUDED.partial,
			cancelled = EXCLUDED.cancelled,
			written_at = EXCLUDED.written_at
	`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		budgetJSON, _ := json.Marshal(r.Budget)
		perLaneJSON, _ := json.Marshal(r.PerLaneResults)
		fusedIDsJSON, _ := json.Marshal(r.FusedDocIDs)
		sentencesJSON, _ := json.Marshal(r.AnswerSentences)
		citationsJSON, _ := json.Marshal(r.Citations)
		bibliographyJSON, _ := json.Marshal(r.Bibliography)
		disagreementsJSON, _ := json.Marshal(r.Disagreements)

		var signature string
		if s.signer != nil {
			if sig, err := s.signer.Sign(r); err == nil {
				signature = sig
			} else {
				log.Printf("failed to sign audit record %s: %v", r.TraceID, err)
			}
		}

		if _, err := stmt.Exec(
			r.TraceID, r.Query.Text, string(r.Mode), budgetJSON, perLaneJSON,
			fusedIDsJSON, sentencesJSON, citationsJSON,
			bibliographyJSON, disagreementsJSON, r.TotalLatencyMS,
			r.AnsweredUnderSLA, r.TTFTMs, r.Partial, r.Cancelled, signature, r.WrittenAt,
		); err != nil {
			log.Printf("failed to insert audit record %s: %v", r.TraceID, err)
		}
	}

	return tx.Commit()
}

// Get retrieves a single audit record by trace id.
func (s *Sink) Get(ctx context.Context, traceID string) (*domain.AuditRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT query_text, mode, budget_json, per_lane_results_json, fused_doc_ids_json,
		       answer_sentences_json, citations_json, bibliography_json, disagreements_json,
		       total_latency_ms, answered_under_sla, ttft_ms, partial, cancelled, written_at
		FROM fusion_audit_records WHERE trace_id = $1
	`, traceID)

	var (
		r                                                                       domain.AuditRecord
		budgetJSON, perLaneJSON, fusedIDsJSON                                   []byte
		sentencesJSON, citationsJSON, bibliographyJSON, disagreementsJSON       []byte
	)
	r.TraceID = traceID

	if err := row.Scan(
		&r.Query.Text, &r.Mode, &budgetJSON, &perLaneJSON, &fusedIDsJSON,
		&sentencesJSON, &citationsJSON, &bibliographyJSON, &disagreementsJSON,
		&r.TotalLatencyMS, &r.AnsweredUnderSLA, &r.TTFTMs, &r.Partial, &r.Cancelled, &r.WrittenAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	_ = json.Unmarshal(budgetJSON, &r.Budget)
	_ = json.Unmarshal(perLaneJSON, &r.PerLaneResults)
	_ = json.Unmarshal(fusedIDsJSON, &r.FusedDocIDs)
	_ = json.Unmarshal(sentencesJSON, &r.AnswerSentences)
	_ = json.Unmarshal(citationsJSON, &r.Citations)
	_ = json.Unmarshal(bibliographyJSON, &r.Bibliography)
	_ = json.Unmarshal(disagreementsJSON, &r.Disagreements)

	return &r, nil
}

func createAuditTable(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS fusion_audit_records (
		trace_id VARCHAR(255) PRIMARY KEY,
		query_text TEXT NOT NULL,
		mode VARCHAR(32) NOT NULL,
		budget_json JSONB,
		per_lane_results_json JSONB,
		fused_doc_ids_json JSONB,
		answer_sentences_json JSONB,
		citations_json JSONB,
		bibliography_json JSONB,
		disagreements_json JSONB,
		total_latency_ms BIGINT,
		answered_under_sla BOOLEAN,
		ttft_ms BIGINT,
		partial BOOLEAN,
		cancelled BOOLEAN,
		signature TEXT,
		written_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fusion_audit_written_at ON fusion_audit_records(written_at);
	`)
	return err
}
