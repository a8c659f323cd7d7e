// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/lumenquery/fusion/internal/audit/archive"
	"github.com/lumenquery/fusion/internal/domain"
)

const retentionSweepBatch = 200

// SweepRetention moves up to retentionSweepBatch of the oldest records
// older than retentionDays from the primary Postgres table into store,
// then deletes each from Postgres. It
// is meant to be called on a periodic ticker from cmd/fusiond; a single
// sweep failure logs and continues rather than aborting the batch.
func (s *Sink) SweepRetention(ctx context.Context, retentionDays int, store archive.Store) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, query_text, mode, budget_json, per_lane_results_json, fused_doc_ids_json,
		       answer_sentences_json, citations_json, bibliography_json, disagreements_json,
		       total_latency_ms, answered_under_sla, ttft_ms, partial, cancelled, written_at
		FROM fusion_audit_records WHERE written_at < $1 ORDER BY written_at LIMIT $2
	`, cutoff, retentionSweepBatch)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var archived int
	for rows.Next() {
		var (
			r                                                                 domain.AuditRecord
			budgetJSON, perLaneJSON, fusedIDsJSON                             []byte
			sentencesJSON, citationsJSON, bibliographyJSON, disagreementsJSON []byte
		)
		if err := rows.Scan(
			&r.TraceID, &r.Query.Text, &r.Mode, &budgetJSON, &perLaneJSON, &fusedIDsJSON,
			&sentencesJSON, &citationsJSON, &bibliographyJSON, &disagreementsJSON,
			&r.TotalLatencyMS, &r.AnsweredUnderSLA, &r.TTFTMs, &r.Partial, &r.Cancelled, &r.WrittenAt,
		); err != nil {
			log.Printf("[audit] retention sweep scan failed: %v", err)
			continue
		}
		_ = json.Unmarshal(budgetJSON, &r.Budget)
		_ = json.Unmarshal(perLaneJSON, &r.PerLaneResults)
		_ = json.Unmarshal(fusedIDsJSON, &r.FusedDocIDs)
		_ = json.Unmarshal(sentencesJSON, &r.AnswerSentences)
		_ = json.Unmarshal(citationsJSON, &r.Citations)
		_ = json.Unmarshal(bibliographyJSON, &r.Bibliography)
		_ = json.Unmarshal(disagreementsJSON, &r.Disagreements)

		if err := store.Archive(ctx, r); err != nil {
			log.Printf("[audit] failed to archive %s, leaving in place: %v", r.TraceID, err)
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM fusion_audit_records WHERE trace_id = $1`, r.TraceID); err != nil {
			log.Printf("[audit] archived %s but failed to delete from primary store: %v", r.TraceID, err)
			continue
		}
		archived++
	}
	return archived, rows.Err()
}

// RunRetentionLoop sweeps every interval until ctx is cancelled.
func (s *Sink) RunRetentionLoop(ctx context.Context, retentionDays int, store archive.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.SweepRetention(ctx, retentionDays, store); err != nil {
				log.Printf("[audit] retention sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("[audit] retention sweep archived %d record(s)", n)
			}
		}
	}
}
