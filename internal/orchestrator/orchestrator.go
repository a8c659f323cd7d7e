// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package orchestrator owns a query's lifetime end to end: it validates
// and classifies the query, computes its budget, fans it out across
// every enabled lane concurrently, fuses and ranks the results
// incrementally as they arrive, hands the survivors to LLM synthesis
// and citation alignment once the retrieval reserve kicks in, and
// streams the whole thing out with heartbeats and a single terminal
// event. There is no package-level state: one *Orchestrator is built at
// startup and threaded through explicitly.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenquery/fusion/internal/citation"
	"github.com/lumenquery/fusion/internal/classifier"
	"github.com/lumenquery/fusion/internal/config"
	"github.com/lumenquery/fusion/internal/cost"
	"github.com/lumenquery/fusion/internal/domain"
	"github.com/lumenquery/fusion/internal/ferrors"
	"github.com/lumenquery/fusion/internal/fusion"
	"github.com/lumenquery/fusion/internal/lanes"
	"github.com/lumenquery/fusion/internal/llm"
	"github.com/lumenquery/fusion/internal/metrics"
	"github.com/lumenquery/fusion/internal/streaming"
	"github.com/lumenquery/fusion/shared/logger"
)

// AuditWriter is the subset of audit.Sink the orchestrator depends on;
// satisfied by *audit.Sink or a test double.
type AuditWriter interface {
	Write(record domain.AuditRecord)
}

// CostRecorder is the subset of cost.Recorder the orchestrator depends
// on; nil disables cost accounting entirely. Failures are logged, never
// surfaced to the query itself.
type CostRecorder interface {
	RecordQuery(event cost.QueryCostEvent) error
	RecordSynthesis(event cost.SynthesisCostEvent) error
}

// Orchestrator is built once at startup and is safe for concurrent use
// by many in-flight queries; it holds no per-query state itself, only
// the shared collaborators every query fans out to.
type Orchestrator struct {
	cfg      *config.Config
	registry *lanes.Registry
	synth    llm.Synthesizer
	fallback llm.Synthesizer
	embedder citation.Embedder
	audit    AuditWriter
	cost     CostRecorder
	metrics  *metrics.Registry
	log      *logger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds an Orchestrator from its wired collaborators. costRecorder
// may be nil, disabling per-query cost accounting.
func New(cfg *config.Config, registry *lanes.Registry, synth llm.Synthesizer, embedder citation.Embedder, audit AuditWriter, metricsReg *metrics.Registry, costRecorder CostRecorder) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		registry: registry,
		synth:    synth,
		fallback: llm.NewRuleBasedSynthesizer(),
		embedder: embedder,
		audit:    audit,
		cost:     costRecorder,
		metrics:  metricsReg,
		log:      logger.New("orchestrator"),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// AdmissionRequest is the inbound shape POST /search decodes into,
// before classification assigns a Mode.
type AdmissionRequest struct {
	Text        string
	Constraints domain.Constraints
	TraceID     string
	Attachments []classifier.Attachment
}

// Submit validates and classifies req, computes its budget, and returns
// a Stream the caller drains for the lifetime of the query. The actual
// pipeline work runs on a detached goroutine under ctx; Submit itself
// never blocks on lane I/O.
func (o *Orchestrator) Submit(ctx context.Context, req AdmissionRequest) (*streaming.Stream, domain.Query, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, domain.Query{}, ferrors.New(ferrors.InputInvalid, "Orchestrator.Submit", "query text must not be empty", nil)
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	mode := classifier.Classify(req.Text, req.Attachments)
	query := domain.Query{
		ID:          uuid.NewString(),
		Text:        req.Text,
		Mode:        mode,
		Constraints: req.Constraints,
		TraceID:     traceID,
		SubmittedAt: time.Now(),
	}

	budget := o.cfg.ComputeBudget(mode, req.Constraints)
	stream := streaming.NewStream(traceID)

	queryCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancels[query.ID] = cancel
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.cancels, query.ID)
			o.mu.Unlock()
		}()
		o.run(queryCtx, query, budget, stream)
	}()

	return stream, query, nil
}

// Cancel propagates cancellation to the query's lane context; lanes
// observe it through their own ctx.Done() within the 200ms window the
// streaming contract promises.
func (o *Orchestrator) Cancel(queryID string) {
	o.mu.Lock()
	cancel, ok := o.cancels[queryID]
	o.mu.Unlock()
	if ok {
		cancel()
		if o.metrics != nil {
			o.metrics.Cancellations.Inc()
		}
	}
}

// run is the pipeline body: fan out, fuse incrementally, cut off at
// the reserve, synthesize, align citations, stream, audit. It recovers
// from a panic so one query's bug can never take the process down;
// the documented last-chance path emits a single error event.
func (o *Orchestrator) run(ctx context.Context, query domain.Query, budget domain.Budget, stream *streaming.Stream) {
	defer func() {
		if r := recover(); r != nil {
			stream.Send(streaming.EventError, map[string]string{"reason": fmt.Sprintf("internal error: %v", r)})
			stream.SendFinal(finalPayload(0, true, false, true))
			o.log.ErrorWithCode(query.TraceID, "", "orchestrator panic recovered", string(ferrors.InternalError), nil, map[string]interface{}{"panic": fmt.Sprintf("%v", r)})
		}
	}()

	start := time.Now()
	globalCtx, cancelGlobal := context.WithTimeout(ctx, time.Duration(budget.GlobalDeadlineMS)*time.Millisecond)
	defer cancelGlobal()

	reserveAt := time.Duration(budget.GlobalDeadlineMS-budget.ReserveMS) * time.Millisecond
	retrievalCtx, cancelRetrieval := context.WithTimeout(globalCtx, reserveAt)
	defer cancelRetrieval()

	heartbeatCtx, cancelHeartbeat := context.WithCancel(globalCtx)
	defer cancelHeartbeat()
	go stream.RunHeartbeat(heartbeatCtx, time.Duration(o.cfg.HeartbeatIntervalMS)*time.Millisecond)

	// The TTFT guard runs on its own timer rather than piggybacking on
	// lane completion, so a lane using its full budget can never delay
	// the degraded signal past the target.
	ttftGuard := streaming.NewTTFTGuard(o.cfg.TTFTTargetMS)
	go ttftGuard.Watch(globalCtx, stream)

	// The pre-flight lane launches alongside every other lane rather
	// than gating them: its refined constraints never change this
	// query's already-in-flight retrieval, only the steps after it (the
	// depth cap on fused results and whether an empty bibliography is
	// kept), so it never adds latency to the critical path.
	laneResults, fused, cancelled := o.runLanes(retrievalCtx, query, query.Constraints, budget, stream)

	constraints := query.Constraints
	for _, r := range laneResults {
		if r.LaneID == domain.LanePreflight && r.RefinedConstraints != nil {
			constraints = *r.RefinedConstraints
		}
	}

	if o.metrics != nil {
		o.metrics.FusedDocuments.Observe(float64(len(fused)))
	}

	depthCap := constraints.Depth.ResultCap()
	if depthCap > 0 && depthCap < len(fused) {
		fused = fused[:depthCap]
	}

	if allLanesUnreachable(laneResults) {
		stream.Send(streaming.EventDegraded, map[string]string{"reason": "all configured retrieval backends were unreachable"})
	}

	answerText, degraded := o.synthesize(globalCtx, query, fused, budget, stream)

	sentences, citations, bibliography := citation.Align(globalCtx, answerText, fused, o.embedder, o.cfg.CitationSimThreshold, o.cfg.CitationTopK)
	if !constraints.CitationsRequired && len(citations) == 0 {
		bibliography = nil
	}

	disagreements := citation.DetectDisagreements(sentences, citations)
	for _, d := range disagreements {
		stream.Send(streaming.EventDisagreement, d)
		if o.metrics != nil {
			o.metrics.Disagreements.Inc()
		}
	}
	for _, c := range citations {
		stream.Send(streaming.EventCitation, c)
	}

	totalLatency := time.Since(start).Milliseconds()
	partial := cancelled || ctx.Err() != nil || globalCtx.Err() == context.DeadlineExceeded
	answeredUnderSLA := totalLatency <= budget.GlobalDeadlineMS+100

	record := domain.AuditRecord{
		TraceID:          query.TraceID,
		Query:            query,
		Mode:             query.Mode,
		Budget:           budget,
		PerLaneResults:   laneOutcomes(laneResults),
		FusedDocIDs:      fusedDocIDs(fused),
		AnswerSentences:  sentences,
		Citations:        citations,
		Bibliography:     bibliography,
		Disagreements:    disagreements,
		TotalLatencyMS:   totalLatency,
		AnsweredUnderSLA: answeredUnderSLA,
		TTFTMs:           stream.TTFT().Milliseconds(),
		Partial:          partial,
		Cancelled:        cancelled,
	}
	o.audit.Write(record)

	if o.cost != nil {
		statusCode := 200
		if partial {
			statusCode = 206
		}
		if recErr := o.cost.RecordQuery(cost.QueryCostEvent{
			TraceID:        query.TraceID,
			Mode:           string(query.Mode),
			HTTPMethod:     "POST",
			HTTPPath:       "/search",
			HTTPStatusCode: statusCode,
			LatencyMs:      totalLatency,
		}); recErr != nil {
			o.log.Error(query.TraceID, "", "cost recording failed", map[string]interface{}{"error": recErr.Error()})
		}
	}

	if o.metrics != nil {
		outcome := "ok"
		if partial {
			outcome = "partial"
		}
		o.metrics.QueriesTotal.WithLabelValues(string(query.Mode), outcome).Inc()
		o.metrics.QueryDuration.WithLabelValues(string(query.Mode)).Observe(float64(totalLatency))
		o.metrics.TTFTMilliseconds.Observe(float64(stream.TTFT().Milliseconds()))
		if degraded {
			o.metrics.SynthesisDegraded.Inc()
		}
	}

	stream.SendFinal(finalPayload(totalLatency, partial, answeredUnderSLA, false))
}

func finalPayload(totalLatencyMS int64, partial, answeredUnderSLA, internalError bool) map[string]interface{} {
	return map[string]interface{}{
		"total_latency_ms":   totalLatencyMS,
		"partial":            partial,
		"answered_under_sla": answeredUnderSLA,
		"internal_error":     internalError,
	}
}

// runLanes launches every enabled retrieval lane concurrently under its
// own per-lane budget and fans the results back in as they arrive,
// including the fixed-budget pre-flight lane unless
// config.ShouldRunPreflight says running it would starve another lane's
// allocation. Fusion is incremental: every arrival carrying documents
// re-merges the accumulated results (Fuse is commutative over arrival
// order) and emits a lane_completed progress event, so the client sees
// output as soon as the first backend responds instead of waiting out
// the slowest lane's budget. Failed lanes feed their partial documents
// into fusion but are never surfaced on the stream, only in audit and
// metrics. cancelled reports whether ctx was already done (client
// disconnect or deadline) when fan-in gave up.
func (o *Orchestrator) runLanes(ctx context.Context, query domain.Query, constraints domain.Constraints, budget domain.Budget, stream *streaming.Stream) ([]domain.LaneResult, []domain.FusedDocument, bool) {
	type resultMsg struct {
		result domain.LaneResult
	}

	enabledIDs := make([]domain.LaneID, 0, len(budget.PerLane)+1)
	for id := range budget.PerLane {
		if id == domain.LanePreflight {
			continue
		}
		if _, ok := o.registry.Get(id); ok {
			enabledIDs = append(enabledIDs, id)
		}
	}
	runPreflight := config.ShouldRunPreflight(budget)
	if _, ok := o.registry.Get(domain.LanePreflight); ok && runPreflight {
		enabledIDs = append(enabledIDs, domain.LanePreflight)
	}

	out := make(chan resultMsg, len(enabledIDs))
	var wg sync.WaitGroup
	for _, id := range enabledIDs {
		lane, _ := o.registry.Get(id)
		budgetMS := budget.PerLane[id]
		if id == domain.LanePreflight {
			budgetMS = domain.PreflightBudgetMS
		}
		wg.Add(1)
		go func(l lanes.Lane, budgetMS int64) {
			defer wg.Done()
			result := l.Run(ctx, query, constraints, budgetMS)
			out <- resultMsg{result: result}
		}(lane, budgetMS)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	results := make([]domain.LaneResult, 0, len(enabledIDs))
	seen := make(map[domain.LaneID]bool, len(enabledIDs))
	var fused []domain.FusedDocument
	cancelled := false

collect:
	for {
		select {
		case msg, ok := <-out:
			if !ok {
				break collect
			}
			results = append(results, msg.result)
			seen[msg.result.LaneID] = true
			if o.metrics != nil {
				o.metrics.LaneRequests.WithLabelValues(string(msg.result.LaneID), string(msg.result.Status)).Inc()
				o.metrics.LaneLatency.WithLabelValues(string(msg.result.LaneID)).Observe(float64(msg.result.LatencyMS))
			}
			// Merge every arrival that brought documents, including the
			// partial set a timed-out lane produced before its deadline.
			if len(msg.result.Documents) > 0 {
				fused = fusion.Fuse(results, o.cfg.RRFK, time.Now())
			}
			if msg.result.Status == domain.LaneStatusSuccess && len(msg.result.Documents) > 0 {
				stream.Send(streaming.EventLaneCompleted, map[string]interface{}{
					"lane_id":    string(msg.result.LaneID),
					"doc_count":  len(msg.result.Documents),
					"latency_ms": msg.result.LatencyMS,
					"fused_size": len(fused),
				})
			}
		case <-ctx.Done():
			cancelled = true
			break collect
		}
	}

	for _, id := range enabledIDs {
		if !seen[id] {
			results = append(results, domain.LaneResult{LaneID: id, Status: domain.LaneStatusTimeout})
		}
	}
	if fused == nil {
		fused = fusion.Fuse(results, o.cfg.RRFK, time.Now())
	}

	return results, fused, cancelled
}

// synthesize produces the answer text, preferring the configured LLM
// synthesizer and falling back to the deterministic rule-based path on
// any failure (synthesis_failed). When fused has no documents at all,
// the answer is an explicit uncertainty disclosure rather than a
// hallucinated claim.
func (o *Orchestrator) synthesize(ctx context.Context, query domain.Query, fused []domain.FusedDocument, budget domain.Budget, stream *streaming.Stream) (string, bool) {
	if len(fused) == 0 {
		disclosure := "I don't have reliable source material to answer this confidently right now."
		stream.Send(streaming.EventToken, disclosure)
		return disclosure, true
	}

	synthCtx, cancel := context.WithTimeout(ctx, time.Duration(budget.SynthBudgetMS)*time.Millisecond)
	defer cancel()

	req := llm.SynthesisRequest{
		Prompt:       buildPrompt(query, fused),
		SystemPrompt: "Answer the user's question using only the supplied passages. Be concise.",
		MaxTokens:    1024,
	}

	var content string
	handler := func(chunk llm.StreamChunk) error {
		if chunk.Content != "" {
			content += chunk.Content
			stream.Send(streaming.EventToken, chunk.Content)
		}
		return nil
	}

	result, err := o.synth.Generate(synthCtx, req, handler)
	if err == nil {
		if o.cost != nil {
			if recErr := o.cost.RecordSynthesis(cost.SynthesisCostEvent{
				TraceID:          query.TraceID,
				Provider:         "bedrock",
				Model:            result.Model,
				PromptTokens:     result.PromptTokens,
				CompletionTokens: result.CompletionTokens,
				TotalTokens:      result.PromptTokens + result.CompletionTokens,
				Degraded:         result.Degraded,
			}); recErr != nil {
				o.log.Error(query.TraceID, "", "cost recording failed", map[string]interface{}{"error": recErr.Error()})
			}
		}
		return result.Content, result.Degraded
	}

	o.log.ErrorWithCode(query.TraceID, "", "synthesis failed, falling back to rule-based path", string(ferrors.SynthesisFailed), err, nil)
	stream.Send(streaming.EventDegraded, map[string]string{"reason": "synthesis unavailable, using rule-based fallback"})

	fallbackReq := llm.SynthesisRequest{Prompt: passageLines(fused)}
	content = ""
	result, err = o.fallback.Generate(ctx, fallbackReq, handler)
	if err != nil {
		return "", true
	}
	return result.Content, true
}

func buildPrompt(query domain.Query, fused []domain.FusedDocument) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query.Text)
	b.WriteString("\n\nSources:\n")
	for i, fd := range fused {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, fd.Document.Snippet)
	}
	return b.String()
}

func passageLines(fused []domain.FusedDocument) string {
	var b strings.Builder
	for _, fd := range fused {
		if fd.Document.Snippet == "" {
			continue
		}
		b.WriteString(fd.Document.Snippet)
		b.WriteString("\n")
	}
	return b.String()
}

func allLanesUnreachable(results []domain.LaneResult) bool {
	found := false
	for _, r := range results {
		if r.LaneID == domain.LanePreflight {
			continue
		}
		found = true
		if r.Status == domain.LaneStatusSuccess {
			return false
		}
	}
	return found
}

func laneOutcomes(results []domain.LaneResult) []domain.LaneOutcome {
	outcomes := make([]domain.LaneOutcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, domain.LaneOutcome{
			LaneID:    r.LaneID,
			Status:    r.Status,
			LatencyMS: r.LatencyMS,
			DocCount:  len(r.Documents),
		})
	}
	return outcomes
}

func fusedDocIDs(fused []domain.FusedDocument) []string {
	ids := make([]string, 0, len(fused))
	for _, fd := range fused {
		ids = append(ids, fd.Document.ID)
	}
	return ids
}
