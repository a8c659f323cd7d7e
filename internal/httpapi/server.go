// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

// Package httpapi exposes the pipeline over HTTP: POST /search streams a
// query's lifecycle as server-sent events, GET /audit/{trace_id} returns
// the persisted audit record, and GET /health and GET /metrics report
// process and pipeline health. Routing is gorilla/mux with an rs/cors
// wrapper.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/lumenquery/fusion/connectors/base"
	"github.com/lumenquery/fusion/internal/classifier"
	"github.com/lumenquery/fusion/internal/domain"
	"github.com/lumenquery/fusion/internal/orchestrator"
	"github.com/lumenquery/fusion/shared/logger"
)

// AuditReader is the subset of audit.Sink the HTTP layer reads from.
type AuditReader interface {
	Get(ctx context.Context, traceID string) (*domain.AuditRecord, error)
}

// HealthChecker reports whether a wired backend is currently reachable;
// satisfied directly by connectors/base.Connector.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*base.HealthStatus, error)
}

// Server bundles the orchestrator, audit reader, and health-checked
// components behind the HTTP surface.
type Server struct {
	orch       *orchestrator.Orchestrator
	audit      AuditReader
	components map[string]HealthChecker
	log        *logger.Logger
}

// NewServer builds a Server. components is the set of backend
// connectors to report in GET /health, keyed by the name shown in the
// response body.
func NewServer(orch *orchestrator.Orchestrator, audit AuditReader, components map[string]HealthChecker) *Server {
	return &Server{orch: orch, audit: audit, components: components, log: logger.New("httpapi")}
}

// Router builds the gorilla/mux router wrapped in CORS middleware, ready
// to pass to http.ListenAndServe.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/search", s.handleSearch).Methods("POST")
	r.HandleFunc("/audit/{trace_id}", s.handleAudit).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}

// searchRequest is the POST /search body.
type searchRequest struct {
	Text        string              `json:"text"`
	Constraints domain.Constraints  `json:"constraints"`
	TraceID     string              `json:"trace_id,omitempty"`
	Attachments []attachmentPayload `json:"attachments,omitempty"`
}

type attachmentPayload struct {
	ContentType string `json:"content_type"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	attachments := make([]classifier.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, classifier.Attachment{ContentType: a.ContentType})
	}

	stream, query, err := s.orch.Submit(r.Context(), orchestrator.AdmissionRequest{
		Text:        req.Text,
		Constraints: req.Constraints,
		TraceID:     req.TraceID,
		Attachments: attachments,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Trace-Id", query.TraceID)

	flusher, canFlush := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)

	for event := range stream.Events() {
		payload, err := event.Encode()
		if err != nil {
			s.log.Error(query.TraceID, "", "failed to encode SSE event", map[string]interface{}{"error": err.Error()})
			continue
		}
		if _, err := w.Write(payload); err != nil {
			// Client disconnected mid-stream; cancel the in-flight query
			// so lanes stop work rather than racing to a result nobody
			// reads.
			s.orch.Cancel(query.ID)
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	traceID := mux.Vars(r)["trace_id"]
	record, err := s.audit.Get(r.Context(), traceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "audit record not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(record); err != nil {
		s.log.Error(traceID, "", "failed to encode audit record", map[string]interface{}{"error": err.Error()})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]bool, len(s.components))
	allHealthy := true
	for name, checker := range s.components {
		status, err := checker.HealthCheck(ctx)
		healthy := err == nil && status != nil && status.Healthy
		components[name] = healthy
		if !healthy {
			allHealthy = false
		}
	}

	status := "healthy"
	if !allHealthy {
		status = "degraded"
	}

	body := map[string]interface{}{
		"status":     status,
		"service":    "fusiond",
		"timestamp":  time.Now().UTC(),
		"components": components,
	}

	w.Header().Set("Content-Type", "application/json")
	if !allHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("", "", "failed to encode health response", map[string]interface{}{"error": err.Error()})
	}
}
