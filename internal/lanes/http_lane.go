// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package lanes

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/lumenquery/fusion/connectors/base"
	"github.com/lumenquery/fusion/internal/cache"
	"github.com/lumenquery/fusion/internal/domain"
	"github.com/lumenquery/fusion/internal/ferrors"
)

// RowMapper converts one connector result row into a Document. It
// returns ok=false for rows that don't represent a usable result (a
// pagination footer, an empty snippet).
type RowMapper func(row map[string]interface{}) (domain.Document, bool)

// HTTPLane fans a query out to an HTTP-backed search API (web, news,
// markets) through the shared SSRF-protected connector, then maps each
// JSON row into a Document with the RowMapper supplied at construction.
// The provider rate limiter and the connector's own retry/backoff guard
// against one noisy upstream starving the other lanes.
type HTTPLane struct {
	id          domain.LaneID
	provider    string
	connector   *base.ConnectorConfig
	client      httpQuerier
	limiter     cache.ProviderRateLimiter
	limitPerMin int
	statement   string
	mapper      RowMapper
}

// httpQuerier is the subset of base.Connector this lane drives; satisfied
// by *httpconn.HTTPConnector once Connect has been called during wiring.
type httpQuerier interface {
	Query(ctx context.Context, query *base.Query) (*base.QueryResult, error)
}

// NewHTTPLane builds an HTTP-backed lane. statement is the connector
// path (e.g. "/search"); mapper turns each result row into a Document.
func NewHTTPLane(id domain.LaneID, provider string, client httpQuerier, limiter cache.ProviderRateLimiter, limitPerMin int, statement string, mapper RowMapper) *HTTPLane {
	return &HTTPLane{
		id:          id,
		provider:    provider,
		client:      client,
		limiter:     limiter,
		limitPerMin: limitPerMin,
		statement:   statement,
		mapper:      mapper,
	}
}

func (l *HTTPLane) ID() domain.LaneID { return l.id }

func (l *HTTPLane) Run(ctx context.Context, query domain.Query, constraints domain.Constraints, budgetMS int64) domain.LaneResult {
	return runWithDeadline(ctx, l.id, budgetMS, func(ctx context.Context) ([]domain.Document, error) {
		if err := l.limiter.Allow(ctx, l.provider, l.limitPerMin); err != nil {
			return nil, ferrors.New(ferrors.RateLimited, "HTTPLane.Run", "provider rate limit exceeded", err)
		}

		params := map[string]interface{}{"q": query.Text, "limit": constraints.Depth.ResultCap()}
		if constraints.TimeRange != "" {
			params["time_range"] = string(constraints.TimeRange)
		}

		result, err := l.client.Query(ctx, &base.Query{Statement: l.statement, Parameters: params, Limit: constraints.Depth.ResultCap()})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ferrors.New(ferrors.LaneTimeout, "HTTPLane.Run", "lane deadline exceeded", err)
			}
			return nil, ferrors.New(ferrors.NetworkError, "HTTPLane.Run", "upstream request failed", err)
		}

		docs := make([]domain.Document, 0, len(result.Rows))
		for _, row := range result.Rows {
			doc, ok := l.mapper(row)
			if !ok {
				continue
			}
			doc.LaneID = l.id
			if doc.ContentHash == "" {
				doc.ContentHash = hashContent(doc.URL, doc.Title, doc.Content)
			}
			docs = append(docs, doc)
		}
		if len(docs) == 0 {
			return docs, ferrors.New(ferrors.Empty, "HTTPLane.Run", "provider returned no usable rows", nil)
		}
		return docs, nil
	})
}

func hashContent(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func stringField(row map[string]interface{}, key string) string {
	if v, ok := row[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}
