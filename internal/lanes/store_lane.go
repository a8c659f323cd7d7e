// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package lanes

import (
	"context"

	"github.com/lumenquery/fusion/connectors/base"
	"github.com/lumenquery/fusion/internal/domain"
	"github.com/lumenquery/fusion/internal/ferrors"
)

// storeQuerier is satisfied by any already-Connect()ed base.Connector
// (mongodb, cassandra, postgres, mysql); a StoreLane doesn't care which
// storage engine backs it, only that it speaks the Query/Execute
// capability every connector shares.
type storeQuerier interface {
	Query(ctx context.Context, query *base.Query) (*base.QueryResult, error)
}

// StoreLane drives a document/record store lane (vector similarity
// search over MongoDB, graph traversal over Cassandra, full-text search
// over Postgres or MySQL) through the shared connector Query capability.
// StatementBuilder turns the incoming query text and constraints into
// the backend-specific statement (a Mongo aggregation name, a CQL
// statement, a SQL full-text query) and parameter map.
type StoreLane struct {
	id               domain.LaneID
	client           storeQuerier
	statementBuilder func(query domain.Query, constraints domain.Constraints) (string, map[string]interface{})
	mapper           RowMapper
}

// NewStoreLane builds a connector-backed store lane.
func NewStoreLane(id domain.LaneID, client storeQuerier, statementBuilder func(domain.Query, domain.Constraints) (string, map[string]interface{}), mapper RowMapper) *StoreLane {
	return &StoreLane{id: id, client: client, statementBuilder: statementBuilder, mapper: mapper}
}

func (l *StoreLane) ID() domain.LaneID { return l.id }

func (l *StoreLane) Run(ctx context.Context, query domain.Query, constraints domain.Constraints, budgetMS int64) domain.LaneResult {
	return runWithDeadline(ctx, l.id, budgetMS, func(ctx context.Context) ([]domain.Document, error) {
		statement, params := l.statementBuilder(query, constraints)
		result, err := l.client.Query(ctx, &base.Query{
			Statement:  statement,
			Parameters: params,
			Limit:      constraints.Depth.ResultCap(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ferrors.New(ferrors.LaneTimeout, "StoreLane.Run", "lane deadline exceeded", err)
			}
			return nil, ferrors.New(ferrors.BackendUnavailable, "StoreLane.Run", "store query failed", err)
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
			return docs, ferrors.New(ferrors.Empty, "StoreLane.Run", "store returned no usable rows", nil)
		}
		return docs, nil
	})
}
