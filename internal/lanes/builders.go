// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package lanes

import "github.com/lumenquery/fusion/internal/domain"

// The store lanes speak named operations, not raw statements: each
// connector renders the operation into its own dialect (an aggregation
// pipeline, CQL, a full-text SQL query), so a lane never embeds another
// backend's syntax.

// vectorStatementBuilder targets the vector store's similarity-search
// operation. Passing query_text (not an embedding) lets the connector
// choose: $vectorSearch when the corpus has embeddings and the lane was
// wired with an embedder upstream, text-scored search otherwise.
func vectorStatementBuilder(query domain.Query, constraints domain.Constraints) (string, map[string]interface{}) {
	return "vector_similarity_search", map[string]interface{}{
		"query_text": query.Text,
		"top_k":      constraints.Depth.ResultCap(),
	}
}

// kgStatementBuilder expands knowledge-graph facts for the query text.
func kgStatementBuilder(query domain.Query, constraints domain.Constraints) (string, map[string]interface{}) {
	return "expand_entity", map[string]interface{}{
		"term":        query.Text,
		"max_results": constraints.Depth.ResultCap(),
	}
}

// keywordStatementBuilder runs the keyword index's full-text search;
// the Postgres and MySQL connectors render the same operation into
// their own dialects.
func keywordStatementBuilder(query domain.Query, constraints domain.Constraints) (string, map[string]interface{}) {
	return "search_documents", map[string]interface{}{
		"term":        query.Text,
		"max_results": constraints.Depth.ResultCap(),
	}
}
