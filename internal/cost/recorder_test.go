// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecorder(t *testing.T) {
	recorder := NewRecorder(nil)
	assert.NotNil(t, recorder)
	assert.Nil(t, recorder.db)
}

func TestQueryCostEvent_Fields(t *testing.T) {
	event := QueryCostEvent{
		TraceID:        "trace-123",
		Mode:           "research",
		HTTPMethod:     "POST",
		HTTPPath:       "/v1/search",
		HTTPStatusCode: 200,
		LatencyMs:      15,
	}

	assert.NotEmpty(t, event.TraceID)
	assert.GreaterOrEqual(t, event.HTTPStatusCode, 100)
	assert.LessOrEqual(t, event.HTTPStatusCode, 599)
	assert.GreaterOrEqual(t, event.LatencyMs, int64(0))
}

func TestSynthesisCostEvent_Fields(t *testing.T) {
	event := SynthesisCostEvent{
		TraceID:          "trace-123",
		Provider:         "bedrock",
		Model:            "anthropic.claude-3-sonnet",
		PromptTokens:     150,
		CompletionTokens: 300,
		TotalTokens:      450,
		LatencyMs:        2500,
	}

	assert.NotEmpty(t, event.Provider)
	assert.NotEmpty(t, event.Model)
	assert.Equal(t, event.TotalTokens, event.PromptTokens+event.CompletionTokens)
	assert.False(t, event.Degraded)
}

func TestRecordQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO cost_events").
		WithArgs("trace-abc", "research", "POST", "/v1/search", 200, int64(15)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	recorder := NewRecorder(db)
	err = recorder.RecordQuery(QueryCostEvent{
		TraceID:        "trace-abc",
		Mode:           "research",
		HTTPMethod:     "POST",
		HTTPPath:       "/v1/search",
		HTTPStatusCode: 200,
		LatencyMs:      15,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSynthesis(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO cost_events").
		WithArgs("trace-abc", "bedrock", "anthropic.claude-3-sonnet", 150, 300, 450,
			495, int64(2500), false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	recorder := NewRecorder(db)
	err = recorder.RecordSynthesis(SynthesisCostEvent{
		TraceID:          "trace-abc",
		Provider:         "bedrock",
		Model:            "anthropic.claude-3-sonnet",
		PromptTokens:     150,
		CompletionTokens: 300,
		TotalTokens:      450,
		LatencyMs:        2500,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSynthesis_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO cost_events").WillReturnError(assert.AnError)

	recorder := NewRecorder(db)
	err = recorder.RecordSynthesis(SynthesisCostEvent{TraceID: "trace-abc", Provider: "bedrock", Model: "anthropic.claude-3-haiku"})
	assert.Error(t, err)
}
