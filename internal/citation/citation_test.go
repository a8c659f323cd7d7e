// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package citation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenquery/fusion/internal/domain"
)

func TestSegmentSentences_Basic(t *testing.T) {
	got := SegmentSentences("Renewables grew fast. Costs fell sharply. Demand followed.")
	assert.Equal(t, []string{"Renewables grew fast.", "Costs fell sharply.", "Demand followed."}, got)
}

func TestSegmentSentences_AbbreviationNotSentenceEnd(t *testing.T) {
	got := SegmentSentences("Dr. Smith published the study. It was well received.")
	require.Len(t, got, 2)
	assert.Equal(t, "Dr. Smith published the study.", got[0])
}

func TestSegmentSentences_Empty(t *testing.T) {
	assert.Nil(t, SegmentSentences(""))
}

func TestJaccardSimilarity_IdenticalAndDisjoint(t *testing.T) {
	assert.Equal(t, 1.0, JaccardSimilarity("solar power growth", "solar power growth"))
	assert.Equal(t, 0.0, JaccardSimilarity("solar power", "unrelated topic entirely"))
}

func TestCosineSimilarity_MismatchedLengthReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
}

func fusedDoc(id, title, content string) domain.FusedDocument {
	return domain.FusedDocument{Document: domain.Document{ID: id, Title: title, Content: content, URL: "https://example.com/" + id, Domain: "example.com"}}
}

func TestAlign_AssignsMarkersInFirstOccurrenceOrder(t *testing.T) {
	docs := []domain.FusedDocument{
		fusedDoc("d1", "Solar Growth", "Solar capacity grew rapidly worldwide."),
		fusedDoc("d2", "Wind Growth", "Wind capacity also expanded significantly."),
	}
	answer := "Solar capacity grew rapidly worldwide. Wind capacity also expanded significantly."

	sentences, citations, bib := Align(context.Background(), answer, docs, nil, 0.3, 3)

	require.Len(t, sentences, 2)
	assert.False(t, sentences[0].NoSource)
	assert.False(t, sentences[1].NoSource)
	require.NotEmpty(t, citations)
	require.Len(t, bib, 2)
	assert.Equal(t, 1, bib[0].MarkerID)
	assert.Equal(t, 2, bib[1].MarkerID)
}

func TestAlign_FlagsNoSourceSentence(t *testing.T) {
	docs := []domain.FusedDocument{fusedDoc("d1", "Solar Growth", "Solar capacity grew rapidly worldwide.")}
	answer := "Completely unrelated claim about ancient Roman pottery techniques."

	sentences, _, _ := Align(context.Background(), answer, docs, nil, 0.5, 3)
	require.Len(t, sentences, 1)
	assert.True(t, sentences[0].NoSource)
}

func TestAlign_RespectsTopK(t *testing.T) {
	docs := []domain.FusedDocument{
		fusedDoc("d1", "T1", "renewable energy grew across every region studied"),
		fusedDoc("d2", "T2", "renewable energy grew across every region studied"),
		fusedDoc("d3", "T3", "renewable energy grew across every region studied"),
	}
	answer := "renewable energy grew across every region studied"

	sentences, _, bib := Align(context.Background(), answer, docs, nil, 0.1, 2)
	require.Len(t, sentences, 1)
	assert.LessOrEqual(t, len(sentences[0].Citations), 2)
	assert.LessOrEqual(t, len(bib), 2)
}

func TestDetectDisagreements_ConflictingNumbers(t *testing.T) {
	sentences := []domain.AnswerSentence{
		{Text: "Inflation rose significantly last quarter.", Citations: []int{1, 2}},
	}
	citations := []domain.Citation{
		{MarkerID: 1, Passage: "Inflation rose 3% last quarter."},
		{MarkerID: 2, Passage: "Inflation rose 9% last quarter."},
	}

	disagreements := DetectDisagreements(sentences, citations)
	require.Len(t, disagreements, 1)
	assert.Equal(t, domain.SeverityHigh, disagreements[0].Severity)
}

func TestDetectDisagreements_CommaGroupedNumbers(t *testing.T) {
	sentences := []domain.AnswerSentence{
		{Text: "Earth's radius is about 6,400 km.", Citations: []int{1, 2}},
	}
	citations := []domain.Citation{
		{MarkerID: 1, Passage: "Earth radius = 6371 km"},
		{MarkerID: 2, Passage: "Earth radius = 6,378 km (equatorial)"},
	}

	disagreements := DetectDisagreements(sentences, citations)
	require.Len(t, disagreements, 1)
	assert.Equal(t, domain.SeverityMedium, disagreements[0].Severity)
	assert.ElementsMatch(t, []int{1, 2}, disagreements[0].ConflictingCitations)
}

func TestDetectDisagreements_BarelyPastPrecisionIsLow(t *testing.T) {
	sentences := []domain.AnswerSentence{
		{Text: "GDP growth was around 3.6%.", Citations: []int{1, 2}},
	}
	citations := []domain.Citation{
		{MarkerID: 1, Passage: "GDP grew 3.5% year over year."},
		{MarkerID: 2, Passage: "GDP grew 3.7% year over year."},
	}

	disagreements := DetectDisagreements(sentences, citations)
	require.Len(t, disagreements, 1)
	assert.Equal(t, domain.SeverityLow, disagreements[0].Severity)
}

func TestDetectDisagreements_NoConflictWhenConsistent(t *testing.T) {
	sentences := []domain.AnswerSentence{
		{Text: "Inflation rose slightly.", Citations: []int{1, 2}},
	}
	citations := []domain.Citation{
		{MarkerID: 1, Passage: "Inflation rose 3% last quarter."},
		{MarkerID: 2, Passage: "Inflation rose 3.1% last quarter."},
	}

	assert.Empty(t, DetectDisagreements(sentences, citations))
}

func TestDetectDisagreements_SingleCitationNeverFlagged(t *testing.T) {
	sentences := []domain.AnswerSentence{{Text: "Inflation rose.", Citations: []int{1}}}
	citations := []domain.Citation{{MarkerID: 1, Passage: "Inflation rose 3%."}}
	assert.Empty(t, DetectDisagreements(sentences, citations))
}
