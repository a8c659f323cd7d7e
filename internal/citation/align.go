// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package citation

import (
	"context"
	"sort"

	"github.com/lumenquery/fusion/internal/domain"
)

// Embedder produces an embedding vector for a passage of text. It is
// optional: Align falls back to lexical Jaccard similarity when nil or
// when it returns an error, so citation alignment never fails a
// request just because the embedding backend is unavailable.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const maxPassagesPerDocument = 6

// passageCandidate is one scoreable unit of source text: either a whole
// snippet or one sentence split out of a document's full content.
type passageCandidate struct {
	docID string
	text  string
}

// scoredCandidate pairs a passage candidate with its similarity to the
// sentence currently being aligned.
type scoredCandidate struct {
	candidate  passageCandidate
	similarity float64
}

// Align matches each sentence of the synthesized answer to its best
// supporting passages among the fused documents, assigns citation
// markers in first-occurrence order, and builds the ordered
// bibliography. Sentences with no passage above simThreshold are
// flagged NoSource rather than given a weak, misleading citation.
func Align(ctx context.Context, answerText string, docs []domain.FusedDocument, embed Embedder, simThreshold float64, topK int) ([]domain.AnswerSentence, []domain.Citation, []domain.BibliographyEntry) {
	sentences := SegmentSentences(answerText)
	candidates := buildCandidates(docs)
	docByID := indexDocs(docs)

	docEmbeddings := make(map[string][]float32)
	if embed != nil {
		for _, c := range candidates {
			if _, ok := docEmbeddings[c.text]; ok {
				continue
			}
			if vec, err := embed.Embed(ctx, c.text); err == nil {
				docEmbeddings[c.text] = vec
			}
		}
	}

	markerByDocID := make(map[string]int)
	var citations []domain.Citation
	var bibliography []domain.BibliographyEntry
	nextMarker := 1

	answerSentences := make([]domain.AnswerSentence, 0, len(sentences))

	for _, sentence := range sentences {
		var sentenceEmb []float32
		if embed != nil {
			if vec, err := embed.Embed(ctx, sentence); err == nil {
				sentenceEmb = vec
			}
		}

		var scoredCandidates []scoredCandidate
		for _, c := range candidates {
			sim := PassageSimilarity(sentence, c.text, sentenceEmb, docEmbeddings[c.text])
			if sim >= simThreshold {
				scoredCandidates = append(scoredCandidates, scoredCandidate{c, sim})
			}
		}
		sort.SliceStable(scoredCandidates, func(i, j int) bool {
			return scoredCandidates[i].similarity > scoredCandidates[j].similarity
		})

		seen := make(map[string]bool)
		var markerIDs []int
		var confidenceSum float64

		for _, sc := range scoredCandidates {
			if len(markerIDs) >= topK {
				break
			}
			if seen[sc.candidate.docID] {
				continue
			}
			seen[sc.candidate.docID] = true

			markerID, exists := markerByDocID[sc.candidate.docID]
			if !exists {
				markerID = nextMarker
				nextMarker++
				markerByDocID[sc.candidate.docID] = markerID
				if d, ok := docByID[sc.candidate.docID]; ok {
					bibliography = append(bibliography, bibliographyEntry(markerID, d))
				}
			}

			confidence := sc.similarity
			citations = append(citations, domain.Citation{
				MarkerID:    markerID,
				DocumentRef: sc.candidate.docID,
				Passage:     sc.candidate.text,
				Similarity:  sc.similarity,
				Confidence:  confidence,
			})
			markerIDs = append(markerIDs, markerID)
			confidenceSum += confidence
		}

		as := domain.AnswerSentence{Text: sentence, Citations: markerIDs}
		if len(markerIDs) == 0 {
			as.NoSource = true
		} else {
			as.Confidence = confidenceSum / float64(len(markerIDs))
		}
		answerSentences = append(answerSentences, as)
	}

	return answerSentences, citations, bibliography
}

func buildCandidates(docs []domain.FusedDocument) []passageCandidate {
	var candidates []passageCandidate
	for _, fd := range docs {
		passages := SegmentSentences(fd.Document.Content)
		if len(passages) == 0 && fd.Document.Snippet != "" {
			passages = []string{fd.Document.Snippet}
		}
		if len(passages) > maxPassagesPerDocument {
			passages = passages[:maxPassagesPerDocument]
		}
		for _, p := range passages {
			candidates = append(candidates, passageCandidate{docID: fd.Document.ID, text: p})
		}
	}
	return candidates
}

func indexDocs(docs []domain.FusedDocument) map[string]domain.Document {
	m := make(map[string]domain.Document, len(docs))
	for _, fd := range docs {
		m[fd.Document.ID] = fd.Document
	}
	return m
}

func bibliographyEntry(markerID int, d domain.Document) domain.BibliographyEntry {
	excerpt := d.Snippet
	if excerpt == "" && len(d.Content) > 0 {
		excerpt = d.Content
		if len(excerpt) > 240 {
			excerpt = excerpt[:240] + "..."
		}
	}
	return domain.BibliographyEntry{
		MarkerID:    markerID,
		Title:       d.Title,
		URL:         d.URL,
		Domain:      d.Domain,
		PublishedAt: d.PublishedAt,
		Author:      d.Author,
		Excerpt:     excerpt,
	}
}
