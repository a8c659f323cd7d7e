// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumenquery/fusion/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		attachments []Attachment
		want        domain.Mode
	}{
		{"default simple", "capital of France", nil, domain.ModeSimple},
		{"technical keyword", "B-tree vs LSM tradeoffs in database engines", nil, domain.ModeTechnical},
		{"research keyword", "comprehensive analysis of renewable energy adoption trends", nil, domain.ModeResearch},
		{"long query falls to research", longQuery(), nil, domain.ModeResearch},
		{"multimedia keyword", "show me a diagram of the water cycle", nil, domain.ModeMultimedia},
		{"image attachment forces multimedia", "what is this", []Attachment{{ContentType: "image/png"}}, domain.ModeMultimedia},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text, tt.attachments)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	text := "explain kubernetes network policies"
	first := Classify(text, nil)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Classify(text, nil))
	}
}

func longQuery() string {
	words := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		words = append(words, "word")
	}
	s := ""
	for i, w := range words {
		if i > 0 {
			s += " "
		}
		s += w
	}
	return s
}
