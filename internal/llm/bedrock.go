// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/lumenquery/fusion/internal/ferrors"
)

const defaultBedrockModel = "anthropic.claude-3-5-sonnet-20241022-v2:0"
const anthropicBedrockVersion = "bedrock-2023-05-31"

// BedrockSynthesizer streams a completion from an Anthropic Claude model
// served through AWS Bedrock's InvokeModelWithResponseStream API.
type BedrockSynthesizer struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockSynthesizer wraps a configured Bedrock runtime client.
func NewBedrockSynthesizer(client *bedrockruntime.Client, model string) *BedrockSynthesizer {
	if model == "" {
		model = defaultBedrockModel
	}
	return &BedrockSynthesizer{client: client, model: model}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (b *BedrockSynthesizer) Generate(ctx context.Context, req SynthesisRequest, handler StreamHandler) (*SynthesisResult, error) {
	model := req.Model
	if model == "" {
		model = b.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	body, err := json.Marshal(anthropicRequestBody{
		AnthropicVersion: anthropicBedrockVersion,
		MaxTokens:        maxTokens,
		System:           req.SystemPrompt,
		Messages:         []anthropicMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, ferrors.New(ferrors.SynthesisFailed, "BedrockSynthesizer.Generate", "failed to encode request body", err)
	}

	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, ferrors.New(ferrors.SynthesisFailed, "BedrockSynthesizer.Generate", "bedrock invoke failed", err)
	}

	stream := out.GetStream()
	defer stream.Close()

	var content string
	result := &SynthesisResult{Model: model}

	for event := range stream.Events() {
		chunkBytes, ok := extractChunkBytes(event)
		if !ok {
			continue
		}

		var streamEvent anthropicStreamEvent
		if err := json.Unmarshal(chunkBytes, &streamEvent); err != nil {
			continue
		}

		switch streamEvent.Type {
		case "content_block_delta":
			content += streamEvent.Delta.Text
			if err := handler(StreamChunk{Content: streamEvent.Delta.Text}); err != nil {
				return nil, err
			}
		case "message_delta":
			if streamEvent.Usage.OutputTokens > 0 {
				result.CompletionTokens = streamEvent.Usage.OutputTokens
			}
		case "message_start":
			if streamEvent.Usage.InputTokens > 0 {
				result.PromptTokens = streamEvent.Usage.InputTokens
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, ferrors.New(ferrors.SynthesisFailed, "BedrockSynthesizer.Generate", "bedrock stream error", err)
	}

	result.Content = content
	if err := handler(StreamChunk{Done: true}); err != nil {
		return nil, err
	}
	return result, nil
}

func extractChunkBytes(event types.ResponseStream) ([]byte, bool) {
	member, ok := event.(*types.ResponseStreamMemberChunk)
	if !ok {
		return nil, false
	}
	return member.Value.Bytes, true
}
