// Copyright 2025 LumenQuery
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/lumenquery/fusion/internal/ferrors"
)

const defaultEmbeddingModel = "amazon.titan-embed-text-v2:0"

// BedrockEmbedder produces embedding vectors via a Titan text-embedding
// model on Bedrock. It satisfies citation.Embedder and internal/cache's
// embedding cache key space without either package importing the other.
type BedrockEmbedder struct {
	client *bedrockruntime.Client
	model  string
}

// NewBedrockEmbedder wraps a configured Bedrock runtime client.
func NewBedrockEmbedder(client *bedrockruntime.Client, model string) *BedrockEmbedder {
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &BedrockEmbedder{client: client, model: model}
}

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *BedrockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanEmbedRequest{InputText: text})
	if err != nil {
		return nil, ferrors.New(ferrors.InternalError, "BedrockEmbedder.Embed", "failed to encode embed request", err)
	}

	out, err := e.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(e.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, ferrors.New(ferrors.BackendUnavailable, "BedrockEmbedder.Embed", "bedrock embed invoke failed", err)
	}

	var resp titanEmbedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, ferrors.New(ferrors.InternalError, "BedrockEmbedder.Embed", "failed to decode embed response", err)
	}
	return resp.Embedding, nil
}
