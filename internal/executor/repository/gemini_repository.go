package repository

import (
	"context"

	"google.golang.org/genai"

	"golang-trend-publisher/pkg/errs"
)

const geminiProviderName = "gemini"

// GenAIModels is the part of *genai.Models the Gemini providers call.
type GenAIModels interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// NewGenAIModels builds a Gemini API client for apiKey. An empty key yields nil so providers
// report a configuration error at preflight instead of failing at startup.
func NewGenAIModels(ctx context.Context, apiKey string) (GenAIModels, error) {
	if apiKey == "" {
		return nil, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return client.Models, nil
}

func validateGemini(models GenAIModels, apiKey, model, keyName string) error {
	if apiKey == "" || models == nil {
		return &errs.ConfigurationError{Key: keyName + ".api_key", Reason: "credential is not set"}
	}
	if model == "" {
		return &errs.ConfigurationError{Key: keyName + ".model", Reason: "model is not set"}
	}
	return nil
}
