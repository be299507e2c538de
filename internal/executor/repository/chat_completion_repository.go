package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/ratelimit"
)

// Base URLs of the OpenAI-compatible chat completion APIs.
var chatCompletionBaseURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"groq":       "https://api.groq.com/openai/v1",
}

// IsChatCompletionProvider reports whether name is served by the chat completion repository.
func IsChatCompletionProvider(name string) bool {
	_, ok := chatCompletionBaseURLs[name]
	return ok
}

// chatCompletionRepository is a GenerationProvider speaking the OpenAI chat completion protocol.
type chatCompletionRepository struct {
	provider string
	baseURL  string
	client   *http.Client
	cfg      config.Generator
	logger   *logger.Logger
	limiter  *ratelimit.KeyedLimiter
}

// NewChatCompletionRepository creates a generation provider for OpenAI, OpenRouter or Groq.
// cfg.BaseURL overrides the provider's default endpoint.
func NewChatCompletionRepository(cfg config.Generator, log *logger.Logger, client *http.Client, limiter *ratelimit.KeyedLimiter) GenerationProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = chatCompletionBaseURLs[cfg.Provider]
	}
	return &chatCompletionRepository{
		provider: cfg.Provider,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   client,
		cfg:      cfg,
		logger:   log,
		limiter:  limiter,
	}
}

func (r *chatCompletionRepository) Name() string {
	return r.provider
}

func (r *chatCompletionRepository) Validate() error {
	if r.cfg.APIKey == "" {
		return &errs.ConfigurationError{Key: "generator.api_key", Reason: "credential is not set"}
	}
	if r.cfg.Model == "" {
		return &errs.ConfigurationError{Key: "generator.model", Reason: "model is not set"}
	}
	if r.baseURL == "" {
		return &errs.ConfigurationError{Key: "generator.base_url", Reason: "unknown provider " + r.provider}
	}
	return nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for a JSON article draft about topic.
func (r *chatCompletionRepository) Generate(ctx context.Context, topic dto.TopicContext) (*dto.ArticleDraft, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, r.provider+":generate"); err != nil {
			return nil, &errs.ProviderError{Provider: r.Name(), Op: "generate", Err: fmt.Errorf("failed to wait for request limit: %w", err)}
		}
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:          r.cfg.Model,
		Messages:       []chatMessage{{Role: "user", Content: BuildArticlePrompt(topic)}},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return nil, &errs.ProviderError{Provider: r.Name(), Op: "generate", Err: fmt.Errorf("failed to marshal request body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &errs.ProviderError{Provider: r.Name(), Op: "generate", Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("Failed to send generation request", logger.ErrorField(err), logger.StringField("provider", r.provider), logger.StringField("topic_key", topic.TopicKey))
		return nil, &errs.ProviderError{Provider: r.Name(), Op: "generate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		r.logger.Error("Received non-OK response from provider",
			logger.StringField("provider", r.provider),
			logger.IntField("status_code", resp.StatusCode),
			logger.StringField("body", string(snippet)),
		)
		return nil, &errs.ProviderError{Provider: r.Name(), Op: "generate", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, &errs.MalformedOutputError{Provider: r.Name(), Reason: "undecodable response", Err: err}
	}
	if len(completion.Choices) == 0 {
		return nil, &errs.MalformedOutputError{Provider: r.Name(), Reason: "empty choices"}
	}

	return parseArticleDraft(r.Name(), completion.Choices[0].Message.Content)
}
