package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"golang-trend-publisher/internal/executor/config"
	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/pkg/errs"
	"golang-trend-publisher/pkg/logger"
	"golang-trend-publisher/pkg/ratelimit"
)

// geminiGenerationRepository is a GenerationProvider backed by a Gemini text model.
type geminiGenerationRepository struct {
	cfg     config.Generator
	logger  *logger.Logger
	models  GenAIModels
	limiter *ratelimit.KeyedLimiter
}

// NewGeminiGenerationRepository creates a new Gemini generation provider.
func NewGeminiGenerationRepository(cfg config.Generator, log *logger.Logger, models GenAIModels, limiter *ratelimit.KeyedLimiter) GenerationProvider {
	return &geminiGenerationRepository{
		cfg:     cfg,
		logger:  log,
		models:  models,
		limiter: limiter,
	}
}

func (r *geminiGenerationRepository) Name() string {
	return geminiProviderName
}

func (r *geminiGenerationRepository) Validate() error {
	return validateGemini(r.models, r.cfg.APIKey, r.cfg.Model, "generator")
}

// Generate asks the model for a JSON article draft about topic.
func (r *geminiGenerationRepository) Generate(ctx context.Context, topic dto.TopicContext) (*dto.ArticleDraft, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx, "gemini:generate"); err != nil {
			return nil, &errs.ProviderError{Provider: r.Name(), Op: "generate", Err: fmt.Errorf("failed to wait for request limit: %w", err)}
		}
	}

	prompt := BuildArticlePrompt(topic)
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := r.models.GenerateContent(ctx, r.cfg.Model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		r.logger.Error("Failed to generate article", logger.ErrorField(err), logger.StringField("topic_key", topic.TopicKey))
		return nil, &errs.ProviderError{Provider: r.Name(), Op: "generate", Err: err}
	}
	if resp == nil {
		return nil, &errs.MalformedOutputError{Provider: r.Name(), Reason: "empty response"}
	}

	return parseArticleDraft(r.Name(), resp.Text())
}

func parseArticleDraft(provider, raw string) (*dto.ArticleDraft, error) {
	rawJSON := strings.TrimSpace(raw)
	rawJSON = strings.TrimPrefix(rawJSON, "```json")
	rawJSON = strings.TrimPrefix(rawJSON, "```")
	rawJSON = strings.TrimSuffix(rawJSON, "```")
	rawJSON = strings.TrimSpace(rawJSON)
	if rawJSON == "" {
		return nil, &errs.MalformedOutputError{Provider: provider, Reason: "no content found in response"}
	}

	var draft dto.ArticleDraft
	if err := json.Unmarshal([]byte(rawJSON), &draft); err != nil {
		return nil, &errs.MalformedOutputError{Provider: provider, Reason: "invalid json", Err: err}
	}

	draft.Title = strings.TrimSpace(draft.Title)
	draft.Body = strings.TrimSpace(draft.Body)
	draft.Summary = strings.TrimSpace(draft.Summary)
	switch {
	case draft.Title == "":
		return nil, &errs.MalformedOutputError{Provider: provider, Reason: "missing title"}
	case draft.Body == "":
		return nil, &errs.MalformedOutputError{Provider: provider, Reason: "missing body"}
	case draft.Summary == "":
		return nil, &errs.MalformedOutputError{Provider: provider, Reason: "missing summary"}
	}
	return &draft, nil
}
