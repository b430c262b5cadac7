package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient implements schemas.LLMClient on the chat completions API or
// any server that speaks it.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	cfg     config.LLMConfig
	logger  *zap.Logger
	backoff func() backoff.BackOff
}

func NewOpenAIClient(cfg config.LLMConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	occ := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		occ.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(occ),
		model:   model,
		cfg:     cfg,
		logger:  logger.Named("llm_client.openai"),
		backoff: defaultBackOff,
	}, nil
}

func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	creq := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: pick(float32(req.Options.Temperature), c.cfg.Temperature),
		TopP:        pick(float32(req.Options.TopP), c.cfg.TopP),
		MaxTokens:   pick(req.Options.MaxTokens, c.cfg.MaxTokens),
	}
	if req.SystemPrompt != "" {
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt})
	if req.Options.ForceJSONFormat {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var text string
	op := func() error {
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, creq)
		if err != nil {
			return c.handleAPIError(err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return backoff.Permanent(ErrEmptyResponse)
		}
		c.logger.Info("LLM generation complete",
			zap.Duration("duration", time.Since(start)),
			zap.String("model", c.model),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)
		text = resp.Choices[0].Message.Content
		return nil
	}
	if err := retry(ctx, c.backoff, op); err != nil {
		return "", err
	}
	return text, nil
}

func (c *OpenAIClient) handleAPIError(err error) error {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		c.logger.Error("OpenAI API returned error status", zap.Int("status", apiErr.HTTPStatusCode), zap.String("message", apiErr.Message))
		return classify(apiErr.HTTPStatusCode, fmt.Errorf("openai API error: status %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
	case errors.As(err, &reqErr):
		c.logger.Error("OpenAI request failed", zap.Int("status", reqErr.HTTPStatusCode), zap.Error(err))
		return classify(reqErr.HTTPStatusCode, fmt.Errorf("openai request error: %w", err))
	}
	c.logger.Warn("Network error during LLM request, retrying", zap.Error(err))
	return fmt.Errorf("openai request failed: %w", err)
}

func (c *OpenAIClient) Close() error { return nil }
