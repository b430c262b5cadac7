package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiClient implements schemas.LLMClient on the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	cfg     config.LLMConfig
	logger  *zap.Logger
	backoff func() backoff.BackOff
}

// NewGeminiClient initializes the client. Endpoint, when set, replaces the
// public API base URL.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.Endpoint, "/") + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClient{
		client:  client,
		model:   model,
		cfg:     cfg,
		logger:  logger.Named("llm_client.gemini"),
		backoff: defaultBackOff,
	}, nil
}

// Generate sends the prompts and returns the first candidate's text,
// retrying throttling and server errors.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	gcfg := c.generationConfig(req)
	var text string
	op := func() error {
		start := time.Now()
		resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.UserPrompt), gcfg)
		if err != nil {
			return c.handleAPIError(err)
		}
		if len(resp.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}
		if reason := resp.Candidates[0].FinishReason; reason == genai.FinishReasonSafety || reason == genai.FinishReasonBlocklist {
			return backoff.Permanent(fmt.Errorf("gemini API blocked the request (reason: %s)", reason))
		}
		out := resp.Text()
		if strings.TrimSpace(out) == "" {
			return backoff.Permanent(ErrEmptyResponse)
		}
		fields := []zap.Field{zap.Duration("duration", time.Since(start)), zap.String("model", c.model)}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", u.PromptTokenCount),
				zap.Int32("completion_tokens", u.CandidatesTokenCount),
				zap.Int32("total_tokens", u.TotalTokenCount),
			)
		}
		c.logger.Info("LLM generation complete", fields...)
		text = out
		return nil
	}
	if err := retry(ctx, c.backoff, op); err != nil {
		return "", err
	}
	return text, nil
}

func (c *GeminiClient) generationConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	gcfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(pick(float32(req.Options.Temperature), c.cfg.Temperature)),
	}
	if p := pick(float32(req.Options.TopP), c.cfg.TopP); p > 0 {
		gcfg.TopP = genai.Ptr(p)
	}
	if k := pick(req.Options.TopK, c.cfg.TopK); k > 0 {
		gcfg.TopK = genai.Ptr(float32(k))
	}
	if m := pick(req.Options.MaxTokens, c.cfg.MaxTokens); m > 0 {
		gcfg.MaxOutputTokens = int32(m)
	}
	if req.Options.ForceJSONFormat {
		gcfg.ResponseMIMEType = "application/json"
	}
	if req.SystemPrompt != "" {
		gcfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return gcfg
}

func (c *GeminiClient) handleAPIError(err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr):
		apiErr = *apiErrPtr
	default:
		// Transport failures are retried.
		c.logger.Warn("Network error during LLM request, retrying", zap.Error(err))
		return fmt.Errorf("gemini request failed: %w", err)
	}
	c.logger.Error("Gemini API returned error status", zap.Int("status", apiErr.Code), zap.String("message", apiErr.Message))
	return classify(apiErr.Code, fmt.Errorf("gemini API error: status %d: %s", apiErr.Code, apiErr.Message))
}

// Close is a no-op; the SDK holds no long-lived resources.
func (c *GeminiClient) Close() error { return nil }

// pick returns v unless it is the zero value, then fallback.
func pick[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}
