// Package enhancer optionally rewrites the heuristic narrative and verdict
// with a language model. It never fails the ai step: any problem falls back
// to the heuristic output.
package enhancer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/llmutil"
	"github.com/xkilldash9x/specter/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultTimeout = 30 * time.Second

// Fallback reasons, also used as the metric label.
const (
	ReasonDisabled   = "disabled"
	ReasonTimeout    = "timeout"
	ReasonError      = "error"
	ReasonUnparsable = "unparsable"
)

const systemPrompt = `You are an OSINT analyst reviewing automated collection results.
Write a concise, factual narrative about the subject using only the data provided.
Do not speculate beyond the evidence. Respond with a single JSON object:
{"narrative": string, "verdict": "Safe"|"Suspicious"|"Malicious"|"Unknown", "risk_level": "low"|"medium"|"high"}`

// Enhancer wraps an LLM client with a hard timeout and heuristic fallback.
type Enhancer struct {
	client  schemas.LLMClient
	model   string
	timeout time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// New builds an Enhancer. A nil client makes every call fall back.
func New(client schemas.LLMClient, cfg config.LLMConfig, metrics *observability.Metrics, logger *zap.Logger) *Enhancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Enhancer{
		client:  client,
		model:   cfg.Model,
		timeout: timeout,
		metrics: metrics,
		logger:  logger.Named("enhancer"),
	}
}

type modelAnswer struct {
	Narrative string `json:"narrative"`
	Verdict   string `json:"verdict"`
	RiskLevel string `json:"risk_level"`
}

// Enhance returns a copy of base, rewritten by the model when it answers in
// time with a usable document. base itself is never modified.
func (e *Enhancer) Enhance(ctx context.Context, target schemas.Target, base *schemas.AIOutput) *schemas.AIOutput {
	out := *base
	if e.client == nil {
		return e.fallback(&out, ReasonDisabled, nil)
	}

	prompt, err := buildPrompt(target, base)
	if err != nil {
		return e.fallback(&out, ReasonError, err)
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return e.fallback(&out, ReasonTimeout, err)
		}
		return e.fallback(&out, ReasonError, err)
	}

	answer, err := llmutil.ParseJSONResponse[modelAnswer](raw)
	if err != nil {
		return e.fallback(&out, ReasonUnparsable, err)
	}
	narrative := strings.TrimSpace(answer.Narrative)
	if narrative == "" {
		return e.fallback(&out, ReasonUnparsable, errors.New("model returned no narrative"))
	}

	out.Narrative = narrative
	out.Enhanced = true
	out.Model = e.model
	out.FallbackWhy = ""
	// An assessment without data points stays Unknown whatever the model says.
	if base.Risk.Verdict != schemas.VerdictUnknown {
		if v, ok := parseVerdict(answer.Verdict); ok && v != schemas.VerdictUnknown {
			out.Risk.Verdict = v
		}
		if l, ok := parseLevel(answer.RiskLevel); ok {
			out.Risk.Level = l
		}
	}
	e.logger.Info("Narrative enhanced",
		zap.String("model", e.model),
		zap.String("verdict", string(out.Risk.Verdict)),
		zap.String("heuristic_verdict", string(base.Risk.Verdict)),
	)
	return &out
}

func (e *Enhancer) fallback(out *schemas.AIOutput, reason string, err error) *schemas.AIOutput {
	out.Enhanced = false
	out.FallbackWhy = reason
	if err != nil {
		out.FallbackWhy = reason + ": " + err.Error()
		e.logger.Warn("Falling back to heuristic narrative", zap.String("reason", reason), zap.Error(err))
	}
	e.metrics.EnhancerFallback(reason)
	return out
}

// brief is the document the model is asked to summarize. The graph links are
// left out; they add tokens without adding facts.
type brief struct {
	Target    schemas.Target         `json:"target"`
	Findings  schemas.Findings       `json:"findings"`
	Handles   []schemas.Handle       `json:"handles,omitempty"`
	Risk      schemas.RiskAssessment `json:"risk"`
	Heuristic string                 `json:"heuristic_narrative"`
}

func buildPrompt(target schemas.Target, base *schemas.AIOutput) (string, error) {
	doc, err := json.MarshalIndent(brief{
		Target:    target,
		Findings:  base.Findings,
		Handles:   base.Graph.Handles,
		Risk:      base.Risk,
		Heuristic: base.Narrative,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode analysis brief: %w", err)
	}
	return "Investigation results:\n" + string(doc), nil
}

func parseVerdict(s string) (schemas.Verdict, bool) {
	for _, v := range []schemas.Verdict{schemas.VerdictSafe, schemas.VerdictSuspicious, schemas.VerdictMalicious, schemas.VerdictUnknown} {
		if strings.EqualFold(strings.TrimSpace(s), string(v)) {
			return v, true
		}
	}
	return "", false
}

func parseLevel(s string) (schemas.RiskLevel, bool) {
	switch l := schemas.RiskLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case schemas.RiskLow, schemas.RiskMedium, schemas.RiskHigh:
		return l, true
	}
	return "", false
}
