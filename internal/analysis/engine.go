// Package analysis derives the identity graph, findings, risk assessment and
// heuristic narrative from everything the collection steps stored.
package analysis

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
)

// ErrNoEnvelope is returned when analysis runs before collection stored an
// envelope.
var ErrNoEnvelope = errors.New("no osint envelope for investigation")

// Engine runs the analyzers in a fixed order.
type Engine struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger.Named("analysis"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Analyze builds the heuristic AI output. The envelope is required; profiles
// and posts are optional.
func (e *Engine) Analyze(in Input) (*schemas.AIOutput, error) {
	if in.Investigation == nil {
		return nil, errors.New("analysis: nil investigation")
	}
	logger := e.logger.With(zap.String("investigation_id", in.Investigation.ID))
	if in.Envelope == nil {
		return nil, fmt.Errorf("analysis: %w", ErrNoEnvelope)
	}

	var f schemas.Findings
	for _, a := range analyzers {
		e.runAnalyzer(logger, a, in, &f)
	}
	graph := BuildGraph(in.Envelope, in.Profiles)
	risk := Assess(f, in.Envelope)
	out := &schemas.AIOutput{
		Graph:       graph,
		Findings:    f,
		Risk:        risk,
		Narrative:   Narrative(in.Investigation.Target(), graph, f, risk),
		GeneratedAt: e.now(),
	}
	logger.Info("Analysis finished",
		zap.Int("score", risk.Score),
		zap.String("verdict", string(risk.Verdict)),
		zap.Int("data_points", f.DataPoints))
	return out, nil
}

// runAnalyzer isolates one analyzer so a bad document only costs its part of
// the findings.
func (e *Engine) runAnalyzer(logger *zap.Logger, a analyzer, in Input, f *schemas.Findings) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Analyzer panicked", zap.String("analyzer", a.name), zap.Any("panic", r))
		}
	}()
	a.run(in, f)
}
