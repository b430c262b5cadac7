// Package pipeline implements the seven investigation steps on top of the
// collection, social, analysis and reporting packages. Each step reads what
// earlier steps stored and returns a StepOutput; persisting it is the
// scheduler's job.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/analysis"
	"github.com/xkilldash9x/specter/internal/collection"
	"github.com/xkilldash9x/specter/internal/geo"
	"github.com/xkilldash9x/specter/internal/report"
	"github.com/xkilldash9x/specter/internal/social"
	"github.com/xkilldash9x/specter/internal/store"
)

// MsgSkippedByFlags is the completion message of a step its flags disabled.
const MsgSkippedByFlags = "skipped by flags"

type Collector interface {
	Collect(ctx context.Context, inv *schemas.Investigation) (collection.Output, error)
}

type ProfileDiscoverer interface {
	Discover(ctx context.Context, inv *schemas.Investigation, env *schemas.Envelope) social.Discovery
}

type PostCollector interface {
	Collect(ctx context.Context, inv *schemas.Investigation, profiles []schemas.SocialProfile) social.PostsOutput
}

type Analyzer interface {
	Analyze(in analysis.Input) (*schemas.AIOutput, error)
}

type Enhancer interface {
	Enhance(ctx context.Context, target schemas.Target, base *schemas.AIOutput) *schemas.AIOutput
}

type Deconflicter interface {
	Run(env *schemas.Envelope) *schemas.DeconflictionReport
}

type Locator interface {
	Markers(ctx context.Context, in geo.Input) []schemas.GeoMarker
}

type ReportBuilder interface {
	Build(in report.Input) *schemas.Report
}

// Deps are the step implementations. Enhancer may be nil.
type Deps struct {
	Store      schemas.Store
	Collector  Collector
	Discoverer ProfileDiscoverer
	Posts      PostCollector
	Analyzer   Analyzer
	Enhancer   Enhancer
	Deconflict Deconflicter
	Locator    Locator
	Reports    ReportBuilder
	Logger     *zap.Logger
}

// StepFunc adapts a function to schemas.StepRunner.
type StepFunc func(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error)

func (f StepFunc) Run(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error) {
	return f(ctx, inv)
}

// Steps holds one runner per step key.
type Steps struct {
	d       Deps
	logger  *zap.Logger
	runners map[schemas.StepKey]schemas.StepRunner
}

func New(d Deps) *Steps {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Steps{d: d, logger: logger.Named("pipeline")}
	s.runners = map[schemas.StepKey]schemas.StepRunner{
		schemas.StepOSINT:          StepFunc(s.osint),
		schemas.StepSocialProfiles: StepFunc(s.socialProfiles),
		schemas.StepSocialPosts:    StepFunc(s.socialPosts),
		schemas.StepAI:             StepFunc(s.ai),
		schemas.StepDeconflict:     StepFunc(s.deconflict),
		schemas.StepGeo:            StepFunc(s.geo),
		schemas.StepReport:         StepFunc(s.report),
	}
	return s
}

// Runner returns the runner for step.
func (s *Steps) Runner(step schemas.StepKey) (schemas.StepRunner, bool) {
	r, ok := s.runners[step]
	return r, ok
}

func (s *Steps) osint(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error) {
	out, err := s.d.Collector.Collect(ctx, inv)
	if err != nil {
		return schemas.StepOutput{}, fmt.Errorf("collection: %w", err)
	}
	env := out.Envelope
	ids := env.Identifiers
	msg := fmt.Sprintf("collected %d emails, %d phones, %d usernames, %d domains",
		len(ids.Emails), len(ids.Phones), len(ids.Usernames), len(ids.Domains))
	if env.Username != nil && len(env.Username.Matches) > 0 {
		msg += fmt.Sprintf("; %d username matches", len(env.Username.Matches))
	}
	return schemas.StepOutput{Envelope: env, Notes: out.Notes, Message: msg}, nil
}

func (s *Steps) socialProfiles(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error) {
	if !inv.Flags.SocialEnabled {
		return skipped(), nil
	}
	env, err := s.envelope(ctx, inv.ID)
	if err != nil {
		return schemas.StepOutput{}, err
	}
	if env == nil {
		return schemas.StepOutput{Message: "no envelope; nothing to discover"}, nil
	}
	d := s.d.Discoverer.Discover(ctx, inv, env)
	return schemas.StepOutput{
		Profiles:   d.Profiles,
		Monitoring: d.Monitoring,
		Message:    fmt.Sprintf("accepted %d profiles, %d registered for monitoring", len(d.Profiles), len(d.Monitoring)),
	}, nil
}

func (s *Steps) socialPosts(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error) {
	if !inv.Flags.SocialEnabled || !inv.Flags.SocialPostsEnabled {
		return skipped(), nil
	}
	profiles, err := s.d.Store.LoadProfiles(ctx, inv.ID)
	if err != nil {
		return schemas.StepOutput{}, fmt.Errorf("load profiles: %w", err)
	}
	out := s.d.Posts.Collect(ctx, inv, profiles)
	flagged := 0
	for _, a := range out.Analytics {
		if a.Flagged() {
			flagged++
		}
	}
	return schemas.StepOutput{
		Posts:     out.Posts,
		Analytics: out.Analytics,
		Notes:     out.Notes,
		Message:   fmt.Sprintf("collected %d posts from %d profiles, %d flagged", len(out.Posts), len(out.Analytics), flagged),
	}, nil
}

// ai always runs the heuristic analysis; ai_enabled only gates the model.
func (s *Steps) ai(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error) {
	env, err := s.envelope(ctx, inv.ID)
	if err != nil {
		return schemas.StepOutput{}, err
	}
	if env == nil {
		return schemas.StepOutput{}, analysis.ErrNoEnvelope
	}
	profiles, err := s.d.Store.LoadProfiles(ctx, inv.ID)
	if err != nil {
		return schemas.StepOutput{}, fmt.Errorf("load profiles: %w", err)
	}
	posts, err := s.d.Store.LoadPosts(ctx, inv.ID)
	if err != nil {
		return schemas.StepOutput{}, fmt.Errorf("load posts: %w", err)
	}
	out, err := s.d.Analyzer.Analyze(analysis.Input{Investigation: inv, Envelope: env, Profiles: profiles, Posts: posts})
	if err != nil {
		return schemas.StepOutput{}, err
	}
	source := "heuristic"
	switch {
	case !inv.Flags.AIEnabled:
		out.FallbackWhy = "disabled by flags"
	case s.d.Enhancer != nil:
		out = s.d.Enhancer.Enhance(ctx, inv.Target(), out)
		if out.Enhanced {
			source = "model " + out.Model
		}
	}
	return schemas.StepOutput{
		AI:      out,
		Message: fmt.Sprintf("risk %d/100 (%s), verdict %s, %s", out.Risk.Score, out.Risk.Level, out.Risk.Verdict, source),
	}, nil
}

func (s *Steps) deconflict(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error) {
	env, err := s.envelope(ctx, inv.ID)
	if err != nil {
		return schemas.StepOutput{}, err
	}
	r := s.d.Deconflict.Run(env)
	return schemas.StepOutput{
		Deconfliction: r,
		Message:       fmt.Sprintf("%d conflicts", len(r.Conflicts())),
	}, nil
}

func (s *Steps) geo(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error) {
	if !inv.Flags.GeoEnabled {
		return skipped(), nil
	}
	env, err := s.envelope(ctx, inv.ID)
	if err != nil {
		return schemas.StepOutput{}, err
	}
	profiles, err := s.d.Store.LoadProfiles(ctx, inv.ID)
	if err != nil {
		return schemas.StepOutput{}, fmt.Errorf("load profiles: %w", err)
	}
	posts, err := s.d.Store.LoadPosts(ctx, inv.ID)
	if err != nil {
		return schemas.StepOutput{}, fmt.Errorf("load posts: %w", err)
	}
	markers := s.d.Locator.Markers(ctx, geo.Input{Envelope: env, Profiles: profiles, Posts: posts})
	if markers == nil {
		markers = []schemas.GeoMarker{}
	}
	return schemas.StepOutput{GeoMarkers: markers, Message: fmt.Sprintf("placed %d markers", len(markers))}, nil
}

func (s *Steps) report(ctx context.Context, inv *schemas.Investigation) (schemas.StepOutput, error) {
	in := report.Input{Investigation: inv}
	var err error
	if in.Envelope, err = s.envelope(ctx, inv.ID); err != nil {
		return schemas.StepOutput{}, err
	}
	if in.AI, err = optional(s.d.Store.LoadAIOutput(ctx, inv.ID)); err != nil {
		return schemas.StepOutput{}, fmt.Errorf("load ai output: %w", err)
	}
	if in.Deconfliction, err = optional(s.d.Store.LoadDeconfliction(ctx, inv.ID)); err != nil {
		return schemas.StepOutput{}, fmt.Errorf("load deconfliction: %w", err)
	}
	if in.Profiles, err = s.d.Store.LoadProfiles(ctx, inv.ID); err != nil {
		return schemas.StepOutput{}, fmt.Errorf("load profiles: %w", err)
	}
	if in.Posts, err = s.d.Store.LoadPosts(ctx, inv.ID); err != nil {
		return schemas.StepOutput{}, fmt.Errorf("load posts: %w", err)
	}
	if in.Markers, err = s.d.Store.LoadGeoMarkers(ctx, inv.ID); err != nil {
		return schemas.StepOutput{}, fmt.Errorf("load geo markers: %w", err)
	}
	r := s.d.Reports.Build(in)
	return schemas.StepOutput{Report: r, Message: fmt.Sprintf("report with %d sections", len(r.Sections))}, nil
}

// envelope loads the osint envelope; a missing one is nil, not an error.
func (s *Steps) envelope(ctx context.Context, id string) (*schemas.Envelope, error) {
	env, err := optional(s.d.Store.LoadEnvelope(ctx, id))
	if err != nil {
		return nil, fmt.Errorf("load envelope: %w", err)
	}
	return env, nil
}

func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func skipped() schemas.StepOutput {
	return schemas.StepOutput{Message: MsgSkippedByFlags}
}
