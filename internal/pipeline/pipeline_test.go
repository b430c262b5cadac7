package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/analysis"
	"github.com/xkilldash9x/specter/internal/collection"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/deconflict"
	"github.com/xkilldash9x/specter/internal/geo"
	"github.com/xkilldash9x/specter/internal/providers"
	"github.com/xkilldash9x/specter/internal/report"
	"github.com/xkilldash9x/specter/internal/social"
	"github.com/xkilldash9x/specter/internal/store"
)

type fakeCollector struct {
	env *schemas.Envelope
	err error
}

func (f fakeCollector) Collect(context.Context, *schemas.Investigation) (collection.Output, error) {
	if f.err != nil {
		return collection.Output{}, f.err
	}
	return collection.Output{Envelope: f.env, Notes: []string{"images failed (continuing): timeout"}}, nil
}

type fakeDiscoverer struct{ calls int }

func (f *fakeDiscoverer) Discover(_ context.Context, inv *schemas.Investigation, _ *schemas.Envelope) social.Discovery {
	f.calls++
	return social.Discovery{
		Profiles:   []schemas.SocialProfile{{Platform: "github", Username: "alice", Confidence: 0.9, Metadata: map[string]string{"location": "Berlin"}}},
		Monitoring: []schemas.MonitoringRegistration{{InvestigationID: inv.ID, Platform: "github", Username: "alice"}},
	}
}

type fakePosts struct{ seen []schemas.SocialProfile }

func (f *fakePosts) Collect(_ context.Context, _ *schemas.Investigation, profiles []schemas.SocialProfile) social.PostsOutput {
	f.seen = profiles
	posts := []schemas.SocialPost{{Platform: "github", Username: "alice", PostID: "1", PostedAt: time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)}}
	return social.PostsOutput{Posts: posts, Analytics: []schemas.PostAnalytics{social.Analyze("github", "alice", posts)}}
}

type fakeEnhancer struct{ calls int }

func (f *fakeEnhancer) Enhance(_ context.Context, _ schemas.Target, base *schemas.AIOutput) *schemas.AIOutput {
	f.calls++
	out := *base
	out.Enhanced, out.Model, out.Narrative = true, "test-model", "enhanced"
	return &out
}

type fakeGeocoder struct{}

func (fakeGeocoder) Geocode(context.Context, string) schemas.Result[providers.Coordinates] {
	return schemas.Absent[providers.Coordinates]("offline")
}

func newSteps(t *testing.T, st *store.Memory, c Collector) (*Steps, *fakeDiscoverer, *fakePosts, *fakeEnhancer) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	disc, posts, enh := &fakeDiscoverer{}, &fakePosts{}, &fakeEnhancer{}
	return New(Deps{
		Store:      st,
		Collector:  c,
		Discoverer: disc,
		Posts:      posts,
		Analyzer:   analysis.NewEngine(logger),
		Enhancer:   enh,
		Deconflict: deconflict.NewEngine(logger),
		Locator:    geo.NewLocator(fakeGeocoder{}, config.GeoConfig{}, logger),
		Reports:    report.NewBuilder(logger),
		Logger:     logger,
	}), disc, posts, enh
}

func newInvestigation(t *testing.T, st *store.Memory, flags schemas.ProcessingFlags) *schemas.Investigation {
	t.Helper()
	inv := &schemas.Investigation{ID: "inv-1", TargetType: schemas.TargetEmail, TargetValue: "alice@example.com", Flags: flags}
	require.NoError(t, st.CreateInvestigation(context.Background(), inv))
	ok, err := st.ClaimLock(context.Background(), inv.ID, "tok", time.Now(), time.Minute, 3*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	return inv
}

// runAndPersist runs step and stores its output the way the scheduler does.
func runAndPersist(t *testing.T, s *Steps, st *store.Memory, inv *schemas.Investigation, step schemas.StepKey) schemas.StepOutput {
	t.Helper()
	r, ok := s.Runner(step)
	require.True(t, ok)
	out, err := r.Run(context.Background(), inv)
	require.NoError(t, err, step)
	out.Step = step
	require.NoError(t, st.PersistStep(context.Background(), inv.ID, "tok", out,
		schemas.NewEvent(inv.ID, step, schemas.EventCompleted, step.Percent(), out.Message)))
	return out
}

func testEnvelope() *schemas.Envelope {
	return &schemas.Envelope{
		Target:      schemas.Target{Type: schemas.TargetEmail, Value: "alice@example.com"},
		Identifiers: schemas.IdentifierSnapshot{Emails: []string{"alice@example.com"}, Usernames: []string{"alice"}},
		Exposure: &schemas.ExposureSection{Breaches: []schemas.Breach{
			{Name: "Adobe", Account: "alice@example.com"},
			{Name: "LinkedIn", Account: "alice@example.com"},
			{Name: "Dropbox", Account: "alice@example.com"},
		}},
	}
}

func TestFullRun(t *testing.T) {
	st := store.NewMemory()
	s, disc, posts, enh := newSteps(t, st, fakeCollector{env: testEnvelope()})
	inv := newInvestigation(t, st, schemas.DefaultProcessingFlags())

	for _, step := range schemas.StepOrder {
		runAndPersist(t, s, st, inv, step)
	}

	assert.Equal(t, 1, disc.calls)
	require.Len(t, posts.seen, 1, "post collection reads the stored profiles")
	assert.Equal(t, 1, enh.calls)

	ai, err := st.LoadAIOutput(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, ai.Enhanced)
	assert.GreaterOrEqual(t, ai.Risk.Score, 15)

	r, err := st.LoadReport(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "enhanced", r.Summary)
	assert.NotEmpty(t, r.Sections)

	evs, _ := st.EventsAfter(context.Background(), inv.ID, 0, 0)
	assert.Equal(t, "images failed (continuing): timeout", evs[0].Message)
	assert.Equal(t, schemas.EventInfo, evs[0].Status)
}

func TestStepsSkippedByFlags(t *testing.T) {
	st := store.NewMemory()
	s, disc, _, enh := newSteps(t, st, fakeCollector{env: testEnvelope()})
	flags := schemas.DefaultProcessingFlags()
	flags.SocialEnabled = false
	flags.GeoEnabled = false
	flags.AIEnabled = false
	inv := newInvestigation(t, st, flags)

	runAndPersist(t, s, st, inv, schemas.StepOSINT)
	for _, step := range []schemas.StepKey{schemas.StepSocialProfiles, schemas.StepSocialPosts, schemas.StepGeo} {
		out := runAndPersist(t, s, st, inv, step)
		assert.Equal(t, MsgSkippedByFlags, out.Message, step)
	}
	assert.Zero(t, disc.calls)

	out := runAndPersist(t, s, st, inv, schemas.StepAI)
	require.NotNil(t, out.AI, "analysis runs without the model")
	assert.False(t, out.AI.Enhanced)
	assert.Equal(t, "disabled by flags", out.AI.FallbackWhy)
	assert.Zero(t, enh.calls)
}

func TestAIFailsWithoutEnvelope(t *testing.T) {
	st := store.NewMemory()
	s, _, _, _ := newSteps(t, st, fakeCollector{env: testEnvelope()})
	inv := newInvestigation(t, st, schemas.DefaultProcessingFlags())

	r, _ := s.Runner(schemas.StepAI)
	_, err := r.Run(context.Background(), inv)
	assert.ErrorIs(t, err, analysis.ErrNoEnvelope)
}

func TestOSINTError(t *testing.T) {
	st := store.NewMemory()
	s, _, _, _ := newSteps(t, st, fakeCollector{err: collection.ErrInvalidTarget})
	inv := newInvestigation(t, st, schemas.DefaultProcessingFlags())

	r, _ := s.Runner(schemas.StepOSINT)
	_, err := r.Run(context.Background(), inv)
	assert.True(t, errors.Is(err, collection.ErrInvalidTarget))
}

func TestGeoStoresEmptyMarkers(t *testing.T) {
	st := store.NewMemory()
	s, _, _, _ := newSteps(t, st, fakeCollector{env: testEnvelope()})
	inv := newInvestigation(t, st, schemas.DefaultProcessingFlags())

	out := runAndPersist(t, s, st, inv, schemas.StepGeo)
	assert.NotNil(t, out.GeoMarkers)
	assert.Equal(t, "placed 0 markers", out.Message)
}
