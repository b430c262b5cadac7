package collection

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/network"
	"github.com/xkilldash9x/specter/internal/observability"
	"github.com/xkilldash9x/specter/internal/providers"
)

type stubResolver struct {
	mx map[string][]*net.MX
}

var errNoHost = errors.New("no such host")

func (s stubResolver) LookupHost(context.Context, string) ([]string, error) { return nil, errNoHost }
func (s stubResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if v, ok := s.mx[name]; ok {
		return v, nil
	}
	return nil, errNoHost
}
func (s stubResolver) LookupNS(context.Context, string) ([]*net.NS, error) { return nil, errNoHost }
func (s stubResolver) LookupTXT(context.Context, string) ([]string, error) { return nil, errNoHost }
func (s stubResolver) LookupAddr(context.Context, string) ([]string, error) { return nil, errNoHost }

// stubPlatform serves fixed profiles and counts lookups.
type stubPlatform struct {
	name     string
	profiles map[string]schemas.PlatformProfile
	calls    atomic.Int32
}

func (p *stubPlatform) Name() string { return p.name }

func (p *stubPlatform) Lookup(_ context.Context, username string) schemas.Result[schemas.PlatformProfile] {
	p.calls.Add(1)
	prof, ok := p.profiles[username]
	if !ok {
		return schemas.Absent[schemas.PlatformProfile]("not found")
	}
	prof.Platform = p.name
	prof.Username = username
	return schemas.Found(prof)
}

// testCollector builds a collector whose every HTTP provider points at a
// server that knows nothing, so only the stub platforms produce data.
func testCollector(t *testing.T, platforms ...providers.Platform) *Collector {
	t.Helper()
	return testCollectorWith(t, http.NotFoundHandler(), platforms...)
}

// testCollectorWith points every HTTP provider at handler. Record endpoints
// get their own paths so requests to them can be told apart.
func testCollectorWith(t *testing.T, handler http.Handler, platforms ...providers.Platform) *Collector {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := zaptest.NewLogger(t)
	u := server.URL
	set := providers.NewSet(providers.Deps{
		Fetcher: network.NewFetcher(server.Client(), config.NetworkConfig{Timeout: time.Second}, logger),
		Logger:  logger,
		Metrics: observability.NewMetrics(prometheus.NewRegistry()),
		Providers: config.ProvidersConfig{
			HIBPURL: u, HIBPAPIKey: "k", RDAPURL: u, CrtShURL: u, SearchURL: u,
			GravatarURL: u, PasteURL: u, IPInfoURL: u, InternetDBURL: u,
			BlockstreamURL: u, PlateURL: u,
			PropertyURL: u + "/records/property", CourtURL: u + "/records/court", CriminalURL: u + "/records/criminal",
		},
		Geo:      config.GeoConfig{NominatimURL: u},
		Resolver: stubResolver{mx: map[string][]*net.MX{"example.com": {{Host: "mx.example.com."}}}},
	})
	set.Sitemap = nil
	set.Platforms = platforms
	return New(set, config.CollectionConfig{
		Workers:         2,
		SubStepDeadline: 5 * time.Second,
	}, logger)
}

func investigation(tt schemas.TargetType, value string) *schemas.Investigation {
	flags := schemas.DefaultProcessingFlags()
	return &schemas.Investigation{ID: "inv-1", TargetType: tt, TargetValue: value, Flags: flags}
}

func TestDerivedUsernames(t *testing.T) {
	assert.Equal(t, []string{"alice"}, DerivedUsernames("Alice"))
	assert.Equal(t,
		[]string{"john.doe", "johndoe", "john_doe", "john-doe"},
		DerivedUsernames("john.doe"))
	assert.Nil(t, DerivedUsernames(""))
}

func TestNamePermutations(t *testing.T) {
	got := NamePermutations("John Q Doe")
	assert.Equal(t, []string{
		"johndoe", "john.doe", "john_doe", "john-doe",
		"jdoe", "johnd", "doejohn", "doe.john",
	}, got)
	assert.Equal(t, []string{"madonna"}, NamePermutations("Madonna"))
}

func TestCollectEmail(t *testing.T) {
	gh := &stubPlatform{name: "github", profiles: map[string]schemas.PlatformProfile{
		"alice": {
			DisplayName: "Alice Smith",
			ProfileURL:  "https://github.com/alice",
			Text:        "Alice Smith reach me at alice@example.com",
		},
	}}
	c := testCollector(t, gh)

	out, err := c.Collect(context.Background(), investigation(schemas.TargetEmail, "Alice@Example.com"))
	require.NoError(t, err)
	env := out.Envelope

	require.NotNil(t, env.Email)
	assert.Equal(t, "alice@example.com", env.Email.Address)
	assert.Equal(t, []string{"alice"}, env.Email.DerivedUsernames)
	assert.True(t, env.Email.Check.Valid())
	assert.False(t, env.HasFlag(schemas.FlagInvalidEmail))

	require.NotNil(t, env.Username)
	require.Len(t, env.Username.Matches, 1)
	m := env.Username.Matches[0]
	assert.Equal(t, "github", m.Platform)
	assert.Equal(t, "alice", m.Candidate)
	assert.Contains(t, m.Evidence, schemas.EvidenceEmail)
	assert.GreaterOrEqual(t, m.Confidence, 0.8)

	// The second pass found the same corroborated profile and replaced the first.
	assert.Equal(t, 2, env.Username.Pass)
	assert.True(t, env.HasFlag(schemas.FlagSecondPassUsed))

	assert.Contains(t, env.Identifiers.Emails, "alice@example.com")
	assert.Contains(t, env.Identifiers.Usernames, "alice")
	assert.Contains(t, env.Assertions, schemas.Assertion{
		Field: schemas.FieldName, Value: "Alice Smith", Source: schemas.SourceSocial,
		Confidence: m.Confidence, Detail: "github/alice",
	})
}

func TestCollectKeepsFirstPassWithoutEvidence(t *testing.T) {
	gh := &stubPlatform{name: "github", profiles: map[string]schemas.PlatformProfile{
		"alice": {ProfileURL: "https://github.com/alice", Text: "just a gopher"},
	}}
	c := testCollector(t, gh)

	out, err := c.Collect(context.Background(), investigation(schemas.TargetUsername, "alice"))
	require.NoError(t, err)
	env := out.Envelope

	require.Len(t, env.Username.Matches, 1)
	assert.Equal(t, 1, env.Username.Pass)
	assert.False(t, env.HasFlag(schemas.FlagSecondPassUsed))
	assert.Equal(t, []string{"alice"}, env.Username.Candidates)
	assert.InDelta(t, 0.6, env.Username.Matches[0].Confidence, 1e-9)
}

func TestCollectDropsWeakMatchesWithoutEvidence(t *testing.T) {
	gh := &stubPlatform{name: "github", profiles: map[string]schemas.PlatformProfile{
		"johndoe": {DisplayName: "John Doe", Text: "John Doe"},
	}}
	c := testCollector(t, gh)

	out, err := c.Collect(context.Background(), investigation(schemas.TargetName, "John  Doe"))
	require.NoError(t, err)
	env := out.Envelope

	assert.Empty(t, env.Username.Matches)
	assert.Contains(t, env.Username.Candidates, "johndoe")
	assert.Positive(t, gh.calls.Load())
	require.NotEmpty(t, env.Assertions)
	assert.Equal(t, schemas.Assertion{
		Field: schemas.FieldName, Value: "John Doe", Source: schemas.SourceUserInput,
		Confidence: 1, Detail: "investigation target",
	}, env.Assertions[0])
}

func TestCollectInvalidTargets(t *testing.T) {
	c := testCollector(t)
	cases := []struct {
		name  string
		inv   *schemas.Investigation
		valid bool
	}{
		{"empty", investigation(schemas.TargetEmail, "  "), false},
		{"bad ip", investigation(schemas.TargetIP, "not-an-ip"), false},
		{"bad domain", investigation(schemas.TargetDomain, "??"), false},
		{"unknown type", investigation(schemas.TargetType("fax"), "123"), false},
		{"bad email is not fatal", investigation(schemas.TargetEmail, "nope"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := c.Collect(context.Background(), tc.inv)
			if tc.valid {
				require.NoError(t, err)
				assert.True(t, out.Envelope.HasFlag(schemas.FlagInvalidEmail))
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTarget)
		})
	}
}

func TestCollectPlateWithoutRegistryHit(t *testing.T) {
	c := testCollector(t)
	out, err := c.Collect(context.Background(), investigation(schemas.TargetPlate, "CA:7ABC123"))
	require.NoError(t, err)
	require.NotNil(t, out.Envelope.Records)
	require.NotNil(t, out.Envelope.Records.Plate)
	assert.Equal(t, "7ABC123", out.Envelope.Records.Plate.Plate)
}

func TestSubStepRecordsFailures(t *testing.T) {
	c := testCollector(t)
	r := c.newRun(investigation(schemas.TargetUsername, "alice"))
	r.pool.Deadline = 20 * time.Millisecond

	r.subStep(context.Background(), "boom", func(context.Context) error { panic("kaboom") })
	r.subStep(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	r.subStep(context.Background(), "fine", func(context.Context) error { return nil })

	require.Len(t, r.notes, 2)
	assert.Equal(t, "boom failed (continuing): panic: kaboom", r.notes[0])
	assert.True(t, strings.HasPrefix(r.notes[1], "slow failed (continuing): "))
	assert.True(t, r.env.HasFlag(schemas.FlagEnrichmentFailed))
}

func TestEnrichConnections(t *testing.T) {
	c := testCollector(t)
	r := c.newRun(investigation(schemas.TargetName, "Alice Smith"))
	r.addSubjectName("Alice Smith")
	r.addCorpus("web_search", "Alice B. Smith and Bob Jones at the Town Hall")
	r.addCorpus("paste", "Bob Jones was seen with Alice Smith")
	r.addCorpus("records:court", "Smith v. Carol Danvers, Superior Court")
	r.addCorpus("web_search", "Dave Grohl appears once")

	require.NoError(t, r.enrichConnections(context.Background()))
	require.NotNil(t, r.env.Connections)
	got := r.env.Connections.Associates
	require.Len(t, got, 2)

	assert.Equal(t, schemas.Associate{
		Name: "Bob Jones", Sources: []string{"paste", "web_search"}, Mentions: 2,
	}, got[0])
	assert.Equal(t, schemas.Associate{
		Name: "Carol Danvers", Sources: []string{"records:court"}, Mentions: 1,
		Risky: true, Reason: "named in a court record",
	}, got[1])
}

func TestEnrichConnectionsEmpty(t *testing.T) {
	c := testCollector(t)
	r := c.newRun(investigation(schemas.TargetEmail, "a@example.com"))
	require.NoError(t, r.enrichConnections(context.Background()))
	assert.Nil(t, r.env.Connections)
}

// pathRecorder answers 404 to everything and remembers the paths it saw.
type pathRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (p *pathRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.paths = append(p.paths, r.URL.Path)
	p.mu.Unlock()
	http.NotFound(w, r)
}

func (p *pathRecorder) count(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, path := range p.paths {
		if strings.HasPrefix(path, prefix) {
			n++
		}
	}
	return n
}

func TestEnrichHonorsOptOutFlags(t *testing.T) {
	cases := []struct {
		name    string
		breach  bool
		records bool
	}{
		{"defaults run everything", true, true},
		{"breaches off", false, true},
		{"records off", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &pathRecorder{}
			c := testCollectorWith(t, rec)
			inv := investigation(schemas.TargetEmail, "alice@example.com")
			inv.Flags.BreachesEnabled = tc.breach
			inv.Flags.RecordsEnabled = tc.records

			r := c.newRun(inv)
			r.acc.AddEmail("alice@example.com")
			r.addSubjectName("Alice Smith")
			r.enrich(context.Background())

			assert.Equal(t, tc.breach, rec.count("/breachedaccount/") > 0, "breach lookups")
			assert.Equal(t, tc.records, rec.count("/records/") > 0, "record searches")
			assert.Positive(t, rec.count("/"), "the remaining sub-steps still ran")
		})
	}
}
