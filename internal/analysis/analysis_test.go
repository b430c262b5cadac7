package analysis

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/specter/api/schemas"
)

func emailEnvelope() *schemas.Envelope {
	return &schemas.Envelope{
		Target: schemas.Target{Type: schemas.TargetEmail, Value: "alice@example.com"},
		Email:  &schemas.EmailSection{Address: "alice@example.com", DerivedUsernames: []string{"alice"}},
		Exposure: &schemas.ExposureSection{Breaches: []schemas.Breach{
			{Account: "alice@example.com", Name: "Adobe", BreachDate: "2013-10-04", DataClasses: []string{"Passwords", "Emails"}},
			{Account: "alice@example.com", Name: "LinkedIn", BreachDate: "2012-05-05", DataClasses: []string{"Emails"}},
			{Account: "alice@example.com", Name: "Canva", BreachDate: "2019-05-24", IsSensitive: true},
		}},
		Identifiers: schemas.IdentifierSnapshot{
			Emails:    []string{"alice@example.com"},
			Usernames: []string{"alice"},
			Domains:   []string{"example.com"},
		},
	}
}

func TestAnalyzeEmailScenario(t *testing.T) {
	e := NewEngine(zaptest.NewLogger(t))
	inv := &schemas.Investigation{ID: "inv-1", TargetType: schemas.TargetEmail, TargetValue: "alice@example.com"}
	out, err := e.Analyze(Input{Investigation: inv, Envelope: emailEnvelope()})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Findings.Breaches.Count)
	assert.Equal(t, "2012-05-05", out.Findings.Breaches.Earliest)
	assert.Equal(t, "2019-05-24", out.Findings.Breaches.Latest)
	assert.Equal(t, []string{"Emails", "Passwords"}, out.Findings.Breaches.DataClasses)
	assert.Equal(t, 1, out.Findings.Breaches.Sensitive)

	assert.GreaterOrEqual(t, out.Risk.Score, 15)
	assert.Equal(t, schemas.RiskLow, out.Risk.Level)
	assert.Equal(t, schemas.VerdictSafe, out.Risk.Verdict)
	assert.Contains(t, out.Narrative, "breaches")
	assert.False(t, out.Enhanced)

	require.Len(t, out.Findings.Timeline, 3)
	assert.Equal(t, "LinkedIn", out.Findings.Timeline[0].Detail)
}

func TestAnalyzeRequiresEnvelope(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.Analyze(Input{Investigation: &schemas.Investigation{ID: "x"}})
	assert.ErrorIs(t, err, ErrNoEnvelope)
}

func TestAssess(t *testing.T) {
	breaches := func(n int) schemas.Findings {
		return schemas.Findings{Breaches: schemas.BreachSummary{Count: n}, DataPoints: 1}
	}
	tests := []struct {
		name    string
		f       schemas.Findings
		env     *schemas.Envelope
		score   int
		level   schemas.RiskLevel
		verdict schemas.Verdict
	}{
		{"nothing found", schemas.Findings{}, &schemas.Envelope{}, 0, schemas.RiskLow, schemas.VerdictUnknown},
		{"clean data", schemas.Findings{DataPoints: 4}, &schemas.Envelope{}, 0, schemas.RiskLow, schemas.VerdictSafe},
		{"three breaches", breaches(3), nil, 15, schemas.RiskLow, schemas.VerdictSafe},
		{"breaches capped", breaches(40), nil, 50, schemas.RiskMedium, schemas.VerdictSuspicious},
		{
			"criminal and court", schemas.Findings{DataPoints: 2},
			&schemas.Envelope{Records: &schemas.RecordsSection{
				Criminal: []schemas.Record{{Kind: schemas.RecordCriminal}},
				Court:    []schemas.Record{{Kind: schemas.RecordCourt}},
			}},
			60, schemas.RiskMedium, schemas.VerdictSuspicious,
		},
		{
			"exactly forty is low", schemas.Findings{DataPoints: 1, Breaches: schemas.BreachSummary{Count: 2}},
			&schemas.Envelope{Flags: []string{schemas.FlagDisposableEmail}},
			40, schemas.RiskLow, schemas.VerdictSafe,
		},
		{
			"everything clamps to 100",
			schemas.Findings{
				DataPoints:   9,
				Breaches:     schemas.BreachSummary{Count: 10},
				Locations:    schemas.LocationSummary{Inconsistent: true, Countries: []string{"DE", "US"}},
				NSFWProfiles: 3,
				Associates:   []schemas.Associate{{Risky: true}, {Risky: true}, {Risky: true}, {Risky: true}},
				Crypto:       schemas.CryptoSummary{HighActivity: true},
			},
			&schemas.Envelope{
				Flags:    []string{schemas.FlagDisposableEmail, schemas.FlagInvalidEmail},
				Exposure: &schemas.ExposureSection{ExtraContacts: []string{"+15551234567"}},
				Records:  &schemas.RecordsSection{Criminal: []schemas.Record{{}}, Court: []schemas.Record{{}}},
			},
			100, schemas.RiskHigh, schemas.VerdictMalicious,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Assess(tt.f, tt.env)
			assert.Equal(t, tt.score, got.Score)
			assert.Equal(t, tt.level, got.Level)
			assert.Equal(t, tt.verdict, got.Verdict)
			assert.Equal(t, got, Assess(tt.f, tt.env), "assessment must be deterministic")
		})
	}
}

func TestAssessFactorOrderAndCaps(t *testing.T) {
	f := schemas.Findings{
		DataPoints:   1,
		NSFWProfiles: 5,
		Associates:   []schemas.Associate{{Risky: true}, {Risky: false}},
		Locations:    schemas.LocationSummary{Inconsistent: true, Countries: []string{"DE", "US"}},
	}
	got := Assess(f, nil)
	want := []schemas.RiskFactor{
		{Name: FactorLocationMismatch, Points: 15, Detail: "locations span 2 countries"},
		{Name: FactorNSFWProfiles, Points: 20, Detail: "5 adult-flagged profiles"},
		{Name: FactorRiskyAssociates, Points: 10, Detail: "1 associates named in court or criminal records"},
	}
	if diff := cmp.Diff(want, got.Factors); diff != "" {
		t.Errorf("factors mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 45, got.Score)
}

func TestLocationsInconsistent(t *testing.T) {
	env := &schemas.Envelope{
		Locations: []schemas.LocationAssertion{
			{Place: "Berlin", Source: "social:github"},
			{Country: "ZZ", Source: "phone_region"},
		},
		IPNetwork: &schemas.IPNetworkSection{Hosts: []schemas.IPIntel{{IP: "1.2.3.4", City: "Austin", Region: "Texas", Country: "us"}}},
		Phone:     &schemas.PhoneSection{Info: schemas.PhoneInfo{Region: "DE"}},
	}
	var f schemas.Findings
	analyzeLocations(Input{Envelope: env}, &f)
	assert.Equal(t, []string{"Berlin", "Austin, Texas, us"}, f.Locations.Places)
	assert.Equal(t, []string{"DE", "US"}, f.Locations.Countries)
	assert.True(t, f.Locations.Inconsistent)

	f = schemas.Findings{}
	env.Phone.Info.Region = "US"
	analyzeLocations(Input{Envelope: env}, &f)
	assert.False(t, f.Locations.Inconsistent)
}

func TestBuildGraph(t *testing.T) {
	env := emailEnvelope()
	env.IPNetwork = &schemas.IPNetworkSection{Hosts: []schemas.IPIntel{{IP: "93.184.216.34"}}}
	env.Domain = &schemas.DomainSection{Domains: []schemas.DomainIntel{
		{Domain: "example.com", DNS: &schemas.DNSRecords{A: []string{"93.184.216.34", "10.0.0.1"}}},
	}}
	profiles := []schemas.SocialProfile{
		{Platform: "github", Username: "alice", Confidence: 0.95},
		{Platform: "reddit", Username: "Alice", Confidence: 0.8},
	}

	g := BuildGraph(env, profiles)
	assert.Equal(t, []string{"93.184.216.34"}, g.IPs)
	want := []schemas.Link{
		{From: "domain:example.com", To: "email:alice@example.com", Reason: "email domain", Weight: 1},
		{From: "domain:example.com", To: "ip:93.184.216.34", Reason: "resolves to", Weight: 0.8},
		{From: "handle:github/alice", To: "handle:reddit/Alice", Reason: "shared username", Weight: 0.5},
		{From: "handle:github/alice", To: "target:alice@example.com", Reason: "username match", Weight: 0.95},
		{From: "handle:reddit/Alice", To: "target:alice@example.com", Reason: "username match", Weight: 0.8},
	}
	if diff := cmp.Diff(want, g.Links); diff != "" {
		t.Errorf("links mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildGraphFallsBackToMatches(t *testing.T) {
	env := &schemas.Envelope{Username: &schemas.UsernameSection{Matches: []schemas.PlatformMatch{
		{PlatformProfile: schemas.PlatformProfile{Platform: "github", Username: "alice"}, Confidence: 0.6},
		{PlatformProfile: schemas.PlatformProfile{Platform: "x", Username: "al"}, Weak: true, Confidence: 0},
	}}}
	g := BuildGraph(env, nil)
	require.Len(t, g.Handles, 1)
	assert.Equal(t, "github", g.Handles[0].Platform)
}

func TestNarrativeWithoutData(t *testing.T) {
	n := Narrative(schemas.Target{Type: schemas.TargetUsername, Value: "ghost"}, schemas.IdentityGraph{}, schemas.Findings{},
		schemas.RiskAssessment{Verdict: schemas.VerdictUnknown})
	assert.Contains(t, n, "no verdict")
}

func TestTimelineIncludesPostsAndAccounts(t *testing.T) {
	created := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	in := Input{
		Envelope: &schemas.Envelope{},
		Profiles: []schemas.SocialProfile{{Platform: "github", Username: "alice",
			Metadata: map[string]string{"created_at": created.Format(time.RFC3339)}}},
		Posts: []schemas.SocialPost{
			{Platform: "github", Username: "alice", PostedAt: created.AddDate(2, 0, 0)},
			{Platform: "github", Username: "alice", PostedAt: created.AddDate(1, 0, 0)},
		},
	}
	var f schemas.Findings
	analyzeTimeline(in, &f)
	require.Len(t, f.Timeline, 3)
	assert.Equal(t, []string{"account_created", "first_post", "latest_post"},
		[]string{f.Timeline[0].Kind, f.Timeline[1].Kind, f.Timeline[2].Kind})
}
