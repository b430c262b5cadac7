package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/specter/api/schemas"
)

func titles(r *schemas.Report) []string {
	var out []string
	for _, s := range r.Sections {
		out = append(out, s.Title)
	}
	return out
}

func TestBuildMinimal(t *testing.T) {
	b := NewBuilder(zaptest.NewLogger(t))
	inv := &schemas.Investigation{ID: "inv-1", TargetType: schemas.TargetUsername, TargetValue: "ghost"}
	r := b.Build(Input{Investigation: inv})

	assert.Equal(t, "inv-1", r.InvestigationID)
	assert.Equal(t, schemas.Target{Type: schemas.TargetUsername, Value: "ghost"}, r.Target)
	assert.Nil(t, r.Risk)
	assert.Contains(t, r.Summary, "No analysis")
	assert.NotNil(t, r.Sections)
	assert.Empty(t, r.Sections)
}

func TestBuildFull(t *testing.T) {
	b := NewBuilder(nil)
	inv := &schemas.Investigation{ID: "inv-2", TargetType: schemas.TargetEmail, TargetValue: "alice@example.com"}
	night := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)
	in := Input{
		Investigation: inv,
		Envelope: &schemas.Envelope{
			Identifiers: schemas.IdentifierSnapshot{Emails: []string{"alice@example.com"}},
			Exposure: &schemas.ExposureSection{Breaches: []schemas.Breach{
				{Name: "Adobe", Account: "alice@example.com", BreachDate: "2013-10-04", DataClasses: []string{"Passwords"}},
			}},
			Records: &schemas.RecordsSection{Plate: &schemas.PlateRecord{Plate: "7ABC123", State: "CA", Make: "Honda", OwnerName: "Alice Smith"}},
			Flags:   []string{schemas.FlagSecondPassUsed},
		},
		AI: &schemas.AIOutput{
			Narrative: "heuristic summary",
			Risk: schemas.RiskAssessment{Score: 5, Level: schemas.RiskLow, Verdict: schemas.VerdictSafe,
				Factors: []schemas.RiskFactor{{Name: "breaches", Points: 5, Detail: "found in 1 known breaches"}}},
		},
		Deconfliction: &schemas.DeconflictionReport{Fields: []schemas.FieldReport{{
			Field:     schemas.FieldName,
			Conflicts: []schemas.Conflict{{Field: schemas.FieldName, Values: []string{"Alice Smith", "Al Smith"}, Severity: schemas.SeverityHigh}},
		}}},
		Profiles: []schemas.SocialProfile{{Platform: "reddit", Username: "alice", Confidence: 0.9, Metadata: map[string]string{"nsfw": "true"}}},
		Posts: []schemas.SocialPost{
			{Platform: "reddit", Username: "alice", PostedAt: night},
			{Platform: "reddit", Username: "alice", PostedAt: night.Add(time.Hour)},
		},
		Markers: []schemas.GeoMarker{{Label: "Berlin", Kind: "location", Lat: 52.52, Lon: 13.405}},
	}

	r := b.Build(in)
	assert.Equal(t, "heuristic summary", r.Summary)
	require.NotNil(t, r.Risk)
	assert.Equal(t, 5, r.Risk.Score)
	assert.Equal(t, []string{
		"Risk", "Identity", "Breaches and exposure", "Social profiles", "Posting patterns",
		"Public records", "Conflicts", "Locations", "Collection flags",
	}, titles(r))

	byTitle := map[string][]string{}
	for _, s := range r.Sections {
		byTitle[s.Title] = s.Lines
	}
	assert.Equal(t, "Score 5/100, level low, verdict Safe (heuristic)", byTitle["Risk"][0])
	assert.Equal(t, []string{"Breach Adobe (alice@example.com) on 2013-10-04: Passwords"}, byTitle["Breaches and exposure"])
	assert.Contains(t, byTitle["Social profiles"][0], "[nsfw]")
	assert.Equal(t, []string{"reddit/alice: 2 posts, 100% at night [night_activity]"}, byTitle["Posting patterns"])
	assert.Equal(t, []string{"Plate CA 7ABC123: Honda, registered to Alice Smith"}, byTitle["Public records"])
	assert.Equal(t, []string{"name (high): Alice Smith vs Al Smith"}, byTitle["Conflicts"])
	assert.Equal(t, []string{"Berlin [location] 52.5200, 13.4050"}, byTitle["Locations"])
}
