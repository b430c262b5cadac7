package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"alice", "Alice", ExactScore},
		{"john.doe", "john_doe", ExactScore},
		{"alice", "alice1987", ContainsScore},
		{"alicewonder", "wonder", ContainsScore},
		{"alicew", "malicex", PartialScore},
		{"jonathan", "nathan_q", PartialScore},
		{"smithjones", "jonesmark", PartialScore},
		{"alice", "bob", 0},
		{"", "bob", 0},
		{"ab", "abc", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Similarity(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "alice", Subject(schemas.TargetEmail, "Alice+news@Example.com"))
	assert.Equal(t, "acme", Subject(schemas.TargetDomain, "https://www.acme.co.uk"))
	assert.Equal(t, "", Subject(schemas.TargetPhone, "+15550100"))
	assert.Equal(t, "jane doe", Subject(schemas.TargetName, "jane doe"))
}

func TestScore_EvidenceBoosts(t *testing.T) {
	in := Input{TargetType: schemas.TargetEmail, TargetValue: "alice@example.com", Username: "alice"}
	assert.InDelta(t, 0.6, Score(in), 1e-9)

	in.Evidence = []schemas.EvidenceKind{schemas.EvidencePhone}
	assert.InDelta(t, 0.9, Score(in), 1e-9)

	in.Evidence = append(in.Evidence, schemas.EvidenceEmail, schemas.EvidenceDomain)
	assert.Equal(t, 1.0, Score(in), "capped")

	in = Input{TargetType: schemas.TargetEmail, TargetValue: "alice@example.com", Username: "bob",
		Evidence: []schemas.EvidenceKind{schemas.EvidenceUsername, schemas.EvidenceUsername}}
	assert.InDelta(t, 0.15, Score(in), 1e-9, "repeated evidence counts once")
}

func TestScore_WeakWithoutEvidenceIsDemoted(t *testing.T) {
	in := Input{TargetType: schemas.TargetEmail, TargetValue: "john.doe@corp.io", Username: "johndoe", Weak: true}
	assert.Zero(t, Score(in))

	in.Evidence = []schemas.EvidenceKind{schemas.EvidenceDomain}
	assert.InDelta(t, 0.75, Score(in), 1e-9)
}

func TestScore_NameUsesDisplayName(t *testing.T) {
	in := Input{TargetType: schemas.TargetName, TargetValue: "Jane Doe", Username: "jd_1990", DisplayName: "Jane Doe"}
	assert.InDelta(t, ExactScore, Score(in), 1e-9)
}

// Adding any evidence category never lowers a score, and the score stays in
// [0,1] for every subset.
func TestScore_MonotoneAndBounded(t *testing.T) {
	kinds := []schemas.EvidenceKind{
		schemas.EvidencePhone, schemas.EvidenceEmail, schemas.EvidenceUsername, schemas.EvidenceDomain,
	}
	for _, weak := range []bool{false, true} {
		for mask := 0; mask < 1<<len(kinds); mask++ {
			var ev []schemas.EvidenceKind
			for i, k := range kinds {
				if mask&(1<<i) != 0 {
					ev = append(ev, k)
				}
			}
			in := Input{TargetType: schemas.TargetUsername, TargetValue: "alice", Username: "alice_x", Evidence: ev, Weak: weak}
			base := Score(in)
			assert.GreaterOrEqual(t, base, 0.0)
			assert.LessOrEqual(t, base, 1.0)
			for _, k := range kinds {
				more := in
				more.Evidence = append(append([]schemas.EvidenceKind{}, ev...), k)
				assert.GreaterOrEqual(t, Score(more), base)
			}
		}
	}
}

func TestThreshold(t *testing.T) {
	cfg := config.SocialConfig{
		UsernameThreshold: 0.6, EmailThreshold: 0.61, PhoneThreshold: 0.62,
		DomainThreshold: 0.5, NameThreshold: 0.35, DefaultThreshold: 0.45,
	}
	assert.Equal(t, 0.6, Threshold(cfg, schemas.TargetUsername))
	assert.Equal(t, 0.61, Threshold(cfg, schemas.TargetEmail))
	assert.Equal(t, 0.62, Threshold(cfg, schemas.TargetPhone))
	assert.Equal(t, 0.5, Threshold(cfg, schemas.TargetDomain))
	assert.Equal(t, 0.35, Threshold(cfg, schemas.TargetName))
	assert.Equal(t, 0.45, Threshold(cfg, schemas.TargetIP))
}
