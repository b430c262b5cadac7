// Package confidence scores how likely a discovered platform profile belongs
// to the investigated target.
package confidence

import (
	"strings"
	"unicode"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/crossref"
)

// Base similarity scores.
const (
	ExactScore    = 0.6
	ContainsScore = 0.4
	PartialScore  = 0.2
)

var boosts = map[schemas.EvidenceKind]float64{
	schemas.EvidencePhone:    0.30,
	schemas.EvidenceEmail:    0.20,
	schemas.EvidenceUsername: 0.15,
	schemas.EvidenceDomain:   0.15,
}

// Boost returns the score added by one evidence category.
func Boost(kind schemas.EvidenceKind) float64 {
	return boosts[kind]
}

// Input describes one candidate match.
type Input struct {
	TargetType  schemas.TargetType
	TargetValue string
	Username    string
	DisplayName string
	Evidence    []schemas.EvidenceKind
	// Weak marks a permutation-derived candidate.
	Weak bool
}

// Score returns a confidence in [0,1]. Each evidence category counts once. A
// weak candidate without evidence scores zero.
func Score(in Input) float64 {
	if in.Weak && len(in.Evidence) == 0 {
		return 0
	}
	base := Similarity(Subject(in.TargetType, in.TargetValue), in.Username)
	if in.TargetType == schemas.TargetName && in.DisplayName != "" {
		if s := Similarity(Subject(in.TargetType, in.TargetValue), in.DisplayName); s > base {
			base = s
		}
	}
	seen := make(map[schemas.EvidenceKind]bool, len(in.Evidence))
	for _, e := range in.Evidence {
		if !seen[e] {
			seen[e] = true
			base += boosts[e]
		}
	}
	return clamp(base)
}

// Subject reduces a target value to the string a handle would be compared to.
func Subject(t schemas.TargetType, value string) string {
	switch t {
	case schemas.TargetEmail:
		return crossref.LocalPart(crossref.NormalizeEmail(value))
	case schemas.TargetDomain:
		reg := crossref.RegisteredDomain(value)
		if i := strings.IndexByte(reg, '.'); i > 0 {
			return reg[:i]
		}
		return reg
	case schemas.TargetPhone, schemas.TargetIP, schemas.TargetPlate:
		// Nothing in a handle resembles these; evidence decides.
		return ""
	default:
		return value
	}
}

// Similarity compares two identifiers after folding case and dropping
// separators: exact match, containment, or a shared run of at least half the
// shorter string.
func Similarity(a, b string) float64 {
	a, b = fold(a), fold(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return ExactScore
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) >= 3 && strings.Contains(long, short) {
		return ContainsScore
	}
	if n := longestCommonRun(a, b); n >= 3 && n*2 >= len(short) {
		return PartialScore
	}
	return 0
}

// Threshold returns the minimum confidence for keeping a profile discovered
// for a target of type t.
func Threshold(cfg config.SocialConfig, t schemas.TargetType) float64 {
	switch t {
	case schemas.TargetUsername:
		return cfg.UsernameThreshold
	case schemas.TargetEmail:
		return cfg.EmailThreshold
	case schemas.TargetPhone:
		return cfg.PhoneThreshold
	case schemas.TargetDomain:
		return cfg.DomainThreshold
	case schemas.TargetName:
		return cfg.NameThreshold
	default:
		return cfg.DefaultThreshold
	}
}

func fold(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func longestCommonRun(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	best := 0
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > best {
					best = cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return best
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
