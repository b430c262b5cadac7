// Package deconflict groups the name and address assertions collected for a
// subject and reports where trusted sources disagree.
package deconflict

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
)

// Source strengths.
const (
	StrengthWeak   = 1
	StrengthMedium = 2
	StrengthStrong = 3
)

// highConfidenceSocial is the confidence at which a social profile counts as
// a medium-strength source.
const highConfidenceSocial = 0.75

var fields = []schemas.AssertionField{schemas.FieldName, schemas.FieldAddress}

// Strength rates how much an assertion's source is trusted.
func Strength(a schemas.Assertion) int {
	switch a.Source {
	case schemas.SourceUserInput, schemas.SourcePropertyRecords, schemas.SourceCourtRecords:
		return StrengthStrong
	case schemas.SourcePlateRegistry, schemas.SourceRDAPRegistrant:
		return StrengthMedium
	case schemas.SourceSocial:
		if a.Confidence >= highConfidenceSocial {
			return StrengthMedium
		}
	}
	return StrengthWeak
}

// Normalize folds a value for grouping: trimmed, single-spaced, lowercase.
func Normalize(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

// Engine builds deconfliction reports.
type Engine struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger.Named("deconflict"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run builds the report for the envelope's assertions. A nil envelope gives
// a report with empty fields.
func (e *Engine) Run(env *schemas.Envelope) *schemas.DeconflictionReport {
	var assertions []schemas.Assertion
	if env != nil {
		assertions = env.Assertions
	}
	r := Build(assertions)
	r.GeneratedAt = e.now()
	e.logger.Debug("Deconfliction finished",
		zap.Int("assertions", len(assertions)),
		zap.Int("conflicts", len(r.Conflicts())))
	return r
}

// Build groups assertions per field and finds conflicts. It is deterministic
// in its input order.
func Build(assertions []schemas.Assertion) *schemas.DeconflictionReport {
	r := &schemas.DeconflictionReport{}
	for _, field := range fields {
		r.Fields = append(r.Fields, buildField(field, assertions))
	}
	return r
}

func buildField(field schemas.AssertionField, assertions []schemas.Assertion) schemas.FieldReport {
	fr := schemas.FieldReport{Field: field, Groups: []schemas.ValueGroup{}}
	index := map[string]int{}
	for _, a := range assertions {
		if a.Field != field {
			continue
		}
		key := Normalize(a.Value)
		if key == "" {
			continue
		}
		i, ok := index[key]
		if !ok {
			i = len(fr.Groups)
			index[key] = i
			fr.Groups = append(fr.Groups, schemas.ValueGroup{Value: key, Display: strings.Join(strings.Fields(a.Value), " ")})
		}
		g := &fr.Groups[i]
		s := Strength(a)
		g.Sources = append(g.Sources, schemas.AssertionSource{
			Source: a.Source, Strength: s, Confidence: a.Confidence, Detail: a.Detail,
		})
		if s > g.Strength {
			g.Strength = s
		}
	}
	sort.SliceStable(fr.Groups, func(i, j int) bool {
		gi, gj := fr.Groups[i], fr.Groups[j]
		if gi.Strength != gj.Strength {
			return gi.Strength > gj.Strength
		}
		return len(gi.Sources) > len(gj.Sources)
	})

	var contenders []schemas.ValueGroup
	for _, g := range fr.Groups {
		if g.Strength >= StrengthMedium {
			contenders = append(contenders, g)
		}
	}
	if len(contenders) < 2 {
		return fr
	}
	c := schemas.Conflict{Field: field, Severity: schemas.SeverityLow}
	strong := 0
	for _, g := range contenders {
		c.Values = append(c.Values, g.Display)
		if g.Strength == StrengthStrong {
			strong++
		}
	}
	switch {
	case strong >= 2:
		c.Severity = schemas.SeverityHigh
	case strong == 1:
		c.Severity = schemas.SeverityMedium
	}
	fr.Conflicts = []schemas.Conflict{c}
	return fr
}
