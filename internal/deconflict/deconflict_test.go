package deconflict

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/specter/api/schemas"
)

func name(value, source string, conf float64) schemas.Assertion {
	return schemas.Assertion{Field: schemas.FieldName, Value: value, Source: source, Confidence: conf}
}

func addr(value, source string) schemas.Assertion {
	return schemas.Assertion{Field: schemas.FieldAddress, Value: value, Source: source, Confidence: 0.9}
}

func TestStrength(t *testing.T) {
	tests := []struct {
		a    schemas.Assertion
		want int
	}{
		{name("x", schemas.SourceUserInput, 1), 3},
		{name("x", schemas.SourcePropertyRecords, 0.9), 3},
		{name("x", schemas.SourceCourtRecords, 0.9), 3},
		{name("x", schemas.SourcePlateRegistry, 0.8), 2},
		{name("x", schemas.SourceRDAPRegistrant, 0.7), 2},
		{name("x", schemas.SourceSocial, 0.75), 2},
		{name("x", schemas.SourceSocial, 0.74), 1},
		{name("x", schemas.SourceWebSearch, 0.3), 1},
		{name("x", schemas.SourceDirectory, 0.4), 1},
		{name("x", schemas.SourceGravatar, 0.5), 1},
		{name("x", "unheard_of", 1), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Strength(tt.a), "%s@%v", tt.a.Source, tt.a.Confidence)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "alice smith", Normalize("  Alice \t SMITH "))
	assert.Equal(t, "", Normalize("   "))
}

func TestStrongAgainstWeakIsNoConflict(t *testing.T) {
	r := Build([]schemas.Assertion{
		name("Alice Smith", schemas.SourceUserInput, 1),
		name("Alicia Smythe", schemas.SourceWebSearch, 0.3),
	})
	assert.Empty(t, r.Conflicts())
	require.Len(t, r.Fields, 2)
	assert.Len(t, r.Fields[0].Groups, 2)
}

func TestNoConflictBelowStrengthTwo(t *testing.T) {
	r := Build([]schemas.Assertion{
		name("A One", schemas.SourceWebSearch, 0.3),
		name("B Two", schemas.SourceDirectory, 0.4),
		name("C Three", schemas.SourceSocial, 0.5),
		name("D Four", schemas.SourceGravatar, 0.5),
	})
	assert.Empty(t, r.Conflicts())
}

func TestConflictSeverity(t *testing.T) {
	tests := []struct {
		name       string
		assertions []schemas.Assertion
		want       schemas.Severity
	}{
		{"two strong", []schemas.Assertion{
			addr("1 Main St", schemas.SourceUserInput),
			addr("9 Elm Rd", schemas.SourcePropertyRecords),
		}, schemas.SeverityHigh},
		{"one strong", []schemas.Assertion{
			addr("1 Main St", schemas.SourceCourtRecords),
			addr("9 Elm Rd", schemas.SourcePlateRegistry),
		}, schemas.SeverityMedium},
		{"medium only", []schemas.Assertion{
			addr("1 Main St", schemas.SourceRDAPRegistrant),
			addr("9 Elm Rd", schemas.SourcePlateRegistry),
		}, schemas.SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(tt.assertions).Conflicts()
			require.Len(t, got, 1)
			assert.Equal(t, schemas.FieldAddress, got[0].Field)
			assert.Equal(t, tt.want, got[0].Severity)
			assert.ElementsMatch(t, []string{"1 Main St", "9 Elm Rd"}, got[0].Values)
		})
	}
}

func TestGroupingMergesNormalizedValues(t *testing.T) {
	r := Build([]schemas.Assertion{
		name("alice  smith", schemas.SourceWebSearch, 0.3),
		name("Alice Smith", schemas.SourceUserInput, 1),
		name("Bob Jones", schemas.SourceSocial, 0.9),
	})
	want := []schemas.ValueGroup{
		{Value: "alice smith", Display: "alice smith", Strength: 3, Sources: []schemas.AssertionSource{
			{Source: schemas.SourceWebSearch, Strength: 1, Confidence: 0.3},
			{Source: schemas.SourceUserInput, Strength: 3, Confidence: 1},
		}},
		{Value: "bob jones", Display: "Bob Jones", Strength: 2, Sources: []schemas.AssertionSource{
			{Source: schemas.SourceSocial, Strength: 2, Confidence: 0.9},
		}},
	}
	if diff := cmp.Diff(want, r.Fields[0].Groups); diff != "" {
		t.Errorf("groups mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, r.Fields[0].Conflicts, 1)
	assert.Equal(t, schemas.SeverityMedium, r.Fields[0].Conflicts[0].Severity)
	assert.Empty(t, r.Fields[1].Groups)
}

func TestEngineRunNilEnvelope(t *testing.T) {
	r := NewEngine(zaptest.NewLogger(t)).Run(nil)
	require.Len(t, r.Fields, 2)
	assert.False(t, r.GeneratedAt.IsZero())
	assert.Empty(t, r.Conflicts())
}
