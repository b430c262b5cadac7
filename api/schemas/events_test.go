package schemas_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/specter/api/schemas"
)

func events(pairs ...interface{}) []schemas.ProgressEvent {
	var out []schemas.ProgressEvent
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, schemas.ProgressEvent{
			ID:      int64(len(out) + 1),
			StepKey: pairs[i].(schemas.StepKey),
			Status:  pairs[i+1].(schemas.EventStatus),
		})
	}
	return out
}

func TestNextStep(t *testing.T) {
	t.Parallel()

	t.Run("empty log starts with osint", func(t *testing.T) {
		step, ok := schemas.NextStep(nil)
		require.True(t, ok)
		assert.Equal(t, schemas.StepOSINT, step)
	})

	t.Run("started and info events do not close a step", func(t *testing.T) {
		log := events(
			schemas.StepPipeline, schemas.EventStarted,
			schemas.StepOSINT, schemas.EventStarted,
			schemas.StepOSINT, schemas.EventInfo,
		)
		step, ok := schemas.NextStep(log)
		require.True(t, ok)
		assert.Equal(t, schemas.StepOSINT, step)
	})

	t.Run("failed counts as done", func(t *testing.T) {
		log := events(
			schemas.StepOSINT, schemas.EventCompleted,
			schemas.StepSocialProfiles, schemas.EventFailed,
		)
		step, ok := schemas.NextStep(log)
		require.True(t, ok)
		assert.Equal(t, schemas.StepSocialPosts, step)
	})

	t.Run("order is fixed even when later steps are done", func(t *testing.T) {
		log := events(
			schemas.StepAI, schemas.EventCompleted,
			schemas.StepOSINT, schemas.EventCompleted,
		)
		step, ok := schemas.NextStep(log)
		require.True(t, ok)
		assert.Equal(t, schemas.StepSocialProfiles, step)
	})

	t.Run("all done", func(t *testing.T) {
		var log []schemas.ProgressEvent
		for _, s := range schemas.StepOrder {
			log = append(log, schemas.ProgressEvent{StepKey: s, Status: schemas.EventCompleted})
		}
		_, ok := schemas.NextStep(log)
		assert.False(t, ok)
	})
}

func TestStepPercentAndLabels(t *testing.T) {
	t.Parallel()
	last := 0
	for _, s := range schemas.StepOrder {
		p := s.Percent()
		assert.Greater(t, p, last, "percent must increase along the step order")
		assert.NotEqual(t, string(s), s.Label())
		last = p
	}
	assert.Equal(t, 100, schemas.StepReport.Percent())
	assert.True(t, schemas.StepOSINT.LoadBearing())
	assert.True(t, schemas.StepAI.LoadBearing())
	assert.False(t, schemas.StepGeo.LoadBearing())
}

func TestResult(t *testing.T) {
	t.Parallel()
	found := schemas.Found([]string{"a"})
	v, ok := found.Get()
	assert.True(t, ok)
	assert.Equal(t, []string{"a"}, v)

	absent := schemas.Absent[[]string]("timed out")
	assert.False(t, absent.Present)
	assert.Equal(t, "timed out", absent.Reason)
	assert.Nil(t, absent.OrZero())
}

func TestParseTargetType(t *testing.T) {
	t.Parallel()
	tt, err := schemas.ParseTargetType(" Email ")
	require.NoError(t, err)
	assert.Equal(t, schemas.TargetEmail, tt)

	_, err = schemas.ParseTargetType("fax")
	assert.Error(t, err)
}

func TestEnvelopeFlags(t *testing.T) {
	t.Parallel()
	var nilEnv *schemas.Envelope
	assert.False(t, nilEnv.HasFlag(schemas.FlagDeepScan))

	env := &schemas.Envelope{}
	env.AddFlag(schemas.FlagInvalidEmail)
	env.AddFlag(schemas.FlagInvalidEmail)
	assert.Equal(t, []string{schemas.FlagInvalidEmail}, env.Flags)
}
