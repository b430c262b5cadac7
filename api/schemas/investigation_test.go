package schemas_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/specter/api/schemas"
)

func TestProcessingFlagsDecodeOntoDefaults(t *testing.T) {
	t.Run("partial object keeps defaults", func(t *testing.T) {
		var f schemas.ProcessingFlags
		require.NoError(t, json.Unmarshal([]byte(`{"deep_scan":true}`), &f))

		want := schemas.DefaultProcessingFlags()
		want.DeepScan = true
		assert.Equal(t, want, f)
	})

	t.Run("explicit opt-outs apply", func(t *testing.T) {
		var f schemas.ProcessingFlags
		require.NoError(t, json.Unmarshal([]byte(`{"breaches_enabled":false,"geo_enabled":false,"known_name":"Alice"}`), &f))
		assert.False(t, f.BreachesEnabled)
		assert.False(t, f.GeoEnabled)
		assert.True(t, f.SocialEnabled)
		assert.True(t, f.RecordsEnabled)
		assert.Equal(t, "Alice", f.KnownName)
		assert.Equal(t, 50, f.MaxPostsPerProfile)
	})

	t.Run("round trip of a full document", func(t *testing.T) {
		in := schemas.ProcessingFlags{RealtimeMonitoring: true, MaxPostsPerProfile: 5, Platforms: []string{"github"}}
		b, err := json.Marshal(in)
		require.NoError(t, err)
		var out schemas.ProcessingFlags
		require.NoError(t, json.Unmarshal(b, &out))
		assert.Equal(t, in, out)
	})

	t.Run("nested in a request body", func(t *testing.T) {
		var inv schemas.Investigation
		require.NoError(t, json.Unmarshal([]byte(`{"target_type":"email","processing_flags":{"ai_enabled":false}}`), &inv))
		assert.False(t, inv.Flags.AIEnabled)
		assert.True(t, inv.Flags.SocialEnabled)
		assert.True(t, inv.Flags.BreachesEnabled)
	})

	t.Run("malformed", func(t *testing.T) {
		var f schemas.ProcessingFlags
		assert.Error(t, json.Unmarshal([]byte(`{"deep_scan":"yes"}`), &f))
	})
}
