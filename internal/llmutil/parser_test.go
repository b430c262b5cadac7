package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Narrative string `json:"narrative"`
	Score     int    `json:"score"`
}

func TestParseJSONResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bare", `{"narrative":"ok","score":40}`},
		{"fenced", "```json\n{\"narrative\":\"ok\",\"score\":40}\n```"},
		{"fenced without tag", "```\n{\"narrative\":\"ok\",\"score\":40}\n```"},
		{"conversational", "Sure, here is the result:\n{\"narrative\":\"ok\",\"score\":40}\nLet me know."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSONResponse[verdict](tt.input)
			require.NoError(t, err)
			assert.Equal(t, verdict{Narrative: "ok", Score: 40}, *got)
		})
	}
}

func TestParseJSONResponseArray(t *testing.T) {
	got, err := ParseJSONResponse[[]string]("Items: [\"a\", \"b\"]")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, *got)
}

func TestParseJSONResponseInvalid(t *testing.T) {
	_, err := ParseJSONResponse[verdict]("I cannot help with that.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Extracted JSON")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "", truncate("abc", 0))
}
