// Package llmutil extracts structured data from free-form model output.
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// \x60 is a backtick; raw strings cannot hold one.
	jsonObjectRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")
	jsonArrayRegex  = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\[.*\\])\\s*\x60\x60\x60")
)

// ParseJSONResponse decodes a model response into T. It accepts bare JSON,
// JSON wrapped in a markdown fence, and JSON embedded in conversational text.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw := ExtractJSON(response)
	var result T
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncate(raw, 500))
	}
	return &result, nil
}

// ExtractJSON returns the most plausible JSON document inside response, or
// the trimmed response when nothing better is found.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	isObject := strings.Contains(response, "{")
	isArray := strings.Contains(response, "[")

	if strings.HasPrefix(response, "```") {
		var matches []string
		if isObject {
			matches = jsonObjectRegex.FindStringSubmatch(response)
		}
		if len(matches) <= 1 && isArray {
			matches = jsonArrayRegex.FindStringSubmatch(response)
		}
		if len(matches) > 1 {
			return matches[1]
		}
		return response
	}
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}
	if isObject {
		if s, ok := between(response, "{", "}"); ok {
			return s
		}
	}
	if isArray {
		if s, ok := between(response, "[", "]"); ok {
			return s
		}
	}
	return response
}

func between(s, open, close string) (string, bool) {
	first := strings.Index(s, open)
	last := strings.LastIndex(s, close)
	if first == -1 || last <= first {
		return "", false
	}
	return s[first : last+1], true
}

// truncate cuts s to maxLen bytes for log output.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
