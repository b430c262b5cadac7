package social

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/specter/api/schemas"
)

func post(hour int, opts ...func(*schemas.SocialPost)) schemas.SocialPost {
	p := schemas.SocialPost{PostedAt: time.Date(2024, 1, 2, hour, 15, 0, 0, time.UTC)}
	for _, o := range opts {
		o(&p)
	}
	return p
}

func tags(t ...string) func(*schemas.SocialPost) {
	return func(p *schemas.SocialPost) { p.Hashtags = t }
}

func country(c string) func(*schemas.SocialPost) {
	return func(p *schemas.SocialPost) { p.Country = c }
}

func TestAnalyzeEmpty(t *testing.T) {
	a := Analyze("x", "alice", nil)
	assert.Zero(t, a.PostCount)
	assert.False(t, a.Flagged())
}

func TestAnalyzeNightActivity(t *testing.T) {
	tests := []struct {
		name    string
		hours   []int
		flagged bool
	}{
		{"all daytime", []int{9, 10, 11, 12}, false},
		{"exactly thirty percent", []int{23, 0, 1, 9, 10, 11, 12, 13, 14, 15}, false},
		{"above thirty percent", []int{23, 4, 9}, true},
		{"five is not night", []int{5, 5, 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var posts []schemas.SocialPost
			for _, h := range tt.hours {
				posts = append(posts, post(h))
			}
			a := Analyze("x", "alice", posts)
			assert.Equal(t, tt.flagged, contains(a.Flags, schemas.PatternNightActivity))
			sum := 0
			for _, n := range a.HourHistogram {
				sum += n
			}
			assert.Equal(t, len(tt.hours), sum)
		})
	}
}

func TestAnalyzeLocationSpread(t *testing.T) {
	three := []schemas.SocialPost{post(10, country("us")), post(11, country("DE")), post(12, func(p *schemas.SocialPost) {
		p.Location = "Lisbon, PT"
	})}
	a := Analyze("x", "alice", three)
	assert.Equal(t, []string{"DE", "PT", "US"}, a.Countries)
	assert.False(t, contains(a.Flags, schemas.PatternLocationSpread))

	four := append(three, post(13, country("FR")))
	a = Analyze("x", "alice", four)
	assert.True(t, contains(a.Flags, schemas.PatternLocationSpread))
}

func TestAnalyzeHashtagsAndMentions(t *testing.T) {
	posts := []schemas.SocialPost{
		post(10, tags("Crypto", "crypto", "moon")),
		post(11, tags("#crypto")),
		post(12, tags("crypto"), func(p *schemas.SocialPost) { p.Mentions = []string{"@Bob", "alice"} }),
		post(13, func(p *schemas.SocialPost) { p.Mentions = []string{"bob", "carol"} }),
		post(14),
	}
	a := Analyze("x", "Alice", posts)

	want := []schemas.TagCount{{Tag: "crypto", Count: 3}, {Tag: "moon", Count: 1}}
	if diff := cmp.Diff(want, a.TopHashtags); diff != "" {
		t.Errorf("TopHashtags mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, contains(a.Flags, schemas.PatternHashtagRepeating))

	require.Len(t, a.MentionGraph, 2)
	assert.Equal(t, schemas.MentionEdge{From: "alice", To: "bob", Count: 2}, a.MentionGraph[0])
	assert.Equal(t, schemas.MentionEdge{From: "alice", To: "carol", Count: 1}, a.MentionGraph[1])
}

func TestAnalyzeHashtagNeedsEnoughPosts(t *testing.T) {
	a := Analyze("x", "alice", []schemas.SocialPost{post(10, tags("a")), post(11, tags("a"))})
	assert.False(t, contains(a.Flags, schemas.PatternHashtagRepeating))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
