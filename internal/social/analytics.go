package social

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
)

const (
	nightRatioLimit    = 0.30
	maxCountries       = 3
	hashtagMinPosts    = 5
	hashtagShareLimit  = 0.5
	topHashtagsPerUser = 10
)

// nightHour reports whether h falls in the 23:00-05:00 window.
func nightHour(h int) bool {
	return h == 23 || h < 5
}

// Analyze summarizes one profile's posts: when they were posted, from where,
// which hashtags repeat and whom they mention. Hours are in UTC.
func Analyze(platform, username string, posts []schemas.SocialPost) schemas.PostAnalytics {
	a := schemas.PostAnalytics{Platform: platform, Username: username, PostCount: len(posts)}
	if len(posts) == 0 {
		return a
	}

	night := 0
	countries := map[string]bool{}
	tags := map[string]int{}
	mentions := map[string]int{}
	for _, p := range posts {
		h := p.PostedAt.UTC().Hour()
		a.HourHistogram[h]++
		if nightHour(h) {
			night++
		}
		if c := postCountry(p); c != "" && !countries[c] {
			countries[c] = true
			a.Countries = append(a.Countries, c)
		}
		inPost := map[string]bool{}
		for _, t := range p.Hashtags {
			t = strings.ToLower(strings.TrimPrefix(t, "#"))
			if t != "" && !inPost[t] {
				inPost[t] = true
				tags[t]++
			}
		}
		for _, m := range p.Mentions {
			m = strings.ToLower(strings.TrimPrefix(m, "@"))
			if m != "" && m != strings.ToLower(username) {
				mentions[m]++
			}
		}
	}
	sort.Strings(a.Countries)
	a.NightRatio = float64(night) / float64(len(posts))

	for t, n := range tags {
		a.TopHashtags = append(a.TopHashtags, schemas.TagCount{Tag: t, Count: n})
	}
	sort.Slice(a.TopHashtags, func(i, j int) bool {
		if a.TopHashtags[i].Count != a.TopHashtags[j].Count {
			return a.TopHashtags[i].Count > a.TopHashtags[j].Count
		}
		return a.TopHashtags[i].Tag < a.TopHashtags[j].Tag
	})
	if len(a.TopHashtags) > topHashtagsPerUser {
		a.TopHashtags = a.TopHashtags[:topHashtagsPerUser]
	}

	from := strings.ToLower(username)
	for to, n := range mentions {
		a.MentionGraph = append(a.MentionGraph, schemas.MentionEdge{From: from, To: to, Count: n})
	}
	sort.Slice(a.MentionGraph, func(i, j int) bool {
		if a.MentionGraph[i].Count != a.MentionGraph[j].Count {
			return a.MentionGraph[i].Count > a.MentionGraph[j].Count
		}
		return a.MentionGraph[i].To < a.MentionGraph[j].To
	})

	if a.NightRatio > nightRatioLimit {
		a.Flags = append(a.Flags, schemas.PatternNightActivity)
	}
	if len(a.Countries) > maxCountries {
		a.Flags = append(a.Flags, schemas.PatternLocationSpread)
	}
	if len(posts) >= hashtagMinPosts && len(a.TopHashtags) > 0 &&
		float64(a.TopHashtags[0].Count)/float64(len(posts)) > hashtagShareLimit {
		a.Flags = append(a.Flags, schemas.PatternHashtagRepeating)
	}
	return a
}

// postCountry is the post's country, or the last comma-separated part of its
// location when the platform gave no country.
func postCountry(p schemas.SocialPost) string {
	if c := strings.TrimSpace(p.Country); c != "" {
		return strings.ToUpper(c)
	}
	loc := strings.TrimSpace(p.Location)
	if loc == "" {
		return ""
	}
	if i := strings.LastIndexByte(loc, ','); i >= 0 {
		loc = strings.TrimSpace(loc[i+1:])
	}
	return strings.ToUpper(loc)
}
