package schemas

import "time"

// -- Social Schemas --

// SocialProfile is a persisted, confidence-filtered platform profile.
type SocialProfile struct {
	ID              string            `json:"id"`
	InvestigationID string            `json:"investigation_id"`
	Platform        string            `json:"platform"`
	Username        string            `json:"username"`
	DisplayName     string            `json:"display_name,omitempty"`
	ProfileURL      string            `json:"profile_url"`
	Bio             string            `json:"bio,omitempty"`
	Followers       int               `json:"followers"`
	Following       int               `json:"following"`
	PostCount       int               `json:"post_count"`
	Verified        bool              `json:"verified"`
	Confidence      float64           `json:"confidence"`
	DiscoveryMethod string            `json:"discovery_method"`
	RiskScore       int               `json:"risk_score"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Key identifies a profile within an investigation.
func (p SocialProfile) Key() string {
	return p.Platform + "/" + p.Username
}

// Discovery methods.
const (
	DiscoveryUsernameProbe = "username_probe"
	DiscoverySecondPass    = "second_pass"
	DiscoveryCollection    = "collection_link"
)

// SocialPost is one public post collected from a monitored profile.
type SocialPost struct {
	ID              string    `json:"id"`
	InvestigationID string    `json:"investigation_id"`
	Platform        string    `json:"platform"`
	Username        string    `json:"username"`
	PostID          string    `json:"post_id"`
	URL             string    `json:"url,omitempty"`
	Content         string    `json:"content"`
	PostedAt        time.Time `json:"posted_at"`
	Location        string    `json:"location,omitempty"`
	Country         string    `json:"country,omitempty"`
	Hashtags        []string  `json:"hashtags,omitempty"`
	Mentions        []string  `json:"mentions,omitempty"`
	Likes           int       `json:"likes,omitempty"`
	Replies         int       `json:"replies,omitempty"`
	Shares          int       `json:"shares,omitempty"`
}

// MonitoringRegistration marks a profile for ongoing collection. It is
// unique on (investigation, platform, username).
type MonitoringRegistration struct {
	InvestigationID string    `json:"investigation_id"`
	Platform        string    `json:"platform"`
	Username        string    `json:"username"`
	ProfileURL      string    `json:"profile_url"`
	Realtime        bool      `json:"realtime"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TagCount is a hashtag and how many posts used it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// MentionEdge is a directed "author mentioned handle" edge with a count.
type MentionEdge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// Analytics flags.
const (
	PatternNightActivity    = "night_activity"
	PatternLocationSpread   = "location_spread"
	PatternHashtagRepeating = "hashtag_repetition"
)

// PostAnalytics summarizes posting behavior for one profile.
type PostAnalytics struct {
	Platform      string        `json:"platform"`
	Username      string        `json:"username"`
	PostCount     int           `json:"post_count"`
	HourHistogram [24]int       `json:"hour_histogram"`
	NightRatio    float64       `json:"night_ratio"`
	Countries     []string      `json:"countries,omitempty"`
	TopHashtags   []TagCount    `json:"top_hashtags,omitempty"`
	MentionGraph  []MentionEdge `json:"mention_graph,omitempty"`
	Flags         []string      `json:"flags,omitempty"`
}

// Flagged reports whether any behavioral pattern was raised.
func (a PostAnalytics) Flagged() bool {
	return len(a.Flags) > 0
}
