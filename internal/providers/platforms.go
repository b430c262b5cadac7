package providers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/crossref"
)

// Platform looks a handle up on one social or developer platform.
type Platform interface {
	Name() string
	Lookup(ctx context.Context, username string) schemas.Result[schemas.PlatformProfile]
}

// PostFetcher pulls recent public posts for a handle.
type PostFetcher interface {
	Name() string
	Posts(ctx context.Context, username string, limit int) schemas.Result[[]schemas.SocialPost]
}

// profileText joins the profile fields that are scanned for evidence.
func profileText(p schemas.PlatformProfile, extra ...string) string {
	parts := []string{p.DisplayName, p.Bio, p.Location, p.Website}
	for _, v := range p.Metadata {
		parts = append(parts, v)
	}
	parts = append(parts, extra...)
	return strings.Join(parts, " ")
}

func unixTime(sec float64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(int64(sec), 0).UTC()
	return &t
}

func parseTime(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// -- Reddit --

// RedditPlatform reads the public about.json and submitted.json endpoints.
type RedditPlatform struct {
	base
	baseURL string
}

func NewRedditPlatform(d Deps) *RedditPlatform {
	return &RedditPlatform{base: newBase("reddit", d), baseURL: d.Providers.RedditURL}
}

type redditAbout struct {
	Data struct {
		Name         string  `json:"name"`
		CreatedUTC   float64 `json:"created_utc"`
		LinkKarma    int     `json:"link_karma"`
		CommentKarma int     `json:"comment_karma"`
		IconImg      string  `json:"icon_img"`
		Verified     bool    `json:"verified"`
		Subreddit    struct {
			Title       string `json:"title"`
			Description string `json:"public_description"`
			Over18      bool   `json:"over_18"`
		} `json:"subreddit"`
	} `json:"data"`
}

func (p *RedditPlatform) Lookup(ctx context.Context, username string) schemas.Result[schemas.PlatformProfile] {
	var doc redditAbout
	resp := p.fetch.GetJSON(ctx, joinURL(p.baseURL, "user", url.PathEscape(username), "about.json"), nil, &doc)
	if !resp.OK() {
		return absentFrom[schemas.PlatformProfile](p.base, resp)
	}
	if doc.Data.Name == "" {
		return absent[schemas.PlatformProfile](p.base, "not found")
	}
	prof := schemas.PlatformProfile{
		Platform:    "reddit",
		Username:    doc.Data.Name,
		DisplayName: doc.Data.Subreddit.Title,
		ProfileURL:  "https://www.reddit.com/user/" + doc.Data.Name,
		Bio:         doc.Data.Subreddit.Description,
		AvatarURL:   strings.Split(doc.Data.IconImg, "?")[0],
		Verified:    doc.Data.Verified,
		NSFW:        doc.Data.Subreddit.Over18,
		CreatedAt:   unixTime(doc.Data.CreatedUTC),
		Metadata: map[string]string{
			"karma": strconv.Itoa(doc.Data.LinkKarma + doc.Data.CommentKarma),
		},
	}
	prof.Text = profileText(prof)
	p.found()
	return schemas.Found(prof)
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				CreatedUTC  float64 `json:"created_utc"`
				Permalink   string  `json:"permalink"`
				Subreddit   string  `json:"subreddit"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (p *RedditPlatform) Posts(ctx context.Context, username string, limit int) schemas.Result[[]schemas.SocialPost] {
	var doc redditListing
	u := withQuery(joinURL(p.baseURL, "user", url.PathEscape(username), "submitted.json"), url.Values{"limit": {strconv.Itoa(limit)}})
	resp := p.fetch.GetJSON(ctx, u, nil, &doc)
	if !resp.OK() {
		return absentFrom[[]schemas.SocialPost](p.base, resp)
	}
	var posts []schemas.SocialPost
	for _, c := range doc.Data.Children {
		d := c.Data
		content := strings.TrimSpace(d.Title + "\n" + d.Selftext)
		post := schemas.SocialPost{
			Platform: "reddit",
			Username: username,
			PostID:   d.ID,
			URL:      "https://www.reddit.com" + d.Permalink,
			Content:  content,
			Likes:    d.Score,
			Replies:  d.NumComments,
			Hashtags: crossref.Hashtags(content),
			Mentions: crossref.Mentions(content),
		}
		if t := unixTime(d.CreatedUTC); t != nil {
			post.PostedAt = *t
		}
		posts = append(posts, post)
	}
	return postsResult(p.base, posts, limit)
}

// -- Bluesky --

// BlueskyPlatform uses the public AppView XRPC API.
type BlueskyPlatform struct {
	base
	baseURL string
}

func NewBlueskyPlatform(d Deps) *BlueskyPlatform {
	return &BlueskyPlatform{base: newBase("bluesky", d), baseURL: d.Providers.BlueskyURL}
}

// BlueskyHandle expands a bare handle to the default bsky.social domain.
func BlueskyHandle(username string) string {
	if strings.Contains(username, ".") {
		return username
	}
	return username + ".bsky.social"
}

type bskyProfile struct {
	Handle         string `json:"handle"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	Avatar         string `json:"avatar"`
	FollowersCount int    `json:"followersCount"`
	FollowsCount   int    `json:"followsCount"`
	PostsCount     int    `json:"postsCount"`
	CreatedAt      string `json:"createdAt"`
	Labels         []struct {
		Val string `json:"val"`
	} `json:"labels"`
}

var adultLabels = map[string]bool{"porn": true, "sexual": true, "nudity": true, "graphic-media": true}

func (p *BlueskyPlatform) Lookup(ctx context.Context, username string) schemas.Result[schemas.PlatformProfile] {
	handle := BlueskyHandle(username)
	var doc bskyProfile
	u := withQuery(joinURL(p.baseURL, "xrpc", "app.bsky.actor.getProfile"), url.Values{"actor": {handle}})
	resp := p.fetch.GetJSON(ctx, u, nil, &doc)
	if !resp.OK() {
		if resp.Status == 400 {
			return absent[schemas.PlatformProfile](p.base, "not found")
		}
		return absentFrom[schemas.PlatformProfile](p.base, resp)
	}
	prof := schemas.PlatformProfile{
		Platform:    "bluesky",
		Username:    doc.Handle,
		DisplayName: doc.DisplayName,
		ProfileURL:  "https://bsky.app/profile/" + doc.Handle,
		Bio:         doc.Description,
		AvatarURL:   doc.Avatar,
		Followers:   doc.FollowersCount,
		Following:   doc.FollowsCount,
		PostCount:   doc.PostsCount,
		CreatedAt:   parseTime(doc.CreatedAt),
	}
	for _, l := range doc.Labels {
		if adultLabels[l.Val] {
			prof.NSFW = true
		}
	}
	prof.Text = profileText(prof)
	p.found()
	return schemas.Found(prof)
}

type bskyFeed struct {
	Feed []struct {
		Post struct {
			URI    string `json:"uri"`
			Record struct {
				Text      string `json:"text"`
				CreatedAt string `json:"createdAt"`
			} `json:"record"`
			LikeCount   int `json:"likeCount"`
			ReplyCount  int `json:"replyCount"`
			RepostCount int `json:"repostCount"`
		} `json:"post"`
	} `json:"feed"`
}

func (p *BlueskyPlatform) Posts(ctx context.Context, username string, limit int) schemas.Result[[]schemas.SocialPost] {
	handle := BlueskyHandle(username)
	var doc bskyFeed
	u := withQuery(joinURL(p.baseURL, "xrpc", "app.bsky.feed.getAuthorFeed"),
		url.Values{"actor": {handle}, "limit": {strconv.Itoa(min(limit, 100))}})
	resp := p.fetch.GetJSON(ctx, u, nil, &doc)
	if !resp.OK() {
		return absentFrom[[]schemas.SocialPost](p.base, resp)
	}
	var posts []schemas.SocialPost
	for _, item := range doc.Feed {
		rkey := item.Post.URI[strings.LastIndexByte(item.Post.URI, '/')+1:]
		post := schemas.SocialPost{
			Platform: "bluesky",
			Username: handle,
			PostID:   rkey,
			URL:      fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey),
			Content:  item.Post.Record.Text,
			Likes:    item.Post.LikeCount,
			Replies:  item.Post.ReplyCount,
			Shares:   item.Post.RepostCount,
			Hashtags: crossref.Hashtags(item.Post.Record.Text),
			Mentions: crossref.Mentions(item.Post.Record.Text),
		}
		if t := parseTime(item.Post.Record.CreatedAt); t != nil {
			post.PostedAt = *t
		}
		posts = append(posts, post)
	}
	return postsResult(p.base, posts, limit)
}

// -- GitLab --

type GitLabPlatform struct {
	base
	baseURL string
}

func NewGitLabPlatform(d Deps) *GitLabPlatform {
	return &GitLabPlatform{base: newBase("gitlab", d), baseURL: d.Providers.GitLabURL}
}

type gitlabUser struct {
	ID         int    `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url"`
	WebURL     string `json:"web_url"`
	Bio        string `json:"bio"`
	Location   string `json:"location"`
	WebsiteURL string `json:"website_url"`
	CreatedAt  string `json:"created_at"`
	Followers  int    `json:"followers"`
	Following  int    `json:"following"`
	PublicMail string `json:"public_email"`
}

func (p *GitLabPlatform) Lookup(ctx context.Context, username string) schemas.Result[schemas.PlatformProfile] {
	var users []gitlabUser
	resp := p.fetch.GetJSON(ctx, withQuery(joinURL(p.baseURL, "api", "v4", "users"), url.Values{"username": {username}}), nil, &users)
	if !resp.OK() {
		return absentFrom[schemas.PlatformProfile](p.base, resp)
	}
	if len(users) == 0 {
		return absent[schemas.PlatformProfile](p.base, "not found")
	}
	user := users[0]
	var detail gitlabUser
	if r := p.fetch.GetJSON(ctx, joinURL(p.baseURL, "api", "v4", "users", strconv.Itoa(user.ID)), nil, &detail); r.OK() {
		user = detail
	}
	prof := schemas.PlatformProfile{
		Platform:    "gitlab",
		Username:    user.Username,
		DisplayName: user.Name,
		ProfileURL:  user.WebURL,
		Bio:         user.Bio,
		AvatarURL:   user.AvatarURL,
		Location:    user.Location,
		Website:     user.WebsiteURL,
		Followers:   user.Followers,
		Following:   user.Following,
		CreatedAt:   parseTime(user.CreatedAt),
	}
	if user.PublicMail != "" {
		prof.Metadata = map[string]string{"public_email": user.PublicMail}
	}
	prof.Text = profileText(prof)
	p.found()
	return schemas.Found(prof)
}

// -- Hacker News --

type HackerNewsPlatform struct {
	base
	baseURL string
}

func NewHackerNewsPlatform(d Deps) *HackerNewsPlatform {
	return &HackerNewsPlatform{base: newBase("hackernews", d), baseURL: d.Providers.HackerNewsURL}
}

type hnUser struct {
	ID        string  `json:"id"`
	Created   float64 `json:"created"`
	Karma     int     `json:"karma"`
	About     string  `json:"about"`
	Submitted []int   `json:"submitted"`
}

func (p *HackerNewsPlatform) Lookup(ctx context.Context, username string) schemas.Result[schemas.PlatformProfile] {
	var user *hnUser
	resp := p.fetch.GetJSON(ctx, joinURL(p.baseURL, "user", url.PathEscape(username)+".json"), nil, &user)
	if !resp.OK() {
		return absentFrom[schemas.PlatformProfile](p.base, resp)
	}
	if user == nil || user.ID == "" {
		return absent[schemas.PlatformProfile](p.base, "not found")
	}
	about := textOf(htmlFragment(user.About))
	prof := schemas.PlatformProfile{
		Platform:   "hackernews",
		Username:   user.ID,
		ProfileURL: "https://news.ycombinator.com/user?id=" + url.QueryEscape(user.ID),
		Bio:        about,
		PostCount:  len(user.Submitted),
		CreatedAt:  unixTime(user.Created),
		Metadata:   map[string]string{"karma": strconv.Itoa(user.Karma)},
	}
	prof.Text = profileText(prof)
	p.found()
	return schemas.Found(prof)
}

// -- Keybase --

type KeybasePlatform struct {
	base
	baseURL string
}

func NewKeybasePlatform(d Deps) *KeybasePlatform {
	return &KeybasePlatform{base: newBase("keybase", d), baseURL: d.Providers.KeybaseURL}
}

type keybaseLookup struct {
	Status struct {
		Code int `json:"code"`
	} `json:"status"`
	Them []*struct {
		Basics struct {
			Username string `json:"username"`
		} `json:"basics"`
		Profile struct {
			FullName string `json:"full_name"`
			Bio      string `json:"bio"`
			Location string `json:"location"`
		} `json:"profile"`
		ProofsSummary struct {
			All []struct {
				ProofType  string `json:"proof_type"`
				Nametag    string `json:"nametag"`
				ServiceURL string `json:"service_url"`
			} `json:"all"`
		} `json:"proofs_summary"`
	} `json:"them"`
}

// Lookup includes the account's verified proofs in Metadata, keyed by proof
// type, which links the handle to accounts on other platforms.
func (p *KeybasePlatform) Lookup(ctx context.Context, username string) schemas.Result[schemas.PlatformProfile] {
	var doc keybaseLookup
	u := withQuery(joinURL(p.baseURL, "_", "api", "1.0", "user", "lookup.json"),
		url.Values{"usernames": {username}, "fields": {"basics,profile,proofs_summary"}})
	resp := p.fetch.GetJSON(ctx, u, nil, &doc)
	if !resp.OK() {
		return absentFrom[schemas.PlatformProfile](p.base, resp)
	}
	if doc.Status.Code != 0 || len(doc.Them) == 0 || doc.Them[0] == nil {
		return absent[schemas.PlatformProfile](p.base, "not found")
	}
	them := doc.Them[0]
	prof := schemas.PlatformProfile{
		Platform:    "keybase",
		Username:    them.Basics.Username,
		DisplayName: them.Profile.FullName,
		ProfileURL:  "https://keybase.io/" + them.Basics.Username,
		Bio:         them.Profile.Bio,
		Location:    them.Profile.Location,
		Verified:    len(them.ProofsSummary.All) > 0,
	}
	var proofURLs []string
	for _, pr := range them.ProofsSummary.All {
		if prof.Metadata == nil {
			prof.Metadata = map[string]string{}
		}
		prof.Metadata["proof_"+pr.ProofType] = pr.Nametag
		proofURLs = append(proofURLs, pr.ServiceURL)
	}
	prof.Text = profileText(prof, proofURLs...)
	p.found()
	return schemas.Found(prof)
}

func postsResult(b base, posts []schemas.SocialPost, limit int) schemas.Result[[]schemas.SocialPost] {
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	if len(posts) == 0 {
		return absent[[]schemas.SocialPost](b, "no posts")
	}
	b.found()
	return schemas.Found(posts)
}
