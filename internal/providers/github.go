package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v58/github"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/crossref"
	"github.com/xkilldash9x/specter/internal/network"
	"github.com/xkilldash9x/specter/internal/observability"
)

// GitHubPlatform looks users and their public activity up through the
// GitHub REST API.
type GitHubPlatform struct {
	base
	client  *github.Client
	timeout time.Duration
}

func NewGitHubPlatform(d Deps) *GitHubPlatform {
	var httpClient *http.Client
	timeout := 15 * time.Second
	if d.Fetcher != nil {
		httpClient = d.Fetcher.Client()
		timeout = d.Fetcher.Timeout()
	}
	client := github.NewClient(httpClient)
	if d.Providers.GitHubToken != "" {
		client = client.WithAuthToken(d.Providers.GitHubToken)
	}
	if d.Providers.GitHubURL != "" {
		baseURL := d.Providers.GitHubURL
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		if u, err := url.Parse(baseURL); err == nil {
			client.BaseURL = u
		}
	}
	return &GitHubPlatform{base: newBase("github", d), client: client, timeout: timeout}
}

func (p *GitHubPlatform) Lookup(ctx context.Context, username string) schemas.Result[schemas.PlatformProfile] {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	user, resp, err := p.client.Users.Get(ctx, username)
	if err != nil {
		return p.absentErr(resp, err)
	}
	prof := schemas.PlatformProfile{
		Platform:    "github",
		Username:    user.GetLogin(),
		DisplayName: user.GetName(),
		ProfileURL:  user.GetHTMLURL(),
		Bio:         user.GetBio(),
		AvatarURL:   user.GetAvatarURL(),
		Location:    user.GetLocation(),
		Website:     user.GetBlog(),
		Followers:   user.GetFollowers(),
		Following:   user.GetFollowing(),
		PostCount:   user.GetPublicRepos(),
	}
	if created := user.GetCreatedAt(); !created.IsZero() {
		t := created.Time.UTC()
		prof.CreatedAt = &t
	}
	meta := map[string]string{}
	if v := user.GetCompany(); v != "" {
		meta["company"] = v
	}
	if v := user.GetEmail(); v != "" {
		meta["email"] = v
	}
	if v := user.GetTwitterUsername(); v != "" {
		meta["twitter"] = v
	}
	if len(meta) > 0 {
		prof.Metadata = meta
	}
	prof.Text = profileText(prof)
	p.found()
	return schemas.Found(prof)
}

// Posts turns the user's recent public events into posts.
func (p *GitHubPlatform) Posts(ctx context.Context, username string, limit int) schemas.Result[[]schemas.SocialPost] {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	events, resp, err := p.client.Activity.ListEventsPerformedByUser(ctx, username, true, &github.ListOptions{PerPage: min(max(limit, 1), 100)})
	if err != nil {
		return p.absentErrPosts(resp, err)
	}
	var posts []schemas.SocialPost
	for _, ev := range events {
		content := eventSummary(ev)
		if content == "" {
			continue
		}
		post := schemas.SocialPost{
			Platform: "github",
			Username: username,
			PostID:   ev.GetID(),
			URL:      "https://github.com/" + ev.GetRepo().GetName(),
			Content:  content,
			Hashtags: crossref.Hashtags(content),
			Mentions: crossref.Mentions(content),
		}
		if ts := ev.GetCreatedAt(); !ts.IsZero() {
			post.PostedAt = ts.Time.UTC()
		}
		posts = append(posts, post)
	}
	return postsResult(p.base, posts, limit)
}

func eventSummary(ev *github.Event) string {
	repo := ev.GetRepo().GetName()
	payload, err := ev.ParsePayload()
	if err != nil {
		return fmt.Sprintf("%s on %s", ev.GetType(), repo)
	}
	switch pl := payload.(type) {
	case *github.PushEvent:
		var msgs []string
		for _, c := range pl.Commits {
			msgs = append(msgs, c.GetMessage())
		}
		return fmt.Sprintf("pushed %d commit(s) to %s: %s", len(pl.Commits), repo, strings.Join(msgs, "; "))
	case *github.IssuesEvent:
		return fmt.Sprintf("%s issue on %s: %s", pl.GetAction(), repo, pl.GetIssue().GetTitle())
	case *github.IssueCommentEvent:
		return fmt.Sprintf("commented on %s: %s", repo, pl.GetComment().GetBody())
	case *github.PullRequestEvent:
		return fmt.Sprintf("%s pull request on %s: %s", pl.GetAction(), repo, pl.GetPullRequest().GetTitle())
	case *github.WatchEvent:
		return "starred " + repo
	case *github.CreateEvent:
		return fmt.Sprintf("created %s %s on %s", pl.GetRefType(), pl.GetRef(), repo)
	}
	return fmt.Sprintf("%s on %s", ev.GetType(), repo)
}

func (p *GitHubPlatform) absentErr(resp *github.Response, err error) schemas.Result[schemas.PlatformProfile] {
	reason, outcome := classifyGitHubErr(resp, err)
	p.metrics.ProviderCall(p.name, outcome)
	return schemas.Absent[schemas.PlatformProfile](reason)
}

func (p *GitHubPlatform) absentErrPosts(resp *github.Response, err error) schemas.Result[[]schemas.SocialPost] {
	reason, outcome := classifyGitHubErr(resp, err)
	p.metrics.ProviderCall(p.name, outcome)
	return schemas.Absent[[]schemas.SocialPost](reason)
}

func classifyGitHubErr(resp *github.Response, err error) (string, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return network.ReasonTimedOut, observability.ProviderTimeout
	case resp != nil && resp.StatusCode == http.StatusNotFound:
		return "not found", observability.ProviderAbsent
	case resp != nil:
		return "http " + strconv.Itoa(resp.StatusCode), observability.ProviderError
	}
	return err.Error(), observability.ProviderError
}
