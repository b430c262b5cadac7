package social

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/providers"
	"github.com/xkilldash9x/specter/internal/workpool"
)

const defaultMaxPosts = 50

// PostsOutput is the output of the social_posts step.
type PostsOutput struct {
	Posts     []schemas.SocialPost
	Analytics []schemas.PostAnalytics
	Notes     []string
}

// PostCollector pulls recent posts for the profiles that clear the post
// threshold.
type PostCollector struct {
	fetchers map[string]providers.PostFetcher
	cfg      config.SocialConfig
	pool     workpool.Pool
	logger   *zap.Logger
}

func NewPostCollector(set *providers.Set, cfg config.SocialConfig, logger *zap.Logger) *PostCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("social.posts")
	var fetchers map[string]providers.PostFetcher
	if set != nil {
		fetchers = set.Posts
	}
	return &PostCollector{
		fetchers: fetchers,
		cfg:      cfg,
		pool:     workpool.New(defaultWorkers, defaultDeadline, logger),
		logger:   logger,
	}
}

func (c *PostCollector) threshold() float64 {
	if c.cfg.PostThreshold > 0 {
		return c.cfg.PostThreshold
	}
	return 0.75
}

// limit is the per-profile post cap: the investigation's flag, then the
// configured default.
func (c *PostCollector) limit(flags schemas.ProcessingFlags) int {
	if flags.MaxPostsPerProfile > 0 {
		return flags.MaxPostsPerProfile
	}
	if c.cfg.MaxPostsPerProfile > 0 {
		return c.cfg.MaxPostsPerProfile
	}
	return defaultMaxPosts
}

type postTask struct {
	profile schemas.SocialProfile
	fetcher providers.PostFetcher
}

// Collect fetches posts for every eligible profile and analyzes each
// profile's posts. Profiles on platforms without a post fetcher are skipped.
func (c *PostCollector) Collect(ctx context.Context, inv *schemas.Investigation, profiles []schemas.SocialProfile) PostsOutput {
	logger := c.logger.With(zap.String("investigation_id", inv.ID))
	threshold := c.threshold()
	limit := c.limit(inv.Flags)

	var tasks []postTask
	for _, p := range profiles {
		f, ok := c.fetchers[p.Platform]
		if !ok || p.Confidence < threshold {
			continue
		}
		tasks = append(tasks, postTask{profile: p, fetcher: f})
	}
	var out PostsOutput
	if len(tasks) == 0 {
		logger.Info("No profiles eligible for post collection", zap.Int("profiles", len(profiles)))
		return out
	}

	outcomes := workpool.Map(ctx, c.pool, tasks, func(ctx context.Context, t postTask) ([]schemas.SocialPost, error) {
		posts, _ := t.fetcher.Posts(ctx, t.profile.Username, limit).Get()
		return posts, nil
	})

	for i, o := range outcomes {
		p := tasks[i].profile
		if !o.OK() {
			out.Notes = append(out.Notes, fmt.Sprintf("posts for %s failed (continuing): %v", p.Key(), o.Err))
			continue
		}
		posts := normalizePosts(inv.ID, p, o.Value, limit)
		if len(posts) == 0 {
			continue
		}
		out.Posts = append(out.Posts, posts...)
		out.Analytics = append(out.Analytics, Analyze(p.Platform, p.Username, posts))
	}
	logger.Info("Post collection finished",
		zap.Int("profiles", len(tasks)),
		zap.Int("posts", len(out.Posts)))
	return out
}

func normalizePosts(invID string, p schemas.SocialProfile, posts []schemas.SocialPost, limit int) []schemas.SocialPost {
	seen := make(map[string]bool, len(posts))
	out := make([]schemas.SocialPost, 0, min(len(posts), limit))
	for _, post := range posts {
		if len(out) == limit {
			break
		}
		if post.PostID == "" {
			post.PostID = syntheticPostID(post)
		}
		if seen[post.PostID] {
			continue
		}
		seen[post.PostID] = true
		post.ID = uuid.NewString()
		post.InvestigationID = invID
		if post.Platform == "" {
			post.Platform = p.Platform
		}
		if post.Username == "" {
			post.Username = p.Username
		}
		out = append(out, post)
	}
	return out
}

// syntheticPostID derives a stable key for posts the platform gave no id, so
// they keep distinct rows under the (investigation, platform, post_id) key.
func syntheticPostID(post schemas.SocialPost) string {
	sum := sha256.Sum256([]byte(post.URL + "\x00" + post.PostedAt.UTC().Format(time.RFC3339Nano) + "\x00" + post.Content))
	return "sha256:" + hex.EncodeToString(sum[:12])
}
