// Package social turns the username matches of the osint step into persisted
// profiles, registers them for monitoring, collects their recent posts and
// summarizes posting behavior.
package social

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/confidence"
	"github.com/xkilldash9x/specter/internal/crossref"
	"github.com/xkilldash9x/specter/internal/providers"
	"github.com/xkilldash9x/specter/internal/workpool"
)

const (
	defaultWorkers  = 3
	defaultDeadline = 30 * time.Second
)

// Discovery is the output of the social_profiles step.
type Discovery struct {
	Profiles   []schemas.SocialProfile
	Monitoring []schemas.MonitoringRegistration
}

// Discoverer filters platform matches by confidence and resolves profile links
// that collection saw but never probed.
type Discoverer struct {
	providers *providers.Set
	cfg       config.SocialConfig
	pool      workpool.Pool
	logger    *zap.Logger
	now       func() time.Time
}

func NewDiscoverer(set *providers.Set, cfg config.SocialConfig, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("social")
	return &Discoverer{
		providers: set,
		cfg:       cfg,
		pool:      workpool.New(defaultWorkers, defaultDeadline, logger),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Threshold is the minimum confidence a profile needs to be kept for an
// investigation of type t. Strong identifiers demand more than names do.
func (d *Discoverer) Threshold(t schemas.TargetType) float64 {
	c := d.cfg
	var v float64
	switch t {
	case schemas.TargetUsername:
		v = c.UsernameThreshold
	case schemas.TargetEmail:
		v = c.EmailThreshold
	case schemas.TargetPhone:
		v = c.PhoneThreshold
	case schemas.TargetDomain:
		v = c.DomainThreshold
	case schemas.TargetName:
		v = c.NameThreshold
	default:
		v = c.DefaultThreshold
	}
	if v <= 0 {
		return 0.5
	}
	return v
}

// Discover builds the profiles for inv from its envelope. A nil envelope
// yields an empty discovery.
func (d *Discoverer) Discover(ctx context.Context, inv *schemas.Investigation, env *schemas.Envelope) Discovery {
	logger := d.logger.With(zap.String("investigation_id", inv.ID))
	if env == nil {
		logger.Info("No envelope, nothing to discover")
		return Discovery{}
	}
	threshold := d.Threshold(inv.TargetType)
	now := d.now()

	var profiles []schemas.SocialProfile
	seen := map[string]bool{}
	if env.Username != nil {
		method := schemas.DiscoveryUsernameProbe
		if env.Username.Pass == 2 {
			method = schemas.DiscoverySecondPass
		}
		for _, m := range env.Username.Matches {
			key := m.Platform + "/" + strings.ToLower(m.Username)
			if m.Confidence < threshold || seen[key] {
				continue
			}
			seen[key] = true
			profiles = append(profiles, d.profile(inv.ID, m, method, now))
		}
	}

	for _, m := range d.resolveLinks(ctx, inv, env, seen) {
		if m.Confidence < threshold {
			continue
		}
		profiles = append(profiles, d.profile(inv.ID, m, schemas.DiscoveryCollection, now))
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].Confidence != profiles[j].Confidence {
			return profiles[i].Confidence > profiles[j].Confidence
		}
		return profiles[i].Key() < profiles[j].Key()
	})

	out := Discovery{Profiles: profiles}
	if inv.Flags.RealtimeMonitoring {
		for _, p := range profiles {
			out.Monitoring = append(out.Monitoring, schemas.MonitoringRegistration{
				InvestigationID: inv.ID,
				Platform:        p.Platform,
				Username:        p.Username,
				ProfileURL:      p.ProfileURL,
				Realtime:        true,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
	}
	logger.Info("Social discovery finished",
		zap.Float64("threshold", threshold),
		zap.Int("profiles", len(profiles)))
	return out
}

type linkTask struct {
	platform providers.Platform
	handle   string
}

// resolveLinks looks up the profile links collection found on pages that are
// not already covered by a match.
func (d *Discoverer) resolveLinks(ctx context.Context, inv *schemas.Investigation, env *schemas.Envelope, seen map[string]bool) []schemas.PlatformMatch {
	if env.Social == nil || d.providers == nil {
		return nil
	}
	byName := map[string]providers.Platform{}
	for _, p := range d.providers.FilterPlatforms(inv.Flags.Platforms) {
		byName[p.Name()] = p
	}
	var tasks []linkTask
	for _, l := range env.Social.Links {
		platform, handle, ok := crossref.ProfileURLPlatform(l.URL)
		if !ok {
			continue
		}
		key := platform + "/" + strings.ToLower(handle)
		p, known := byName[platform]
		if !known || seen[key] {
			continue
		}
		seen[key] = true
		tasks = append(tasks, linkTask{platform: p, handle: handle})
	}
	if len(tasks) == 0 {
		return nil
	}

	outcomes := workpool.Map(ctx, d.pool, tasks, func(ctx context.Context, t linkTask) (*schemas.PlatformMatch, error) {
		prof, ok := t.platform.Lookup(ctx, t.handle).Get()
		if !ok {
			return nil, nil
		}
		m := &schemas.PlatformMatch{
			PlatformProfile: prof,
			Candidate:       t.handle,
			Evidence:        crossref.FindEvidence(prof.Text, env.Identifiers, t.handle),
		}
		m.Confidence = confidence.Score(confidence.Input{
			TargetType:  inv.TargetType,
			TargetValue: inv.TargetValue,
			Username:    prof.Username,
			DisplayName: prof.DisplayName,
			Evidence:    m.Evidence,
		})
		return m, nil
	})
	var out []schemas.PlatformMatch
	for _, m := range workpool.Values(outcomes) {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func (d *Discoverer) profile(invID string, m schemas.PlatformMatch, method string, now time.Time) schemas.SocialProfile {
	meta := make(map[string]string, len(m.Metadata)+6)
	for k, v := range m.Metadata {
		meta[k] = v
	}
	if m.NSFW {
		meta["nsfw"] = "true"
	}
	if m.Location != "" {
		meta["location"] = m.Location
	}
	if m.Website != "" {
		meta["website"] = m.Website
	}
	if m.AvatarURL != "" {
		meta["avatar_url"] = m.AvatarURL
	}
	if m.CreatedAt != nil {
		meta["created_at"] = m.CreatedAt.UTC().Format(time.RFC3339)
	}
	if len(m.Evidence) > 0 {
		kinds := make([]string, len(m.Evidence))
		for i, e := range m.Evidence {
			kinds[i] = string(e)
		}
		meta["evidence"] = strings.Join(kinds, ",")
	}
	return schemas.SocialProfile{
		ID:              uuid.NewString(),
		InvestigationID: invID,
		Platform:        m.Platform,
		Username:        m.Username,
		DisplayName:     m.DisplayName,
		ProfileURL:      m.ProfileURL,
		Bio:             m.Bio,
		Followers:       m.Followers,
		Following:       m.Following,
		PostCount:       m.PostCount,
		Verified:        m.Verified,
		Confidence:      m.Confidence,
		DiscoveryMethod: method,
		RiskScore:       ProfileRisk(m, now),
		Metadata:        meta,
		CreatedAt:       now,
	}
}

// ProfileRisk scores a single profile from 0 to 100.
func ProfileRisk(m schemas.PlatformMatch, now time.Time) int {
	score := 0
	if m.NSFW {
		score += 40
	}
	if m.CreatedAt != nil && now.Sub(*m.CreatedAt) < 30*24*time.Hour {
		score += 20
	}
	if m.Followers == 0 && m.PostCount == 0 {
		score += 10
	}
	if !m.HasEvidence() {
		score += 15
	}
	if m.Verified {
		score -= 10
	}
	return min(max(score, 0), 100)
}

// IsNSFW reports whether a stored profile was flagged adult by its platform.
func IsNSFW(p schemas.SocialProfile) bool {
	v, _ := strconv.ParseBool(p.Metadata["nsfw"])
	return v
}
