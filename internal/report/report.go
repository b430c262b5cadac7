// Package report assembles the final investigation document from the stored
// step outputs. Rendering is left to callers.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/social"
)

// Input is every stored output the report draws on. Everything except the
// investigation may be missing.
type Input struct {
	Investigation *schemas.Investigation
	Envelope      *schemas.Envelope
	AI            *schemas.AIOutput
	Deconfliction *schemas.DeconflictionReport
	Profiles      []schemas.SocialProfile
	Posts         []schemas.SocialPost
	Markers       []schemas.GeoMarker
}

// Builder assembles reports.
type Builder struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewBuilder(logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{logger: logger.Named("report"), now: func() time.Time { return time.Now().UTC() }}
}

// Build assembles the report. Sections with nothing to say are left out.
func (b *Builder) Build(in Input) *schemas.Report {
	inv := in.Investigation
	r := &schemas.Report{
		InvestigationID: inv.ID,
		Target:          inv.Target(),
		GeneratedAt:     b.now(),
	}
	if in.AI != nil {
		r.Summary = in.AI.Narrative
		risk := in.AI.Risk
		r.Risk = &risk
	} else {
		r.Summary = fmt.Sprintf("No analysis is available for %s %q.", inv.TargetType, inv.TargetValue)
	}

	for _, s := range []schemas.ReportSection{
		riskSection(in.AI),
		identitySection(in.Envelope, in.AI),
		exposureSection(in.Envelope),
		profilesSection(in.Profiles),
		patternsSection(in.Posts),
		recordsSection(in.Envelope),
		conflictsSection(in.Deconfliction),
		locationsSection(in.Markers),
		associatesSection(in.Envelope),
		flagsSection(in.Envelope),
	} {
		if len(s.Lines) > 0 {
			r.Sections = append(r.Sections, s)
		}
	}
	if r.Sections == nil {
		r.Sections = []schemas.ReportSection{}
	}
	b.logger.Debug("Report assembled", zap.String("investigation_id", inv.ID), zap.Int("sections", len(r.Sections)))
	return r
}

func riskSection(ai *schemas.AIOutput) schemas.ReportSection {
	s := schemas.ReportSection{Title: "Risk"}
	if ai == nil {
		return s
	}
	source := "heuristic"
	if ai.Enhanced {
		source = "model: " + ai.Model
	}
	s.Lines = append(s.Lines, fmt.Sprintf("Score %d/100, level %s, verdict %s (%s)", ai.Risk.Score, ai.Risk.Level, ai.Risk.Verdict, source))
	for _, f := range ai.Risk.Factors {
		s.Lines = append(s.Lines, fmt.Sprintf("+%d %s: %s", f.Points, f.Name, f.Detail))
	}
	return s
}

func identitySection(env *schemas.Envelope, ai *schemas.AIOutput) schemas.ReportSection {
	s := schemas.ReportSection{Title: "Identity"}
	if env == nil {
		return s
	}
	ids := env.Identifiers
	for _, row := range []struct {
		label  string
		values []string
	}{
		{"Emails", ids.Emails},
		{"Phones", ids.Phones},
		{"Usernames", ids.Usernames},
		{"Domains", ids.Domains},
	} {
		if len(row.values) > 0 {
			s.Lines = append(s.Lines, row.label+": "+strings.Join(row.values, ", "))
		}
	}
	if ai != nil {
		for _, h := range ai.Graph.Handles {
			s.Lines = append(s.Lines, fmt.Sprintf("Account %s/%s (confidence %.2f)", h.Platform, h.Username, h.Confidence))
		}
	}
	return s
}

func exposureSection(env *schemas.Envelope) schemas.ReportSection {
	s := schemas.ReportSection{Title: "Breaches and exposure"}
	if env == nil || env.Exposure == nil {
		return s
	}
	for _, b := range env.Exposure.Breaches {
		line := fmt.Sprintf("Breach %s (%s)", b.Name, b.Account)
		if b.BreachDate != "" {
			line += " on " + b.BreachDate
		}
		if len(b.DataClasses) > 0 {
			line += ": " + strings.Join(b.DataClasses, ", ")
		}
		s.Lines = append(s.Lines, line)
	}
	for _, m := range env.Exposure.Mentions {
		s.Lines = append(s.Lines, fmt.Sprintf("Mention on %s: %s", m.Source, m.URL))
	}
	if n := len(env.Exposure.ExtraContacts); n > 0 {
		s.Lines = append(s.Lines, fmt.Sprintf("%d additional contacts found in mentions", n))
	}
	return s
}

func profilesSection(profiles []schemas.SocialProfile) schemas.ReportSection {
	s := schemas.ReportSection{Title: "Social profiles"}
	for _, p := range profiles {
		line := fmt.Sprintf("%s/%s %s (confidence %.2f, risk %d, via %s)", p.Platform, p.Username, p.ProfileURL, p.Confidence, p.RiskScore, p.DiscoveryMethod)
		if social.IsNSFW(p) {
			line += " [nsfw]"
		}
		s.Lines = append(s.Lines, line)
	}
	return s
}

// patternsSection re-derives the per-profile analytics from the stored posts.
func patternsSection(posts []schemas.SocialPost) schemas.ReportSection {
	s := schemas.ReportSection{Title: "Posting patterns"}
	byProfile := map[string][]schemas.SocialPost{}
	var keys []string
	for _, p := range posts {
		k := p.Platform + "/" + p.Username
		if _, ok := byProfile[k]; !ok {
			keys = append(keys, k)
		}
		byProfile[k] = append(byProfile[k], p)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ps := byProfile[k]
		a := social.Analyze(ps[0].Platform, ps[0].Username, ps)
		line := fmt.Sprintf("%s: %d posts, %.0f%% at night", k, a.PostCount, a.NightRatio*100)
		if len(a.TopHashtags) > 0 {
			line += ", top hashtag #" + a.TopHashtags[0].Tag
		}
		if a.Flagged() {
			line += " [" + strings.Join(a.Flags, ", ") + "]"
		}
		s.Lines = append(s.Lines, line)
	}
	return s
}

func recordsSection(env *schemas.Envelope) schemas.ReportSection {
	s := schemas.ReportSection{Title: "Public records"}
	if env == nil || env.Records == nil {
		return s
	}
	rec := env.Records
	for _, group := range [][]schemas.Record{rec.Property, rec.Court, rec.Criminal} {
		for _, r := range group {
			s.Lines = append(s.Lines, fmt.Sprintf("%s record: %s (%s)", r.Kind, r.Title, r.Source))
		}
	}
	if p := rec.Plate; p != nil {
		line := "Plate " + strings.TrimSpace(p.State+" "+p.Plate)
		if v := strings.TrimSpace(fmt.Sprintf("%s %s", p.Make, p.Model)); v != "" {
			line += ": " + v
		}
		if p.OwnerName != "" {
			line += ", registered to " + p.OwnerName
		}
		s.Lines = append(s.Lines, line)
	}
	return s
}

func conflictsSection(d *schemas.DeconflictionReport) schemas.ReportSection {
	s := schemas.ReportSection{Title: "Conflicts"}
	for _, c := range d.Conflicts() {
		s.Lines = append(s.Lines, fmt.Sprintf("%s (%s): %s", c.Field, c.Severity, strings.Join(c.Values, " vs ")))
	}
	return s
}

func locationsSection(markers []schemas.GeoMarker) schemas.ReportSection {
	s := schemas.ReportSection{Title: "Locations"}
	for _, m := range markers {
		s.Lines = append(s.Lines, fmt.Sprintf("%s [%s] %.4f, %.4f", m.Label, m.Kind, m.Lat, m.Lon))
	}
	return s
}

func associatesSection(env *schemas.Envelope) schemas.ReportSection {
	s := schemas.ReportSection{Title: "Associates"}
	if env == nil || env.Connections == nil {
		return s
	}
	for _, a := range env.Connections.Associates {
		line := fmt.Sprintf("%s (%d mentions: %s)", a.Name, a.Mentions, strings.Join(a.Sources, ", "))
		if a.Risky {
			line += " [" + a.Reason + "]"
		}
		s.Lines = append(s.Lines, line)
	}
	return s
}

func flagsSection(env *schemas.Envelope) schemas.ReportSection {
	s := schemas.ReportSection{Title: "Collection flags"}
	if env != nil && len(env.Flags) > 0 {
		s.Lines = append(s.Lines, strings.Join(env.Flags, ", "))
	}
	return s
}
