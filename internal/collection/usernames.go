package collection

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/confidence"
	"github.com/xkilldash9x/specter/internal/crossref"
	"github.com/xkilldash9x/specter/internal/providers"
	"github.com/xkilldash9x/specter/internal/workpool"
)

// candidate is a handle to probe. Weak candidates are guesses (separator
// variants, name permutations) and only count when a profile page carries
// corroborating evidence.
type candidate struct {
	value string
	weak  bool
}

const defaultMaxCandidates = 12

var separators = []string{".", "_", "-"}

// DerivedUsernames turns an email local part into handles: the local part
// itself first, then its separator variants.
func DerivedUsernames(local string) []string {
	local = crossref.NormalizeUsername(local)
	if local == "" {
		return nil
	}
	out := []string{local}
	parts := strings.FieldsFunc(local, func(r rune) bool { return strings.ContainsRune("._-", r) })
	if len(parts) < 2 {
		return out
	}
	out = append(out, strings.Join(parts, ""))
	for _, sep := range separators {
		out = append(out, strings.Join(parts, sep))
	}
	return dedupeStrings(out)
}

// NamePermutations guesses handles for a person's name.
func NamePermutations(name string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(name)) {
		w = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) {
				return r
			}
			return -1
		}, w)
		if len(w) > 1 {
			words = append(words, w)
		}
	}
	if len(words) < 2 {
		return words
	}
	first, last := words[0], words[len(words)-1]
	out := []string{first + last}
	for _, sep := range separators {
		out = append(out, first+sep+last)
	}
	out = append(out, first[:1]+last, first+last[:1], last+first, last+"."+first)
	return dedupeStrings(out)
}

func (r *run) addCandidate(value string, weak bool) {
	value = crossref.NormalizeUsername(value)
	if value == "" {
		return
	}
	for i, c := range r.candidates {
		if c.value == value {
			// A strong sighting upgrades an earlier guess.
			if !weak {
				r.candidates[i].weak = false
			}
			return
		}
	}
	r.candidates = append(r.candidates, candidate{value: value, weak: weak})
}

// probeSet is the seed candidates followed by the accumulated usernames, up
// to the configured maximum.
func (r *run) probeSet() []candidate {
	limit := r.c.cfg.MaxCandidates
	if limit <= 0 {
		limit = defaultMaxCandidates
	}
	out := append([]candidate(nil), r.candidates...)
	have := make(map[string]bool, len(out))
	for _, c := range out {
		have[c.value] = true
	}
	for _, u := range r.acc.Usernames() {
		if !have[u] {
			have[u] = true
			out = append(out, candidate{value: u})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

type probeTask struct {
	cand     candidate
	platform providers.Platform
}

// probeUsernames checks every candidate on every allowed platform and scores
// each hit against the target using the identifiers known right now.
func (r *run) probeUsernames(ctx context.Context) []schemas.PlatformMatch {
	cands := r.probeSet()
	platforms := r.c.providers.FilterPlatforms(r.flags.Platforms)
	if len(cands) == 0 || len(platforms) == 0 {
		return nil
	}
	known := r.acc.Snapshot()
	tasks := make([]probeTask, 0, len(cands)*len(platforms))
	for _, c := range cands {
		for _, p := range platforms {
			tasks = append(tasks, probeTask{cand: c, platform: p})
		}
	}

	outcomes := workpool.Map(ctx, r.pool, tasks, func(ctx context.Context, t probeTask) (*schemas.PlatformMatch, error) {
		prof, ok := t.platform.Lookup(ctx, t.cand.value).Get()
		if !ok {
			return nil, nil
		}
		m := &schemas.PlatformMatch{
			PlatformProfile: prof,
			Candidate:       t.cand.value,
			Weak:            t.cand.weak,
			Evidence:        crossref.FindEvidence(prof.Text, known, t.cand.value),
		}
		m.Confidence = confidence.Score(confidence.Input{
			TargetType:  r.inv.TargetType,
			TargetValue: r.inv.TargetValue,
			Username:    prof.Username,
			DisplayName: prof.DisplayName,
			Evidence:    m.Evidence,
			Weak:        t.cand.weak,
		})
		return m, nil
	})

	var matches []schemas.PlatformMatch
	seen := map[string]bool{}
	for _, o := range outcomes {
		if !o.OK() || o.Value == nil {
			continue
		}
		m := *o.Value
		// Weak guesses with no evidence are not matches at all.
		if m.Weak && !m.HasEvidence() {
			continue
		}
		key := m.Platform + "/" + strings.ToLower(m.Username)
		if seen[key] {
			continue
		}
		seen[key] = true
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	r.logger.Debug("Username probe finished",
		zap.Int("candidates", len(cands)),
		zap.Int("platforms", len(platforms)),
		zap.Int("matches", len(matches)))
	return matches
}

// absorbMatches feeds corroborated profiles back into the accumulator and
// queues their avatars as image candidates.
func (r *run) absorbMatches(matches []schemas.PlatformMatch) {
	for _, m := range matches {
		if !m.HasEvidence() && m.Candidate != r.strongest() {
			continue
		}
		r.acc.Absorb(m.Text)
		r.addCorpus("social:"+m.Platform, m.Bio)
		if m.Website != "" {
			r.acc.AddDomain(m.Website)
			r.addURL(m.Website)
		}
		if m.Location != "" {
			r.locate(m.Location, "", "social:"+m.Platform)
		}
		if m.AvatarURL != "" {
			r.imageRefs = append(r.imageRefs, imageRef{url: m.AvatarURL, source: m.Platform})
		}
		if m.DisplayName != "" {
			r.assert(schemas.FieldName, m.DisplayName, schemas.SourceSocial, m.Confidence, m.Platform+"/"+m.Username)
		}
		for k, v := range m.Metadata {
			if strings.HasPrefix(k, "proof_") {
				r.acc.AddUsername(v)
			}
		}
	}
}

// strongest is the first non-weak seed candidate, the handle the target
// itself points at.
func (r *run) strongest() string {
	for _, c := range r.candidates {
		if !c.weak {
			return c.value
		}
	}
	return ""
}

// secondPass re-probes with the full accumulator. Its result replaces the
// first pass only when at least one of its matches carries evidence.
func (r *run) secondPass(ctx context.Context, first []schemas.PlatformMatch) {
	second := r.probeUsernames(ctx)
	useSecond := false
	for _, m := range second {
		if m.HasEvidence() {
			useSecond = true
			break
		}
	}
	sec := r.env.Username
	sec.Candidates = nil
	for _, c := range r.probeSet() {
		sec.Candidates = append(sec.Candidates, c.value)
	}
	if !useSecond {
		r.logger.Debug("Keeping first username pass", zap.Int("first", len(first)), zap.Int("second", len(second)))
		return
	}
	sec.Matches = second
	sec.Pass = 2
	r.env.AddFlag(schemas.FlagSecondPassUsed)
	r.absorbMatches(second)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, v := range in {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
