// Package collection is the osint step: it seeds a cross-reference
// accumulator from the investigation target, runs the enrichment sub-steps
// over everything accumulated, and probes social platforms for the candidate
// usernames in two passes.
package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/crossref"
	"github.com/xkilldash9x/specter/internal/providers"
	"github.com/xkilldash9x/specter/internal/workpool"
)

// ErrInvalidTarget is returned when the target value cannot be seeded at all.
var ErrInvalidTarget = errors.New("invalid target")

// Output is the result of one collection run.
type Output struct {
	Envelope *schemas.Envelope
	// Notes describe sub-steps that failed but did not stop the run.
	Notes []string
}

// Collector runs collection for one investigation at a time. It holds no
// per-run state and is safe for concurrent use.
type Collector struct {
	providers *providers.Set
	cfg       config.CollectionConfig
	logger    *zap.Logger
	now       func() time.Time
}

func New(set *providers.Set, cfg config.CollectionConfig, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		providers: set,
		cfg:       cfg,
		logger:    logger.Named("collection"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// run is the state of one Collect call. The envelope is only touched from
// the goroutine running Collect; workers report back through outcomes. The
// accumulator is the one piece shared with workers.
type run struct {
	c      *Collector
	inv    *schemas.Investigation
	flags  schemas.ProcessingFlags
	env    *schemas.Envelope
	acc    *crossref.Accumulator
	pool   workpool.Pool
	logger *zap.Logger

	candidates   []candidate
	corpus       []snippet
	imageRefs    []imageRef
	domainsDone  map[string]bool
	hostsDone    map[string]bool
	pendingIPs   []string
	seenURLs     map[string]bool
	seenLinks    map[string]bool
	notes        []string
	subjectNames []string
}

// snippet is a piece of collected text tagged with where it came from. The
// connections and crypto sub-steps mine the corpus.
type snippet struct {
	source string
	text   string
}

type imageRef struct {
	url    string
	source string
}

// Collect builds the envelope for inv. Only an unusable target is an error;
// every provider failure just leaves its section smaller.
func (c *Collector) Collect(ctx context.Context, inv *schemas.Investigation) (Output, error) {
	if strings.TrimSpace(inv.TargetValue) == "" {
		return Output{}, fmt.Errorf("%w: empty value", ErrInvalidTarget)
	}
	r := c.newRun(inv)
	r.logger.Info("Starting collection")

	if err := r.seed(ctx); err != nil {
		return Output{}, err
	}
	r.seedHints()

	first := r.probeUsernames(ctx)
	r.env.Username = &schemas.UsernameSection{Matches: first, Pass: 1}
	r.absorbMatches(first)

	r.enrich(ctx)
	r.secondPass(ctx, first)
	r.finish()

	r.logger.Info("Collection finished",
		zap.Int("identifiers", r.acc.Len()),
		zap.Int("matches", len(r.env.Username.Matches)),
		zap.Strings("flags", r.env.Flags))
	return Output{Envelope: r.env, Notes: r.notes}, nil
}

func (c *Collector) newRun(inv *schemas.Investigation) *run {
	workers, deadline := c.cfg.Workers, c.cfg.SubStepDeadline
	if inv.Flags.DeepScan {
		workers, deadline = c.cfg.DeepScanWorkers, c.cfg.DeepScanDeadline
	}
	logger := c.logger.With(
		zap.String("investigation_id", inv.ID),
		zap.String("target_type", string(inv.TargetType)))
	r := &run{
		c:     c,
		inv:   inv,
		flags: inv.Flags,
		env: &schemas.Envelope{
			Target:      inv.Target(),
			CollectedAt: c.now(),
		},
		acc:         crossref.NewAccumulator(),
		pool:        workpool.New(workers, deadline, logger),
		logger:      logger,
		domainsDone: map[string]bool{},
		hostsDone:   map[string]bool{},
		seenURLs:    map[string]bool{},
		seenLinks:   map[string]bool{},
	}
	if inv.Flags.DeepScan {
		r.env.AddFlag(schemas.FlagDeepScan)
	}
	return r
}

// subStep runs one enrichment sub-step under the pool deadline. A panic or
// error is logged, noted and flagged; the run continues either way.
func (r *run) subStep(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if r.pool.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.pool.Deadline)
		defer cancel()
	}
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return fn(ctx)
	}()
	if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = errors.New("deadline exceeded")
	}
	if err != nil {
		r.logger.Warn("Enrichment sub-step failed", zap.String("sub_step", name), zap.Error(err))
		r.env.AddFlag(schemas.FlagEnrichmentFailed)
		r.notes = append(r.notes, fmt.Sprintf("%s failed (continuing): %v", name, err))
		return
	}
	r.logger.Debug("Enrichment sub-step done", zap.String("sub_step", name), zap.Duration("took", time.Since(start)))
}

func (r *run) addCorpus(source string, texts ...string) {
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			r.corpus = append(r.corpus, snippet{source: source, text: t})
		}
	}
}

func (r *run) addURL(u string) {
	if u == "" || r.seenURLs[u] {
		return
	}
	r.seenURLs[u] = true
	r.env.DiscoveredURLs = append(r.env.DiscoveredURLs, u)
}

// addLink records a profile URL on a known platform and feeds its handle to
// the accumulator so the second pass probes it.
func (r *run) addLink(raw, source string) {
	platform, handle, ok := crossref.ProfileURLPlatform(raw)
	if !ok {
		return
	}
	if r.env.Social == nil {
		r.env.Social = &schemas.SocialSection{}
	}
	key := platform + "/" + handle
	if !r.seenLinks[key] {
		r.seenLinks[key] = true
		r.env.Social.Links = append(r.env.Social.Links, schemas.SocialLink{Platform: platform, URL: raw, Source: source})
	}
	r.acc.AddUsername(handle)
}

func (r *run) assert(field schemas.AssertionField, value, source string, conf float64, detail string) {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" {
		return
	}
	for _, a := range r.env.Assertions {
		if a.Field == field && a.Source == source && strings.EqualFold(a.Value, value) {
			return
		}
	}
	r.env.Assertions = append(r.env.Assertions, schemas.Assertion{
		Field: field, Value: value, Source: source, Confidence: conf, Detail: detail,
	})
	if field == schemas.FieldName && conf >= 0.5 {
		r.addSubjectName(value)
	}
}

func (r *run) locate(place, country, source string) {
	place = strings.TrimSpace(place)
	if place == "" && country == "" {
		return
	}
	for _, l := range r.env.Locations {
		if strings.EqualFold(l.Place, place) && l.Source == source {
			return
		}
	}
	r.env.Locations = append(r.env.Locations, schemas.LocationAssertion{Place: place, Country: country, Source: source})
}

func (r *run) addSubjectName(name string) {
	for _, n := range r.subjectNames {
		if strings.EqualFold(n, name) {
			return
		}
	}
	r.subjectNames = append(r.subjectNames, name)
}

func (r *run) finish() {
	r.env.Identifiers = r.acc.Snapshot()
	sort.Strings(r.env.DiscoveredURLs)
	if r.env.Social != nil {
		sort.Slice(r.env.Social.Links, func(i, j int) bool {
			return r.env.Social.Links[i].URL < r.env.Social.Links[j].URL
		})
	}
}
