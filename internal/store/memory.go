package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/specter/api/schemas"
)

// Memory is an in-process schemas.Store with the same lock and ordering
// semantics as Store. Documents are stored as copies.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*memRow
	now    func() time.Time
}

type memRow struct {
	inv           schemas.Investigation
	events        []schemas.ProgressEvent
	envelope      *schemas.Envelope
	profiles      map[string]schemas.SocialProfile
	monitoring    map[string]schemas.MonitoringRegistration
	posts         map[string]schemas.SocialPost
	analytics     map[string]schemas.PostAnalytics
	ai            *schemas.AIOutput
	deconfliction *schemas.DeconflictionReport
	markers       []schemas.GeoMarker
	report        *schemas.Report
}

var _ schemas.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{rows: map[string]*memRow{}, now: func() time.Time { return time.Now().UTC() }}
}

func newMemRow(inv schemas.Investigation) *memRow {
	r := &memRow{inv: inv}
	r.clear()
	return r
}

func (r *memRow) clear() {
	r.events = nil
	r.envelope, r.ai, r.deconfliction, r.report, r.markers = nil, nil, nil, nil, nil
	r.profiles = map[string]schemas.SocialProfile{}
	r.monitoring = map[string]schemas.MonitoringRegistration{}
	r.posts = map[string]schemas.SocialPost{}
	r.analytics = map[string]schemas.PostAnalytics{}
}

func (m *Memory) row(id string) (*memRow, error) {
	r, ok := m.rows[id]
	if !ok {
		return nil, fmt.Errorf("investigation %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (m *Memory) owned(id, token string) (*memRow, error) {
	r, err := m.row(id)
	if err != nil {
		return nil, err
	}
	if r.inv.LockToken == "" || r.inv.LockToken != token {
		return nil, ErrLockLost
	}
	return r, nil
}

func (m *Memory) appendLocked(r *memRow, ev schemas.ProgressEvent) int64 {
	m.nextID++
	ev.ID = m.nextID
	ev.InvestigationID = r.inv.ID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now()
	}
	r.events = append(r.events, ev)
	return ev.ID
}

func (m *Memory) CreateInvestigation(_ context.Context, inv *schemas.Investigation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[inv.ID]; exists {
		return fmt.Errorf("investigation %s already exists", inv.ID)
	}
	if inv.Status == "" {
		inv.Status = schemas.StatusQueued
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = m.now()
	}
	m.rows[inv.ID] = newMemRow(*inv)
	return nil
}

func (m *Memory) GetInvestigation(_ context.Context, id string) (*schemas.Investigation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return nil, err
	}
	inv := r.inv
	return &inv, nil
}

func (m *Memory) MarkProcessing(_ context.Context, id string, started schemas.ProgressEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return false, err
	}
	if r.inv.Status != schemas.StatusQueued {
		return false, nil
	}
	r.inv.Status = schemas.StatusProcessing
	m.appendLocked(r, started)
	return true, nil
}

func (m *Memory) ClaimLock(_ context.Context, id, token string, now time.Time, ttl, staleAfter time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return false, nil
	}
	inv := &r.inv
	if inv.Status.IsTerminal() {
		return false, nil
	}
	free := inv.LockToken == "" || inv.LockedUntil == nil || inv.LockedUntil.Before(now) ||
		(inv.LastTickAt != nil && inv.LastTickAt.Before(now.Add(-staleAfter)))
	if !free {
		return false, nil
	}
	until := now.Add(ttl)
	tick := now
	inv.LockToken, inv.LockedUntil, inv.LastTickAt = token, &until, &tick
	return true, nil
}

func (m *Memory) ReleaseLock(_ context.Context, id, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.owned(id, token)
	if err != nil {
		return false, nil
	}
	r.inv.LockToken, r.inv.LockedUntil = "", nil
	return true, nil
}

func (m *Memory) AppendEvent(_ context.Context, ev schemas.ProgressEvent) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(ev.InvestigationID)
	if err != nil {
		return 0, err
	}
	return m.appendLocked(r, ev), nil
}

func (m *Memory) RecentEvents(_ context.Context, id string, limit int) ([]schemas.ProgressEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return []schemas.ProgressEvent{}, nil
	}
	evs := r.events
	if limit > 0 && len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	return append([]schemas.ProgressEvent{}, evs...), nil
}

func (m *Memory) EventsAfter(_ context.Context, id string, afterID int64, limit int) ([]schemas.ProgressEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []schemas.ProgressEvent{}
	r, err := m.row(id)
	if err != nil {
		return out, nil
	}
	for _, ev := range r.events {
		if ev.ID <= afterID {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, ev)
	}
	return out, nil
}

func (m *Memory) PersistStep(_ context.Context, id, token string, out schemas.StepOutput, completion schemas.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.owned(id, token)
	if err != nil {
		return err
	}
	// Encode first so a bad document leaves the row untouched.
	var (
		env    *schemas.Envelope
		ai     *schemas.AIOutput
		dec    *schemas.DeconflictionReport
		report *schemas.Report
	)
	if err := cloneInto(out.Envelope, &env); err != nil {
		return err
	}
	if err := cloneInto(out.AI, &ai); err != nil {
		return err
	}
	if err := cloneInto(out.Deconfliction, &dec); err != nil {
		return err
	}
	if err := cloneInto(out.Report, &report); err != nil {
		return err
	}

	if env != nil {
		r.envelope = env
	}
	for _, p := range out.Profiles {
		p.InvestigationID = id
		if existing, ok := r.profiles[p.Key()]; ok {
			p.ID = existing.ID
		} else if p.ID == "" {
			p.ID = uuid.NewString()
		}
		r.profiles[p.Key()] = p
	}
	now := m.now()
	for _, reg := range out.Monitoring {
		key := reg.Platform + "/" + reg.Username
		reg.InvestigationID = id
		reg.UpdatedAt = now
		if existing, ok := r.monitoring[key]; ok {
			reg.CreatedAt = existing.CreatedAt
		} else {
			reg.CreatedAt = now
		}
		r.monitoring[key] = reg
	}
	for _, p := range out.Posts {
		p.InvestigationID = id
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		r.posts[p.Platform+"/"+p.PostID] = p
	}
	for _, a := range out.Analytics {
		r.analytics[a.Platform+"/"+a.Username] = a
	}
	if ai != nil {
		r.ai = ai
	}
	if dec != nil {
		r.deconfliction = dec
	}
	if out.GeoMarkers != nil {
		r.markers = append([]schemas.GeoMarker{}, out.GeoMarkers...)
	}
	if report != nil {
		r.report = report
	}
	for _, note := range out.Notes {
		m.appendLocked(r, schemas.NewEvent(id, completion.StepKey, schemas.EventInfo, completion.Percent, note))
	}
	m.appendLocked(r, completion)
	return nil
}

func (m *Memory) FailInvestigation(_ context.Context, id, token string, failed schemas.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.owned(id, token)
	if err != nil {
		return err
	}
	m.appendLocked(r, failed)
	now := m.now()
	r.inv.Status = schemas.StatusFailed
	r.inv.ErrorStep = failed.StepKey
	r.inv.ErrorMessage = failed.Message
	r.inv.CompletedAt = &now
	r.inv.LockToken, r.inv.LockedUntil = "", nil
	return nil
}

func (m *Memory) CompleteInvestigation(_ context.Context, id, token string, done schemas.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.owned(id, token)
	if err != nil {
		return err
	}
	m.appendLocked(r, done)
	now := m.now()
	r.inv.Status = schemas.StatusCompleted
	r.inv.CompletedAt = &now
	r.inv.LockToken, r.inv.LockedUntil = "", nil
	return nil
}

func (m *Memory) LoadEnvelope(_ context.Context, id string) (*schemas.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return nil, err
	}
	var out *schemas.Envelope
	if err := loadClone(r.envelope, &out, "envelope"); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Memory) LoadAIOutput(_ context.Context, id string) (*schemas.AIOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return nil, err
	}
	var out *schemas.AIOutput
	if err := loadClone(r.ai, &out, "ai output"); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Memory) LoadDeconfliction(_ context.Context, id string) (*schemas.DeconflictionReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return nil, err
	}
	var out *schemas.DeconflictionReport
	if err := loadClone(r.deconfliction, &out, "deconfliction"); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Memory) LoadReport(_ context.Context, id string) (*schemas.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return nil, err
	}
	var out *schemas.Report
	if err := loadClone(r.report, &out, "report"); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Memory) LoadGeoMarkers(_ context.Context, id string) ([]schemas.GeoMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return nil, err
	}
	return append([]schemas.GeoMarker{}, r.markers...), nil
}

func (m *Memory) LoadProfiles(_ context.Context, id string) ([]schemas.SocialProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return nil, err
	}
	out := make([]schemas.SocialProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func (m *Memory) LoadPosts(_ context.Context, id string) ([]schemas.SocialPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return nil, err
	}
	out := make([]schemas.SocialPost, 0, len(r.posts))
	for _, p := range r.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostedAt.Equal(out[j].PostedAt) {
			return out[i].PostedAt.Before(out[j].PostedAt)
		}
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].PostID < out[j].PostID
	})
	return out, nil
}

// Monitoring returns the registrations of an investigation, ordered by key.
func (m *Memory) Monitoring(id string) []schemas.MonitoringRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil
	}
	out := make([]schemas.MonitoringRegistration, 0, len(r.monitoring))
	for _, reg := range r.monitoring {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Platform+"/"+out[i].Username < out[j].Platform+"/"+out[j].Username
	})
	return out
}

func (m *Memory) Regenerate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.row(id)
	if err != nil {
		return err
	}
	r.clear()
	r.inv.Status = schemas.StatusQueued
	r.inv.ErrorStep, r.inv.ErrorMessage = "", ""
	r.inv.CompletedAt, r.inv.LockedUntil, r.inv.LastTickAt = nil, nil, nil
	r.inv.LockToken = ""
	return nil
}

// cloneInto deep-copies src into *dst through the JSON codec the Postgres
// store uses, so both stores round-trip documents the same way.
func cloneInto[T any](src *T, dst **T) error {
	if src == nil {
		return nil
	}
	raw, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	*dst = &v
	return nil
}

func loadClone[T any](src *T, dst **T, what string) error {
	if src == nil {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return cloneInto(src, dst)
}
