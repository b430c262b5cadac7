package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xkilldash9x/specter/api/schemas"
)

const (
	sqlUpsertEnvelope = `
        INSERT INTO osint_results (investigation_id, envelope, created_at) VALUES ($1, $2, $3)
        ON CONFLICT (investigation_id) DO UPDATE SET envelope = EXCLUDED.envelope, created_at = EXCLUDED.created_at`
	sqlUpsertProfile = `
        INSERT INTO social_profiles (id, investigation_id, platform, username, confidence, doc)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (investigation_id, platform, username) DO UPDATE SET
            confidence = EXCLUDED.confidence,
            doc = EXCLUDED.doc`
	sqlUpsertMonitoring = `
        INSERT INTO monitoring_registrations (investigation_id, platform, username, profile_url, realtime, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $6)
        ON CONFLICT (investigation_id, platform, username) DO UPDATE SET
            profile_url = EXCLUDED.profile_url,
            realtime = EXCLUDED.realtime,
            updated_at = EXCLUDED.updated_at`
	sqlUpsertPost = `
        INSERT INTO social_posts (id, investigation_id, platform, post_id, posted_at, doc)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (investigation_id, platform, post_id) DO UPDATE SET
            posted_at = EXCLUDED.posted_at,
            doc = EXCLUDED.doc`
	sqlUpsertAnalytics = `
        INSERT INTO post_analytics (investigation_id, platform, username, doc) VALUES ($1, $2, $3, $4)
        ON CONFLICT (investigation_id, platform, username) DO UPDATE SET doc = EXCLUDED.doc`
)

// docTables hold a single JSON document per investigation.
const (
	tableAIOutputs     = "ai_outputs"
	tableDeconfliction = "deconfliction_reports"
	tableGeoMarkers    = "geo_markers"
	tableReports       = "reports"
)

func sqlUpsertDoc(table string) string {
	return "INSERT INTO " + table + " (investigation_id, doc) VALUES ($1, $2) " +
		"ON CONFLICT (investigation_id) DO UPDATE SET doc = EXCLUDED.doc"
}

func sqlSelectDoc(table string) string {
	return "SELECT doc FROM " + table + " WHERE investigation_id = $1"
}

// persistOutputs writes whichever parts of out are set.
func persistOutputs(ctx context.Context, tx pgx.Tx, id string, out schemas.StepOutput) error {
	now := time.Now().UTC()
	if out.Envelope != nil {
		doc, err := json.Marshal(out.Envelope)
		if err != nil {
			return fmt.Errorf("failed to encode envelope: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlUpsertEnvelope, id, doc, now); err != nil {
			return fmt.Errorf("failed to store envelope: %w", err)
		}
	}
	for _, p := range out.Profiles {
		p.InvestigationID = id
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		doc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode profile %s: %w", p.Key(), err)
		}
		if _, err := tx.Exec(ctx, sqlUpsertProfile, p.ID, id, p.Platform, p.Username, p.Confidence, doc); err != nil {
			return fmt.Errorf("failed to store profile %s: %w", p.Key(), err)
		}
	}
	for _, m := range out.Monitoring {
		if _, err := tx.Exec(ctx, sqlUpsertMonitoring, id, m.Platform, m.Username, m.ProfileURL, m.Realtime, now); err != nil {
			return fmt.Errorf("failed to register monitoring for %s/%s: %w", m.Platform, m.Username, err)
		}
	}
	for _, p := range out.Posts {
		p.InvestigationID = id
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		doc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode post %s: %w", p.PostID, err)
		}
		if _, err := tx.Exec(ctx, sqlUpsertPost, p.ID, id, p.Platform, p.PostID, p.PostedAt.UTC(), doc); err != nil {
			return fmt.Errorf("failed to store post %s: %w", p.PostID, err)
		}
	}
	for _, a := range out.Analytics {
		doc, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to encode analytics: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlUpsertAnalytics, id, a.Platform, a.Username, doc); err != nil {
			return fmt.Errorf("failed to store analytics for %s/%s: %w", a.Platform, a.Username, err)
		}
	}

	docs := []struct {
		table string
		set   bool
		v     any
	}{
		{tableAIOutputs, out.AI != nil, out.AI},
		{tableDeconfliction, out.Deconfliction != nil, out.Deconfliction},
		{tableGeoMarkers, out.GeoMarkers != nil, out.GeoMarkers},
		{tableReports, out.Report != nil, out.Report},
	}
	for _, d := range docs {
		if !d.set {
			continue
		}
		doc, err := json.Marshal(d.v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", d.table, err)
		}
		if _, err := tx.Exec(ctx, sqlUpsertDoc(d.table), id, doc); err != nil {
			return fmt.Errorf("failed to store %s: %w", d.table, err)
		}
	}
	return nil
}

// -- Loaders --

func (s *Store) LoadEnvelope(ctx context.Context, id string) (*schemas.Envelope, error) {
	var env schemas.Envelope
	if err := s.loadDoc(ctx, `SELECT envelope FROM osint_results WHERE investigation_id = $1`, id, &env); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	return &env, nil
}

func (s *Store) LoadAIOutput(ctx context.Context, id string) (*schemas.AIOutput, error) {
	var out schemas.AIOutput
	if err := s.loadDoc(ctx, sqlSelectDoc(tableAIOutputs), id, &out); err != nil {
		return nil, fmt.Errorf("ai output: %w", err)
	}
	return &out, nil
}

func (s *Store) LoadDeconfliction(ctx context.Context, id string) (*schemas.DeconflictionReport, error) {
	var r schemas.DeconflictionReport
	if err := s.loadDoc(ctx, sqlSelectDoc(tableDeconfliction), id, &r); err != nil {
		return nil, fmt.Errorf("deconfliction: %w", err)
	}
	return &r, nil
}

func (s *Store) LoadReport(ctx context.Context, id string) (*schemas.Report, error) {
	var r schemas.Report
	if err := s.loadDoc(ctx, sqlSelectDoc(tableReports), id, &r); err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return &r, nil
}

// LoadGeoMarkers returns an empty list when the geo step stored nothing.
func (s *Store) LoadGeoMarkers(ctx context.Context, id string) ([]schemas.GeoMarker, error) {
	markers := []schemas.GeoMarker{}
	err := s.loadDoc(ctx, sqlSelectDoc(tableGeoMarkers), id, &markers)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("geo markers: %w", err)
	}
	return markers, nil
}

func (s *Store) loadDoc(ctx context.Context, sql, id string, v any) error {
	var doc []byte
	err := s.pool.QueryRow(ctx, sql, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

const sqlSelectProfiles = `
    SELECT doc FROM social_profiles
    WHERE investigation_id = $1
    ORDER BY confidence DESC, platform ASC, username ASC`

func (s *Store) LoadProfiles(ctx context.Context, id string) ([]schemas.SocialProfile, error) {
	return loadDocs[schemas.SocialProfile](ctx, s.pool, sqlSelectProfiles, id)
}

const sqlSelectPosts = `
    SELECT doc FROM social_posts
    WHERE investigation_id = $1
    ORDER BY posted_at ASC, platform ASC, post_id ASC`

func (s *Store) LoadPosts(ctx context.Context, id string) ([]schemas.SocialPost, error) {
	return loadDocs[schemas.SocialPost](ctx, s.pool, sqlSelectPosts, id)
}

func loadDocs[T any](ctx context.Context, pool DBPool, sql, id string) ([]T, error) {
	rows, err := pool.Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
