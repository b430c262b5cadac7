package store

import (
	"context"
	"fmt"
)

// Schema is the DDL for every table the store touches. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS investigations (
    id               TEXT PRIMARY KEY,
    target_type      TEXT NOT NULL,
    target_value     TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'queued',
    processing_flags JSONB NOT NULL DEFAULT '{}',
    lock_token       TEXT,
    locked_until     TIMESTAMPTZ,
    last_tick_at     TIMESTAMPTZ,
    error_step       TEXT,
    error_message    TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS progress_events (
    id               BIGSERIAL PRIMARY KEY,
    investigation_id TEXT NOT NULL REFERENCES investigations(id) ON DELETE CASCADE,
    step_key         TEXT NOT NULL,
    step_label       TEXT NOT NULL,
    status           TEXT NOT NULL,
    percent          INTEGER NOT NULL DEFAULT 0,
    message          TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS progress_events_investigation_idx ON progress_events (investigation_id, id);

CREATE TABLE IF NOT EXISTS osint_results (
    investigation_id TEXT PRIMARY KEY REFERENCES investigations(id) ON DELETE CASCADE,
    envelope         JSONB NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS social_profiles (
    id               TEXT PRIMARY KEY,
    investigation_id TEXT NOT NULL REFERENCES investigations(id) ON DELETE CASCADE,
    platform         TEXT NOT NULL,
    username         TEXT NOT NULL,
    confidence       DOUBLE PRECISION NOT NULL,
    doc              JSONB NOT NULL,
    UNIQUE (investigation_id, platform, username)
);

CREATE TABLE IF NOT EXISTS monitoring_registrations (
    investigation_id TEXT NOT NULL REFERENCES investigations(id) ON DELETE CASCADE,
    platform         TEXT NOT NULL,
    username         TEXT NOT NULL,
    profile_url      TEXT NOT NULL DEFAULT '',
    realtime         BOOLEAN NOT NULL DEFAULT false,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (investigation_id, platform, username)
);

CREATE TABLE IF NOT EXISTS social_posts (
    id               TEXT PRIMARY KEY,
    investigation_id TEXT NOT NULL REFERENCES investigations(id) ON DELETE CASCADE,
    platform         TEXT NOT NULL,
    post_id          TEXT NOT NULL,
    posted_at        TIMESTAMPTZ NOT NULL,
    doc              JSONB NOT NULL,
    UNIQUE (investigation_id, platform, post_id)
);

CREATE TABLE IF NOT EXISTS post_analytics (
    investigation_id TEXT NOT NULL REFERENCES investigations(id) ON DELETE CASCADE,
    platform         TEXT NOT NULL,
    username         TEXT NOT NULL,
    doc              JSONB NOT NULL,
    PRIMARY KEY (investigation_id, platform, username)
);

CREATE TABLE IF NOT EXISTS ai_outputs (
    investigation_id TEXT PRIMARY KEY REFERENCES investigations(id) ON DELETE CASCADE,
    doc              JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS deconfliction_reports (
    investigation_id TEXT PRIMARY KEY REFERENCES investigations(id) ON DELETE CASCADE,
    doc              JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS geo_markers (
    investigation_id TEXT PRIMARY KEY REFERENCES investigations(id) ON DELETE CASCADE,
    doc              JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS reports (
    investigation_id TEXT PRIMARY KEY REFERENCES investigations(id) ON DELETE CASCADE,
    doc              JSONB NOT NULL
);
`

// derivedTables are cleared by Regenerate, children first.
var derivedTables = []string{
	"progress_events",
	"osint_results",
	"social_profiles",
	"monitoring_registrations",
	"social_posts",
	"post_analytics",
	"ai_outputs",
	"deconfliction_reports",
	"geo_markers",
	"reports",
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	s.log.Info("Schema applied")
	return nil
}
