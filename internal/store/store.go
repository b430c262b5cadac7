// Package store persists investigations, their event ledger and every step
// output. Store is the PostgreSQL implementation; Memory serves tests and
// single-process runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNotFound is returned when an investigation or a stored output does
	// not exist.
	ErrNotFound = errors.New("not found")
	// ErrLockLost is returned when a write carries a token that no longer
	// owns the investigation lock.
	ErrLockLost = errors.New("investigation lock lost")
)

// DBPool abstracts pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL implementation of schemas.Store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Store = (*Store)(nil)

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// withTx runs fn in a transaction and commits if it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// -- Investigations --

const sqlInsertInvestigation = `
    INSERT INTO investigations (id, target_type, target_value, status, processing_flags, created_at)
    VALUES ($1, $2, $3, $4, $5, $6)`

func (s *Store) CreateInvestigation(ctx context.Context, inv *schemas.Investigation) error {
	flags, err := json.Marshal(inv.Flags)
	if err != nil {
		return fmt.Errorf("failed to encode processing flags: %w", err)
	}
	if inv.Status == "" {
		inv.Status = schemas.StatusQueued
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx, sqlInsertInvestigation,
		inv.ID, string(inv.TargetType), inv.TargetValue, string(inv.Status), flags, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert investigation: %w", err)
	}
	return nil
}

const sqlSelectInvestigation = `
    SELECT id, target_type, target_value, status, processing_flags, COALESCE(lock_token, ''), locked_until,
           last_tick_at, COALESCE(error_step, ''), COALESCE(error_message, ''), created_at, completed_at
    FROM investigations
    WHERE id = $1`

func (s *Store) GetInvestigation(ctx context.Context, id string) (*schemas.Investigation, error) {
	var (
		inv                      schemas.Investigation
		targetType, status, step string
		flags                    []byte
	)
	err := s.pool.QueryRow(ctx, sqlSelectInvestigation, id).Scan(
		&inv.ID, &targetType, &inv.TargetValue, &status, &flags, &inv.LockToken, &inv.LockedUntil,
		&inv.LastTickAt, &step, &inv.ErrorMessage, &inv.CreatedAt, &inv.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("investigation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load investigation: %w", err)
	}
	inv.TargetType = schemas.TargetType(targetType)
	inv.Status = schemas.InvestigationStatus(status)
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &inv.Flags); err != nil {
			return nil, fmt.Errorf("failed to decode processing flags: %w", err)
		}
	}
	inv.ErrorStep = schemas.StepKey(step)
	return &inv, nil
}

const sqlMarkProcessing = `
    UPDATE investigations SET status = 'processing'
    WHERE id = $1 AND status = 'queued'`

func (s *Store) MarkProcessing(ctx context.Context, id string, started schemas.ProgressEvent) (bool, error) {
	var moved bool
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sqlMarkProcessing, id)
		if err != nil {
			return fmt.Errorf("failed to mark processing: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		moved = true
		started.InvestigationID = id
		_, err = insertEvent(ctx, tx, started)
		return err
	})
	return moved, err
}

// -- Lock --

// sqlClaimLock is the compare-and-set that guards a tick. The row is
// claimable when unlocked, when the lock expired, or when no tick has run
// for staleAfter.
const sqlClaimLock = `
    UPDATE investigations
    SET lock_token = $2, locked_until = $3, last_tick_at = $4
    WHERE id = $1
      AND status IN ('queued', 'processing')
      AND (lock_token IS NULL OR locked_until IS NULL OR locked_until < $4 OR last_tick_at < $5)`

func (s *Store) ClaimLock(ctx context.Context, id, token string, now time.Time, ttl, staleAfter time.Duration) (bool, error) {
	now = now.UTC()
	tag, err := s.pool.Exec(ctx, sqlClaimLock, id, token, now.Add(ttl), now, now.Add(-staleAfter))
	if err != nil {
		return false, fmt.Errorf("failed to claim lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const sqlReleaseLock = `
    UPDATE investigations SET lock_token = NULL, locked_until = NULL
    WHERE id = $1 AND lock_token = $2`

func (s *Store) ReleaseLock(ctx context.Context, id, token string) (bool, error) {
	tag, err := s.pool.Exec(ctx, sqlReleaseLock, id, token)
	if err != nil {
		return false, fmt.Errorf("failed to release lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const sqlLockRow = `SELECT COALESCE(lock_token, '') FROM investigations WHERE id = $1 FOR UPDATE`

// checkToken locks the investigation row and verifies token still owns it.
func checkToken(ctx context.Context, tx pgx.Tx, id, token string) error {
	var current string
	err := tx.QueryRow(ctx, sqlLockRow, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("investigation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock investigation row: %w", err)
	}
	if current == "" || current != token {
		return ErrLockLost
	}
	return nil
}

// -- Events --

const sqlInsertEvent = `
    INSERT INTO progress_events (investigation_id, step_key, step_label, status, percent, message, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    RETURNING id`

// insertEvent takes the investigation row lock before inserting so the event
// ids of one investigation commit in order.
func insertEvent(ctx context.Context, tx pgx.Tx, ev schemas.ProgressEvent) (int64, error) {
	var owner string
	err := tx.QueryRow(ctx, `SELECT id FROM investigations WHERE id = $1 FOR UPDATE`, ev.InvestigationID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("investigation %s: %w", ev.InvestigationID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock investigation row: %w", err)
	}
	return insertEventLocked(ctx, tx, ev)
}

// insertEventLocked assumes the caller already holds the row lock.
func insertEventLocked(ctx context.Context, tx pgx.Tx, ev schemas.ProgressEvent) (int64, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := tx.QueryRow(ctx, sqlInsertEvent,
		ev.InvestigationID, string(ev.StepKey), ev.StepLabel, string(ev.Status), ev.Percent, ev.Message, ev.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

func (s *Store) AppendEvent(ctx context.Context, ev schemas.ProgressEvent) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var err error
		id, err = insertEvent(ctx, tx, ev)
		return err
	})
	return id, err
}

const sqlRecentEvents = `
    SELECT id, investigation_id, step_key, step_label, status, percent, message, created_at
    FROM (
        SELECT id, investigation_id, step_key, step_label, status, percent, message, created_at
        FROM progress_events
        WHERE investigation_id = $1
        ORDER BY id DESC
        LIMIT $2
    ) recent
    ORDER BY id ASC`

func (s *Store) RecentEvents(ctx context.Context, id string, limit int) ([]schemas.ProgressEvent, error) {
	return s.queryEvents(ctx, sqlRecentEvents, id, limit)
}

const sqlEventsAfter = `
    SELECT id, investigation_id, step_key, step_label, status, percent, message, created_at
    FROM progress_events
    WHERE investigation_id = $1 AND id > $2
    ORDER BY id ASC
    LIMIT $3`

func (s *Store) EventsAfter(ctx context.Context, id string, afterID int64, limit int) ([]schemas.ProgressEvent, error) {
	return s.queryEvents(ctx, sqlEventsAfter, id, afterID, limit)
}

func (s *Store) queryEvents(ctx context.Context, sql string, args ...any) ([]schemas.ProgressEvent, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []schemas.ProgressEvent{}
	for rows.Next() {
		var ev schemas.ProgressEvent
		var step, status string
		if err := rows.Scan(&ev.ID, &ev.InvestigationID, &step, &ev.StepLabel, &status, &ev.Percent, &ev.Message, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.StepKey = schemas.StepKey(step)
		ev.Status = schemas.EventStatus(status)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return events, nil
}

// -- Step persistence --

func (s *Store) PersistStep(ctx context.Context, id, token string, out schemas.StepOutput, completion schemas.ProgressEvent) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := checkToken(ctx, tx, id, token); err != nil {
			return err
		}
		if err := persistOutputs(ctx, tx, id, out); err != nil {
			return err
		}
		for _, note := range out.Notes {
			ev := schemas.NewEvent(id, completion.StepKey, schemas.EventInfo, completion.Percent, note)
			if _, err := insertEventLocked(ctx, tx, ev); err != nil {
				return err
			}
		}
		completion.InvestigationID = id
		_, err := insertEventLocked(ctx, tx, completion)
		return err
	})
}

const sqlFailInvestigation = `
    UPDATE investigations
    SET status = 'failed', error_step = $2, error_message = $3, completed_at = $4,
        lock_token = NULL, locked_until = NULL
    WHERE id = $1`

func (s *Store) FailInvestigation(ctx context.Context, id, token string, failed schemas.ProgressEvent) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := checkToken(ctx, tx, id, token); err != nil {
			return err
		}
		failed.InvestigationID = id
		if _, err := insertEventLocked(ctx, tx, failed); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sqlFailInvestigation, id, string(failed.StepKey), failed.Message, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to mark investigation failed: %w", err)
		}
		return nil
	})
}

const sqlCompleteInvestigation = `
    UPDATE investigations
    SET status = 'completed', completed_at = $2, lock_token = NULL, locked_until = NULL
    WHERE id = $1`

func (s *Store) CompleteInvestigation(ctx context.Context, id, token string, done schemas.ProgressEvent) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := checkToken(ctx, tx, id, token); err != nil {
			return err
		}
		done.InvestigationID = id
		if _, err := insertEventLocked(ctx, tx, done); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sqlCompleteInvestigation, id, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to mark investigation completed: %w", err)
		}
		return nil
	})
}

// -- Regenerate --

const sqlResetInvestigation = `
    UPDATE investigations
    SET status = 'queued', error_step = NULL, error_message = NULL, completed_at = NULL,
        lock_token = NULL, locked_until = NULL, last_tick_at = NULL
    WHERE id = $1`

func (s *Store) Regenerate(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx, `SELECT id FROM investigations WHERE id = $1 FOR UPDATE`, id).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("investigation %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock investigation row: %w", err)
		}
		for _, table := range derivedTables {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE investigation_id = $1", id); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		if _, err := tx.Exec(ctx, sqlResetInvestigation, id); err != nil {
			return fmt.Errorf("failed to reset investigation: %w", err)
		}
		s.log.Info("Investigation reset for regeneration", zap.String("investigation_id", id))
		return nil
	})
}
