// File: internal/service/service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/observability"
)

const (
	defaultEventLimit = 500
	maxEventLimit     = 1000
)

// ErrInvalidRequest wraps every validation failure of a create request.
var ErrInvalidRequest = errors.New("invalid request")

// Ticker is the scheduler surface the service drives.
type Ticker interface {
	Start(ctx context.Context, id string) error
	Tick(ctx context.Context, id string) (schemas.TickResult, error)
}

// CreateRequest is the input of CreateInvestigation. Flags nil means the
// default flag set.
type CreateRequest struct {
	TargetType  string                   `json:"target_type" validate:"required,oneof=email username phone domain ip name address plate"`
	TargetValue string                   `json:"target_value" validate:"required,max=512"`
	Flags       *schemas.ProcessingFlags `json:"processing_flags,omitempty"`
}

// valueRules holds the per-type format checks applied to the target value.
var valueRules = map[schemas.TargetType]string{
	schemas.TargetEmail:  "email",
	schemas.TargetIP:     "ip",
	schemas.TargetDomain: "fqdn",
	schemas.TargetPhone:  "min=5,max=32",
}

// Service is the entry point callers use to create and advance investigations.
type Service struct {
	store    schemas.Store
	ticker   Ticker
	validate *validator.Validate
	logger   *zap.Logger
	newID    func() string
}

// New creates a Service.
func New(st schemas.Store, ticker Ticker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		ticker:   ticker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Named("service"),
		newID:    uuid.NewString,
	}
}

// FromComponents builds a Service over initialized components.
func FromComponents(c *Components) *Service {
	return New(c.Store, c.Scheduler, c.logger)
}

// CreateInvestigation validates req and stores a queued investigation.
func (s *Service) CreateInvestigation(ctx context.Context, req CreateRequest) (*schemas.Investigation, error) {
	req.TargetType = strings.ToLower(strings.TrimSpace(req.TargetType))
	req.TargetValue = strings.TrimSpace(req.TargetValue)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}
	typ, err := schemas.ParseTargetType(req.TargetType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if rule, ok := valueRules[typ]; ok {
		if err := s.validate.Var(req.TargetValue, rule); err != nil {
			return nil, fmt.Errorf("%w: target_value is not a valid %s", ErrInvalidRequest, typ)
		}
	}

	flags := schemas.DefaultProcessingFlags()
	if req.Flags != nil {
		flags = *req.Flags
	}
	if flags.MaxPostsPerProfile < 0 {
		return nil, fmt.Errorf("%w: max_posts_per_profile must not be negative", ErrInvalidRequest)
	}

	inv := &schemas.Investigation{
		ID:          s.newID(),
		TargetType:  typ,
		TargetValue: req.TargetValue,
		Status:      schemas.StatusQueued,
		Flags:       flags,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.CreateInvestigation(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create investigation: %w", err)
	}
	s.logger.Info("Investigation created", observability.Investigation(inv.ID),
		zap.String("target_type", string(typ)))
	return inv, nil
}

// GetInvestigation returns the stored row.
func (s *Service) GetInvestigation(ctx context.Context, id string) (*schemas.Investigation, error) {
	return s.store.GetInvestigation(ctx, id)
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context, id string) error {
	return s.ticker.Start(ctx, id)
}

// Tick runs at most one step.
func (s *Service) Tick(ctx context.Context, id string) (schemas.TickResult, error) {
	return s.ticker.Tick(ctx, id)
}

// Regenerate drops every derived output and requeues the investigation.
func (s *Service) Regenerate(ctx context.Context, id string) error {
	if err := s.store.Regenerate(ctx, id); err != nil {
		return fmt.Errorf("failed to regenerate investigation %s: %w", id, err)
	}
	s.logger.Info("Investigation requeued for regeneration", observability.Investigation(id))
	return nil
}

// Events returns events with id > after, oldest first.
func (s *Service) Events(ctx context.Context, id string, after int64, limit int) ([]schemas.ProgressEvent, error) {
	if _, err := s.store.GetInvestigation(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultEventLimit
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}
	return s.store.EventsAfter(ctx, id, after, limit)
}

// RunUntilDone ticks on every interval until the investigation is terminal.
// onTick sees every result, including skips.
func (s *Service) RunUntilDone(ctx context.Context, id string, interval time.Duration, onTick func(schemas.TickResult)) (schemas.InvestigationStatus, error) {
	if err := s.Start(ctx, id); err != nil {
		return "", err
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}

		res, err := s.Tick(ctx, id)
		if err != nil {
			return "", err
		}
		if onTick != nil {
			onTick(res)
		}
		switch {
		case res.Error != "":
			return schemas.StatusFailed, nil
		case res.Status.IsTerminal():
			return res.Status, nil
		}

		timer.Reset(interval)
	}
}

// describe flattens validator errors into one line.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
