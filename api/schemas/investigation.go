package schemas

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// -- Investigation Schemas --

// TargetType identifies the kind of identifier an investigation starts from.
type TargetType string

const (
	TargetEmail    TargetType = "email"
	TargetUsername TargetType = "username"
	TargetPhone    TargetType = "phone"
	TargetDomain   TargetType = "domain"
	TargetIP       TargetType = "ip"
	TargetName     TargetType = "name"
	TargetAddress  TargetType = "address"
	TargetPlate    TargetType = "plate"
)

// AllTargetTypes lists every supported target type in a stable order.
var AllTargetTypes = []TargetType{
	TargetEmail, TargetUsername, TargetPhone, TargetDomain,
	TargetIP, TargetName, TargetAddress, TargetPlate,
}

// ParseTargetType converts user input into a TargetType.
func ParseTargetType(s string) (TargetType, error) {
	t := TargetType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllTargetTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unsupported target type %q", s)
}

// InvestigationStatus is the lifecycle state of an investigation.
// Transitions only move forward: queued -> processing -> completed|failed.
type InvestigationStatus string

const (
	StatusQueued     InvestigationStatus = "queued"
	StatusProcessing InvestigationStatus = "processing"
	StatusCompleted  InvestigationStatus = "completed"
	StatusFailed     InvestigationStatus = "failed"
)

// IsTerminal reports whether the status can never change again (short of a regenerate).
func (s InvestigationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProcessingFlags records which optional collection features are enabled
// for an investigation. Zero values mean "feature off" except where
// DefaultProcessingFlags says otherwise.
type ProcessingFlags struct {
	SocialEnabled      bool     `json:"social_enabled"`
	SocialPostsEnabled bool     `json:"social_posts_enabled"`
	RealtimeMonitoring bool     `json:"realtime_monitoring"`
	DeepScan           bool     `json:"deep_scan"`
	AIEnabled          bool     `json:"ai_enabled"`
	ImagesEnabled      bool     `json:"images_enabled"`
	RecordsEnabled     bool     `json:"records_enabled"`
	BreachesEnabled    bool     `json:"breaches_enabled"`
	GeoEnabled         bool     `json:"geo_enabled"`
	MaxPostsPerProfile int      `json:"max_posts_per_profile,omitempty"`
	Platforms          []string `json:"platforms,omitempty"`

	// User-supplied hints. These are treated as the highest-trust assertions
	// during deconfliction.
	KnownName    string `json:"known_name,omitempty"`
	KnownAddress string `json:"known_address,omitempty"`
}

// DefaultProcessingFlags returns the flag set used when a caller supplies none.
func DefaultProcessingFlags() ProcessingFlags {
	return ProcessingFlags{
		SocialEnabled:      true,
		SocialPostsEnabled: true,
		AIEnabled:          true,
		ImagesEnabled:      true,
		RecordsEnabled:     true,
		BreachesEnabled:    true,
		GeoEnabled:         true,
		MaxPostsPerProfile: 50,
	}
}

// UnmarshalJSON decodes onto DefaultProcessingFlags, so keys a caller leaves
// out keep their default instead of switching the feature off.
func (f *ProcessingFlags) UnmarshalJSON(b []byte) error {
	type plain ProcessingFlags
	p := plain(DefaultProcessingFlags())
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = ProcessingFlags(p)
	return nil
}

// Investigation is the persisted row that drives the step scheduler.
type Investigation struct {
	ID           string              `json:"id"`
	TargetType   TargetType          `json:"target_type"`
	TargetValue  string              `json:"target_value"`
	Status       InvestigationStatus `json:"status"`
	Flags        ProcessingFlags     `json:"processing_flags"`
	LockToken    string              `json:"-"`
	LockedUntil  *time.Time          `json:"locked_until,omitempty"`
	LastTickAt   *time.Time          `json:"last_tick_at,omitempty"`
	ErrorStep    StepKey             `json:"error_step,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

// Target returns the investigation subject as a value pair.
func (i *Investigation) Target() Target {
	return Target{Type: i.TargetType, Value: i.TargetValue}
}

// Target is the (type, value) pair an investigation is about.
type Target struct {
	Type  TargetType `json:"type"`
	Value string     `json:"value"`
}

// TickResult is the outcome of a single scheduler invocation.
// Exactly one of the three shapes is populated:
//   - progress: Status set, RanStep optionally set
//   - lock contention: Skipped true
//   - step failure: Error and Step set
type TickResult struct {
	Status  InvestigationStatus `json:"status,omitempty"`
	RanStep StepKey             `json:"ran_step,omitempty"`
	Skipped bool                `json:"skipped,omitempty"`
	Error   string              `json:"error,omitempty"`
	Step    StepKey             `json:"step,omitempty"`
}
