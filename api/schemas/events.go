package schemas

import "time"

// -- Progress Event Schemas --

// StepKey names one unit of pipeline work.
type StepKey string

const (
	StepOSINT          StepKey = "osint"
	StepSocialProfiles StepKey = "social_profiles"
	StepSocialPosts    StepKey = "social_posts"
	StepAI             StepKey = "ai"
	StepDeconflict     StepKey = "deconflict"
	StepGeo            StepKey = "geo"
	StepReport         StepKey = "report"
)

// StepOrder is the fixed total order the scheduler walks through.
var StepOrder = []StepKey{
	StepOSINT,
	StepSocialProfiles,
	StepSocialPosts,
	StepAI,
	StepDeconflict,
	StepGeo,
	StepReport,
}

var stepLabels = map[StepKey]string{
	StepOSINT:          "OSINT collection",
	StepSocialProfiles: "Social profile discovery",
	StepSocialPosts:    "Social post collection",
	StepAI:             "Identity analysis",
	StepDeconflict:     "Deconfliction",
	StepGeo:            "Geolocation",
	StepReport:         "Report generation",
}

// Label returns the human-readable name for a step.
func (s StepKey) Label() string {
	if l, ok := stepLabels[s]; ok {
		return l
	}
	return string(s)
}

// Percent is the progress value reported once this step has finished.
func (s StepKey) Percent() int {
	for i, k := range StepOrder {
		if k == s {
			return (i + 1) * 100 / len(StepOrder)
		}
	}
	return 0
}

// LoadBearing reports whether a failure of this step must fail the whole run.
func (s StepKey) LoadBearing() bool {
	return s == StepOSINT || s == StepAI
}

// StepPipeline is the pseudo step key used for lifecycle events
// (run started, run done) that do not belong to a pipeline step.
const StepPipeline StepKey = "pipeline"

// EventStatus is the state an event reports for its step.
type EventStatus string

const (
	EventStarted   EventStatus = "started"
	EventInfo      EventStatus = "info"
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
)

// IsTerminal reports whether the event closes its step.
func (s EventStatus) IsTerminal() bool {
	return s == EventCompleted || s == EventFailed
}

// ProgressEvent is one entry in the append-only investigation ledger.
type ProgressEvent struct {
	ID              int64       `json:"id"`
	InvestigationID string      `json:"investigation_id"`
	StepKey         StepKey     `json:"step_key"`
	StepLabel       string      `json:"step_label"`
	Status          EventStatus `json:"event_status"`
	Percent         int         `json:"percent"`
	Message         string      `json:"message"`
	CreatedAt       time.Time   `json:"created_at"`
}

// NewEvent builds an event for a step with its label filled in.
func NewEvent(investigationID string, step StepKey, status EventStatus, percent int, message string) ProgressEvent {
	return ProgressEvent{
		InvestigationID: investigationID,
		StepKey:         step,
		StepLabel:       step.Label(),
		Status:          status,
		Percent:         percent,
		Message:         message,
		CreatedAt:       time.Now().UTC(),
	}
}

// DoneSteps returns the set of pipeline steps that have a terminal event.
func DoneSteps(events []ProgressEvent) map[StepKey]bool {
	done := make(map[StepKey]bool, len(StepOrder))
	for _, ev := range events {
		if ev.StepKey == StepPipeline {
			continue
		}
		if ev.Status.IsTerminal() {
			done[ev.StepKey] = true
		}
	}
	return done
}

// NextStep returns the first step in StepOrder without a terminal event.
// The second return value is false when every step is done.
func NextStep(events []ProgressEvent) (StepKey, bool) {
	done := DoneSteps(events)
	for _, step := range StepOrder {
		if !done[step] {
			return step, true
		}
	}
	return "", false
}
