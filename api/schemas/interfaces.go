package schemas

import (
	"context"
	"time"
)

// -- Store Interface --

// StepOutput is everything a single pipeline step produced. Only the fields
// relevant to the step are set; the store persists whichever are non-nil.
type StepOutput struct {
	Step          StepKey                  `json:"step"`
	Envelope      *Envelope                `json:"envelope,omitempty"`
	Profiles      []SocialProfile          `json:"profiles,omitempty"`
	Monitoring    []MonitoringRegistration `json:"monitoring,omitempty"`
	Posts         []SocialPost             `json:"posts,omitempty"`
	Analytics     []PostAnalytics          `json:"analytics,omitempty"`
	AI            *AIOutput                `json:"ai,omitempty"`
	Deconfliction *DeconflictionReport     `json:"deconfliction,omitempty"`
	GeoMarkers    []GeoMarker              `json:"geo_markers,omitempty"`
	Report        *Report                  `json:"report,omitempty"`

	// Notes become info events written ahead of the completion event, in order.
	Notes []string `json:"notes,omitempty"`
	// Message is used for the completion event.
	Message string `json:"message,omitempty"`
}

// Store is the persistence boundary of the pipeline. Every mutation that
// concludes a step is guarded by the lock token so that a tick which lost its
// lock cannot write.
type Store interface {
	CreateInvestigation(ctx context.Context, inv *Investigation) error
	GetInvestigation(ctx context.Context, id string) (*Investigation, error)

	// MarkProcessing moves a queued investigation to processing and writes the
	// started event in the same transaction. It reports whether this call made
	// the transition.
	MarkProcessing(ctx context.Context, id string, started ProgressEvent) (bool, error)

	// ClaimLock sets a new lock token if the row is unlocked, the lock expired,
	// or the last tick is older than staleAfter. It reports whether the claim won.
	ClaimLock(ctx context.Context, id, token string, now time.Time, ttl, staleAfter time.Duration) (bool, error)
	// ReleaseLock clears the lock only if token still owns it.
	ReleaseLock(ctx context.Context, id, token string) (bool, error)

	AppendEvent(ctx context.Context, ev ProgressEvent) (int64, error)
	// RecentEvents returns up to limit of the latest events, oldest first.
	RecentEvents(ctx context.Context, id string, limit int) ([]ProgressEvent, error)
	// EventsAfter returns events with id > afterID, oldest first.
	EventsAfter(ctx context.Context, id string, afterID int64, limit int) ([]ProgressEvent, error)

	// PersistStep writes a step's outputs, its notes and the completion event
	// atomically. It fails with a lock-lost error if token no longer matches.
	PersistStep(ctx context.Context, id, token string, out StepOutput, completion ProgressEvent) error
	// FailInvestigation records the failed event, sets status failed and
	// releases the lock, all under token.
	FailInvestigation(ctx context.Context, id, token string, failed ProgressEvent) error
	// CompleteInvestigation records the done event, sets status completed and
	// releases the lock, all under token.
	CompleteInvestigation(ctx context.Context, id, token string, done ProgressEvent) error

	LoadEnvelope(ctx context.Context, id string) (*Envelope, error)
	LoadProfiles(ctx context.Context, id string) ([]SocialProfile, error)
	LoadPosts(ctx context.Context, id string) ([]SocialPost, error)
	LoadAIOutput(ctx context.Context, id string) (*AIOutput, error)
	LoadDeconfliction(ctx context.Context, id string) (*DeconflictionReport, error)
	LoadGeoMarkers(ctx context.Context, id string) ([]GeoMarker, error)
	LoadReport(ctx context.Context, id string) (*Report, error)

	// Regenerate deletes every derived row and resets the investigation to
	// queued in one transaction.
	Regenerate(ctx context.Context, id string) error
}

// -- Engine Interfaces --

// StepRunner executes one pipeline step for an investigation.
type StepRunner interface {
	Run(ctx context.Context, inv *Investigation) (StepOutput, error)
}

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k"`             // Top-k sampling parameter.
	MaxTokens       int     `json:"max_tokens"`
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
