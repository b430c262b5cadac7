package schemas

import "time"

// -- Identity Graph --

// IdentityGraph is rebuilt from the envelope and profiles on every analysis
// run and is only persisted as part of an AIOutput.
type IdentityGraph struct {
	Emails  []string `json:"emails,omitempty"`
	Domains []string `json:"domains,omitempty"`
	IPs     []string `json:"ips,omitempty"`
	Phones  []string `json:"phones,omitempty"`
	Handles []Handle `json:"handles,omitempty"`
	Links   []Link   `json:"links,omitempty"`
}

type Handle struct {
	Platform   string  `json:"platform"`
	Username   string  `json:"username"`
	Confidence float64 `json:"confidence"`
}

// Link is an undirected association between two graph nodes.
type Link struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Reason string  `json:"reason"`
	Weight float64 `json:"weight"`
}

// -- Risk --

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type Verdict string

const (
	VerdictSafe       Verdict = "Safe"
	VerdictSuspicious Verdict = "Suspicious"
	VerdictMalicious  Verdict = "Malicious"
	VerdictUnknown    Verdict = "Unknown"
)

// RiskFactor is one scored contribution to the risk total.
type RiskFactor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
	Detail string `json:"detail"`
}

type RiskAssessment struct {
	Factors []RiskFactor `json:"factors"`
	Score   int          `json:"score"`
	Level   RiskLevel    `json:"level"`
	Verdict Verdict      `json:"verdict"`
}

// -- Analysis findings --

type BreachSummary struct {
	Count       int      `json:"count"`
	Accounts    []string `json:"accounts,omitempty"`
	DataClasses []string `json:"data_classes,omitempty"`
	Sensitive   int      `json:"sensitive"`
	Earliest    string   `json:"earliest,omitempty"`
	Latest      string   `json:"latest,omitempty"`
}

type LocationSummary struct {
	Places       []string `json:"places,omitempty"`
	Countries    []string `json:"countries,omitempty"`
	Inconsistent bool     `json:"inconsistent"`
}

type TimelineEvent struct {
	When   time.Time `json:"when"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
}

type CryptoSummary struct {
	Wallets      int  `json:"wallets"`
	TotalTx      int  `json:"total_tx"`
	HighActivity bool `json:"high_activity"`
}

// TechnicalFootprint summarizes domains and hosts tied to the subject.
type TechnicalFootprint struct {
	Domains      int      `json:"domains"`
	Subdomains   int      `json:"subdomains"`
	Hosts        int      `json:"hosts"`
	ExposedPorts []int    `json:"exposed_ports,omitempty"`
	Vulns        []string `json:"vulns,omitempty"`
}

// Findings is the structured output of the analysis engine.
type Findings struct {
	Breaches     BreachSummary      `json:"breaches"`
	Locations    LocationSummary    `json:"locations"`
	Associates   []Associate        `json:"associates,omitempty"`
	Timeline     []TimelineEvent    `json:"timeline,omitempty"`
	Crypto       CryptoSummary      `json:"crypto"`
	Technical    TechnicalFootprint `json:"technical"`
	NSFWProfiles int                `json:"nsfw_profiles"`
	DataPoints   int                `json:"data_points"`
}

// AIOutput is the persisted result of the ai step. Enhanced is false when the
// heuristic narrative and verdict are used unchanged.
type AIOutput struct {
	Graph       IdentityGraph  `json:"graph"`
	Findings    Findings       `json:"findings"`
	Risk        RiskAssessment `json:"risk"`
	Narrative   string         `json:"narrative"`
	Enhanced    bool           `json:"enhanced"`
	Model       string         `json:"model,omitempty"`
	FallbackWhy string         `json:"fallback_reason,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// -- Deconfliction --

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AssertionSource is one source backing a value group.
type AssertionSource struct {
	Source     string  `json:"source"`
	Strength   int     `json:"strength"`
	Confidence float64 `json:"confidence,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

// ValueGroup collects the sources that agree on one normalized value.
type ValueGroup struct {
	Value    string            `json:"value"`
	Display  string            `json:"display"`
	Strength int               `json:"strength"`
	Sources  []AssertionSource `json:"sources"`
}

type Conflict struct {
	Field    AssertionField `json:"field"`
	Values   []string       `json:"values"`
	Severity Severity       `json:"severity"`
}

type FieldReport struct {
	Field     AssertionField `json:"field"`
	Groups    []ValueGroup   `json:"groups"`
	Conflicts []Conflict     `json:"conflicts,omitempty"`
}

type DeconflictionReport struct {
	Fields      []FieldReport `json:"fields"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Conflicts flattens the conflicts over every field.
func (r *DeconflictionReport) Conflicts() []Conflict {
	if r == nil {
		return nil
	}
	var out []Conflict
	for _, f := range r.Fields {
		out = append(out, f.Conflicts...)
	}
	return out
}

// -- Geo & Report --

type GeoMarker struct {
	Label  string  `json:"label"`
	Kind   string  `json:"kind"`
	Source string  `json:"source"`
	Query  string  `json:"query"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

type ReportSection struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// Report is the final assembled document. Rendering it is left to callers.
type Report struct {
	InvestigationID string          `json:"investigation_id"`
	Target          Target          `json:"target"`
	Summary         string          `json:"summary"`
	Risk            *RiskAssessment `json:"risk,omitempty"`
	Sections        []ReportSection `json:"sections"`
	GeneratedAt     time.Time       `json:"generated_at"`
}
