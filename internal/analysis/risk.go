package analysis

import (
	"fmt"

	"github.com/xkilldash9x/specter/api/schemas"
)

// Risk factor names, in the order they are evaluated.
const (
	FactorBreaches         = "breaches"
	FactorDeepWebContacts  = "deep_web_contacts"
	FactorCriminalRecords  = "criminal_records"
	FactorCourtRecords     = "court_records"
	FactorLocationMismatch = "location_inconsistency"
	FactorNSFWProfiles     = "nsfw_profiles"
	FactorRiskyAssociates  = "risky_associates"
	FactorCryptoActivity   = "crypto_high_activity"
	FactorDisposableEmail  = "disposable_email"
	FactorInvalidEmail     = "invalid_email"
)

const (
	highThreshold   = 70
	mediumThreshold = 40
)

// Assess scores the findings. It is a pure function of its inputs: the same
// findings and envelope always give the same assessment.
func Assess(f schemas.Findings, env *schemas.Envelope) schemas.RiskAssessment {
	var factors []schemas.RiskFactor
	add := func(name string, points int, detail string) {
		if points > 0 {
			factors = append(factors, schemas.RiskFactor{Name: name, Points: points, Detail: detail})
		}
	}

	if n := f.Breaches.Count; n > 0 {
		add(FactorBreaches, min(50, 5*n), fmt.Sprintf("found in %d known breaches", n))
	}
	if env != nil && env.Exposure != nil && len(env.Exposure.ExtraContacts) > 0 {
		add(FactorDeepWebContacts, 10, fmt.Sprintf("%d extra contacts in paste and deep-web mentions", len(env.Exposure.ExtraContacts)))
	}
	if env != nil && env.Records != nil {
		if n := len(env.Records.Criminal); n > 0 {
			add(FactorCriminalRecords, 40, fmt.Sprintf("%d criminal record hits", n))
		}
		if n := len(env.Records.Court); n > 0 {
			add(FactorCourtRecords, 20, fmt.Sprintf("%d court record hits", n))
		}
	}
	if f.Locations.Inconsistent {
		add(FactorLocationMismatch, 15, fmt.Sprintf("locations span %d countries", len(f.Locations.Countries)))
	}
	if n := f.NSFWProfiles; n > 0 {
		add(FactorNSFWProfiles, min(20, 10*n), fmt.Sprintf("%d adult-flagged profiles", n))
	}
	if n := riskyAssociates(f.Associates); n > 0 {
		add(FactorRiskyAssociates, min(30, 10*n), fmt.Sprintf("%d associates named in court or criminal records", n))
	}
	if f.Crypto.HighActivity {
		add(FactorCryptoActivity, 10, fmt.Sprintf("%d wallets, %d transactions", f.Crypto.Wallets, f.Crypto.TotalTx))
	}
	if env.HasFlag(schemas.FlagDisposableEmail) {
		add(FactorDisposableEmail, 30, "target uses a disposable email provider")
	}
	if env.HasFlag(schemas.FlagInvalidEmail) {
		add(FactorInvalidEmail, 20, "target email is not deliverable")
	}

	score := 0
	for _, fc := range factors {
		score += fc.Points
	}
	score = min(max(score, 0), 100)

	ra := schemas.RiskAssessment{Factors: factors, Score: score}
	switch {
	case score > highThreshold:
		ra.Level, ra.Verdict = schemas.RiskHigh, schemas.VerdictMalicious
	case score > mediumThreshold:
		ra.Level, ra.Verdict = schemas.RiskMedium, schemas.VerdictSuspicious
	default:
		ra.Level, ra.Verdict = schemas.RiskLow, schemas.VerdictSafe
	}
	if f.DataPoints == 0 {
		ra.Verdict = schemas.VerdictUnknown
	}
	if ra.Factors == nil {
		ra.Factors = []schemas.RiskFactor{}
	}
	return ra
}

func riskyAssociates(as []schemas.Associate) int {
	n := 0
	for _, a := range as {
		if a.Risky {
			n++
		}
	}
	return n
}
