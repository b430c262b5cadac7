package analysis

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
)

const maxListed = 5

// Narrative writes the heuristic summary used when no model rewrites it.
func Narrative(target schemas.Target, g schemas.IdentityGraph, f schemas.Findings, risk schemas.RiskAssessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Investigation of %s %q collected %d data points.", target.Type, target.Value, f.DataPoints)

	if f.DataPoints == 0 {
		b.WriteString(" No provider returned information about the target, so no verdict can be given.")
		return b.String()
	}

	if n := f.Breaches.Count; n > 0 {
		fmt.Fprintf(&b, " The subject appears in %d known breaches", n)
		if f.Breaches.Earliest != "" {
			fmt.Fprintf(&b, " between %s and %s", f.Breaches.Earliest, f.Breaches.Latest)
		}
		if len(f.Breaches.DataClasses) > 0 {
			fmt.Fprintf(&b, ", exposing %s", listOf(f.Breaches.DataClasses))
		}
		b.WriteString(".")
	} else {
		b.WriteString(" No breaches were found.")
	}

	if len(g.Handles) > 0 {
		names := make([]string, 0, len(g.Handles))
		for _, h := range g.Handles {
			names = append(names, fmt.Sprintf("%s/%s (%.0f%%)", h.Platform, h.Username, h.Confidence*100))
		}
		fmt.Fprintf(&b, " Linked online accounts: %s.", listOf(names))
	}
	if ids := len(g.Emails) + len(g.Phones) + len(g.Domains); ids > 0 {
		fmt.Fprintf(&b, " Cross-referencing surfaced %d emails, %d phone numbers and %d domains.", len(g.Emails), len(g.Phones), len(g.Domains))
	}

	if len(f.Locations.Places) > 0 {
		fmt.Fprintf(&b, " Associated places: %s.", listOf(f.Locations.Places))
	}
	if f.Locations.Inconsistent {
		fmt.Fprintf(&b, " Location signals disagree across %s.", strings.Join(f.Locations.Countries, ", "))
	}
	if n := len(f.Associates); n > 0 {
		risky := riskyAssociates(f.Associates)
		fmt.Fprintf(&b, " %d possible associates were identified", n)
		if risky > 0 {
			fmt.Fprintf(&b, ", %d of them named in court or criminal records", risky)
		}
		b.WriteString(".")
	}
	if f.Crypto.Wallets > 0 {
		fmt.Fprintf(&b, " %d cryptocurrency wallets with %d transactions were tied to the subject.", f.Crypto.Wallets, f.Crypto.TotalTx)
	}
	if t := f.Technical; t.Hosts > 0 && len(t.Vulns) > 0 {
		fmt.Fprintf(&b, " Hosts expose %d known vulnerabilities.", len(t.Vulns))
	}

	fmt.Fprintf(&b, " Overall risk is %s (%d/100), verdict %s.", risk.Level, risk.Score, risk.Verdict)
	return b.String()
}

func listOf(items []string) string {
	if len(items) > maxListed {
		return strings.Join(items[:maxListed], ", ") + fmt.Sprintf(" and %d more", len(items)-maxListed)
	}
	return strings.Join(items, ", ")
}
