package analysis

import (
	"sort"
	"strings"
	"time"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/social"
)

// Input is everything the engine reads. Only Investigation is required.
type Input struct {
	Investigation *schemas.Investigation
	Envelope      *schemas.Envelope
	Profiles      []schemas.SocialProfile
	Posts         []schemas.SocialPost
}

// analyzer fills one part of the findings.
type analyzer struct {
	name string
	run  func(in Input, f *schemas.Findings)
}

var analyzers = []analyzer{
	{"breaches", analyzeBreaches},
	{"locations", analyzeLocations},
	{"associates", analyzeAssociates},
	{"timeline", analyzeTimeline},
	{"crypto", analyzeCrypto},
	{"technical", analyzeTechnical},
	{"profiles", analyzeProfiles},
	{"data_points", countDataPoints},
}

func analyzeBreaches(in Input, f *schemas.Findings) {
	env := in.Envelope
	if env == nil || env.Exposure == nil {
		return
	}
	s := &f.Breaches
	classes := map[string]bool{}
	accounts := map[string]bool{}
	for _, b := range env.Exposure.Breaches {
		s.Count++
		if b.IsSensitive {
			s.Sensitive++
		}
		if b.Account != "" && !accounts[b.Account] {
			accounts[b.Account] = true
			s.Accounts = append(s.Accounts, b.Account)
		}
		for _, c := range b.DataClasses {
			if !classes[c] {
				classes[c] = true
				s.DataClasses = append(s.DataClasses, c)
			}
		}
		if b.BreachDate == "" {
			continue
		}
		if s.Earliest == "" || b.BreachDate < s.Earliest {
			s.Earliest = b.BreachDate
		}
		if b.BreachDate > s.Latest {
			s.Latest = b.BreachDate
		}
	}
	sort.Strings(s.Accounts)
	sort.Strings(s.DataClasses)
}

// analyzeLocations gathers every place tied to the subject. The locations are
// inconsistent when they name more than one country.
func analyzeLocations(in Input, f *schemas.Findings) {
	s := &f.Locations
	places := map[string]bool{}
	countries := map[string]bool{}
	addPlace := func(p string) {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" && !places[strings.ToLower(p)] {
			places[strings.ToLower(p)] = true
			s.Places = append(s.Places, p)
		}
	}
	addCountry := func(c string) {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" && c != "ZZ" && !countries[c] {
			countries[c] = true
			s.Countries = append(s.Countries, c)
		}
	}
	if env := in.Envelope; env != nil {
		for _, l := range env.Locations {
			addPlace(l.Place)
			addCountry(l.Country)
		}
		if env.IPNetwork != nil {
			for _, h := range env.IPNetwork.Hosts {
				addCountry(h.Country)
				if h.City != "" {
					addPlace(strings.Join(nonEmpty(h.City, h.Region, h.Country), ", "))
				}
			}
		}
		if env.Phone != nil {
			addCountry(env.Phone.Info.Region)
		}
	}
	for _, p := range in.Profiles {
		addPlace(p.Metadata["location"])
	}
	sort.Strings(s.Countries)
	s.Inconsistent = len(s.Countries) > 1
}

func analyzeAssociates(in Input, f *schemas.Findings) {
	if in.Envelope == nil || in.Envelope.Connections == nil {
		return
	}
	f.Associates = append(f.Associates, in.Envelope.Connections.Associates...)
}

func analyzeTimeline(in Input, f *schemas.Findings) {
	var events []schemas.TimelineEvent
	add := func(when time.Time, kind, detail string) {
		if !when.IsZero() {
			events = append(events, schemas.TimelineEvent{When: when.UTC(), Kind: kind, Detail: detail})
		}
	}
	if env := in.Envelope; env != nil {
		if env.Exposure != nil {
			for _, b := range env.Exposure.Breaches {
				if t, err := time.Parse("2006-01-02", b.BreachDate); err == nil {
					add(t, "breach", b.Name)
				}
			}
		}
		if env.Domain != nil {
			for _, d := range env.Domain.Domains {
				if d.RDAP != nil && d.RDAP.Created != nil {
					add(*d.RDAP.Created, "domain_registered", d.Domain)
				}
			}
		}
	}
	for _, p := range in.Profiles {
		if t, err := time.Parse(time.RFC3339, p.Metadata["created_at"]); err == nil {
			add(t, "account_created", p.Key())
		}
	}
	if len(in.Posts) > 0 {
		first, last := in.Posts[0], in.Posts[0]
		for _, p := range in.Posts[1:] {
			if p.PostedAt.Before(first.PostedAt) {
				first = p
			}
			if p.PostedAt.After(last.PostedAt) {
				last = p
			}
		}
		add(first.PostedAt, "first_post", first.Platform+"/"+first.Username)
		if last.PostedAt.After(first.PostedAt) {
			add(last.PostedAt, "latest_post", last.Platform+"/"+last.Username)
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].When.Before(events[j].When) })
	f.Timeline = events
}

func analyzeCrypto(in Input, f *schemas.Findings) {
	if in.Envelope == nil || in.Envelope.Crypto == nil {
		return
	}
	for _, w := range in.Envelope.Crypto.Wallets {
		f.Crypto.Wallets++
		f.Crypto.TotalTx += w.TxCount
		if w.HighActivity {
			f.Crypto.HighActivity = true
		}
	}
}

func analyzeTechnical(in Input, f *schemas.Findings) {
	env := in.Envelope
	if env == nil {
		return
	}
	t := &f.Technical
	if env.Domain != nil {
		t.Domains = len(env.Domain.Domains)
		for _, d := range env.Domain.Domains {
			t.Subdomains += len(d.Subdomains)
		}
	}
	if env.IPNetwork == nil {
		return
	}
	ports := map[int]bool{}
	vulns := map[string]bool{}
	for _, h := range env.IPNetwork.Hosts {
		t.Hosts++
		for _, p := range h.Ports {
			if !ports[p] {
				ports[p] = true
				t.ExposedPorts = append(t.ExposedPorts, p)
			}
		}
		for _, v := range h.Vulns {
			if !vulns[v] {
				vulns[v] = true
				t.Vulns = append(t.Vulns, v)
			}
		}
	}
	sort.Ints(t.ExposedPorts)
	sort.Strings(t.Vulns)
}

// analyzeProfiles counts adult profiles among the kept profiles, or among the
// corroborated matches when the social steps did not run.
func analyzeProfiles(in Input, f *schemas.Findings) {
	if len(in.Profiles) > 0 {
		for _, p := range in.Profiles {
			if social.IsNSFW(p) {
				f.NSFWProfiles++
			}
		}
		return
	}
	if in.Envelope == nil || in.Envelope.Username == nil {
		return
	}
	for _, m := range in.Envelope.Username.Matches {
		if m.NSFW && (m.HasEvidence() || !m.Weak) {
			f.NSFWProfiles++
		}
	}
}

// countDataPoints counts every fact collected beyond what the caller
// supplied. An investigation with none has no basis for a verdict.
func countDataPoints(in Input, f *schemas.Findings) {
	n := len(in.Profiles) + len(in.Posts)
	if env := in.Envelope; env != nil {
		ids := env.Identifiers
		for _, set := range [][]string{ids.Emails, ids.Phones, ids.Usernames, ids.Domains} {
			for _, v := range set {
				if !strings.EqualFold(v, env.Target.Value) {
					n++
				}
			}
		}
		if env.Username != nil && len(in.Profiles) == 0 {
			n += len(env.Username.Matches)
		}
		if env.IPNetwork != nil {
			n += len(env.IPNetwork.Hosts)
		}
		if env.Exposure != nil {
			n += len(env.Exposure.Breaches) + len(env.Exposure.Mentions)
		}
		if env.Records != nil {
			n += len(env.Records.Property) + len(env.Records.Court) + len(env.Records.Criminal)
			if env.Records.Plate != nil && env.Records.Plate.OwnerName != "" {
				n++
			}
		}
		if env.Crypto != nil {
			n += len(env.Crypto.Wallets)
		}
		if env.Connections != nil {
			n += len(env.Connections.Associates)
		}
		for _, a := range env.Assertions {
			if a.Source != schemas.SourceUserInput {
				n++
			}
		}
	}
	f.DataPoints = n
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
