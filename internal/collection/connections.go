package collection

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
)

const maxAssociates = 20

var personName = regexp.MustCompile(`\b[A-Z][a-z]{1,20}(?:\s+[A-Z]\.)?\s+[A-Z][a-z]{1,20}\b`)

// Capitalized words that show up in page titles and record captions far more
// often than in names.
var nameStopwords = map[string]bool{
	"phone": true, "address": true, "street": true, "avenue": true, "road": true,
	"court": true, "county": true, "state": true, "city": true, "united": true,
	"states": true, "public": true, "records": true, "record": true, "search": true,
	"people": true, "property": true, "view": true, "full": true, "report": true,
	"contact": true, "email": true, "free": true, "results": true, "page": true,
	"profile": true, "the": true, "and": true, "for": true, "new": true,
	"north": true, "south": true, "east": true, "west": true, "police": true,
	"department": true, "district": true, "superior": true, "case": true,
	"log": true, "sign": true, "home": true, "about": true, "privacy": true,
}

type associateTally struct {
	name     string
	snippets map[int]bool
	sources  map[string]bool
}

// enrichConnections mines the collected text for people who appear next to
// the subject. A name counts when it shows up in two or more snippets, or once
// in a directory listing or public record. Names from criminal or court
// records mark the associate as risky.
func (r *run) enrichConnections(ctx context.Context) error {
	tallies := map[string]*associateTally{}
	var order []string
	for i, s := range r.corpus {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, m := range personName.FindAllString(s.text, -1) {
			name := strings.Join(strings.Fields(m), " ")
			if !plausibleName(name) || r.isSubject(name) {
				continue
			}
			key := strings.ToLower(name)
			t, ok := tallies[key]
			if !ok {
				t = &associateTally{name: name, snippets: map[int]bool{}, sources: map[string]bool{}}
				tallies[key] = t
				order = append(order, key)
			}
			t.snippets[i] = true
			t.sources[s.source] = true
		}
	}

	var out []schemas.Associate
	for _, key := range order {
		t := tallies[key]
		strong := t.sources["directory"] || t.sources["records:"+string(schemas.RecordProperty)] ||
			t.sources["records:"+string(schemas.RecordCourt)] || t.sources["records:"+string(schemas.RecordCriminal)]
		if len(t.snippets) < 2 && !strong {
			continue
		}
		a := schemas.Associate{Name: t.name, Mentions: len(t.snippets)}
		for s := range t.sources {
			a.Sources = append(a.Sources, s)
		}
		sort.Strings(a.Sources)
		switch {
		case t.sources["records:"+string(schemas.RecordCriminal)]:
			a.Risky, a.Reason = true, "named in a criminal record"
		case t.sources["records:"+string(schemas.RecordCourt)]:
			a.Risky, a.Reason = true, "named in a court record"
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Mentions > out[j].Mentions })
	if len(out) > maxAssociates {
		out = out[:maxAssociates]
	}
	r.env.Connections = &schemas.ConnectionsSection{Associates: out}
	return nil
}

func plausibleName(name string) bool {
	for _, w := range strings.Fields(name) {
		if nameStopwords[strings.ToLower(strings.TrimSuffix(w, "."))] {
			return false
		}
	}
	return true
}

// isSubject reports whether every word of name also appears in one of the
// subject's known names, so "Alice Smith" excludes "Alice B. Smith" and
// "Smith Alice" alike.
func (r *run) isSubject(name string) bool {
	words := strings.Fields(strings.ToLower(name))
	for _, subject := range r.subjectNames {
		known := map[string]bool{}
		for _, w := range strings.Fields(strings.ToLower(subject)) {
			known[w] = true
		}
		all := true
		for _, w := range words {
			if strings.HasSuffix(w, ".") {
				continue
			}
			if !known[w] {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
