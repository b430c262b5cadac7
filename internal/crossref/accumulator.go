// Package crossref holds the per-run identifier accumulator and the helpers
// that find, normalize and match identifiers in collected text.
package crossref

import (
	"sort"
	"sync"

	"github.com/xkilldash9x/specter/api/schemas"
)

// Accumulator collects identifiers discovered during one collection run so
// that later passes can broaden the search. It is owned by the run that
// created it; the mutex exists for that run's own workers.
type Accumulator struct {
	mu        sync.Mutex
	emails    map[string]struct{}
	phones    map[string]struct{}
	usernames map[string]struct{}
	domains   map[string]struct{}
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		emails:    map[string]struct{}{},
		phones:    map[string]struct{}{},
		usernames: map[string]struct{}{},
		domains:   map[string]struct{}{},
	}
}

// AddEmail records an address and, unless it is a public mailbox provider,
// its registered domain. It reports whether the address was new.
func (a *Accumulator) AddEmail(raw string) bool {
	e := NormalizeEmail(raw)
	if e == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !IsFreeMail(e) {
		if d := EmailDomain(e); d != "" {
			a.domains[d] = struct{}{}
		}
	}
	return add(a.emails, e)
}

func (a *Accumulator) AddPhone(raw string) bool {
	p := NormalizePhone(raw)
	if p == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return add(a.phones, p)
}

func (a *Accumulator) AddUsername(raw string) bool {
	u := NormalizeUsername(raw)
	if u == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return add(a.usernames, u)
}

func (a *Accumulator) AddDomain(raw string) bool {
	d := NormalizeDomain(raw)
	if d == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return add(a.domains, d)
}

// Absorb adds every email, phone and domain found in text and returns how
// many were new. Mentioned handles are not absorbed: an @mention names
// someone else far more often than the subject.
func (a *Accumulator) Absorb(text string) int {
	found := Extract(text)
	n := 0
	for _, e := range found.Emails {
		if a.AddEmail(e) {
			n++
		}
	}
	for _, p := range found.Phones {
		if a.AddPhone(p) {
			n++
		}
	}
	for _, d := range found.Domains {
		if a.AddDomain(d) {
			n++
		}
	}
	return n
}

func (a *Accumulator) Emails() []string    { return a.sorted(a.emails) }
func (a *Accumulator) Phones() []string    { return a.sorted(a.phones) }
func (a *Accumulator) Usernames() []string { return a.sorted(a.usernames) }
func (a *Accumulator) Domains() []string   { return a.sorted(a.domains) }

// Len is the total number of identifiers held.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.emails) + len(a.phones) + len(a.usernames) + len(a.domains)
}

// Snapshot freezes the current contents.
func (a *Accumulator) Snapshot() schemas.IdentifierSnapshot {
	return schemas.IdentifierSnapshot{
		Emails:    a.Emails(),
		Phones:    a.Phones(),
		Usernames: a.Usernames(),
		Domains:   a.Domains(),
	}
}

func (a *Accumulator) sorted(set map[string]struct{}) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func add(set map[string]struct{}, v string) bool {
	if _, ok := set[v]; ok {
		return false
	}
	set[v] = struct{}{}
	return true
}
