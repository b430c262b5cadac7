package collection

import (
	"context"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/crossref"
	"github.com/xkilldash9x/specter/internal/providers"
)

// Assertion confidences by where the claim came from.
const (
	confUserInput = 1.0
	confRegistry  = 0.8
	confRDAP      = 0.7
	confGravatar  = 0.5
	confDirectory = 0.4
	confSearch    = 0.3
)

// seed dispatches on the target type and fills the accumulator.
func (r *run) seed(ctx context.Context) error {
	value := strings.TrimSpace(r.inv.TargetValue)
	switch r.inv.TargetType {
	case schemas.TargetEmail:
		return r.seedEmail(ctx, value)
	case schemas.TargetUsername:
		return r.seedUsername(value)
	case schemas.TargetPhone:
		return r.seedPhone(ctx, value)
	case schemas.TargetDomain:
		return r.seedDomain(ctx, value)
	case schemas.TargetIP:
		return r.seedIP(ctx, value)
	case schemas.TargetName:
		return r.seedName(ctx, value)
	case schemas.TargetAddress:
		return r.seedAddress(ctx, value)
	case schemas.TargetPlate:
		return r.seedPlate(ctx, value)
	}
	return fmt.Errorf("%w: unsupported type %q", ErrInvalidTarget, r.inv.TargetType)
}

func (r *run) seedEmail(ctx context.Context, value string) error {
	p := r.c.providers
	addr := strings.ToLower(value)
	sec := &schemas.EmailSection{Address: addr}
	sec.Check = p.Email.Check(ctx, addr).OrZero()
	r.env.Email = sec

	if !sec.Check.Valid() {
		r.env.AddFlag(schemas.FlagInvalidEmail)
	}
	if sec.Check.Disposable {
		r.env.AddFlag(schemas.FlagDisposableEmail)
	}
	if !sec.Check.SyntaxValid {
		r.logger.Info("Target email is not syntactically valid", zap.String("email", addr))
		return nil
	}

	r.acc.AddEmail(addr)
	sec.DerivedUsernames = DerivedUsernames(crossref.LocalPart(addr))
	for i, u := range sec.DerivedUsernames {
		r.addCandidate(u, i > 0)
	}
	if len(sec.DerivedUsernames) > 0 {
		r.acc.AddUsername(sec.DerivedUsernames[0])
	}

	if g, ok := p.Gravatar.Lookup(ctx, addr).Get(); ok {
		sec.Gravatar = &g
		r.absorbGravatar(g)
	}
	return nil
}

func (r *run) absorbGravatar(g schemas.GravatarProfile) {
	if g.DisplayName != "" {
		r.assert(schemas.FieldName, g.DisplayName, schemas.SourceGravatar, confGravatar, "gravatar profile")
	}
	if g.Location != "" {
		r.locate(g.Location, "", schemas.SourceGravatar)
	}
	if g.AvatarURL != "" {
		r.imageRefs = append(r.imageRefs, imageRef{url: g.AvatarURL, source: schemas.SourceGravatar})
	}
	for _, a := range g.Accounts {
		r.addURL(a)
		r.addLink(a, schemas.SourceGravatar)
	}
}

func (r *run) seedUsername(value string) error {
	handle := crossref.NormalizeUsername(value)
	if handle == "" {
		return fmt.Errorf("%w: %q is not a username", ErrInvalidTarget, value)
	}
	r.addCandidate(handle, false)
	r.acc.AddUsername(handle)
	return nil
}

func (r *run) seedPhone(ctx context.Context, value string) error {
	sec := &schemas.PhoneSection{Info: schemas.PhoneInfo{Raw: value}}
	if info, ok := r.c.providers.Phone.Parse(ctx, value).Get(); ok {
		sec.Info = info
		r.acc.AddPhone(info.E164)
		if info.Region != "" && info.Region != "ZZ" {
			r.locate("", info.Region, "phone_region")
		}
	} else if !r.acc.AddPhone(value) {
		return fmt.Errorf("%w: %q is not a phone number", ErrInvalidTarget, value)
	}
	r.env.Phone = sec
	return nil
}

func (r *run) seedDomain(ctx context.Context, value string) error {
	domain := crossref.NormalizeDomain(value)
	if domain == "" {
		return fmt.Errorf("%w: %q is not a domain", ErrInvalidTarget, value)
	}
	r.acc.AddDomain(domain)
	intel := r.enrichDomains(ctx, []string{domain})
	r.mergeDomains(intel)
	return nil
}

func (r *run) seedIP(ctx context.Context, value string) error {
	ip := net.ParseIP(value)
	if ip == nil {
		return fmt.Errorf("%w: %q is not an IP address", ErrInvalidTarget, value)
	}
	addr := ip.String()
	hosts := r.lookupHosts(ctx, []string{addr})
	r.mergeHosts(hosts)
	if names, ok := r.c.providers.DNS.Reverse(ctx, addr).Get(); ok {
		for _, n := range names {
			if d := crossref.RegisteredDomain(n); d != "" {
				r.acc.AddDomain(d)
			}
		}
	}
	return nil
}

func (r *run) seedName(ctx context.Context, value string) error {
	name := strings.Join(strings.Fields(value), " ")
	r.assert(schemas.FieldName, name, schemas.SourceUserInput, confUserInput, "investigation target")
	for _, u := range NamePermutations(name) {
		r.addCandidate(u, true)
	}
	r.searchSubject(ctx, `"`+name+`"`)
	return nil
}

func (r *run) seedAddress(ctx context.Context, value string) error {
	addr := strings.Join(strings.Fields(value), " ")
	r.assert(schemas.FieldAddress, addr, schemas.SourceUserInput, confUserInput, "investigation target")
	r.locate(addr, "", schemas.SourceUserInput)
	hits := r.searchSubject(ctx, `"`+addr+`"`)
	for _, h := range hits {
		if n := providers.NameFromTitle(h.Title); n != "" {
			r.assert(schemas.FieldName, n, schemas.SourceWebSearch, confSearch, h.URL)
		}
	}
	return nil
}

func (r *run) seedPlate(ctx context.Context, value string) error {
	rec, ok := r.c.providers.Plate.Lookup(ctx, value).Get()
	if !ok {
		// A plate with no registry hit still has a section so readers can
		// tell the lookup ran.
		_, number := providers.SplitPlate(value)
		if number == "" {
			return fmt.Errorf("%w: empty plate", ErrInvalidTarget)
		}
		r.env.Records = &schemas.RecordsSection{Plate: &schemas.PlateRecord{Plate: number}}
		return nil
	}
	r.env.Records = &schemas.RecordsSection{Plate: &rec}
	r.assert(schemas.FieldName, rec.OwnerName, schemas.SourcePlateRegistry, confRegistry, rec.Plate)
	r.assert(schemas.FieldAddress, rec.Address, schemas.SourcePlateRegistry, confRegistry, rec.Plate)
	r.locate(rec.Address, "", schemas.SourcePlateRegistry)
	return nil
}

// seedHints records the caller's known name and address as user input.
func (r *run) seedHints() {
	if n := r.flags.KnownName; n != "" {
		r.assert(schemas.FieldName, n, schemas.SourceUserInput, confUserInput, "known_name")
		for _, u := range NamePermutations(n) {
			r.addCandidate(u, true)
		}
	}
	if a := r.flags.KnownAddress; a != "" {
		r.assert(schemas.FieldAddress, a, schemas.SourceUserInput, confUserInput, "known_address")
		r.locate(a, "", schemas.SourceUserInput)
	}
}

// searchSubject runs a web search and absorbs what the hits reveal: contacts,
// profile links and street addresses.
func (r *run) searchSubject(ctx context.Context, query string) []schemas.SearchHit {
	hits, ok := r.c.providers.Search.Search(ctx, query).Get()
	if !ok {
		return nil
	}
	for _, h := range hits {
		text := h.Title + " " + h.Snippet
		r.addCorpus(schemas.SourceWebSearch, text)
		r.acc.Absorb(text)
		r.addURL(h.URL)
		r.addLink(h.URL, schemas.SourceWebSearch)
		for _, a := range providers.Addresses(text) {
			r.assert(schemas.FieldAddress, a, schemas.SourceWebSearch, confSearch, h.URL)
		}
	}
	return hits
}
