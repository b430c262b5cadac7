package collection

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/crossref"
	"github.com/xkilldash9x/specter/internal/providers"
	"github.com/xkilldash9x/specter/internal/workpool"
)

const (
	maxHostsPerDomain  = 3
	maxDirectoryQuery  = 6
	maxExposureQueries = 6
	maxRecordNames     = 2
	maxCryptoAddresses = 10
)

// enrich runs the enrichment sub-steps in their fixed order. Images, records
// and breach lookups honor their opt-out flags, which default to on.
func (r *run) enrich(ctx context.Context) {
	r.subStep(ctx, "network", r.enrichNetwork)
	r.subStep(ctx, "directory", r.enrichDirectory)
	r.subStep(ctx, "exposure", r.enrichExposure)
	if r.flags.ImagesEnabled {
		r.subStep(ctx, "images", r.enrichImages)
	}
	if r.flags.RecordsEnabled {
		r.subStep(ctx, "records", r.enrichRecords)
	}
	r.subStep(ctx, "connections", r.enrichConnections)
	r.subStep(ctx, "crypto", r.enrichCrypto)
}

// -- network / domain --

func (r *run) enrichNetwork(ctx context.Context) error {
	var todo []string
	for _, d := range r.acc.Domains() {
		if !r.domainsDone[d] {
			todo = append(todo, d)
		}
	}
	if limit := r.c.cfg.MaxDomains; limit > 0 && len(todo) > limit {
		todo = todo[:limit]
	}
	r.mergeDomains(r.enrichDomains(ctx, todo))
	// Seeding may have queued addresses too.
	r.mergeHosts(r.lookupHosts(ctx, r.pendingIPs))
	r.pendingIPs = nil
	return nil
}

// enrichDomains gathers RDAP, DNS, certificate and URL data for each domain
// on the pool.
func (r *run) enrichDomains(ctx context.Context, domains []string) []schemas.DomainIntel {
	p := r.c.providers
	for _, d := range domains {
		r.domainsDone[d] = true
	}
	outcomes := workpool.Map(ctx, r.pool, domains, func(ctx context.Context, domain string) (schemas.DomainIntel, error) {
		intel := schemas.DomainIntel{Domain: domain, Registered: crossref.RegisteredDomain(domain)}
		if rec, ok := p.RDAP.Lookup(ctx, intel.Registered).Get(); ok {
			intel.RDAP = &rec
		}
		if dns, ok := p.DNS.Lookup(ctx, domain).Get(); ok {
			intel.DNS = &dns
		}
		if subs, ok := p.Certs.Subdomains(ctx, domain).Get(); ok {
			intel.Subdomains = subs
		}
		// A nil sitemap provider disables URL discovery.
		if p.Sitemap != nil {
			if urls, ok := p.Sitemap.Discover(ctx, domain).Get(); ok {
				intel.URLs = urls
			}
		}
		return intel, nil
	})
	return workpool.Values(outcomes)
}

func (r *run) mergeDomains(intel []schemas.DomainIntel) {
	if len(intel) == 0 {
		return
	}
	if r.env.Domain == nil {
		r.env.Domain = &schemas.DomainSection{}
	}
	var ips []string
	for _, d := range intel {
		r.env.Domain.Domains = append(r.env.Domain.Domains, d)
		for _, u := range d.URLs {
			r.addURL(u)
		}
		if rec := d.RDAP; rec != nil {
			for _, e := range rec.Emails {
				r.acc.AddEmail(e)
			}
			r.assert(schemas.FieldName, rec.RegistrantName, schemas.SourceRDAPRegistrant, confRDAP, d.Domain)
			if rec.RegistrantAddr != "" {
				r.assert(schemas.FieldAddress, rec.RegistrantAddr, schemas.SourceRDAPRegistrant, confRDAP, d.Domain)
				r.locate(rec.RegistrantAddr, "", schemas.SourceRDAPRegistrant)
			}
		}
		if d.DNS != nil {
			for i, a := range d.DNS.A {
				if i >= maxHostsPerDomain {
					break
				}
				ips = append(ips, a)
			}
		}
	}
	r.pendingIPs = append(r.pendingIPs, ips...)
}

// lookupHosts runs host intel for each address on the pool.
func (r *run) lookupHosts(ctx context.Context, ips []string) []schemas.IPIntel {
	var todo []string
	for _, ip := range dedupeStrings(ips) {
		if !r.hostsDone[ip] {
			r.hostsDone[ip] = true
			todo = append(todo, ip)
		}
	}
	outcomes := workpool.Map(ctx, r.pool, todo, func(ctx context.Context, ip string) (schemas.IPIntel, error) {
		intel, ok := r.c.providers.HostIntel.Lookup(ctx, ip).Get()
		if !ok {
			return schemas.IPIntel{IP: ip}, nil
		}
		return intel, nil
	})
	return workpool.Values(outcomes)
}

func (r *run) mergeHosts(hosts []schemas.IPIntel) {
	if len(hosts) == 0 {
		return
	}
	if r.env.IPNetwork == nil {
		r.env.IPNetwork = &schemas.IPNetworkSection{}
	}
	for _, h := range hosts {
		r.env.IPNetwork.Hosts = append(r.env.IPNetwork.Hosts, h)
		// Server location says nothing about a person unless the address is
		// the target itself.
		if r.inv.TargetType == schemas.TargetIP {
			place := strings.Trim(strings.Join([]string{h.City, h.Region}, ", "), ", ")
			r.locate(place, h.Country, "ip_geolocation")
		}
	}
}

// -- directory hubs --

func (r *run) enrichDirectory(ctx context.Context) error {
	queries := append(r.acc.Phones(), r.acc.Emails()...)
	if len(queries) > maxDirectoryQuery {
		queries = queries[:maxDirectoryQuery]
	}
	outcomes := workpool.Map(ctx, r.pool, queries, func(ctx context.Context, q string) ([]schemas.DirectoryHit, error) {
		hits, _ := r.c.providers.Directory.Lookup(ctx, q).Get()
		return hits, nil
	})
	for _, hits := range workpool.Values(outcomes) {
		for _, h := range hits {
			r.mergeDirectoryHit(h)
		}
	}
	return nil
}

func (r *run) mergeDirectoryHit(h schemas.DirectoryHit) {
	isEmail := strings.Contains(h.Query, "@")
	switch {
	case !isEmail && r.env.Phone != nil:
		r.env.Phone.Directory = append(r.env.Phone.Directory, h)
	case isEmail && r.env.Email != nil:
		r.env.Email.Directory = append(r.env.Email.Directory, h)
	default:
		r.exposure().Mentions = append(r.exposure().Mentions, schemas.Mention{
			Source:   "directory:" + h.Hub,
			URL:      h.URL,
			Snippet:  strings.Join(append(append([]string{}, h.Names...), h.Addresses...), "; "),
			Contacts: append(append([]string{}, h.Emails...), h.Phones...),
		})
	}
	for _, n := range h.Names {
		r.assert(schemas.FieldName, n, schemas.SourceDirectory, confDirectory, h.URL)
	}
	for _, a := range h.Addresses {
		r.assert(schemas.FieldAddress, a, schemas.SourceDirectory, confDirectory, h.URL)
		r.locate(a, "", schemas.SourceDirectory)
	}
	for _, e := range h.Emails {
		r.acc.AddEmail(e)
	}
	for _, p := range h.Phones {
		r.acc.AddPhone(p)
	}
	r.addCorpus("directory", strings.Join(h.Names, ", ")+" "+strings.Join(h.Addresses, "; "))
}

func (r *run) exposure() *schemas.ExposureSection {
	if r.env.Exposure == nil {
		r.env.Exposure = &schemas.ExposureSection{}
	}
	return r.env.Exposure
}

// -- breaches, mentions, deep web --

type exposureResult struct {
	breaches []schemas.Breach
	paste    *providers.Exposure
	hits     []schemas.SearchHit
}

type exposureTask struct {
	kind  string
	query string
}

func (r *run) enrichExposure(ctx context.Context) error {
	p := r.c.providers
	var tasks []exposureTask
	if r.flags.BreachesEnabled {
		for _, e := range r.acc.Emails() {
			tasks = append(tasks, exposureTask{kind: "breach", query: e})
		}
	}
	pasteQueries := append(r.acc.Emails(), r.acc.Phones()...)
	if s := r.strongest(); s != "" {
		pasteQueries = append(pasteQueries, s)
	}
	if len(pasteQueries) > maxExposureQueries {
		pasteQueries = pasteQueries[:maxExposureQueries]
	}
	for _, q := range pasteQueries {
		tasks = append(tasks, exposureTask{kind: "paste", query: q})
	}
	// Name and address targets were already searched during seeding.
	switch r.inv.TargetType {
	case schemas.TargetName, schemas.TargetAddress:
	default:
		tasks = append(tasks, exposureTask{kind: "web", query: `"` + strings.TrimSpace(r.inv.TargetValue) + `"`})
	}

	outcomes := workpool.Map(ctx, r.pool, tasks, func(ctx context.Context, t exposureTask) (exposureResult, error) {
		var res exposureResult
		switch t.kind {
		case "breach":
			res.breaches, _ = p.Breach.Lookup(ctx, t.query).Get()
		case "paste":
			if exp, ok := p.Paste.Search(ctx, t.query).Get(); ok {
				res.paste = &exp
			}
		case "web":
			res.hits, _ = p.Search.Search(ctx, t.query).Get()
		}
		return res, nil
	})

	for _, res := range workpool.Values(outcomes) {
		if len(res.breaches) > 0 {
			r.exposure().Breaches = append(r.exposure().Breaches, res.breaches...)
		}
		if res.paste != nil {
			exp := r.exposure()
			exp.Mentions = append(exp.Mentions, res.paste.Mentions...)
			for _, m := range res.paste.Mentions {
				r.addCorpus("paste", m.Snippet)
			}
			for _, c := range res.paste.ExtraContacts {
				if !containsString(exp.ExtraContacts, c) {
					exp.ExtraContacts = append(exp.ExtraContacts, c)
				}
				if strings.Contains(c, "@") {
					r.acc.AddEmail(c)
				} else {
					r.acc.AddPhone(c)
				}
			}
		}
		for _, h := range res.hits {
			text := h.Title + " " + h.Snippet
			r.exposure().Mentions = append(r.exposure().Mentions, schemas.Mention{
				Source: schemas.SourceWebSearch, URL: h.URL, Snippet: h.Snippet,
			})
			r.addCorpus(schemas.SourceWebSearch, text)
			r.acc.Absorb(text)
			r.addURL(h.URL)
			r.addLink(h.URL, schemas.SourceWebSearch)
		}
	}
	if r.env.Exposure != nil {
		r.logger.Debug("Exposure collected",
			zap.Int("breaches", len(r.env.Exposure.Breaches)),
			zap.Int("mentions", len(r.env.Exposure.Mentions)),
			zap.Int("extra_contacts", len(r.env.Exposure.ExtraContacts)))
	}
	return nil
}

// -- images --

func (r *run) enrichImages(ctx context.Context) error {
	var refs []imageRef
	seen := map[string]bool{}
	for _, ref := range r.imageRefs {
		if ref.url != "" && !seen[ref.url] {
			seen[ref.url] = true
			refs = append(refs, ref)
		}
	}
	if limit := r.c.cfg.MaxImages; limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	outcomes := workpool.Map(ctx, r.pool, refs, func(ctx context.Context, ref imageRef) (*schemas.ImageCandidate, error) {
		img, ok := r.c.providers.Images.Inspect(ctx, ref.url, ref.source).Get()
		if !ok {
			return nil, nil
		}
		return &img, nil
	})
	for _, img := range workpool.Values(outcomes) {
		if img == nil {
			continue
		}
		if r.env.Images == nil {
			r.env.Images = &schemas.ImagesSection{}
		}
		r.env.Images.Candidates = append(r.env.Images.Candidates, *img)
	}
	return nil
}

// -- public records --

type recordTask struct {
	kind schemas.RecordKind
	name string
}

var recordSources = map[schemas.RecordKind]string{
	schemas.RecordProperty: schemas.SourcePropertyRecords,
	schemas.RecordCourt:    schemas.SourceCourtRecords,
}

func (r *run) enrichRecords(ctx context.Context) error {
	names := r.subjectNames
	if len(names) > maxRecordNames {
		names = names[:maxRecordNames]
	}
	var tasks []recordTask
	for _, kind := range []schemas.RecordKind{schemas.RecordProperty, schemas.RecordCourt, schemas.RecordCriminal} {
		for _, n := range names {
			tasks = append(tasks, recordTask{kind: kind, name: n})
		}
	}
	outcomes := workpool.Map(ctx, r.pool, tasks, func(ctx context.Context, t recordTask) ([]schemas.Record, error) {
		recs, _ := r.c.providers.Records.Search(ctx, t.kind, t.name).Get()
		return recs, nil
	})
	for _, recs := range workpool.Values(outcomes) {
		for _, rec := range recs {
			r.mergeRecord(rec)
		}
	}
	return nil
}

func (r *run) mergeRecord(rec schemas.Record) {
	if r.env.Records == nil {
		r.env.Records = &schemas.RecordsSection{}
	}
	sec := r.env.Records
	switch rec.Kind {
	case schemas.RecordProperty:
		sec.Property = append(sec.Property, rec)
	case schemas.RecordCourt:
		sec.Court = append(sec.Court, rec)
	case schemas.RecordCriminal:
		sec.Criminal = append(sec.Criminal, rec)
	}
	r.addCorpus("records:"+string(rec.Kind), rec.Title+" "+rec.Snippet)
	source, ok := recordSources[rec.Kind]
	if !ok {
		return
	}
	for _, n := range rec.Names {
		r.assert(schemas.FieldName, n, source, 0.9, rec.URL)
	}
	if rec.Address != "" {
		r.assert(schemas.FieldAddress, rec.Address, source, 0.9, rec.URL)
		r.locate(rec.Address, "", source)
	}
}

// -- crypto --

func (r *run) enrichCrypto(ctx context.Context) error {
	var texts []string
	for _, s := range r.corpus {
		texts = append(texts, s.text)
	}
	if r.env.Username != nil {
		for _, m := range r.env.Username.Matches {
			texts = append(texts, m.Text)
		}
	}
	seen := map[string]bool{}
	var addrs []crossref.CryptoAddress
	for _, t := range texts {
		for _, a := range crossref.CryptoAddresses(t) {
			if !seen[a.Address] && len(addrs) < maxCryptoAddresses {
				seen[a.Address] = true
				addrs = append(addrs, a)
			}
		}
	}
	outcomes := workpool.Map(ctx, r.pool, addrs, func(ctx context.Context, a crossref.CryptoAddress) (*schemas.CryptoWallet, error) {
		w, ok := r.c.providers.Crypto.Lookup(ctx, a.Address, a.Chain).Get()
		if !ok {
			return nil, nil
		}
		return &w, nil
	})
	for _, w := range workpool.Values(outcomes) {
		if w == nil {
			continue
		}
		if r.env.Crypto == nil {
			r.env.Crypto = &schemas.CryptoSection{}
		}
		r.env.Crypto.Wallets = append(r.env.Crypto.Wallets, *w)
	}
	return nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
