package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
)

// recordSites are searched when no records endpoint is configured for a kind.
var recordSites = map[schemas.RecordKind][]string{
	schemas.RecordProperty: {"propertyshark.com", "blockshopper.com"},
	schemas.RecordCourt:    {"courtlistener.com", "judyrecords.com"},
	schemas.RecordCriminal: {"arrests.org", "mugshots.com"},
}

// RecordsProvider searches property, court and criminal records. Each kind
// uses its configured JSON endpoint when set, otherwise site-restricted web
// search over well-known record sites.
type RecordsProvider struct {
	base
	search    *SearchProvider
	endpoints map[schemas.RecordKind]string
	apiKey    string
}

func NewRecordsProvider(d Deps, search *SearchProvider) *RecordsProvider {
	return &RecordsProvider{
		base:   newBase("records", d),
		search: search,
		endpoints: map[schemas.RecordKind]string{
			schemas.RecordProperty: d.Providers.PropertyURL,
			schemas.RecordCourt:    d.Providers.CourtURL,
			schemas.RecordCriminal: d.Providers.CriminalURL,
		},
		apiKey: d.Providers.RecordsAPIKey,
	}
}

type recordsDoc struct {
	Results []struct {
		Title        string   `json:"title"`
		Snippet      string   `json:"snippet"`
		URL          string   `json:"url"`
		Names        []string `json:"names"`
		Address      string   `json:"address"`
		Jurisdiction string   `json:"jurisdiction"`
	} `json:"results"`
}

// Search returns the records of kind that mention query.
func (p *RecordsProvider) Search(ctx context.Context, kind schemas.RecordKind, query string) schemas.Result[[]schemas.Record] {
	if endpoint := p.endpoints[kind]; endpoint != "" {
		return p.fromEndpoint(ctx, kind, endpoint, query)
	}
	return p.fromSearch(ctx, kind, query)
}

func (p *RecordsProvider) fromEndpoint(ctx context.Context, kind schemas.RecordKind, endpoint, query string) schemas.Result[[]schemas.Record] {
	var header map[string]string
	if p.apiKey != "" {
		header = map[string]string{"Authorization": "Bearer " + p.apiKey}
	}
	var doc recordsDoc
	resp := p.fetch.GetJSON(ctx, withQuery(endpoint, url.Values{"q": {query}}), header, &doc)
	if !resp.OK() {
		return absentFrom[[]schemas.Record](p.base, resp)
	}
	var out []schemas.Record
	for _, r := range doc.Results {
		out = append(out, schemas.Record{
			Kind:         kind,
			Source:       hostOf(endpoint),
			Title:        r.Title,
			Snippet:      r.Snippet,
			URL:          r.URL,
			Names:        r.Names,
			Address:      r.Address,
			Jurisdiction: r.Jurisdiction,
		})
	}
	if len(out) == 0 {
		return absent[[]schemas.Record](p.base, "no records")
	}
	p.found()
	return schemas.Found(out)
}

func (p *RecordsProvider) fromSearch(ctx context.Context, kind schemas.RecordKind, query string) schemas.Result[[]schemas.Record] {
	needle := strings.ToLower(strings.TrimSpace(query))
	var out []schemas.Record
	for _, site := range recordSites[kind] {
		hits, ok := p.search.SiteSearch(ctx, site, `"`+query+`"`).Get()
		if !ok {
			continue
		}
		for _, h := range hits {
			text := h.Title + " " + h.Snippet
			// Only keep hits that actually name the subject.
			if !strings.Contains(strings.ToLower(text), needle) {
				continue
			}
			rec := schemas.Record{Kind: kind, Source: site, Title: h.Title, Snippet: h.Snippet, URL: h.URL}
			if n := NameFromTitle(h.Title); n != "" {
				rec.Names = []string{n}
			}
			if addrs := Addresses(text); len(addrs) > 0 {
				rec.Address = addrs[0]
			}
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		return absent[[]schemas.Record](p.base, "no records")
	}
	p.found()
	return schemas.Found(out)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Hostname()
}
