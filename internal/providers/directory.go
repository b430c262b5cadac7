package providers

import (
	"context"
	"regexp"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/crossref"
)

// DefaultDirectoryHubs are people-search sites whose result pages tend to
// carry names, addresses and contact details.
var DefaultDirectoryHubs = []string{
	"truepeoplesearch.com",
	"fastpeoplesearch.com",
	"whitepages.com",
	"thatsthem.com",
}

var (
	addressRe    = regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Za-z0-9.'\-]+\s){1,5}(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Boulevard|Dr|Drive|Ln|Lane|Ct|Court|Way|Pl|Place|Ter|Terrace|Cir|Circle|Pkwy|Hwy)\.?(?:\s+(?:Apt|Unit|Ste|Suite|#)\s*[\w\-]+)?,?\s+[A-Za-z .'\-]{2,40},\s*[A-Z]{2}\s+\d{5}(?:-\d{4})?\b`)
	titleSplitRe = regexp.MustCompile(`\s+[-|–:]\s+|\s+in\s+|,\s+age\s+`)
	personNameRe = regexp.MustCompile(`^[A-Z][a-z'\-]+(?:\s+[A-Z]\.?)?(?:\s+[A-Z][a-z'\-]+){1,2}$`)
)

// DirectoryProvider queries people-search hubs through site-restricted web
// search, then fetches the hub pages and extracts contact details.
type DirectoryProvider struct {
	base
	search      *SearchProvider
	hubs        []string
	pagesPerHub int
}

func NewDirectoryProvider(d Deps, search *SearchProvider) *DirectoryProvider {
	return &DirectoryProvider{
		base:        newBase("directory", d),
		search:      search,
		hubs:        DefaultDirectoryHubs,
		pagesPerHub: 2,
	}
}

// Lookup searches every hub for query (a phone number or email).
func (p *DirectoryProvider) Lookup(ctx context.Context, query string) schemas.Result[[]schemas.DirectoryHit] {
	var hits []schemas.DirectoryHit
	for _, hub := range p.hubs {
		if ctx.Err() != nil {
			break
		}
		res := p.search.SiteSearch(ctx, hub, `"`+query+`"`)
		found, ok := res.Get()
		if !ok {
			continue
		}
		for i, h := range found {
			if i >= p.pagesPerHub {
				break
			}
			hit := schemas.DirectoryHit{Hub: hub, URL: h.URL, Query: query}
			if n := NameFromTitle(h.Title); n != "" {
				hit.Names = append(hit.Names, n)
			}
			text := h.Title + " " + h.Snippet
			if resp := p.fetch.Get(ctx, h.URL, nil); resp.OK() {
				text += " " + pageText(resp.Body)
			}
			ex := crossref.Extract(text)
			hit.Emails = ex.Emails
			hit.Phones = ex.Phones
			hit.Addresses = Addresses(text)
			if len(hit.Names)+len(hit.Emails)+len(hit.Phones)+len(hit.Addresses) > 0 {
				hits = append(hits, hit)
			}
		}
	}
	if len(hits) == 0 {
		return absent[[]schemas.DirectoryHit](p.base, "no directory hits")
	}
	p.found()
	return schemas.Found(hits)
}

// Addresses extracts US-style street addresses from free text.
func Addresses(text string) []string {
	var out []string
	for _, m := range addressRe.FindAllString(text, -1) {
		out = append(out, strings.Join(strings.Fields(m), " "))
	}
	return dedupe(out)
}

// NameFromTitle takes the leading "Firstname Lastname" of a page title such
// as "Jane Q Doe - Phone & Address" and returns it if it looks like a name.
func NameFromTitle(title string) string {
	head := strings.TrimSpace(titleSplitRe.Split(title, 2)[0])
	if personNameRe.MatchString(head) {
		return head
	}
	return ""
}
