package providers

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/specter/api/schemas"
)

// SearchProvider runs web searches against the DuckDuckGo HTML endpoint.
type SearchProvider struct {
	base
	endpoint string
	maxHits  int
}

func NewSearchProvider(d Deps) *SearchProvider {
	return &SearchProvider{base: newBase("search", d), endpoint: d.Providers.SearchURL, maxHits: 20}
}

const (
	xpResult  = `//div[contains(concat(' ', normalize-space(@class), ' '), ' result ')]`
	xpTitle   = `.//a[contains(@class, 'result__a')]`
	xpSnippet = `.//*[contains(@class, 'result__snippet')]`
)

// Search returns the organic hits for query.
func (p *SearchProvider) Search(ctx context.Context, query string) schemas.Result[[]schemas.SearchHit] {
	resp := p.fetch.Get(ctx, withQuery(p.endpoint, url.Values{"q": {query}}), map[string]string{"Accept": "text/html"})
	if !resp.OK() {
		return absentFrom[[]schemas.SearchHit](p.base, resp)
	}
	hits, err := parseSearchPage(resp.Body, p.maxHits)
	if err != nil {
		return absent[[]schemas.SearchHit](p.base, "parse: "+err.Error())
	}
	if len(hits) == 0 {
		return absent[[]schemas.SearchHit](p.base, "no results")
	}
	p.found()
	return schemas.Found(hits)
}

// SiteSearch restricts query to one site.
func (p *SearchProvider) SiteSearch(ctx context.Context, site, query string) schemas.Result[[]schemas.SearchHit] {
	return p.Search(ctx, "site:"+site+" "+query)
}

func parseSearchPage(body []byte, limit int) ([]schemas.SearchHit, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	nodes, err := htmlquery.QueryAll(doc, xpResult)
	if err != nil {
		return nil, err
	}
	var hits []schemas.SearchHit
	seen := map[string]bool{}
	for _, n := range nodes {
		a := htmlquery.FindOne(n, xpTitle)
		if a == nil {
			continue
		}
		link := unwrapRedirect(htmlquery.SelectAttr(a, "href"))
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true
		hit := schemas.SearchHit{Title: textOf(a), URL: link}
		if sn := htmlquery.FindOne(n, xpSnippet); sn != nil {
			hit.Snippet = textOf(sn)
		}
		hits = append(hits, hit)
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// unwrapRedirect resolves DuckDuckGo's "/l/?uddg=" click-through links.
func unwrapRedirect(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func textOf(n *html.Node) string {
	return strings.Join(strings.Fields(htmlquery.InnerText(n)), " ")
}

// pageText returns the visible text of an HTML document, for evidence
// matching. Scripts and styles are dropped.
func pageText(body []byte) string {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	for _, n := range htmlquery.Find(doc, "//script|//style|//noscript") {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
	return textOf(doc)
}
