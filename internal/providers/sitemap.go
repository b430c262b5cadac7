package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
)

// SitemapProvider discovers URLs on a domain from robots.txt and sitemaps.
type SitemapProvider struct {
	base
	maxURLs  int
	maxDepth int
}

func NewSitemapProvider(d Deps) *SitemapProvider {
	return &SitemapProvider{base: newBase("sitemap", d), maxURLs: 200, maxDepth: 2}
}

// Discover fetches robots.txt and the sitemaps it names (plus /sitemap.xml),
// following sitemap indexes up to a fixed depth.
func (p *SitemapProvider) Discover(ctx context.Context, domain string) schemas.Result[[]string] {
	baseURL := "https://" + domain
	return p.discover(ctx, baseURL)
}

func (p *SitemapProvider) discover(ctx context.Context, baseURL string) schemas.Result[[]string] {
	sitemaps := []string{baseURL + "/sitemap.xml"}
	var urls []string

	resp := p.fetch.Get(ctx, baseURL+"/robots.txt", nil)
	if resp.OK() {
		for _, line := range strings.Split(string(resp.Body), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lower := strings.ToLower(line)
			switch {
			case strings.HasPrefix(lower, "sitemap:"):
				if loc := strings.TrimSpace(line[len("sitemap:"):]); loc != "" {
					sitemaps = append(sitemaps, loc)
				}
			case strings.HasPrefix(lower, "disallow:"), strings.HasPrefix(lower, "allow:"):
				parts := strings.SplitN(line, ":", 2)
				path := strings.TrimSpace(parts[1])
				path = strings.Split(path, "*")[0]
				path = strings.Split(path, "?")[0]
				if strings.HasPrefix(path, "/") && len(path) > 1 {
					urls = append(urls, baseURL+path)
				}
			}
		}
	} else {
		p.logger.Debug("robots.txt not found or inaccessible", zap.String("url", baseURL))
	}

	seen := map[string]bool{}
	for _, sm := range dedupe(sitemaps) {
		urls = append(urls, p.parseSitemap(ctx, sm, 0, seen)...)
		if len(urls) >= p.maxURLs {
			break
		}
	}
	urls = dedupe(urls)
	if len(urls) > p.maxURLs {
		urls = urls[:p.maxURLs]
	}
	if len(urls) == 0 {
		if resp.TimedOut {
			return absentFrom[[]string](p.base, resp)
		}
		return absent[[]string](p.base, "no urls")
	}
	p.found()
	return schemas.Found(urls)
}

// parseSitemap handles both <sitemapindex> and <urlset> documents.
func (p *SitemapProvider) parseSitemap(ctx context.Context, loc string, depth int, seen map[string]bool) []string {
	if seen[loc] || depth > p.maxDepth {
		return nil
	}
	seen[loc] = true
	resp := p.fetch.Get(ctx, loc, nil)
	if !resp.OK() {
		return nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(resp.Body); err != nil {
		p.logger.Debug("Could not parse sitemap", zap.String("url", loc), zap.Error(err))
		return nil
	}
	root := doc.Root()
	if root == nil {
		return nil
	}
	var out []string
	switch root.Tag {
	case "sitemapindex":
		for _, el := range root.FindElements("./sitemap/loc") {
			nested := strings.TrimSpace(el.Text())
			if !sameHost(loc, nested) {
				continue
			}
			out = append(out, p.parseSitemap(ctx, nested, depth+1, seen)...)
		}
	case "urlset":
		for _, el := range root.FindElements("./url/loc") {
			if u := strings.TrimSpace(el.Text()); u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}

func sameHost(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	return err1 == nil && err2 == nil && strings.EqualFold(ua.Host, ub.Host)
}
