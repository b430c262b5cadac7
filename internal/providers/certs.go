package providers

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/specter/api/schemas"
)

// CertProvider finds subdomains in Certificate Transparency logs (crt.sh).
type CertProvider struct {
	base
	baseURL string
	// crt.sh throttles aggressively; be a good net citizen.
	limiter *rate.Limiter
}

func NewCertProvider(d Deps) *CertProvider {
	return &CertProvider{
		base:    newBase("crtsh", d),
		baseURL: d.Providers.CrtShURL,
		limiter: limiter(d.Providers.CrtShRateLimit),
	}
}

// crtShEntry is a single JSON entry from the crt.sh API.
type crtShEntry struct {
	NameValue string `json:"name_value"`
}

// Subdomains returns the distinct names under domain seen in issued
// certificates, wildcards stripped.
func (p *CertProvider) Subdomains(ctx context.Context, domain string) schemas.Result[[]string] {
	if reason, ok := wait(ctx, p.limiter); !ok {
		p.logger.Debug("Context cancelled while waiting for rate limiter")
		return absent[[]string](p.base, reason)
	}
	u := withQuery(strings.TrimRight(p.baseURL, "/")+"/", url.Values{"q": {"%." + domain}, "output": {"json"}})

	var entries []crtShEntry
	resp := p.fetch.GetJSON(ctx, u, nil, &entries)
	if !resp.OK() {
		return absentFrom[[]string](p.base, resp)
	}

	found := make(map[string]bool)
	for _, entry := range entries {
		for _, d := range strings.Split(entry.NameValue, "\n") {
			clean := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "*."))
			if clean != domain && strings.HasSuffix(clean, "."+domain) {
				found[clean] = true
			}
		}
	}
	if len(found) == 0 {
		return absent[[]string](p.base, "no subdomains")
	}
	out := make([]string, 0, len(found))
	for d := range found {
		out = append(out, d)
	}
	sort.Strings(out)
	p.logger.Debug("Finished processing CT logs", zap.String("domain", domain), zap.Int("count", len(out)))
	p.found()
	return schemas.Found(out)
}
