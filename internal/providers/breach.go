package providers

import (
	"context"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/specter/api/schemas"
)

// BreachProvider looks an account up in the HIBP breached-account API.
type BreachProvider struct {
	base
	baseURL string
	apiKey  string
	limiter *rate.Limiter
}

func NewBreachProvider(d Deps) *BreachProvider {
	return &BreachProvider{
		base:    newBase("hibp", d),
		baseURL: d.Providers.HIBPURL,
		apiKey:  d.Providers.HIBPAPIKey,
		limiter: limiter(d.Providers.HIBPRateLimit),
	}
}

type hibpBreach struct {
	Name        string   `json:"Name"`
	Title       string   `json:"Title"`
	Domain      string   `json:"Domain"`
	BreachDate  string   `json:"BreachDate"`
	PwnCount    int      `json:"PwnCount"`
	DataClasses []string `json:"DataClasses"`
	IsSensitive bool     `json:"IsSensitive"`
}

// Lookup returns the breaches the account appears in. Without an API key the
// provider is disabled and always Absent.
func (p *BreachProvider) Lookup(ctx context.Context, account string) schemas.Result[[]schemas.Breach] {
	if p.apiKey == "" {
		return absent[[]schemas.Breach](p.base, "no api key")
	}
	if reason, ok := wait(ctx, p.limiter); !ok {
		return absent[[]schemas.Breach](p.base, reason)
	}
	u := withQuery(joinURL(p.baseURL, "breachedaccount", url.PathEscape(account)), url.Values{"truncateResponse": {"false"}})
	var raw []hibpBreach
	resp := p.fetch.GetJSON(ctx, u, map[string]string{"hibp-api-key": p.apiKey}, &raw)
	if resp.Status == http.StatusNotFound {
		return absent[[]schemas.Breach](p.base, "no breaches")
	}
	if !resp.OK() {
		return absentFrom[[]schemas.Breach](p.base, resp)
	}
	out := make([]schemas.Breach, 0, len(raw))
	for _, b := range raw {
		out = append(out, schemas.Breach{
			Account:     account,
			Name:        b.Name,
			Title:       b.Title,
			Domain:      b.Domain,
			BreachDate:  b.BreachDate,
			PwnCount:    b.PwnCount,
			DataClasses: b.DataClasses,
			IsSensitive: b.IsSensitive,
		})
	}
	if len(out) == 0 {
		return absent[[]schemas.Breach](p.base, "no breaches")
	}
	p.found()
	return schemas.Found(out)
}
