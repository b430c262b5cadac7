// Package providers holds the adapters that talk to external OSINT sources.
// Every adapter is best-effort: it returns a schemas.Result and never a Go
// error, so a failing source only ever shrinks the envelope.
package providers

import (
	"context"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/network"
	"github.com/xkilldash9x/specter/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Deps is what every adapter is built from.
type Deps struct {
	Fetcher   *network.Fetcher
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Providers config.ProvidersConfig
	Geo       config.GeoConfig
	// Resolver is used by the DNS and email adapters. Nil means the system
	// resolver.
	Resolver Resolver
}

// base is embedded by every adapter.
type base struct {
	name    string
	fetch   *network.Fetcher
	logger  *zap.Logger
	metrics *observability.Metrics
}

func newBase(name string, d Deps) base {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		name:    name,
		fetch:   d.Fetcher,
		logger:  logger.Named(name),
		metrics: d.Metrics,
	}
}

// Name returns the adapter's metric and log name.
func (b base) Name() string { return b.name }

// absentFrom turns an unusable response into an Absent result and counts it.
func absentFrom[T any](b base, resp *network.Response) schemas.Result[T] {
	outcome := observability.ProviderAbsent
	switch {
	case resp == nil:
		outcome = observability.ProviderError
	case resp.TimedOut:
		outcome = observability.ProviderTimeout
	case resp.Err != "" || resp.Status >= 500:
		outcome = observability.ProviderError
	}
	b.metrics.ProviderCall(b.name, outcome)
	reason := resp.Reason()
	b.logger.Debug("Provider returned nothing", zap.String("reason", reason))
	return schemas.Absent[T](reason)
}

func (b base) found() {
	b.metrics.ProviderCall(b.name, observability.ProviderFound)
}

func absent[T any](b base, reason string) schemas.Result[T] {
	b.metrics.ProviderCall(b.name, observability.ProviderAbsent)
	return schemas.Absent[T](reason)
}

// wait blocks on a limiter and converts cancellation into an Absent reason.
func wait(ctx context.Context, l *rate.Limiter) (string, bool) {
	if l == nil {
		return "", true
	}
	if err := l.Wait(ctx); err != nil {
		return network.ReasonTimedOut, false
	}
	return "", true
}

// limiter builds a limiter for a requests-per-second setting. Zero or less
// means unlimited.
func limiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

func joinURL(baseURL string, elem ...string) string {
	u, err := url.JoinPath(strings.TrimRight(baseURL, "/"), elem...)
	if err != nil {
		return strings.TrimRight(baseURL, "/") + "/" + strings.Join(elem, "/")
	}
	return u
}

func withQuery(rawURL string, params url.Values) string {
	if len(params) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + params.Encode()
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, v := range in {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
