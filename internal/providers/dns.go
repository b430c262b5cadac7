package providers

import (
	"context"
	"net"
	"sort"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
)

// Resolver is the subset of *net.Resolver the DNS-backed adapters use.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

func resolverOrDefault(r Resolver) Resolver {
	if r == nil {
		return net.DefaultResolver
	}
	return r
}

// DNSProvider collects A/AAAA/MX/NS/TXT records for a domain.
type DNSProvider struct {
	base
	resolver Resolver
}

func NewDNSProvider(d Deps) *DNSProvider {
	return &DNSProvider{base: newBase("dns", d), resolver: resolverOrDefault(d.Resolver)}
}

// Lookup resolves every record type. Individual lookup failures are ignored;
// the result is Absent only if nothing resolved at all.
func (p *DNSProvider) Lookup(ctx context.Context, domain string) schemas.Result[schemas.DNSRecords] {
	var rec schemas.DNSRecords
	if addrs, err := p.resolver.LookupHost(ctx, domain); err == nil {
		for _, a := range addrs {
			ip := net.ParseIP(a)
			switch {
			case ip == nil:
			case ip.To4() != nil:
				rec.A = append(rec.A, a)
			default:
				rec.AAAA = append(rec.AAAA, a)
			}
		}
	}
	if mx, err := p.resolver.LookupMX(ctx, domain); err == nil {
		for _, m := range mx {
			rec.MX = append(rec.MX, strings.TrimSuffix(m.Host, "."))
		}
	}
	if ns, err := p.resolver.LookupNS(ctx, domain); err == nil {
		for _, n := range ns {
			rec.NS = append(rec.NS, strings.TrimSuffix(n.Host, "."))
		}
	}
	if txt, err := p.resolver.LookupTXT(ctx, domain); err == nil {
		rec.TXT = txt
	}
	if len(rec.A)+len(rec.AAAA)+len(rec.MX)+len(rec.NS)+len(rec.TXT) == 0 {
		if ctx.Err() != nil {
			return absent[schemas.DNSRecords](p.base, "timed out")
		}
		return absent[schemas.DNSRecords](p.base, "no records")
	}
	sort.Strings(rec.A)
	sort.Strings(rec.AAAA)
	p.found()
	return schemas.Found(rec)
}

// Reverse returns the PTR names for an IP address.
func (p *DNSProvider) Reverse(ctx context.Context, ip string) schemas.Result[[]string] {
	names, err := p.resolver.LookupAddr(ctx, ip)
	if err != nil || len(names) == 0 {
		return absent[[]string](p.base, "no ptr")
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.TrimSuffix(strings.ToLower(n), "."))
	}
	p.found()
	return schemas.Found(dedupe(out))
}
