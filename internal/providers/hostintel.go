package providers

import (
	"context"
	"net/url"

	"github.com/xkilldash9x/specter/api/schemas"
)

// HostIntelProvider merges ipinfo.io geolocation with Shodan InternetDB
// exposure data for an IP address.
type HostIntelProvider struct {
	base
	ipinfoURL     string
	ipinfoToken   string
	internetDBURL string
}

func NewHostIntelProvider(d Deps) *HostIntelProvider {
	return &HostIntelProvider{
		base:          newBase("hostintel", d),
		ipinfoURL:     d.Providers.IPInfoURL,
		ipinfoToken:   d.Providers.IPInfoToken,
		internetDBURL: d.Providers.InternetDBURL,
	}
}

type ipinfoDoc struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
}

type internetDBDoc struct {
	IP        string   `json:"ip"`
	Hostnames []string `json:"hostnames"`
	Ports     []int    `json:"ports"`
	Tags      []string `json:"tags"`
	Vulns     []string `json:"vulns"`
}

// Lookup queries both sources; either one is enough for a Found result.
func (p *HostIntelProvider) Lookup(ctx context.Context, ip string) schemas.Result[schemas.IPIntel] {
	intel := schemas.IPIntel{IP: ip}
	got := false

	u := joinURL(p.ipinfoURL, url.PathEscape(ip), "json")
	if p.ipinfoToken != "" {
		u = withQuery(u, url.Values{"token": {p.ipinfoToken}})
	}
	var info ipinfoDoc
	first := p.fetch.GetJSON(ctx, u, nil, &info)
	if first.OK() {
		got = true
		intel.City, intel.Region, intel.Country = info.City, info.Region, info.Country
		intel.Org, intel.Loc = info.Org, info.Loc
		if info.Hostname != "" {
			intel.Hostnames = append(intel.Hostnames, info.Hostname)
		}
	}

	var idb internetDBDoc
	second := p.fetch.GetJSON(ctx, joinURL(p.internetDBURL, url.PathEscape(ip)), nil, &idb)
	if second.OK() {
		got = true
		intel.Hostnames = append(intel.Hostnames, idb.Hostnames...)
		intel.Ports = idb.Ports
		intel.Tags = idb.Tags
		intel.Vulns = idb.Vulns
	}
	if !got {
		return absentFrom[schemas.IPIntel](p.base, first)
	}
	intel.Hostnames = dedupe(intel.Hostnames)
	p.found()
	return schemas.Found(intel)
}
