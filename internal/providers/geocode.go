package providers

import (
	"context"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/specter/api/schemas"
)

// Coordinates is a geocoded point.
type Coordinates struct {
	Lat, Lon float64
	Display  string
}

// GeocodeProvider resolves place names through a Nominatim search endpoint.
// Nominatim's usage policy allows one request per second.
type GeocodeProvider struct {
	base
	baseURL string
	limiter *rate.Limiter
}

func NewGeocodeProvider(d Deps) *GeocodeProvider {
	return &GeocodeProvider{
		base:    newBase("nominatim", d),
		baseURL: d.Geo.NominatimURL,
		limiter: limiter(d.Geo.RateLimit),
	}
}

type nominatimHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the best match for query.
func (p *GeocodeProvider) Geocode(ctx context.Context, query string) schemas.Result[Coordinates] {
	if reason, ok := wait(ctx, p.limiter); !ok {
		return absent[Coordinates](p.base, reason)
	}
	var hits []nominatimHit
	u := withQuery(joinURL(p.baseURL, "search"), url.Values{"q": {query}, "format": {"json"}, "limit": {"1"}})
	resp := p.fetch.GetJSON(ctx, u, nil, &hits)
	if !resp.OK() {
		return absentFrom[Coordinates](p.base, resp)
	}
	if len(hits) == 0 {
		return absent[Coordinates](p.base, "no match")
	}
	lat, err1 := strconv.ParseFloat(hits[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(hits[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return absent[Coordinates](p.base, "bad coordinates")
	}
	p.found()
	return schemas.Found(Coordinates{Lat: lat, Lon: lon, Display: hits[0].DisplayName})
}
