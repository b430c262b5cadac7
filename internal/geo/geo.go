// Package geo places the locations tied to a subject on a map.
package geo

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/providers"
)

const defaultMaxMarkers = 25

// Marker kinds.
const (
	KindAddress  = "address"
	KindLocation = "location"
	KindIP       = "ip"
	KindProfile  = "profile"
	KindPost     = "post"
)

// Geocoder resolves a free-text place.
type Geocoder interface {
	Geocode(ctx context.Context, query string) schemas.Result[providers.Coordinates]
}

// Locator turns envelope locations, host coordinates and profile and post
// locations into markers.
type Locator struct {
	geocoder Geocoder
	limit    int
	logger   *zap.Logger
}

func NewLocator(g Geocoder, cfg config.GeoConfig, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.MaxMarkers
	if limit <= 0 {
		limit = defaultMaxMarkers
	}
	return &Locator{geocoder: g, limit: limit, logger: logger.Named("geo")}
}

// Input is what the geo step reads.
type Input struct {
	Envelope *schemas.Envelope
	Profiles []schemas.SocialProfile
	Posts    []schemas.SocialPost
}

type pending struct {
	label, kind, source, query string
}

// Markers resolves every distinct place, up to the marker cap. Places that do
// not geocode are dropped. Host coordinates are used as reported.
func (l *Locator) Markers(ctx context.Context, in Input) []schemas.GeoMarker {
	var markers []schemas.GeoMarker
	seen := map[string]bool{}
	var queue []pending
	enqueue := func(label, kind, source string) {
		q := strings.Join(strings.Fields(label), " ")
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			return
		}
		seen[key] = true
		queue = append(queue, pending{label: q, kind: kind, source: source, query: q})
	}

	if env := in.Envelope; env != nil {
		if env.IPNetwork != nil {
			for _, h := range env.IPNetwork.Hosts {
				lat, lon, ok := parseLoc(h.Loc)
				if !ok || seen["ip:"+h.IP] {
					continue
				}
				seen["ip:"+h.IP] = true
				markers = append(markers, schemas.GeoMarker{
					Label: strings.Join(nonEmpty(h.IP, h.City, h.Country), ", "), Kind: KindIP,
					Source: "host_intel", Query: h.IP, Lat: lat, Lon: lon,
				})
			}
		}
		for _, loc := range env.Locations {
			enqueue(loc.Place, kindFor(loc.Source), loc.Source)
		}
	}
	for _, p := range in.Profiles {
		enqueue(p.Metadata["location"], KindProfile, "social:"+p.Platform)
	}
	for _, p := range in.Posts {
		enqueue(p.Location, KindPost, "post:"+p.Platform)
	}

	for _, q := range queue {
		if len(markers) >= l.limit {
			l.logger.Debug("Marker cap reached", zap.Int("limit", l.limit), zap.Int("queued", len(queue)))
			break
		}
		if ctx.Err() != nil {
			break
		}
		c, ok := l.geocoder.Geocode(ctx, q.query).Get()
		if !ok {
			continue
		}
		markers = append(markers, schemas.GeoMarker{
			Label: q.label, Kind: q.kind, Source: q.source, Query: q.query, Lat: c.Lat, Lon: c.Lon,
		})
	}
	if len(markers) > l.limit {
		markers = markers[:l.limit]
	}
	return markers
}

func kindFor(source string) string {
	switch source {
	case schemas.SourceUserInput, schemas.SourcePropertyRecords, schemas.SourceCourtRecords,
		schemas.SourcePlateRegistry, schemas.SourceDirectory:
		return KindAddress
	}
	return KindLocation
}

// parseLoc reads ipinfo's "lat,lon" pair.
func parseLoc(s string) (lat, lon float64, ok bool) {
	a, b, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(a), 64)
	lon, err2 := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func nonEmpty(vals ...string) []string {
	out := vals[:0:0]
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
