package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/config"
	"github.com/xkilldash9x/specter/internal/providers"
)

type fakeGeocoder struct {
	known   map[string]providers.Coordinates
	queries []string
}

func (f *fakeGeocoder) Geocode(_ context.Context, q string) schemas.Result[providers.Coordinates] {
	f.queries = append(f.queries, q)
	if c, ok := f.known[q]; ok {
		return schemas.Found(c)
	}
	return schemas.Absent[providers.Coordinates]("no match")
}

func TestMarkers(t *testing.T) {
	g := &fakeGeocoder{known: map[string]providers.Coordinates{
		"1 Main St, Springfield": {Lat: 39.8, Lon: -89.6},
		"Berlin":                 {Lat: 52.5, Lon: 13.4},
	}}
	l := NewLocator(g, config.GeoConfig{}, zaptest.NewLogger(t))
	in := Input{
		Envelope: &schemas.Envelope{
			IPNetwork: &schemas.IPNetworkSection{Hosts: []schemas.IPIntel{
				{IP: "8.8.8.8", City: "Mountain View", Country: "US", Loc: "37.4056,-122.0775"},
				{IP: "10.0.0.1"},
			}},
			Locations: []schemas.LocationAssertion{
				{Place: "1 Main St,  Springfield", Source: schemas.SourceUserInput},
				{Place: "berlin", Source: "social:github"},
				{Place: "Atlantis", Source: schemas.SourceWebSearch},
			},
		},
		Profiles: []schemas.SocialProfile{{Platform: "github", Metadata: map[string]string{"location": "Berlin"}}},
	}

	got := l.Markers(context.Background(), in)
	require.Len(t, got, 2)
	assert.Equal(t, schemas.GeoMarker{
		Label: "8.8.8.8, Mountain View, US", Kind: KindIP, Source: "host_intel", Query: "8.8.8.8",
		Lat: 37.4056, Lon: -122.0775,
	}, got[0])
	assert.Equal(t, KindAddress, got[1].Kind)
	assert.Equal(t, "1 Main St, Springfield", got[1].Query)

	// "Berlin" from the profile is a case-insensitive duplicate of "berlin".
	assert.Equal(t, []string{"1 Main St, Springfield", "berlin", "Atlantis"}, g.queries)
}

func TestMarkersCap(t *testing.T) {
	g := &fakeGeocoder{known: map[string]providers.Coordinates{"a": {}, "b": {}, "c": {}}}
	l := NewLocator(g, config.GeoConfig{MaxMarkers: 2}, nil)
	got := l.Markers(context.Background(), Input{Envelope: &schemas.Envelope{Locations: []schemas.LocationAssertion{
		{Place: "a"}, {Place: "b"}, {Place: "c"},
	}}})
	assert.Len(t, got, 2)
	assert.Len(t, g.queries, 2)
}

func TestParseLoc(t *testing.T) {
	lat, lon, ok := parseLoc("1.5, -2.25")
	require.True(t, ok)
	assert.Equal(t, 1.5, lat)
	assert.Equal(t, -2.25, lon)

	_, _, ok = parseLoc("nowhere")
	assert.False(t, ok)
}
