package providers

import (
	"context"
	"net/url"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
)

// PlateProvider queries a configurable plate registry endpoint. It is
// disabled when no endpoint is configured.
type PlateProvider struct {
	base
	endpoint string
	apiKey   string
}

func NewPlateProvider(d Deps) *PlateProvider {
	return &PlateProvider{base: newBase("plate", d), endpoint: d.Providers.PlateURL, apiKey: d.Providers.RecordsAPIKey}
}

type plateDoc struct {
	Plate     string `json:"plate"`
	State     string `json:"state"`
	Make      string `json:"make"`
	Model     string `json:"model"`
	Year      int    `json:"year"`
	OwnerName string `json:"owner_name"`
	Address   string `json:"address"`
}

// Lookup accepts "ABC123" or "CA:ABC123".
func (p *PlateProvider) Lookup(ctx context.Context, plate string) schemas.Result[schemas.PlateRecord] {
	if p.endpoint == "" {
		return absent[schemas.PlateRecord](p.base, "no plate registry configured")
	}
	state, number := SplitPlate(plate)
	params := url.Values{"plate": {number}}
	if state != "" {
		params.Set("state", state)
	}
	var header map[string]string
	if p.apiKey != "" {
		header = map[string]string{"Authorization": "Bearer " + p.apiKey}
	}
	var doc plateDoc
	resp := p.fetch.GetJSON(ctx, withQuery(p.endpoint, params), header, &doc)
	if !resp.OK() {
		return absentFrom[schemas.PlateRecord](p.base, resp)
	}
	if doc.Plate == "" {
		doc.Plate = number
	}
	if doc.State == "" {
		doc.State = state
	}
	p.found()
	return schemas.Found(schemas.PlateRecord(doc))
}

// SplitPlate separates an optional "STATE:" prefix from a plate number and
// normalizes both to upper case without spaces.
func SplitPlate(v string) (state, number string) {
	v = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(v), " ", ""))
	if i := strings.IndexByte(v, ':'); i > 0 {
		return v[:i], v[i+1:]
	}
	return "", v
}
