package providers

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
)

// GravatarProvider fetches the public Gravatar profile for an email.
type GravatarProvider struct {
	base
	baseURL string
}

func NewGravatarProvider(d Deps) *GravatarProvider {
	return &GravatarProvider{base: newBase("gravatar", d), baseURL: d.Providers.GravatarURL}
}

type gravatarDoc struct {
	Entry []struct {
		Hash            string `json:"hash"`
		DisplayName     string `json:"displayName"`
		ThumbnailURL    string `json:"thumbnailUrl"`
		CurrentLocation string `json:"currentLocation"`
		Accounts        []struct {
			URL string `json:"url"`
		} `json:"accounts"`
		URLs []struct {
			Value string `json:"value"`
		} `json:"urls"`
	} `json:"entry"`
}

// GravatarHash is the profile hash of an address.
func GravatarHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the profile, Absent when the address has none.
func (p *GravatarProvider) Lookup(ctx context.Context, email string) schemas.Result[schemas.GravatarProfile] {
	hash := GravatarHash(email)
	var doc gravatarDoc
	resp := p.fetch.GetJSON(ctx, joinURL(p.baseURL, hash+".json"), nil, &doc)
	if !resp.OK() {
		return absentFrom[schemas.GravatarProfile](p.base, resp)
	}
	if len(doc.Entry) == 0 {
		return absent[schemas.GravatarProfile](p.base, "no profile")
	}
	e := doc.Entry[0]
	prof := schemas.GravatarProfile{
		Hash:        hash,
		DisplayName: e.DisplayName,
		AvatarURL:   e.ThumbnailURL,
		Location:    e.CurrentLocation,
	}
	for _, a := range e.Accounts {
		prof.Accounts = append(prof.Accounts, a.URL)
	}
	for _, u := range e.URLs {
		prof.Accounts = append(prof.Accounts, u.Value)
	}
	prof.Accounts = dedupe(prof.Accounts)
	p.found()
	return schemas.Found(prof)
}
