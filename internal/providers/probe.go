package providers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/specter/api/schemas"
)

// ProbeSpec describes a platform that is only checked by fetching the
// public profile page.
type ProbeSpec struct {
	Name string
	// URLTemplate has one %s for the escaped username.
	URLTemplate string
	// MissingMarkers are substrings of a 200 page that mean "no such user".
	MissingMarkers []string
}

// DefaultProbeSpecs are the page-probed platforms.
var DefaultProbeSpecs = []ProbeSpec{
	{Name: "instagram", URLTemplate: "https://www.instagram.com/%s/", MissingMarkers: []string{"Sorry, this page isn't available"}},
	{Name: "tiktok", URLTemplate: "https://www.tiktok.com/@%s", MissingMarkers: []string{"Couldn't find this account"}},
	{Name: "x", URLTemplate: "https://x.com/%s", MissingMarkers: []string{"This account doesn't exist"}},
	{Name: "medium", URLTemplate: "https://medium.com/@%s", MissingMarkers: []string{"PAGE NOT FOUND"}},
	{Name: "devto", URLTemplate: "https://dev.to/%s", MissingMarkers: []string{"This page does not exist"}},
	{Name: "twitch", URLTemplate: "https://www.twitch.tv/%s", MissingMarkers: []string{"Sorry. Unless you've got a time machine"}},
	{Name: "pinterest", URLTemplate: "https://www.pinterest.com/%s/", MissingMarkers: []string{"User not found"}},
}

// ProbePlatform is a Platform backed by a profile page fetch.
type ProbePlatform struct {
	base
	spec ProbeSpec
}

func NewProbePlatform(d Deps, spec ProbeSpec) *ProbePlatform {
	return &ProbePlatform{base: newBase(spec.Name, d), spec: spec}
}

func (p *ProbePlatform) Lookup(ctx context.Context, username string) schemas.Result[schemas.PlatformProfile] {
	profileURL := fmt.Sprintf(p.spec.URLTemplate, url.PathEscape(username))
	resp := p.fetch.Get(ctx, profileURL, map[string]string{"Accept": "text/html"})
	if !resp.OK() {
		return absentFrom[schemas.PlatformProfile](p.base, resp)
	}
	for _, marker := range p.spec.MissingMarkers {
		if bytes.Contains(resp.Body, []byte(marker)) {
			return absent[schemas.PlatformProfile](p.base, "not found")
		}
	}
	doc, err := htmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return absent[schemas.PlatformProfile](p.base, "parse: "+err.Error())
	}
	prof := schemas.PlatformProfile{
		Platform:    p.spec.Name,
		Username:    username,
		ProfileURL:  profileURL,
		DisplayName: metaContent(doc, "og:title"),
		Bio:         metaContent(doc, "og:description"),
		AvatarURL:   metaContent(doc, "og:image"),
	}
	if prof.DisplayName == "" {
		if t := htmlquery.FindOne(doc, "//title"); t != nil {
			prof.DisplayName = textOf(t)
		}
	}
	prof.Text = profileText(prof, pageText(resp.Body))
	p.found()
	return schemas.Found(prof)
}

func metaContent(doc *html.Node, property string) string {
	q := fmt.Sprintf(`//meta[@property=%q or @name=%q]`, property, property)
	n := htmlquery.FindOne(doc, q)
	if n == nil {
		return ""
	}
	return strings.TrimSpace(htmlquery.SelectAttr(n, "content"))
}

// htmlFragment parses an HTML snippet for text extraction.
func htmlFragment(s string) *html.Node {
	doc, err := htmlquery.Parse(strings.NewReader(s))
	if err != nil {
		return &html.Node{Type: html.TextNode, Data: s}
	}
	return doc
}
