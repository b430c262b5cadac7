package providers

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/crossref"
)

// PasteProvider searches a paste-dump index for mentions of an identifier,
// which stands in for deep-web discovery.
type PasteProvider struct {
	base
	baseURL  string
	maxDumps int
}

func NewPasteProvider(d Deps) *PasteProvider {
	return &PasteProvider{base: newBase("paste", d), baseURL: d.Providers.PasteURL, maxDumps: 5}
}

// Exposure is what the paste search turned up: where the identifier was
// mentioned and which other contacts appeared next to it.
type Exposure struct {
	Mentions      []schemas.Mention
	ExtraContacts []string
}

type pasteEntry struct {
	ID   string `json:"id"`
	Tags string `json:"tags"`
	Time string `json:"time"`
	Text string `json:"text"`
}

type pasteDump struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Search looks query up and pulls the co-located contacts out of each dump.
func (p *PasteProvider) Search(ctx context.Context, query string) schemas.Result[Exposure] {
	var entries []pasteEntry
	resp := p.fetch.GetJSON(ctx, joinURL(p.baseURL, "search", url.PathEscape(query)), nil, &entries)
	if !resp.OK() {
		return absentFrom[Exposure](p.base, resp)
	}
	if len(entries) == 0 {
		return absent[Exposure](p.base, "no mentions")
	}

	var out Exposure
	self := strings.ToLower(query)
	contacts := map[string]bool{}
	for i, e := range entries {
		if e.ID == "" {
			continue
		}
		content := e.Text
		if i < p.maxDumps {
			var dump pasteDump
			if r := p.fetch.GetJSON(ctx, joinURL(p.baseURL, "dump", url.PathEscape(e.ID)), nil, &dump); r.OK() && dump.Content != "" {
				content = dump.Content
			}
		}
		m := schemas.Mention{Source: "psbdmp", URL: "https://pastebin.com/" + e.ID, Snippet: snippetAround(content, self, 160)}
		ex := crossref.Extract(content)
		for _, c := range append(ex.Emails, ex.Phones...) {
			if c == self || crossref.NormalizePhone(self) == c {
				continue
			}
			m.Contacts = append(m.Contacts, c)
			contacts[c] = true
		}
		out.Mentions = append(out.Mentions, m)
	}
	for c := range contacts {
		out.ExtraContacts = append(out.ExtraContacts, c)
	}
	sort.Strings(out.ExtraContacts)
	p.found()
	return schemas.Found(out)
}

// snippetAround returns up to width characters of text centred on needle.
func snippetAround(text, needle string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= width {
		return text
	}
	i := strings.Index(strings.ToLower(text), needle)
	if i < 0 {
		return text[:width]
	}
	start := max(0, i-width/2)
	end := min(len(text), start+width)
	return text[start:end]
}
