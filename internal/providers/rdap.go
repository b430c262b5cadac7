package providers

import (
	"context"
	"strings"
	"time"

	"github.com/xkilldash9x/specter/api/schemas"
)

// RDAPProvider resolves domain registration data through an RDAP bootstrap
// service.
type RDAPProvider struct {
	base
	baseURL string
}

func NewRDAPProvider(d Deps) *RDAPProvider {
	return &RDAPProvider{base: newBase("rdap", d), baseURL: d.Providers.RDAPURL}
}

type rdapDomain struct {
	Status      []string     `json:"status"`
	Events      []rdapEvent  `json:"events"`
	Entities    []rdapEntity `json:"entities"`
	Nameservers []struct {
		LDHName string `json:"ldhName"`
	} `json:"nameservers"`
}

type rdapEvent struct {
	Action string `json:"eventAction"`
	Date   string `json:"eventDate"`
}

type rdapEntity struct {
	Roles      []string      `json:"roles"`
	VCardArray []interface{} `json:"vcardArray"`
	Entities   []rdapEntity  `json:"entities"`
}

// Lookup fetches the RDAP record for domain.
func (p *RDAPProvider) Lookup(ctx context.Context, domain string) schemas.Result[schemas.RDAPRecord] {
	var raw rdapDomain
	resp := p.fetch.GetJSON(ctx, joinURL(p.baseURL, "domain", domain), map[string]string{"Accept": "application/rdap+json"}, &raw)
	if !resp.OK() {
		return absentFrom[schemas.RDAPRecord](p.base, resp)
	}
	rec := schemas.RDAPRecord{Status: raw.Status}
	for _, ns := range raw.Nameservers {
		if ns.LDHName != "" {
			rec.Nameservers = append(rec.Nameservers, strings.ToLower(ns.LDHName))
		}
	}
	for _, ev := range raw.Events {
		t, err := time.Parse(time.RFC3339, ev.Date)
		if err != nil {
			continue
		}
		switch ev.Action {
		case "registration":
			rec.Created = &t
		case "expiration":
			rec.Expires = &t
		}
	}
	walkEntities(raw.Entities, &rec)
	rec.Emails = dedupe(rec.Emails)
	p.found()
	return schemas.Found(rec)
}

func walkEntities(entities []rdapEntity, rec *schemas.RDAPRecord) {
	for _, e := range entities {
		card := parseVCard(e.VCardArray)
		for _, role := range e.Roles {
			switch role {
			case "registrar":
				if rec.Registrar == "" {
					rec.Registrar = card.fn
				}
			case "registrant":
				if rec.RegistrantName == "" && !redacted(card.fn) {
					rec.RegistrantName = card.fn
				}
				if rec.RegistrantOrg == "" && !redacted(card.org) {
					rec.RegistrantOrg = card.org
				}
				if rec.RegistrantAddr == "" && !redacted(card.adr) {
					rec.RegistrantAddr = card.adr
				}
				fallthrough
			case "administrative", "technical":
				for _, em := range card.emails {
					if !redacted(em) {
						rec.Emails = append(rec.Emails, strings.ToLower(em))
					}
				}
			}
		}
		walkEntities(e.Entities, rec)
	}
}

type vcard struct {
	fn, org, adr string
	emails       []string
}

// parseVCard reads the jCard array form: ["vcard", [[name, params, type, value], ...]].
func parseVCard(arr []interface{}) vcard {
	var out vcard
	if len(arr) < 2 {
		return out
	}
	props, ok := arr[1].([]interface{})
	if !ok {
		return out
	}
	for _, p := range props {
		prop, ok := p.([]interface{})
		if !ok || len(prop) < 4 {
			continue
		}
		name, _ := prop[0].(string)
		switch name {
		case "fn":
			out.fn, _ = prop[3].(string)
		case "org":
			out.org = flatten(prop[3])
		case "email":
			if s, ok := prop[3].(string); ok && s != "" {
				out.emails = append(out.emails, s)
			}
		case "adr":
			if params, ok := prop[1].(map[string]interface{}); ok {
				if label, ok := params["label"].(string); ok && label != "" {
					out.adr = strings.Join(strings.Fields(label), " ")
					continue
				}
			}
			out.adr = flatten(prop[3])
		}
	}
	return out
}

func flatten(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		var parts []string
		for _, x := range t {
			if s := flatten(x); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func redacted(s string) bool {
	l := strings.ToLower(s)
	return l == "" || strings.Contains(l, "redacted") || strings.Contains(l, "privacy") ||
		strings.Contains(l, "withheld") || strings.Contains(l, "not disclosed")
}
