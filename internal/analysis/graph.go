package analysis

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
)

// Node ids in the identity graph are "<kind>:<value>".
func nodeID(kind, value string) string {
	return kind + ":" + value
}

// BuildGraph assembles the identity graph from the envelope and the kept
// social profiles. With no profiles it falls back to the corroborated
// username matches in the envelope.
func BuildGraph(env *schemas.Envelope, profiles []schemas.SocialProfile) schemas.IdentityGraph {
	var g schemas.IdentityGraph
	if env == nil {
		return g
	}
	ids := env.Identifiers
	g.Emails = sortedCopy(ids.Emails)
	g.Domains = sortedCopy(ids.Domains)
	g.Phones = sortedCopy(ids.Phones)
	if env.IPNetwork != nil {
		for _, h := range env.IPNetwork.Hosts {
			g.IPs = append(g.IPs, h.IP)
		}
		g.IPs = sortedCopy(g.IPs)
	}

	g.Handles = handles(env, profiles)

	links := &linkSet{seen: map[string]bool{}}
	target := nodeID("target", env.Target.Value)
	for _, e := range g.Emails {
		if d := emailDomain(e); d != "" && contains(g.Domains, d) {
			links.add(nodeID("email", e), nodeID("domain", d), "email domain", 1)
		}
	}
	if env.Domain != nil {
		for _, d := range env.Domain.Domains {
			if d.DNS == nil {
				continue
			}
			for _, ip := range d.DNS.A {
				if contains(g.IPs, ip) {
					links.add(nodeID("domain", d.Domain), nodeID("ip", ip), "resolves to", 0.8)
				}
			}
		}
	}
	byUsername := map[string][]string{}
	for _, h := range g.Handles {
		id := nodeID("handle", h.Platform+"/"+h.Username)
		links.add(target, id, "username match", h.Confidence)
		u := strings.ToLower(h.Username)
		byUsername[u] = append(byUsername[u], id)
	}
	for _, ids := range byUsername {
		for i := 1; i < len(ids); i++ {
			links.add(ids[0], ids[i], "shared username", 0.5)
		}
	}
	g.Links = links.links
	sort.SliceStable(g.Links, func(i, j int) bool {
		if g.Links[i].From != g.Links[j].From {
			return g.Links[i].From < g.Links[j].From
		}
		return g.Links[i].To < g.Links[j].To
	})
	return g
}

func handles(env *schemas.Envelope, profiles []schemas.SocialProfile) []schemas.Handle {
	var out []schemas.Handle
	seen := map[string]bool{}
	add := func(platform, username string, conf float64) {
		key := platform + "/" + strings.ToLower(username)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, schemas.Handle{Platform: platform, Username: username, Confidence: conf})
	}
	if len(profiles) > 0 {
		for _, p := range profiles {
			add(p.Platform, p.Username, p.Confidence)
		}
	} else if env.Username != nil {
		for _, m := range env.Username.Matches {
			if m.HasEvidence() || !m.Weak {
				add(m.Platform, m.Username, m.Confidence)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

type linkSet struct {
	links []schemas.Link
	seen  map[string]bool
}

func (s *linkSet) add(from, to, reason string, weight float64) {
	if from == to {
		return
	}
	if from > to {
		from, to = to, from
	}
	key := from + "|" + to
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.links = append(s.links, schemas.Link{From: from, To: to, Reason: reason, Weight: weight})
}

func emailDomain(e string) string {
	if i := strings.LastIndexByte(e, '@'); i >= 0 {
		return e[i+1:]
	}
	return ""
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
