package crossref

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
)

var (
	emailRe   = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,24}`)
	phoneRe   = regexp.MustCompile(`\+?\(?\d{1,4}\)?[\s.\-]?\(?\d{2,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{3,5}`)
	urlRe     = regexp.MustCompile(`(?i)https?://[^\s"'<>()\[\]]+`)
	mentionRe = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_](?:[A-Za-z0-9_.]{0,28}[A-Za-z0-9_])?)`)
	hashtagRe = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{N}_]{2,64})`)
	btcRe     = regexp.MustCompile(`\b(?:bc1[a-z0-9]{25,59}|[13][a-km-zA-HJ-NP-Z1-9]{25,34})\b`)
	ethRe     = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
)

// Extracted is the set of identifiers found in a piece of text.
type Extracted struct {
	Emails    []string
	Phones    []string
	Domains   []string
	Usernames []string
	URLs      []string
}

// Empty reports whether nothing was found.
func (e Extracted) Empty() bool {
	return len(e.Emails)+len(e.Phones)+len(e.Domains)+len(e.Usernames)+len(e.URLs) == 0
}

// Extract pulls every recognizable identifier out of text. Results are
// normalized, deduplicated and sorted.
func Extract(text string) Extracted {
	var out Extracted
	emails := map[string]bool{}
	for _, m := range emailRe.FindAllString(text, -1) {
		if e := NormalizeEmail(m); e != "" {
			emails[e] = true
		}
	}
	out.Emails = keys(emails)

	phones := map[string]bool{}
	for _, m := range phoneRe.FindAllString(text, -1) {
		if p := NormalizePhone(m); p != "" && strings.ContainsAny(m, "+-. ()") {
			phones[p] = true
		}
	}
	out.Phones = keys(phones)

	urls := map[string]bool{}
	domains := map[string]bool{}
	for _, m := range urlRe.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;:!")
		urls[m] = true
		if d := NormalizeDomain(m); d != "" {
			domains[d] = true
		}
	}
	out.URLs = keys(urls)
	out.Domains = keys(domains)

	users := map[string]bool{}
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		if u := NormalizeUsername(m[1]); u != "" {
			users[u] = true
		}
	}
	out.Usernames = keys(users)
	return out
}

// Hashtags returns the lowercase hashtags in text, in order of appearance,
// without duplicates.
func Hashtags(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range hashtagRe.FindAllStringSubmatch(text, -1) {
		tag := strings.ToLower(m[1])
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

// Mentions returns the @handles in text, normalized, in order of appearance.
func Mentions(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		u := NormalizeUsername(m[1])
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

// CryptoAddress is a wallet address found in text.
type CryptoAddress struct {
	Address string
	Chain   string
}

// CryptoAddresses extracts BTC and ETH addresses from text.
func CryptoAddresses(text string) []CryptoAddress {
	seen := map[string]bool{}
	var out []CryptoAddress
	for _, m := range btcRe.FindAllString(text, -1) {
		if !seen[m] {
			seen[m] = true
			out = append(out, CryptoAddress{Address: m, Chain: "btc"})
		}
	}
	for _, m := range ethRe.FindAllString(text, -1) {
		m = strings.ToLower(m)
		if !seen[m] {
			seen[m] = true
			out = append(out, CryptoAddress{Address: m, Chain: "eth"})
		}
	}
	return out
}

// FindEvidence reports which categories of known identifiers appear in text.
// The subject's own candidate handle is excluded from username evidence
// because finding it on its own profile page proves nothing.
func FindEvidence(text string, known schemas.IdentifierSnapshot, candidate string) []schemas.EvidenceKind {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	found := Extract(text)
	var out []schemas.EvidenceKind

	if intersects(found.Phones, known.Phones) || containsAnyDigits(text, known.Phones) {
		out = append(out, schemas.EvidencePhone)
	}
	if intersects(found.Emails, known.Emails) {
		out = append(out, schemas.EvidenceEmail)
	}
	candidate = NormalizeUsername(candidate)
	for _, u := range known.Usernames {
		if u != candidate && len(u) >= 4 && containsToken(lower, u) {
			out = append(out, schemas.EvidenceUsername)
			break
		}
	}
	for _, d := range known.Domains {
		if strings.Contains(lower, d) {
			out = append(out, schemas.EvidenceDomain)
			break
		}
	}
	return out
}

// ProfileURLPlatform maps a URL on a known social host to its platform name
// and handle.
func ProfileURLPlatform(raw string) (platform, handle string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", "", false
	}
	first := parts[0]
	switch host {
	case "github.com":
		return "github", NormalizeUsername(first), true
	case "gitlab.com":
		return "gitlab", NormalizeUsername(first), true
	case "twitter.com", "x.com":
		return "x", NormalizeUsername(first), true
	case "instagram.com":
		return "instagram", NormalizeUsername(first), true
	case "tiktok.com":
		return "tiktok", NormalizeUsername(strings.TrimPrefix(first, "@")), true
	case "medium.com":
		return "medium", NormalizeUsername(strings.TrimPrefix(first, "@")), true
	case "keybase.io":
		return "keybase", NormalizeUsername(first), true
	case "bsky.app":
		if len(parts) >= 2 && parts[0] == "profile" {
			return "bluesky", NormalizeUsername(parts[1]), true
		}
	case "reddit.com", "old.reddit.com":
		if len(parts) >= 2 && (parts[0] == "user" || parts[0] == "u") {
			return "reddit", NormalizeUsername(parts[1]), true
		}
	}
	return "", "", false
}

func keys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(b))
	for _, v := range b {
		set[v] = true
	}
	for _, v := range a {
		if set[v] {
			return true
		}
	}
	return false
}

// containsAnyDigits matches phones written without separators, comparing on
// the national significant part (last 9 digits).
func containsAnyDigits(text string, phones []string) bool {
	if len(phones) == 0 {
		return false
	}
	digits := make([]rune, 0, len(text))
	for _, r := range text {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	all := string(digits)
	for _, p := range phones {
		p = strings.TrimPrefix(p, "+")
		if len(p) > 9 {
			p = p[len(p)-9:]
		}
		if len(p) >= 7 && strings.Contains(all, p) {
			return true
		}
	}
	return false
}

// containsToken matches needle only at word boundaries.
func containsToken(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(needle)
		if (start == 0 || !isWordByte(haystack[start-1])) && (end == len(haystack) || !isWordByte(haystack[end])) {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b == '.' || b == '-' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
