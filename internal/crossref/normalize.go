package crossref

import (
	"net"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
)

// NormalizeEmail lowercases and trims an address. It returns "" if the input
// is not shaped like local@domain.tld.
func NormalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "mailto:")
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return ""
	}
	if NormalizeDomain(s[at+1:]) == "" {
		return ""
	}
	return s
}

// NormalizePhone keeps a leading '+' and the digits. Numbers shorter than
// 7 or longer than 15 digits are rejected.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	out := b.String()
	digits := strings.TrimPrefix(out, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return ""
	}
	return out
}

// NormalizeUsername lowercases a handle and strips a leading '@'.
func NormalizeUsername(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "@")
	if s == "" || strings.ContainsAny(s, " \t/\\?#") {
		return ""
	}
	return s
}

// NormalizeDomain reduces a host, URL or bare domain to a lowercase hostname
// without scheme, port, "www." or trailing dot. IP literals and hosts without
// a public suffix are rejected.
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Hostname()
		}
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	s = strings.TrimRight(s, ".")
	for strings.HasPrefix(s, "www.") {
		s = s[len("www."):]
	}
	if s == "" || net.ParseIP(s) != nil || !strings.Contains(s, ".") {
		return ""
	}
	// Unlisted TLDs come back as a single non-ICANN label; private suffixes
	// such as github.io are multi-label and still accepted.
	suffix, icann := publicsuffix.PublicSuffix(s)
	if (!icann && !strings.Contains(suffix, ".")) || suffix == s {
		return ""
	}
	return s
}

// RegisteredDomain returns the eTLD+1 of a domain ("mail.example.co.uk" ->
// "example.co.uk"), or "" if it has none.
func RegisteredDomain(s string) string {
	d := NormalizeDomain(s)
	if d == "" {
		return ""
	}
	reg, err := publicsuffix.EffectiveTLDPlusOne(d)
	if err != nil {
		return ""
	}
	return reg
}

// freeMailDomains are mailbox providers whose domain says nothing about the
// subject and must not be treated as a discovered domain.
var freeMailDomains = map[string]bool{
	"gmail.com": true, "googlemail.com": true, "yahoo.com": true, "outlook.com": true,
	"hotmail.com": true, "live.com": true, "icloud.com": true, "me.com": true,
	"aol.com": true, "proton.me": true, "protonmail.com": true, "gmx.com": true,
	"gmx.de": true, "yandex.ru": true, "mail.ru": true, "zoho.com": true,
	"fastmail.com": true, "tutanota.com": true, "example.com": true,
}

// IsFreeMail reports whether the email's domain is a public mailbox provider.
func IsFreeMail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	return freeMailDomains[strings.ToLower(email[at+1:])]
}

// EmailDomain returns the registered domain of an address.
func EmailDomain(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return ""
	}
	return RegisteredDomain(email[at+1:])
}

// LocalPart returns the part of an address before '@' with any "+tag" removed.
func LocalPart(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	local := email[:at]
	if plus := strings.IndexByte(local, '+'); plus > 0 {
		local = local[:plus]
	}
	return strings.ToLower(local)
}
