package providers

import (
	"context"
	"net/mail"
	"strings"

	"github.com/xkilldash9x/specter/api/schemas"
	"github.com/xkilldash9x/specter/internal/crossref"
)

// disposableDomains is a short list of throwaway-mailbox providers.
var disposableDomains = map[string]bool{
	"mailinator.com": true, "guerrillamail.com": true, "guerrillamail.net": true,
	"10minutemail.com": true, "tempmail.com": true, "temp-mail.org": true,
	"yopmail.com": true, "trashmail.com": true, "getnada.com": true,
	"sharklasers.com": true, "dispostable.com": true, "maildrop.cc": true,
	"throwawaymail.com": true, "fakeinbox.com": true, "mintemail.com": true,
	"mohmal.com": true, "emailondeck.com": true, "spamgourmet.com": true,
}

// IsDisposable reports whether the address belongs to a throwaway provider.
func IsDisposable(email string) bool {
	return disposableDomains[crossref.EmailDomain(email)]
}

// EmailValidator checks syntax, disposability and MX records.
type EmailValidator struct {
	base
	resolver Resolver
}

func NewEmailValidator(d Deps) *EmailValidator {
	return &EmailValidator{base: newBase("email", d), resolver: resolverOrDefault(d.Resolver)}
}

// Check always returns a Found result: a failed check is itself information.
func (p *EmailValidator) Check(ctx context.Context, email string) schemas.Result[schemas.EmailCheck] {
	check := schemas.EmailCheck{Address: strings.ToLower(strings.TrimSpace(email))}
	addr, err := mail.ParseAddress(check.Address)
	check.SyntaxValid = err == nil && addr.Address == check.Address && crossref.NormalizeEmail(check.Address) != ""
	if !check.SyntaxValid {
		p.found()
		return schemas.Found(check)
	}
	check.Disposable = IsDisposable(check.Address)

	domain := check.Address[strings.LastIndexByte(check.Address, '@')+1:]
	if mx, err := p.resolver.LookupMX(ctx, domain); err == nil {
		for _, m := range mx {
			host := strings.TrimSuffix(m.Host, ".")
			if host != "" {
				check.MXHosts = append(check.MXHosts, host)
			}
		}
	}
	check.HasMX = len(check.MXHosts) > 0
	p.found()
	return schemas.Found(check)
}
