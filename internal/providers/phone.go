package providers

import (
	"context"
	"strings"

	"github.com/nyaruka/phonenumbers"

	"github.com/xkilldash9x/specter/api/schemas"
)

// PhoneProvider parses and classifies a phone number with libphonenumber.
// It makes no network calls.
type PhoneProvider struct {
	base
	defaultRegion string
}

func NewPhoneProvider(d Deps) *PhoneProvider {
	return &PhoneProvider{base: newBase("phone", d), defaultRegion: "US"}
}

var lineTypes = map[phonenumbers.PhoneNumberType]string{
	phonenumbers.FIXED_LINE:           "fixed_line",
	phonenumbers.MOBILE:               "mobile",
	phonenumbers.FIXED_LINE_OR_MOBILE: "fixed_line_or_mobile",
	phonenumbers.TOLL_FREE:            "toll_free",
	phonenumbers.PREMIUM_RATE:         "premium_rate",
	phonenumbers.SHARED_COST:          "shared_cost",
	phonenumbers.VOIP:                 "voip",
	phonenumbers.PERSONAL_NUMBER:      "personal",
	phonenumbers.PAGER:                "pager",
	phonenumbers.UAN:                  "uan",
	phonenumbers.VOICEMAIL:            "voicemail",
}

// Parse returns the normalized forms of raw. Unparseable input is Absent.
func (p *PhoneProvider) Parse(_ context.Context, raw string) schemas.Result[schemas.PhoneInfo] {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), p.defaultRegion)
	if err != nil {
		return absent[schemas.PhoneInfo](p.base, "unparseable: "+err.Error())
	}
	info := schemas.PhoneInfo{
		Raw:           raw,
		E164:          phonenumbers.Format(num, phonenumbers.E164),
		International: phonenumbers.Format(num, phonenumbers.INTERNATIONAL),
		Region:        phonenumbers.GetRegionCodeForNumber(num),
		CountryCode:   int(num.GetCountryCode()),
		Valid:         phonenumbers.IsValidNumber(num),
	}
	if t, ok := lineTypes[phonenumbers.GetNumberType(num)]; ok {
		info.LineType = t
	} else {
		info.LineType = "unknown"
	}
	p.found()
	return schemas.Found(info)
}
