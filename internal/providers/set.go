package providers

// Set is the full collection of adapters the pipeline draws on.
type Set struct {
	Breach    *BreachProvider
	RDAP      *RDAPProvider
	DNS       *DNSProvider
	Certs     *CertProvider
	Sitemap   *SitemapProvider
	Search    *SearchProvider
	Directory *DirectoryProvider
	Paste     *PasteProvider
	Gravatar  *GravatarProvider
	Images    *ImageProvider
	Records   *RecordsProvider
	HostIntel *HostIntelProvider
	Email     *EmailValidator
	Phone     *PhoneProvider
	Crypto    *CryptoProvider
	Plate     *PlateProvider
	Geocode   *GeocodeProvider

	// Platforms are probed for username matches, in this order.
	Platforms []Platform
	// Posts holds the post fetchers keyed by platform name.
	Posts map[string]PostFetcher
}

// NewSet builds every adapter from d.
func NewSet(d Deps) *Set {
	search := NewSearchProvider(d)
	github := NewGitHubPlatform(d)
	reddit := NewRedditPlatform(d)
	bluesky := NewBlueskyPlatform(d)

	s := &Set{
		Breach:    NewBreachProvider(d),
		RDAP:      NewRDAPProvider(d),
		DNS:       NewDNSProvider(d),
		Certs:     NewCertProvider(d),
		Sitemap:   NewSitemapProvider(d),
		Search:    search,
		Directory: NewDirectoryProvider(d, search),
		Paste:     NewPasteProvider(d),
		Gravatar:  NewGravatarProvider(d),
		Images:    NewImageProvider(d),
		Records:   NewRecordsProvider(d, search),
		HostIntel: NewHostIntelProvider(d),
		Email:     NewEmailValidator(d),
		Phone:     NewPhoneProvider(d),
		Crypto:    NewCryptoProvider(d),
		Plate:     NewPlateProvider(d),
		Geocode:   NewGeocodeProvider(d),
		Platforms: []Platform{
			github,
			reddit,
			bluesky,
			NewGitLabPlatform(d),
			NewHackerNewsPlatform(d),
			NewKeybasePlatform(d),
		},
		Posts: map[string]PostFetcher{
			github.Name():  github,
			reddit.Name():  reddit,
			bluesky.Name(): bluesky,
		},
	}
	for _, spec := range DefaultProbeSpecs {
		s.Platforms = append(s.Platforms, NewProbePlatform(d, spec))
	}
	return s
}

// FilterPlatforms returns the platforms named in allow, or all of them when
// allow is empty.
func (s *Set) FilterPlatforms(allow []string) []Platform {
	if len(allow) == 0 {
		return s.Platforms
	}
	want := make(map[string]bool, len(allow))
	for _, a := range allow {
		want[a] = true
	}
	var out []Platform
	for _, p := range s.Platforms {
		if want[p.Name()] {
			out = append(out, p)
		}
	}
	return out
}
