package schemas

import "time"

// -- OSINT Envelope --

// Envelope is the single collection document produced by the osint step.
// Sections are pointers: a nil section means the collector for it did not
// run or produced nothing, and readers check presence before use.
type Envelope struct {
	Target      Target    `json:"target"`
	CollectedAt time.Time `json:"collected_at"`

	Email       *EmailSection       `json:"email,omitempty"`
	Username    *UsernameSection    `json:"username,omitempty"`
	Phone       *PhoneSection       `json:"phone,omitempty"`
	Domain      *DomainSection      `json:"domain,omitempty"`
	IPNetwork   *IPNetworkSection   `json:"ip_network,omitempty"`
	Social      *SocialSection      `json:"social,omitempty"`
	Images      *ImagesSection      `json:"images,omitempty"`
	Crypto      *CryptoSection      `json:"crypto,omitempty"`
	Records     *RecordsSection     `json:"records,omitempty"`
	Connections *ConnectionsSection `json:"connections,omitempty"`
	Exposure    *ExposureSection    `json:"exposure,omitempty"`

	DiscoveredURLs []string `json:"discovered_urls,omitempty"`
	Flags          []string `json:"flags,omitempty"`

	// Assertions about the subject's name and address collected along the way,
	// consumed by deconfliction.
	Assertions []Assertion `json:"assertions,omitempty"`
	// Locations the subject has been associated with, consumed by the
	// location-coherence analysis.
	Locations []LocationAssertion `json:"locations,omitempty"`
	// Identifiers is a snapshot of the cross-reference accumulator at the end
	// of collection.
	Identifiers IdentifierSnapshot `json:"identifiers"`
}

// Envelope flags.
const (
	FlagDisposableEmail  = "disposable_email"
	FlagInvalidEmail     = "invalid_email"
	FlagSecondPassUsed   = "second_pass_applied"
	FlagDeepScan         = "deep_scan"
	FlagEnrichmentFailed = "enrichment_failed"
)

// HasFlag reports whether the envelope carries the given flag.
func (e *Envelope) HasFlag(flag string) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag appends a flag once.
func (e *Envelope) AddFlag(flag string) {
	if !e.HasFlag(flag) {
		e.Flags = append(e.Flags, flag)
	}
}

// IdentifierSnapshot is a frozen, sorted copy of the accumulator sets.
type IdentifierSnapshot struct {
	Emails    []string `json:"emails,omitempty"`
	Phones    []string `json:"phones,omitempty"`
	Usernames []string `json:"usernames,omitempty"`
	Domains   []string `json:"domains,omitempty"`
}

// -- Sections --

type EmailSection struct {
	Address          string           `json:"address"`
	Check            EmailCheck       `json:"check"`
	Gravatar         *GravatarProfile `json:"gravatar,omitempty"`
	DerivedUsernames []string         `json:"derived_usernames,omitempty"`
	Directory        []DirectoryHit   `json:"directory,omitempty"`
}

// EmailCheck is the outcome of local email validation.
type EmailCheck struct {
	Address     string   `json:"address"`
	SyntaxValid bool     `json:"syntax_valid"`
	Disposable  bool     `json:"disposable"`
	HasMX       bool     `json:"has_mx"`
	MXHosts     []string `json:"mx_hosts,omitempty"`
}

// Valid reports whether the address is deliverable as far as we can tell.
func (c EmailCheck) Valid() bool {
	return c.SyntaxValid && c.HasMX
}

type GravatarProfile struct {
	Hash        string   `json:"hash"`
	DisplayName string   `json:"display_name,omitempty"`
	AvatarURL   string   `json:"avatar_url,omitempty"`
	Location    string   `json:"location,omitempty"`
	Accounts    []string `json:"accounts,omitempty"`
}

type UsernameSection struct {
	Candidates []string        `json:"candidates"`
	Matches    []PlatformMatch `json:"matches,omitempty"`
	// Pass is 1 for the initial probe and 2 when the second pass replaced it.
	Pass int `json:"pass"`
}

// EvidenceKind is a category of corroborating identifier found on a profile page.
type EvidenceKind string

const (
	EvidencePhone    EvidenceKind = "phone"
	EvidenceEmail    EvidenceKind = "email"
	EvidenceUsername EvidenceKind = "username"
	EvidenceDomain   EvidenceKind = "domain"
)

// PlatformProfile is what a platform adapter reports for one handle.
type PlatformProfile struct {
	Platform    string            `json:"platform"`
	Username    string            `json:"username"`
	DisplayName string            `json:"display_name,omitempty"`
	ProfileURL  string            `json:"profile_url"`
	Bio         string            `json:"bio,omitempty"`
	AvatarURL   string            `json:"avatar_url,omitempty"`
	Location    string            `json:"location,omitempty"`
	Website     string            `json:"website,omitempty"`
	Followers   int               `json:"followers,omitempty"`
	Following   int               `json:"following,omitempty"`
	PostCount   int               `json:"post_count,omitempty"`
	Verified    bool              `json:"verified,omitempty"`
	NSFW        bool              `json:"nsfw,omitempty"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
	// Text is the page or bio text scanned for corroborating identifiers.
	Text     string            `json:"-"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PlatformMatch is a scored platform profile tied to the candidate that found it.
type PlatformMatch struct {
	PlatformProfile
	Candidate  string         `json:"candidate"`
	Weak       bool           `json:"weak,omitempty"`
	Evidence   []EvidenceKind `json:"evidence,omitempty"`
	Confidence float64        `json:"confidence"`
}

// HasEvidence reports whether any corroborating identifier was found.
func (m PlatformMatch) HasEvidence() bool {
	return len(m.Evidence) > 0
}

type PhoneSection struct {
	Info      PhoneInfo      `json:"info"`
	Directory []DirectoryHit `json:"directory,omitempty"`
}

type PhoneInfo struct {
	Raw           string `json:"raw"`
	E164          string `json:"e164,omitempty"`
	International string `json:"international,omitempty"`
	Region        string `json:"region,omitempty"`
	CountryCode   int    `json:"country_code,omitempty"`
	LineType      string `json:"line_type,omitempty"`
	Valid         bool   `json:"valid"`
}

type DomainSection struct {
	Domains []DomainIntel `json:"domains"`
}

type DomainIntel struct {
	Domain     string      `json:"domain"`
	Registered string      `json:"registered_domain,omitempty"`
	RDAP       *RDAPRecord `json:"rdap,omitempty"`
	DNS        *DNSRecords `json:"dns,omitempty"`
	Subdomains []string    `json:"subdomains,omitempty"`
	URLs       []string    `json:"urls,omitempty"`
}

type RDAPRecord struct {
	Registrar      string     `json:"registrar,omitempty"`
	Created        *time.Time `json:"created,omitempty"`
	Expires        *time.Time `json:"expires,omitempty"`
	RegistrantName string     `json:"registrant_name,omitempty"`
	RegistrantOrg  string     `json:"registrant_org,omitempty"`
	RegistrantAddr string     `json:"registrant_address,omitempty"`
	Emails         []string   `json:"emails,omitempty"`
	Nameservers    []string   `json:"nameservers,omitempty"`
	Status         []string   `json:"status,omitempty"`
}

type DNSRecords struct {
	A    []string `json:"a,omitempty"`
	AAAA []string `json:"aaaa,omitempty"`
	MX   []string `json:"mx,omitempty"`
	NS   []string `json:"ns,omitempty"`
	TXT  []string `json:"txt,omitempty"`
}

type IPNetworkSection struct {
	Hosts []IPIntel `json:"hosts"`
}

type IPIntel struct {
	IP        string   `json:"ip"`
	Hostnames []string `json:"hostnames,omitempty"`
	City      string   `json:"city,omitempty"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country,omitempty"`
	Org       string   `json:"org,omitempty"`
	Loc       string   `json:"loc,omitempty"`
	Ports     []int    `json:"ports,omitempty"`
	Vulns     []string `json:"vulns,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type SocialSection struct {
	Links []SocialLink `json:"links"`
}

// SocialLink is a profile URL seen during collection (search hits, gravatar
// accounts) that was not necessarily probed.
type SocialLink struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
	Source   string `json:"source"`
}

type ImagesSection struct {
	Candidates []ImageCandidate `json:"candidates"`
}

type ImageCandidate struct {
	URL          string     `json:"url"`
	Source       string     `json:"source"`
	ContentType  string     `json:"content_type,omitempty"`
	Size         int64      `json:"size,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Reachable    bool       `json:"reachable"`
}

type CryptoSection struct {
	Wallets []CryptoWallet `json:"wallets"`
}

type CryptoWallet struct {
	Address      string `json:"address"`
	Chain        string `json:"chain"`
	TxCount      int    `json:"tx_count"`
	ReceivedSats int64  `json:"received_sats,omitempty"`
	SpentSats    int64  `json:"spent_sats,omitempty"`
	HighActivity bool   `json:"high_activity"`
}

// RecordKind classifies a public record.
type RecordKind string

const (
	RecordProperty RecordKind = "property"
	RecordCourt    RecordKind = "court"
	RecordCriminal RecordKind = "criminal"
)

type RecordsSection struct {
	Property []Record     `json:"property,omitempty"`
	Court    []Record     `json:"court,omitempty"`
	Criminal []Record     `json:"criminal,omitempty"`
	Plate    *PlateRecord `json:"plate,omitempty"`
}

type Record struct {
	Kind         RecordKind `json:"kind"`
	Source       string     `json:"source"`
	Title        string     `json:"title"`
	Snippet      string     `json:"snippet,omitempty"`
	URL          string     `json:"url,omitempty"`
	Names        []string   `json:"names,omitempty"`
	Address      string     `json:"address,omitempty"`
	Jurisdiction string     `json:"jurisdiction,omitempty"`
}

type PlateRecord struct {
	Plate     string `json:"plate"`
	State     string `json:"state,omitempty"`
	Make      string `json:"make,omitempty"`
	Model     string `json:"model,omitempty"`
	Year      int    `json:"year,omitempty"`
	OwnerName string `json:"owner_name,omitempty"`
	Address   string `json:"address,omitempty"`
}

type ConnectionsSection struct {
	Associates []Associate `json:"associates"`
}

type Associate struct {
	Name     string   `json:"name"`
	Sources  []string `json:"sources"`
	Mentions int      `json:"mentions"`
	Risky    bool     `json:"risky"`
	Reason   string   `json:"reason,omitempty"`
}

// ExposureSection groups breach, paste and deep-web findings.
type ExposureSection struct {
	Breaches      []Breach  `json:"breaches,omitempty"`
	Mentions      []Mention `json:"mentions,omitempty"`
	ExtraContacts []string  `json:"extra_contacts,omitempty"`
}

type Breach struct {
	Account     string   `json:"account"`
	Name        string   `json:"name"`
	Title       string   `json:"title,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	BreachDate  string   `json:"breach_date,omitempty"`
	PwnCount    int      `json:"pwn_count,omitempty"`
	DataClasses []string `json:"data_classes,omitempty"`
	IsSensitive bool     `json:"is_sensitive,omitempty"`
}

type Mention struct {
	Source   string   `json:"source"`
	URL      string   `json:"url"`
	Snippet  string   `json:"snippet,omitempty"`
	Contacts []string `json:"contacts,omitempty"`
}

type DirectoryHit struct {
	Hub       string   `json:"hub"`
	URL       string   `json:"url"`
	Query     string   `json:"query"`
	Names     []string `json:"names,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
	Phones    []string `json:"phones,omitempty"`
	Emails    []string `json:"emails,omitempty"`
}

type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// -- Assertions --

// AssertionField is a subject attribute that deconfliction reasons about.
type AssertionField string

const (
	FieldName    AssertionField = "name"
	FieldAddress AssertionField = "address"
)

// Assertion sources, ordered roughly by trust.
const (
	SourceUserInput       = "user_input"
	SourcePropertyRecords = "property_records"
	SourceCourtRecords    = "court_records"
	SourcePlateRegistry   = "plate_registry"
	SourceRDAPRegistrant  = "rdap_registrant"
	SourceSocial          = "social"
	SourceWebSearch       = "web_search"
	SourceDirectory       = "directory"
	SourceGravatar        = "gravatar"
)

// Assertion is a claim, by some source, that the subject's field has a value.
type Assertion struct {
	Field      AssertionField `json:"field"`
	Value      string         `json:"value"`
	Source     string         `json:"source"`
	Confidence float64        `json:"confidence"`
	Detail     string         `json:"detail,omitempty"`
}

// LocationAssertion ties the subject to a place.
type LocationAssertion struct {
	Place   string `json:"place"`
	Country string `json:"country,omitempty"`
	Source  string `json:"source"`
}
