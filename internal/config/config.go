// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Scheduler() SchedulerConfig
	Collection() CollectionConfig
	Social() SocialConfig
	Network() NetworkConfig
	Providers() ProvidersConfig
	LLM() LLMConfig
	Geo() GeoConfig
	Server() ServerConfig

	// Setters used by CLI flag overrides.
	SetDatabaseURL(string)
	SetServerAddr(string)
	SetLLMEnabled(bool)
}

// Config holds the entire application configuration. Sections are exported so
// viper can decode into them; callers go through the Interface getters.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	SchedulerCfg  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
	CollectionCfg CollectionConfig `mapstructure:"collection" yaml:"collection"`
	SocialCfg     SocialConfig     `mapstructure:"social" yaml:"social"`
	NetworkCfg    NetworkConfig    `mapstructure:"network" yaml:"network"`
	ProvidersCfg  ProvidersConfig  `mapstructure:"providers" yaml:"providers"`
	LLMCfg        LLMConfig        `mapstructure:"llm" yaml:"llm"`
	GeoCfg        GeoConfig        `mapstructure:"geo" yaml:"geo"`
	ServerCfg     ServerConfig     `mapstructure:"server" yaml:"server"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig     { return c.DatabaseCfg }
func (c *Config) Scheduler() SchedulerConfig   { return c.SchedulerCfg }
func (c *Config) Collection() CollectionConfig { return c.CollectionCfg }
func (c *Config) Social() SocialConfig         { return c.SocialCfg }
func (c *Config) Network() NetworkConfig       { return c.NetworkCfg }
func (c *Config) Providers() ProvidersConfig   { return c.ProvidersCfg }
func (c *Config) LLM() LLMConfig               { return c.LLMCfg }
func (c *Config) Geo() GeoConfig               { return c.GeoCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetDatabaseURL(u string) { c.DatabaseCfg.URL = u }
func (c *Config) SetServerAddr(a string)  { c.ServerCfg.Addr = a }
func (c *Config) SetLLMEnabled(b bool)    { c.LLMCfg.Enabled = b }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details and pool sizing.
type DatabaseConfig struct {
	URL               string        `mapstructure:"url" yaml:"url"`
	MaxConns          int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time" yaml:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period" yaml:"health_check_period"`
}

// SchedulerConfig governs the tick runner and its advisory row lock.
type SchedulerConfig struct {
	LockTTL     time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
	StaleAfter  time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
	EventWindow int           `mapstructure:"event_window" yaml:"event_window"`
	// StepTimeout bounds a single step. It must stay below LockTTL so a step
	// cannot outlive the lock that guards it.
	StepTimeout  time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// CollectionConfig sizes the collection worker pools.
type CollectionConfig struct {
	Workers          int           `mapstructure:"workers" yaml:"workers"`
	DeepScanWorkers  int           `mapstructure:"deep_scan_workers" yaml:"deep_scan_workers"`
	SubStepDeadline  time.Duration `mapstructure:"sub_step_deadline" yaml:"sub_step_deadline"`
	DeepScanDeadline time.Duration `mapstructure:"deep_scan_deadline" yaml:"deep_scan_deadline"`
	MaxCandidates    int           `mapstructure:"max_candidates" yaml:"max_candidates"`
	MaxDomains       int           `mapstructure:"max_domains" yaml:"max_domains"`
	MaxImages        int           `mapstructure:"max_images" yaml:"max_images"`
}

// SocialConfig holds the per-target-type acceptance thresholds and post limits.
type SocialConfig struct {
	UsernameThreshold  float64  `mapstructure:"username_threshold" yaml:"username_threshold"`
	EmailThreshold     float64  `mapstructure:"email_threshold" yaml:"email_threshold"`
	PhoneThreshold     float64  `mapstructure:"phone_threshold" yaml:"phone_threshold"`
	DomainThreshold    float64  `mapstructure:"domain_threshold" yaml:"domain_threshold"`
	NameThreshold      float64  `mapstructure:"name_threshold" yaml:"name_threshold"`
	DefaultThreshold   float64  `mapstructure:"default_threshold" yaml:"default_threshold"`
	PostThreshold      float64  `mapstructure:"post_threshold" yaml:"post_threshold"`
	MaxPostsPerProfile int      `mapstructure:"max_posts_per_profile" yaml:"max_posts_per_profile"`
	Platforms          []string `mapstructure:"platforms" yaml:"platforms"`
}

// NetworkConfig tunes the outbound transport helper.
type NetworkConfig struct {
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout" yaml:"tls_handshake_timeout"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host" yaml:"max_idle_conns_per_host"`
	MaxRetries          int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBackoff        time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	MaxBodyBytes        int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	UserAgent           string        `mapstructure:"user_agent" yaml:"user_agent"`
	IgnoreTLSErrors     bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// ProvidersConfig carries provider endpoints, credentials and rate limits.
// Endpoints are overridable so tests and self-hosted mirrors can be used.
type ProvidersConfig struct {
	HIBPAPIKey     string  `mapstructure:"hibp_api_key" yaml:"-"`
	HIBPURL        string  `mapstructure:"hibp_url" yaml:"hibp_url"`
	HIBPRateLimit  float64 `mapstructure:"hibp_rate_limit" yaml:"hibp_rate_limit"`
	RDAPURL        string  `mapstructure:"rdap_url" yaml:"rdap_url"`
	CrtShURL       string  `mapstructure:"crtsh_url" yaml:"crtsh_url"`
	CrtShRateLimit float64 `mapstructure:"crtsh_rate_limit" yaml:"crtsh_rate_limit"`
	SearchURL      string  `mapstructure:"search_url" yaml:"search_url"`
	GravatarURL    string  `mapstructure:"gravatar_url" yaml:"gravatar_url"`
	PasteURL       string  `mapstructure:"paste_url" yaml:"paste_url"`
	IPInfoURL      string  `mapstructure:"ipinfo_url" yaml:"ipinfo_url"`
	IPInfoToken    string  `mapstructure:"ipinfo_token" yaml:"-"`
	InternetDBURL  string  `mapstructure:"internetdb_url" yaml:"internetdb_url"`
	BlockstreamURL string  `mapstructure:"blockstream_url" yaml:"blockstream_url"`
	PlateURL       string  `mapstructure:"plate_url" yaml:"plate_url"`
	PropertyURL    string  `mapstructure:"property_url" yaml:"property_url"`
	CourtURL       string  `mapstructure:"court_url" yaml:"court_url"`
	CriminalURL    string  `mapstructure:"criminal_url" yaml:"criminal_url"`
	RecordsAPIKey  string  `mapstructure:"records_api_key" yaml:"-"`
	GitHubURL      string  `mapstructure:"github_url" yaml:"github_url"`
	GitHubToken    string  `mapstructure:"github_token" yaml:"-"`
	RedditURL      string  `mapstructure:"reddit_url" yaml:"reddit_url"`
	BlueskyURL     string  `mapstructure:"bluesky_url" yaml:"bluesky_url"`
	GitLabURL      string  `mapstructure:"gitlab_url" yaml:"gitlab_url"`
	HackerNewsURL  string  `mapstructure:"hackernews_url" yaml:"hackernews_url"`
	KeybaseURL     string  `mapstructure:"keybase_url" yaml:"keybase_url"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderOpenAI LLMProvider = "openai"
)

// LLMConfig configures the AI enhancer and the client behind it.
type LLMConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// GeoConfig controls geocoding of collected locations.
type GeoConfig struct {
	NominatimURL string  `mapstructure:"nominatim_url" yaml:"nominatim_url"`
	RateLimit    float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	MaxMarkers   int     `mapstructure:"max_markers" yaml:"max_markers"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "specter")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "1m")

	// -- Scheduler --
	v.SetDefault("scheduler.lock_ttl", "2m")
	v.SetDefault("scheduler.stale_after", "3m")
	v.SetDefault("scheduler.event_window", 500)
	v.SetDefault("scheduler.step_timeout", "110s")
	v.SetDefault("scheduler.poll_interval", "2s")

	// -- Collection --
	v.SetDefault("collection.workers", 3)
	v.SetDefault("collection.deep_scan_workers", 10)
	v.SetDefault("collection.sub_step_deadline", "20s")
	v.SetDefault("collection.deep_scan_deadline", "45s")
	v.SetDefault("collection.max_candidates", 12)
	v.SetDefault("collection.max_domains", 5)
	v.SetDefault("collection.max_images", 20)

	// -- Social --
	v.SetDefault("social.username_threshold", 0.6)
	v.SetDefault("social.email_threshold", 0.6)
	v.SetDefault("social.phone_threshold", 0.6)
	v.SetDefault("social.domain_threshold", 0.5)
	v.SetDefault("social.name_threshold", 0.35)
	v.SetDefault("social.default_threshold", 0.5)
	v.SetDefault("social.post_threshold", 0.75)
	v.SetDefault("social.max_posts_per_profile", 50)
	v.SetDefault("social.platforms", []string{})

	// -- Network --
	v.SetDefault("network.timeout", "15s")
	v.SetDefault("network.dial_timeout", "5s")
	v.SetDefault("network.tls_handshake_timeout", "5s")
	v.SetDefault("network.idle_conn_timeout", "90s")
	v.SetDefault("network.max_idle_conns_per_host", 10)
	v.SetDefault("network.max_retries", 2)
	v.SetDefault("network.retry_backoff", "750ms")
	v.SetDefault("network.max_body_bytes", 4<<20)
	v.SetDefault("network.user_agent", "specter/1.0 (+https://github.com/xkilldash9x/specter)")
	v.SetDefault("network.ignore_tls_errors", false)

	// -- Providers --
	v.SetDefault("providers.hibp_url", "https://haveibeenpwned.com/api/v3")
	v.SetDefault("providers.hibp_rate_limit", 0.6)
	v.SetDefault("providers.rdap_url", "https://rdap.org")
	v.SetDefault("providers.crtsh_url", "https://crt.sh")
	v.SetDefault("providers.crtsh_rate_limit", 2.0)
	v.SetDefault("providers.search_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("providers.gravatar_url", "https://gravatar.com")
	v.SetDefault("providers.paste_url", "https://psbdmp.ws/api/v3")
	v.SetDefault("providers.ipinfo_url", "https://ipinfo.io")
	v.SetDefault("providers.internetdb_url", "https://internetdb.shodan.io")
	v.SetDefault("providers.blockstream_url", "https://blockstream.info/api")
	v.SetDefault("providers.github_url", "https://api.github.com/")
	v.SetDefault("providers.reddit_url", "https://www.reddit.com")
	v.SetDefault("providers.bluesky_url", "https://public.api.bsky.app")
	v.SetDefault("providers.gitlab_url", "https://gitlab.com")
	v.SetDefault("providers.hackernews_url", "https://hacker-news.firebaseio.com/v0")
	v.SetDefault("providers.keybase_url", "https://keybase.io")

	// -- LLM --
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.top_p", 0.95)
	v.SetDefault("llm.top_k", 40)
	v.SetDefault("llm.max_tokens", 2048)

	// -- Geo --
	v.SetDefault("geo.nominatim_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geo.rate_limit", 1.0)
	v.SetDefault("geo.max_markers", 25)

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.request_timeout", "150s")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "160s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("database.url", "SPECTER_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("providers.hibp_api_key", "SPECTER_HIBP_API_KEY")
	v.BindEnv("providers.ipinfo_token", "SPECTER_IPINFO_TOKEN")
	v.BindEnv("providers.records_api_key", "SPECTER_RECORDS_API_KEY")
	v.BindEnv("providers.github_token", "SPECTER_GITHUB_TOKEN", "GITHUB_TOKEN")
	v.BindEnv("llm.api_key", "SPECTER_LLM_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Fall back to the provider's conventional key variable.
	if cfg.LLMCfg.APIKey == "" {
		switch cfg.LLMCfg.Provider {
		case ProviderGemini:
			cfg.LLMCfg.APIKey = os.Getenv("GEMINI_API_KEY")
		case ProviderOpenAI:
			cfg.LLMCfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.SchedulerCfg.Validate(); err != nil {
		return fmt.Errorf("scheduler configuration invalid: %w", err)
	}
	if c.CollectionCfg.Workers <= 0 || c.CollectionCfg.DeepScanWorkers <= 0 {
		return fmt.Errorf("collection.workers and collection.deep_scan_workers must be positive integers")
	}
	if c.CollectionCfg.SubStepDeadline <= 0 {
		return fmt.Errorf("collection.sub_step_deadline must be a positive duration")
	}
	if err := c.SocialCfg.Validate(); err != nil {
		return fmt.Errorf("social configuration invalid: %w", err)
	}
	if c.NetworkCfg.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be a positive duration")
	}
	if c.NetworkCfg.MaxRetries < 0 {
		return fmt.Errorf("network.max_retries cannot be negative")
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the scheduler timing relationships.
func (s *SchedulerConfig) Validate() error {
	if s.LockTTL <= 0 {
		return fmt.Errorf("lock_ttl must be a positive duration")
	}
	if s.StaleAfter < s.LockTTL {
		return fmt.Errorf("stale_after must not be shorter than lock_ttl")
	}
	if s.StepTimeout <= 0 || s.StepTimeout >= s.LockTTL {
		return fmt.Errorf("step_timeout must be positive and shorter than lock_ttl")
	}
	if s.EventWindow <= 0 {
		return fmt.Errorf("event_window must be a positive integer")
	}
	return nil
}

// Validate checks that every threshold is a probability.
func (s *SocialConfig) Validate() error {
	for name, v := range map[string]float64{
		"username_threshold": s.UsernameThreshold,
		"email_threshold":    s.EmailThreshold,
		"phone_threshold":    s.PhoneThreshold,
		"domain_threshold":   s.DomainThreshold,
		"name_threshold":     s.NameThreshold,
		"default_threshold":  s.DefaultThreshold,
		"post_threshold":     s.PostThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0", name)
		}
	}
	if s.MaxPostsPerProfile < 0 {
		return fmt.Errorf("max_posts_per_profile cannot be negative")
	}
	return nil
}

// Validate checks the LLM section. A disabled enhancer needs nothing.
func (l *LLMConfig) Validate() error {
	if !l.Enabled {
		return nil
	}
	switch l.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("unsupported provider %q", l.Provider)
	}
	if l.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	return nil
}
