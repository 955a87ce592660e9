// Package application holds the agent's configuration schema and loader.
// Configuration is YAML with struct-tag validation; secrets come from the
// environment so config files stay committable.
package application

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/poidh-labs/sentinel/internal/domain"
)

// Config is the complete agent configuration loaded at startup.
// Invalid configuration is fatal: the agent refuses to start rather than
// evaluate bounties under ambiguous settings.
type Config struct {
	// Chain configures access to the bounty contract's ledger and its
	// indexed-log API.
	Chain ChainConfig `yaml:"chain" validate:"required"`

	// Judge configures the vision-LLM judging path.
	Judge JudgeConfig `yaml:"judge" validate:"required"`

	// Cache configures the persistent proof-URI cache.
	Cache CacheConfig `yaml:"cache"`

	// Gateway is the content-addressed storage gateway base URL. Empty uses
	// the public default.
	Gateway string `yaml:"gateway" validate:"omitempty,url"`

	// Monitor configures the claim discovery poll loop.
	Monitor MonitorConfig `yaml:"monitor"`

	// Metrics configures the Prometheus namespace.
	Metrics MetricsConfig `yaml:"metrics"`

	// Bounties lists the bounties this agent watches and their criteria.
	Bounties []BountyConfig `yaml:"bounties" validate:"required,min=1,dive"`
}

// ChainConfig locates the bounty contract and its log sources.
type ChainConfig struct {
	// ContractAddress is the bounty contract emitting ClaimCreated events.
	ContractAddress string `yaml:"contract_address" validate:"required"`

	// LedgerBaseURL is the ledger service endpoint providing claim reads,
	// payout execution, and raw log queries.
	LedgerBaseURL string `yaml:"ledger_base_url" validate:"required,url"`

	// LedgerAPIKeyEnv names the environment variable holding the ledger
	// service API key.
	LedgerAPIKeyEnv string `yaml:"ledger_api_key_env"`

	// IndexBaseURL is the indexed-log API endpoint, the preferred network
	// resolution strategy.
	IndexBaseURL string `yaml:"index_base_url" validate:"required,url"`

	// IndexAPIKeyEnv names the environment variable holding the indexed-log
	// API key. The key itself never appears in config files.
	IndexAPIKeyEnv string `yaml:"index_api_key_env"`

	// BlockWindow bounds direct chain-log scans; 0 uses the default.
	BlockWindow uint64 `yaml:"block_window" validate:"omitempty,min=1"`
}

// JudgeConfig selects and tunes the vision model.
type JudgeConfig struct {
	// Provider is the model provider registered with the LLM client factory.
	Provider string `yaml:"provider" validate:"required,oneof=openai anthropic google"`

	// Model overrides the provider's default model when set.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the provider API key.
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`

	// RequestTimeoutSeconds bounds a single model call.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" validate:"omitempty,min=1,max=600"`

	// RateLimit is the shared token-bucket refill rate in requests/second.
	RateLimit float64 `yaml:"rate_limit" validate:"omitempty,min=0"`

	// RateBurst is the token-bucket capacity.
	RateBurst int `yaml:"rate_burst" validate:"omitempty,min=1"`
}

// CacheConfig locates the persistent proof-URI cache.
type CacheConfig struct {
	// Path is the SQLite database file; empty uses an in-tree default.
	Path string `yaml:"path"`

	// FlushIntervalMS is the write debounce; 0 uses the default.
	FlushIntervalMS int `yaml:"flush_interval_ms" validate:"omitempty,min=100,max=60000"`
}

// MonitorConfig tunes the claim discovery loop.
type MonitorConfig struct {
	// PollIntervalSeconds is how often each bounty's claims are re-fetched.
	PollIntervalSeconds int `yaml:"poll_interval_seconds" validate:"omitempty,min=5,max=3600"`
}

// MetricsConfig tunes observability.
type MetricsConfig struct {
	// Namespace prefixes every Prometheus metric.
	Namespace string `yaml:"namespace"`

	// ListenAddr serves /metrics when set.
	ListenAddr string `yaml:"listen_addr" validate:"omitempty,hostname_port"`
}

// BountyConfig pairs an on-chain bounty with its evaluation criteria.
type BountyConfig struct {
	ID          string                `yaml:"id" validate:"required"`
	Title       string                `yaml:"title" validate:"required,max=255"`
	Description string                `yaml:"description" validate:"max=2000"`
	Criteria    domain.BountyCriteria `yaml:"criteria" validate:"required"`
}

// Bounty converts the config entry into the domain type.
func (b BountyConfig) Bounty() *domain.Bounty {
	return &domain.Bounty{
		ID:          b.ID,
		Title:       b.Title,
		Description: b.Description,
		Criteria:    b.Criteria,
	}
}

// Defaults mirrored from the component packages so a minimal config file is
// fully usable.
const (
	DefaultPollInterval   = 30 * time.Second
	DefaultRequestTimeout = 90 * time.Second
	DefaultRateLimit      = 1.0
	DefaultRateBurst      = 10
	DefaultCachePath      = "sentinel-cache.db"
	DefaultNamespace      = "sentinel"
)

// Load reads, defaults, and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates raw YAML configuration.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	cfg.applyDefaults()

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Judge.RequestTimeoutSeconds == 0 {
		c.Judge.RequestTimeoutSeconds = int(DefaultRequestTimeout / time.Second)
	}
	if c.Judge.RateLimit == 0 {
		c.Judge.RateLimit = DefaultRateLimit
	}
	if c.Judge.RateBurst == 0 {
		c.Judge.RateBurst = DefaultRateBurst
	}
	if c.Cache.Path == "" {
		c.Cache.Path = DefaultCachePath
	}
	if c.Monitor.PollIntervalSeconds == 0 {
		c.Monitor.PollIntervalSeconds = int(DefaultPollInterval / time.Second)
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
}

func validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("%w: field %s failed %q validation", domain.ErrInvalidConfiguration, first.Namespace(), first.Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfiguration, err)
	}

	for i, b := range cfg.Bounties {
		if err := validateCriteria(b); err != nil {
			return fmt.Errorf("bounty %d: %w", i, err)
		}
	}
	return nil
}

// validateCriteria enforces the cross-field rules struct tags cannot express.
func validateCriteria(b BountyConfig) error {
	c := b.Criteria

	switch c.Mode {
	case domain.SelectionFirstValid, domain.SelectionAIJudged:
	case domain.SelectionCommunityVote:
		return &domain.CriteriaError{BountyID: b.ID, Field: "mode", Err: fmt.Errorf("%w: community vote", domain.ErrUnsupportedMode)}
	default:
		return &domain.CriteriaError{BountyID: b.ID, Field: "mode", Err: fmt.Errorf("unknown selection mode %q", c.Mode)}
	}

	switch c.Proof {
	case domain.ProofTypePhoto, domain.ProofTypeVideo, domain.ProofTypeText, domain.ProofTypeAny, "":
	default:
		return &domain.CriteriaError{BountyID: b.ID, Field: "proof", Err: fmt.Errorf("unknown proof type %q", c.Proof)}
	}

	if loc := c.Rules.Location; loc != nil {
		if loc.Latitude < -90 || loc.Latitude > 90 {
			return &domain.CriteriaError{BountyID: b.ID, Field: "rules.location.latitude", Err: fmt.Errorf("out of range: %f", loc.Latitude)}
		}
		if loc.Longitude < -180 || loc.Longitude > 180 {
			return &domain.CriteriaError{BountyID: b.ID, Field: "rules.location.longitude", Err: fmt.Errorf("out of range: %f", loc.Longitude)}
		}
		if loc.RadiusMeters <= 0 {
			return &domain.CriteriaError{BountyID: b.ID, Field: "rules.location.radius_meters", Err: fmt.Errorf("must be positive: %f", loc.RadiusMeters)}
		}
	}

	if tw := c.Rules.TimeWindow; tw != nil && tw.End < tw.Start {
		return &domain.CriteriaError{BountyID: b.ID, Field: "rules.time_window", Err: fmt.Errorf("end %d before start %d", tw.End, tw.Start)}
	}

	if c.Mode == domain.SelectionAIJudged && c.Deadline == 0 {
		return &domain.CriteriaError{BountyID: b.ID, Field: "deadline", Err: fmt.Errorf("ai_judged bounties require a deadline")}
	}

	return nil
}

// LedgerAPIKey resolves the ledger service API key from the environment.
func (c ChainConfig) LedgerAPIKey() string {
	if c.LedgerAPIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LedgerAPIKeyEnv)
}

// IndexAPIKey resolves the indexed-log API key from the environment.
func (c ChainConfig) IndexAPIKey() string {
	if c.IndexAPIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.IndexAPIKeyEnv)
}

// APIKey resolves the judge provider's API key from the environment.
func (j JudgeConfig) APIKey() string {
	return os.Getenv(j.APIKeyEnv)
}

// RequestTimeout returns the per-call timeout as a duration.
func (j JudgeConfig) RequestTimeout() time.Duration {
	return time.Duration(j.RequestTimeoutSeconds) * time.Second
}

// FlushInterval returns the cache debounce as a duration, 0 meaning default.
func (c CacheConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// PollInterval returns the monitor cadence as a duration.
func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSeconds) * time.Second
}
