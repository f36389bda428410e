package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables holding API credentials. All four are required.
const (
	EnvZendeskEmail     = "ZENDESK_EMAIL"
	EnvZendeskToken     = "ZENDESK_TOKEN"
	EnvZendeskSubdomain = "ZENDESK_SUBDOMAIN"
	EnvQuayToken        = "QUAY_IO_TOKEN"
)

// Config represents the complete permsync configuration
type Config struct {
	Zendesk  ZendeskConfig  `yaml:"zendesk"`
	Registry RegistryConfig `yaml:"registry"`
	Retry    RetryConfig    `yaml:"retry"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// ZendeskConfig configures the organization directory lookup
type ZendeskConfig struct {
	BaseURL     string `yaml:"base_url"` // optional, derived from subdomain when empty
	CustomerTag string `yaml:"customer_tag"`
	TeamIDField string `yaml:"team_id_field"`
	PageSize    int    `yaml:"page_size"`
}

// RegistryConfig configures the Quay.io permission target
type RegistryConfig struct {
	BaseURL      string `yaml:"base_url"`
	Organization string `yaml:"organization"`
	Role         string `yaml:"role"`
}

// RetryConfig bounds retries of transient API failures
type RetryConfig struct {
	Attempts int      `yaml:"attempts"`
	Backoff  Duration `yaml:"backoff"`
}

// HTTPConfig configures the underlying HTTP client
type HTTPConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// Duration wraps time.Duration so config values can be written as "30s", "2m".
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Credentials holds the API credentials loaded from the environment
type Credentials struct {
	ZendeskEmail     string
	ZendeskToken     string
	ZendeskSubdomain string
	QuayToken        string
}

// Default returns a configuration with every field set to its default value
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadCredentials reads API credentials from the environment. Every missing
// variable is reported in a single error so operators can fix them all at once.
func LoadCredentials() (*Credentials, error) {
	creds := &Credentials{
		ZendeskEmail:     os.Getenv(EnvZendeskEmail),
		ZendeskToken:     os.Getenv(EnvZendeskToken),
		ZendeskSubdomain: os.Getenv(EnvZendeskSubdomain),
		QuayToken:        os.Getenv(EnvQuayToken),
	}

	var missing []string
	if creds.ZendeskEmail == "" {
		missing = append(missing, EnvZendeskEmail)
	}
	if creds.ZendeskToken == "" {
		missing = append(missing, EnvZendeskToken)
	}
	if creds.ZendeskSubdomain == "" {
		missing = append(missing, EnvZendeskSubdomain)
	}
	if creds.QuayToken == "" {
		missing = append(missing, EnvQuayToken)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return creds, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Zendesk.BaseURL = os.ExpandEnv(c.Zendesk.BaseURL)
	c.Zendesk.CustomerTag = os.ExpandEnv(c.Zendesk.CustomerTag)
	c.Zendesk.TeamIDField = os.ExpandEnv(c.Zendesk.TeamIDField)
	c.Registry.BaseURL = os.ExpandEnv(c.Registry.BaseURL)
	c.Registry.Organization = os.ExpandEnv(c.Registry.Organization)
	c.Registry.Role = os.ExpandEnv(c.Registry.Role)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Zendesk.CustomerTag == "" {
		c.Zendesk.CustomerTag = "current_customer"
	}
	if c.Zendesk.TeamIDField == "" {
		c.Zendesk.TeamIDField = "quay_io_team_id"
	}
	if c.Zendesk.PageSize == 0 {
		c.Zendesk.PageSize = 100
	}
	if c.Registry.BaseURL == "" {
		c.Registry.BaseURL = "https://quay.io/api/v1"
	}
	if c.Registry.Organization == "" {
		c.Registry.Organization = "dremio"
	}
	if c.Registry.Role == "" {
		c.Registry.Role = "read"
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.Backoff == 0 {
		c.Retry.Backoff = Duration(2 * time.Second)
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = Duration(30 * time.Second)
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Zendesk.CustomerTag == "" {
		return fmt.Errorf("zendesk.customer_tag is required")
	}
	if c.Zendesk.TeamIDField == "" {
		return fmt.Errorf("zendesk.team_id_field is required")
	}
	if c.Zendesk.PageSize < 1 || c.Zendesk.PageSize > 100 {
		return fmt.Errorf("zendesk.page_size must be between 1 and 100: %d", c.Zendesk.PageSize)
	}
	if c.Zendesk.BaseURL != "" && !strings.HasPrefix(c.Zendesk.BaseURL, "https://") && !strings.HasPrefix(c.Zendesk.BaseURL, "http://") {
		return fmt.Errorf("zendesk.base_url must be an http(s) URL: %s", c.Zendesk.BaseURL)
	}

	if c.Registry.BaseURL == "" {
		return fmt.Errorf("registry.base_url is required")
	}
	if !strings.HasPrefix(c.Registry.BaseURL, "https://") && !strings.HasPrefix(c.Registry.BaseURL, "http://") {
		return fmt.Errorf("registry.base_url must be an http(s) URL: %s", c.Registry.BaseURL)
	}
	if c.Registry.Organization == "" {
		return fmt.Errorf("registry.organization is required")
	}
	if c.Registry.Role == "" {
		return fmt.Errorf("registry.role is required")
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1: %d", c.Retry.Attempts)
	}
	if c.Retry.Backoff < 0 {
		return fmt.Errorf("retry.backoff must not be negative: %s", c.Retry.Backoff.Std())
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be positive: %s", c.HTTP.Timeout.Std())
	}

	return nil
}

// ZendeskBaseURL returns the configured base URL, or the standard URL for the
// given subdomain when no override is configured.
func (c *Config) ZendeskBaseURL(subdomain string) string {
	if c.Zendesk.BaseURL != "" {
		return strings.TrimRight(c.Zendesk.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s.zendesk.com", subdomain)
}
