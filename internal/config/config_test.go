package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `zendesk:
  base_url: "https://support.example.com"
  customer_tag: "cloud_customer"
  team_id_field: "registry_team_id"
  page_size: 50
registry:
  base_url: "https://registry.example.com/api/v1"
  organization: "acme"
  role: "write"
retry:
  attempts: 5
  backoff: "1s"
http:
  timeout: "10s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Zendesk.BaseURL != "https://support.example.com" {
		t.Errorf("Zendesk.BaseURL = %q", cfg.Zendesk.BaseURL)
	}
	if cfg.Zendesk.CustomerTag != "cloud_customer" {
		t.Errorf("Zendesk.CustomerTag = %q", cfg.Zendesk.CustomerTag)
	}
	if cfg.Zendesk.TeamIDField != "registry_team_id" {
		t.Errorf("Zendesk.TeamIDField = %q", cfg.Zendesk.TeamIDField)
	}
	if cfg.Zendesk.PageSize != 50 {
		t.Errorf("Zendesk.PageSize = %d", cfg.Zendesk.PageSize)
	}
	if cfg.Registry.Organization != "acme" {
		t.Errorf("Registry.Organization = %q", cfg.Registry.Organization)
	}
	if cfg.Registry.Role != "write" {
		t.Errorf("Registry.Role = %q", cfg.Registry.Role)
	}
	if cfg.Retry.Attempts != 5 {
		t.Errorf("Retry.Attempts = %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff.Std() != time.Second {
		t.Errorf("Retry.Backoff = %s", cfg.Retry.Backoff.Std())
	}
	if cfg.HTTP.Timeout.Std() != 10*time.Second {
		t.Errorf("HTTP.Timeout = %s", cfg.HTTP.Timeout.Std())
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `registry:
  organization: "acme"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Zendesk.CustomerTag != "current_customer" {
		t.Errorf("CustomerTag default = %q", cfg.Zendesk.CustomerTag)
	}
	if cfg.Zendesk.TeamIDField != "quay_io_team_id" {
		t.Errorf("TeamIDField default = %q", cfg.Zendesk.TeamIDField)
	}
	if cfg.Zendesk.PageSize != 100 {
		t.Errorf("PageSize default = %d", cfg.Zendesk.PageSize)
	}
	if cfg.Registry.BaseURL != "https://quay.io/api/v1" {
		t.Errorf("Registry.BaseURL default = %q", cfg.Registry.BaseURL)
	}
	if cfg.Registry.Role != "read" {
		t.Errorf("Registry.Role default = %q", cfg.Registry.Role)
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("Retry.Attempts default = %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff.Std() != 2*time.Second {
		t.Errorf("Retry.Backoff default = %s", cfg.Retry.Backoff.Std())
	}
	if cfg.HTTP.Timeout.Std() != 30*time.Second {
		t.Errorf("HTTP.Timeout default = %s", cfg.HTTP.Timeout.Std())
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Registry.Organization != "dremio" {
		t.Errorf("Registry.Organization default = %q", cfg.Registry.Organization)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "zendesk: [not: valid"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `retry:
  backoff: "not-a-duration"
`))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_REGISTRY_ORG", "env-org")
	cfg, err := Load(writeConfig(t, `registry:
  organization: "${TEST_REGISTRY_ORG}"
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Registry.Organization != "env-org" {
		t.Errorf("Registry.Organization = %q, want env-org", cfg.Registry.Organization)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "page size too large",
			mutate:  func(c *Config) { c.Zendesk.PageSize = 500 },
			wantErr: "page_size",
		},
		{
			name:    "page size negative",
			mutate:  func(c *Config) { c.Zendesk.PageSize = -1 },
			wantErr: "page_size",
		},
		{
			name:    "bad zendesk base url",
			mutate:  func(c *Config) { c.Zendesk.BaseURL = "ftp://example.com" },
			wantErr: "zendesk.base_url",
		},
		{
			name:    "missing registry base url",
			mutate:  func(c *Config) { c.Registry.BaseURL = "" },
			wantErr: "registry.base_url",
		},
		{
			name:    "bad registry base url",
			mutate:  func(c *Config) { c.Registry.BaseURL = "quay.io/api/v1" },
			wantErr: "registry.base_url",
		},
		{
			name:    "missing organization",
			mutate:  func(c *Config) { c.Registry.Organization = "" },
			wantErr: "registry.organization",
		},
		{
			name:    "missing role",
			mutate:  func(c *Config) { c.Registry.Role = "" },
			wantErr: "registry.role",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Retry.Attempts = 0 },
			wantErr: "retry.attempts",
		},
		{
			name:    "negative backoff",
			mutate:  func(c *Config) { c.Retry.Backoff = Duration(-time.Second) },
			wantErr: "retry.backoff",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.HTTP.Timeout = 0 },
			wantErr: "http.timeout",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv(EnvZendeskEmail, "ops@example.com")
	t.Setenv(EnvZendeskToken, "ztok")
	t.Setenv(EnvZendeskSubdomain, "example")
	t.Setenv(EnvQuayToken, "qtok")

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.ZendeskEmail != "ops@example.com" {
		t.Errorf("ZendeskEmail = %q", creds.ZendeskEmail)
	}
	if creds.ZendeskSubdomain != "example" {
		t.Errorf("ZendeskSubdomain = %q", creds.ZendeskSubdomain)
	}
	if creds.QuayToken != "qtok" {
		t.Errorf("QuayToken = %q", creds.QuayToken)
	}
}

func TestLoadCredentialsReportsAllMissing(t *testing.T) {
	t.Setenv(EnvZendeskEmail, "ops@example.com")
	t.Setenv(EnvZendeskToken, "")
	t.Setenv(EnvZendeskSubdomain, "")
	t.Setenv(EnvQuayToken, "")

	_, err := LoadCredentials()
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	for _, name := range []string{EnvZendeskToken, EnvZendeskSubdomain, EnvQuayToken} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
	if strings.Contains(err.Error(), EnvZendeskEmail) {
		t.Errorf("error %q should not mention %s", err, EnvZendeskEmail)
	}
}

func TestZendeskBaseURL(t *testing.T) {
	cfg := Default()
	if got := cfg.ZendeskBaseURL("acme"); got != "https://acme.zendesk.com" {
		t.Errorf("ZendeskBaseURL = %q", got)
	}

	cfg.Zendesk.BaseURL = "https://support.example.com/"
	if got := cfg.ZendeskBaseURL("acme"); got != "https://support.example.com" {
		t.Errorf("ZendeskBaseURL override = %q", got)
	}
}
