package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads the YAML file at path, when path is not empty, and applies
// environment overrides from the process environment.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment.
func LoadWith(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeStrict(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decodeStrict unmarshals YAML into out, rejecting unknown keys. An empty
// document leaves out untouched.
func decodeStrict(raw []byte, out *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// envString maps environment variables onto string fields.
func envString(cfg *Config) map[string]*string {
	return map[string]*string{
		"AREA_DATABASE_DRIVER":  &cfg.Database.Driver,
		"AREA_DATABASE_URL":     &cfg.Database.DSN,
		"AREA_HTTP_ADDR":        &cfg.HTTP.Addr,
		"AREA_CORE_API":         &cfg.Poller.CoreAPI,
		"GOOGLE_CLIENT_ID":      &cfg.OAuth.Google.ClientID,
		"GOOGLE_CLIENT_SECRET":  &cfg.OAuth.Google.ClientSecret,
		"GOOGLE_TOKEN_URL":      &cfg.OAuth.Google.TokenURL,
		"SMTP_HOST":             &cfg.SMTP.Host,
		"SMTP_USERNAME":         &cfg.SMTP.Username,
		"SMTP_PASSWORD":         &cfg.SMTP.Password,
		"SMTP_FROM":             &cfg.SMTP.From,
		"TWILIO_ACCOUNT_SID":    &cfg.Twilio.AccountSID,
		"TWILIO_AUTH_TOKEN":     &cfg.Twilio.AuthToken,
		"TWILIO_PHONE_NUMBER":   &cfg.Twilio.From,
		"REDDIT_CLIENT_ID":      &cfg.Reddit.ClientID,
		"REDDIT_CLIENT_SECRET":  &cfg.Reddit.ClientSecret,
		"REDDIT_USERNAME":       &cfg.Reddit.Username,
		"REDDIT_PASSWORD":       &cfg.Reddit.Password,
		"GITHUB_WEBHOOK_URL":    &cfg.Poller.GitHub.HookURL,
		"GITHUB_WEBHOOK_SECRET": &cfg.Poller.GitHub.Secret,
		"USDC_RPC_URL":          &cfg.USDC.RPCURL,
		"USDC_PRIVATE_KEY":      &cfg.USDC.PrivateKey,
		"USDC_CONTRACT":         &cfg.USDC.Contract,
	}
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	for key, field := range envString(cfg) {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}

	// A postgres URL selects the postgres dialect unless a driver is forced.
	if _, forced := lookup("AREA_DATABASE_DRIVER"); !forced && isPostgresURL(cfg.Database.DSN) {
		cfg.Database.Driver = "postgres"
	}

	// The listener and the ensurer share one secret unless told otherwise.
	if cfg.HTTP.WebhookSecret == "" {
		cfg.HTTP.WebhookSecret = cfg.Poller.GitHub.Secret
	}

	var errs []error
	if v, ok := lookup("SMTP_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SMTP_PORT: %w", err))
		}
		cfg.SMTP.Port = port
	}
	if v, ok := lookup("AREA_POLL_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("AREA_POLL_INTERVAL: %w", err))
		}
		cfg.Poller.Interval = d
	}
	if v, ok := lookup("AREA_POLL_SERVICES"); ok && v != "" {
		cfg.Poller.Services = splitList(v)
	}
	return errors.Join(errs...)
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// knownServices are the services a poller exists for.
var knownServices = []string{"github", "google"}

// Validate reports every problem of the configuration in one error.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Database.Driver {
	case "sqlite3", "sqlite", "postgres", "postgresql":
	default:
		add("database.driver: unsupported driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		add("database.dsn: is required")
	}

	if c.HTTP.Addr == "" {
		add("http.addr: is required")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		add("http.max_body_bytes: must be positive")
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.Burst <= 0 {
		add("http.burst: must be positive when rate_limit is set")
	}

	if c.OAuth.RefreshMargin < 0 {
		add("oauth.refresh_margin: must not be negative")
	}
	if (c.OAuth.Google.ClientID == "") != (c.OAuth.Google.ClientSecret == "") {
		add("oauth.google: client_id and client_secret must be set together")
	}

	if c.SMTP.Enabled() && (c.SMTP.Port <= 0 || c.SMTP.Port > 65535) {
		add("smtp.port: %d is out of range", c.SMTP.Port)
	}
	if c.SMTP.Enabled() && c.SMTP.From == "" {
		add("smtp.from: is required with smtp.host")
	}
	if c.Twilio.Enabled() && (c.Twilio.AuthToken == "" || c.Twilio.From == "") {
		add("twilio: auth_token and from are required with account_sid")
	}
	if c.Reddit.Enabled() && (c.Reddit.Username == "" || c.Reddit.Password == "") {
		add("reddit: username and password are required with client_id")
	}
	if c.USDC.Enabled() && (c.USDC.PrivateKey == "" || c.USDC.Contract == "") {
		add("usdc: private_key and contract are required with rpc_url")
	}
	if c.USDC.AmountUnits <= 0 {
		add("usdc.amount_units: must be positive")
	}

	if c.Poller.Interval <= 0 {
		add("poller.interval: must be positive")
	}
	for _, s := range c.Poller.Services {
		if !slices.Contains(knownServices, s) {
			add("poller.services: unknown service %q", s)
		}
	}
	if u, err := url.Parse(c.Poller.CoreAPI); err != nil || u.Scheme == "" || u.Host == "" {
		add("poller.core_api: %q is not an absolute URL", c.Poller.CoreAPI)
	}
	if c.Poller.GitHub.HookURL != "" && c.Poller.GitHub.Secret == "" {
		add("poller.github.secret: is required with hook_url")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration (%d problems):\n- %s", len(problems), strings.Join(problems, "\n- "))
}
