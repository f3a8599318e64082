// Package config loads the runtime configuration of the area binaries.
//
// Configuration comes from an optional YAML file overlaid with environment
// variables. Secrets are expected in the environment; every value may be
// given in either place. Unknown YAML keys are rejected.
package config

import "time"

// Defaults applied before the file and the environment are read.
const (
	DefaultDriver        = "sqlite3"
	DefaultDSN           = "area.db"
	DefaultAddr          = ":8080"
	DefaultMaxBodyBytes  = 1 << 20
	DefaultRateLimit     = 50
	DefaultBurst         = 100
	DefaultPollInterval  = 5 * time.Second
	DefaultRefreshMargin = 60 * time.Second
	DefaultGoogleToken   = "https://oauth2.googleapis.com/token"
	DefaultCoreAPI       = "http://localhost:8080/api/v1"
	DefaultPhonePrefix   = "+34"
	DefaultUSDCUnits     = 10_000
)

// Config is the complete runtime configuration.
type Config struct {
	Database Database `yaml:"database"`
	HTTP     HTTP     `yaml:"http"`
	OAuth    OAuth    `yaml:"oauth"`
	SMTP     SMTP     `yaml:"smtp"`
	Twilio   Twilio   `yaml:"twilio"`
	Reddit   Reddit   `yaml:"reddit"`
	USDC     USDC     `yaml:"usdc"`
	Poller   Poller   `yaml:"poller"`
	Composer Composer `yaml:"composer"`
}

// Database selects the store dialect.
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr          string  `yaml:"addr"`
	MaxBodyBytes  int64   `yaml:"max_body_bytes"`
	RateLimit     float64 `yaml:"rate_limit"`
	Burst         int     `yaml:"burst"`
	WebhookSecret string  `yaml:"github_webhook_secret"`
}

// OAuth configures token refresh.
type OAuth struct {
	Google        OAuthClient   `yaml:"google"`
	RefreshMargin time.Duration `yaml:"refresh_margin"`
}

// OAuthClient is the client registration of one provider.
type OAuthClient struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
}

// SMTP configures send_email.
type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled reports whether a relay is configured.
func (s SMTP) Enabled() bool { return s.Host != "" }

// Twilio configures send_sms.
type Twilio struct {
	AccountSID  string `yaml:"account_sid"`
	AuthToken   string `yaml:"auth_token"`
	From        string `yaml:"from"`
	PhonePrefix string `yaml:"phone_prefix"`
}

// Enabled reports whether an account is configured.
func (t Twilio) Enabled() bool { return t.AccountSID != "" }

// Reddit configures the Reddit reactions.
type Reddit struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
}

// Enabled reports whether a script app is configured.
func (r Reddit) Enabled() bool { return r.ClientID != "" }

// USDC configures send_usdc.
type USDC struct {
	RPCURL      string `yaml:"rpc_url"`
	PrivateKey  string `yaml:"private_key"`
	Contract    string `yaml:"contract"`
	ChainID     int64  `yaml:"chain_id"`
	AmountUnits int64  `yaml:"amount_units"`
}

// Enabled reports whether a wallet is configured.
func (u USDC) Enabled() bool { return u.RPCURL != "" }

// Poller configures the service pollers.
type Poller struct {
	Interval time.Duration `yaml:"interval"`
	Services []string      `yaml:"services"`
	CoreAPI  string        `yaml:"core_api"`
	GitHub   GitHubHooks   `yaml:"github"`
}

// GitHubHooks configures the webhook ensurer.
type GitHubHooks struct {
	HookURL string `yaml:"hook_url"`
	Secret  string `yaml:"secret"`
}

// Composer configures message composition.
type Composer struct {
	SenderName string `yaml:"sender_name"`
	Company    string `yaml:"company"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Database: Database{Driver: DefaultDriver, DSN: DefaultDSN},
		HTTP: HTTP{
			Addr:         DefaultAddr,
			MaxBodyBytes: DefaultMaxBodyBytes,
			RateLimit:    DefaultRateLimit,
			Burst:        DefaultBurst,
		},
		OAuth: OAuth{
			Google:        OAuthClient{TokenURL: DefaultGoogleToken},
			RefreshMargin: DefaultRefreshMargin,
		},
		SMTP:   SMTP{Port: 587},
		Twilio: Twilio{PhonePrefix: DefaultPhonePrefix},
		USDC:   USDC{AmountUnits: DefaultUSDCUnits},
		Poller: Poller{
			Interval: DefaultPollInterval,
			Services: []string{"github", "google"},
			CoreAPI:  DefaultCoreAPI,
		},
		Composer: Composer{SenderName: "Area", Company: "Area"},
	}
}
