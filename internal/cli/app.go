package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"golang.org/x/oauth2"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/config"
	"github.com/roach88/area/internal/engine"
	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/metrics"
	"github.com/roach88/area/internal/poller"
	"github.com/roach88/area/internal/provider"
	"github.com/roach88/area/internal/reaction"
	"github.com/roach88/area/internal/store"
	"github.com/roach88/area/internal/tasks"
	"github.com/roach88/area/internal/token"
)

// app holds the components shared by the commands that work on a database.
type app struct {
	cfg     config.Config
	store   *store.Store
	catalog *catalog.Catalog
	metrics *metrics.Metrics
	tokens  *token.Manager
	tasks   *tasks.Service
	clients clients
}

// clients are the provider API clients built from the configuration.
type clients struct {
	google *provider.Google
	github *provider.GitHub
}

func newClients() clients {
	return clients{
		google: provider.NewGoogle("", "", nil),
		github: provider.NewGitHub("", nil),
	}
}

// loadConfig reads the configuration and applies the global flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database.DSN = opts.Database
		if strings.HasPrefix(opts.Database, "postgres://") || strings.HasPrefix(opts.Database, "postgresql://") {
			cfg.Database.Driver = store.DriverPostgres
		}
	}
	return cfg, nil
}

// openApp loads the configuration and opens the store.
func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Default()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to compile vocabulary", err)
	}

	slog.Debug("opening database", "driver", cfg.Database.Driver)
	st, err := store.Connect(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	m := metrics.New()
	tokens := newTokenManager(st, cfg, m)
	return &app{
		cfg:     cfg,
		store:   st,
		catalog: cat,
		metrics: m,
		tokens:  tokens,
		tasks:   tasks.New(st, cat, tokens),
		clients: newClients(),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

func newTokenManager(st token.Store, cfg config.Config, m *metrics.Metrics) *token.Manager {
	opts := []token.Option{
		token.WithMargin(cfg.OAuth.RefreshMargin),
		token.WithMetrics(m),
	}
	if g := cfg.OAuth.Google; g.ClientID != "" {
		opts = append(opts, token.WithProvider(ir.ProviderGoogle, &oauth2.Config{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: g.TokenURL, AuthStyle: oauth2.AuthStyleInParams},
		}))
	}
	return token.NewManager(st, opts...)
}

// newEngine builds the reaction backends the configuration enables and the
// engine dispatching to them.
func (a *app) newEngine(ctx context.Context) (*engine.Engine, error) {
	set, err := a.reactionSet(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure reactions", err)
	}
	reg, err := engine.RegistryFromCatalog(a.catalog, set.Handlers())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to build reaction registry", err)
	}
	return engine.New(a.store, a.catalog, reg, engine.WithMetrics(a.metrics)), nil
}

func (a *app) reactionSet(ctx context.Context) (*reaction.Set, error) {
	cfg := a.cfg
	opts := []reaction.Option{
		reaction.WithComposer(reaction.NewTemplateComposer(cfg.Composer.SenderName, cfg.Composer.Company)),
		reaction.WithTokens(a.tokens),
		reaction.WithCalendar(a.clients.google),
		reaction.WithIssueTracker(a.clients.github),
		reaction.WithPhonePrefix(cfg.Twilio.PhonePrefix),
		reaction.WithUSDCUnits(big.NewInt(cfg.USDC.AmountUnits)),
	}

	if cfg.SMTP.Enabled() {
		opts = append(opts, reaction.WithMailer(provider.NewSMTP(provider.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})))
	}
	if cfg.Twilio.Enabled() {
		opts = append(opts, reaction.WithSMS(provider.NewTwilio("", cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From, nil)))
	}
	if cfg.Reddit.Enabled() {
		opts = append(opts, reaction.WithReddit(provider.NewReddit(provider.RedditConfig{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			Username:     cfg.Reddit.Username,
			Password:     cfg.Reddit.Password,
		}, nil)))
	}
	if cfg.USDC.Enabled() {
		usdc, err := provider.DialUSDC(ctx, cfg.USDC.RPCURL, provider.USDCConfig{
			Contract:   cfg.USDC.Contract,
			PrivateKey: cfg.USDC.PrivateKey,
			ChainID:    cfg.USDC.ChainID,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("usdc payments enabled", "from", usdc.From().Hex())
		opts = append(opts, reaction.WithPayments(usdc))
	}
	return reaction.New(a.catalog, opts...), nil
}

// pollWorkers returns a worker per configured poller service. Services that
// lack the configuration they need are skipped with a warning.
func pollWorkers(cfg config.Config, c clients) ([]poller.Worker, error) {
	var workers []poller.Worker
	for _, service := range cfg.Poller.Services {
		switch service {
		case "github":
			if cfg.Poller.GitHub.HookURL == "" {
				slog.Warn("github poller disabled: no webhook url configured")
				continue
			}
			workers = append(workers, poller.NewGitHubHooks(c.github, cfg.Poller.GitHub.HookURL, cfg.Poller.GitHub.Secret))
		case "google":
			workers = append(workers, poller.NewGmailWatch(c.google))
		default:
			return nil, fmt.Errorf("no poller for service %q", service)
		}
	}
	return workers, nil
}
