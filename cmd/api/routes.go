package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"crm-platform/internal/audit"
	"crm-platform/internal/auth"
	"crm-platform/internal/clients"
	"crm-platform/internal/config"
	"crm-platform/internal/dashboard"
	"crm-platform/internal/email"
	"crm-platform/internal/extraction"
	"crm-platform/internal/guard"
	"crm-platform/internal/httpapi"
	"crm-platform/internal/identity"
	"crm-platform/internal/invoices"
	"crm-platform/internal/projects"
	"crm-platform/internal/rbac"
	"crm-platform/internal/session"
	"crm-platform/internal/store"
	"crm-platform/internal/users"
	"crm-platform/internal/workspace"

	"github.com/redis/go-redis/v9"
)

// app is the wired dependency graph of one server process.
type app struct {
	handlers *httpapi.Handlers
	backend  string
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// repos holds one repository per domain. A nil field means "not configured".
type repos struct {
	users      users.Repository
	workspaces workspace.Repository
	clients    clients.Repository
	projects   projects.Repository
	invoices   invoices.Repository
	extraction extraction.Repository
	activity   audit.Repository
	creds      identity.CredentialStore
}

func postgresRepos(db *sql.DB) repos {
	return repos{
		users:      users.NewPostgresRepo(db),
		workspaces: workspace.NewPostgresRepo(db),
		clients:    clients.NewPostgresRepo(db),
		projects:   projects.NewPostgresRepo(db),
		invoices:   invoices.NewPostgresRepo(db),
		extraction: extraction.NewPostgresRepo(db),
		activity:   audit.NewPostgresRepo(db),
		creds:      identity.NewPostgresCredentials(db),
	}
}

func memoryRepos() repos {
	return repos{
		users:      users.NewMemoryRepo(),
		workspaces: workspace.NewMemoryRepo(),
		clients:    clients.NewMemoryRepo(),
		projects:   projects.NewMemoryRepo(),
		invoices:   invoices.NewMemoryRepo(),
		extraction: extraction.NewMemoryRepo(),
		activity:   audit.NewMemoryRepo(),
		creds:      identity.NewMemoryCredentials(),
	}
}

// buildApp wires storage, identity and services into the HTTP handlers.
// Without a configured backend every service answers "not configured" unless memory is set.
func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger, memory bool) (*app, error) {
	a := &app{backend: "none"}

	var rp repos
	switch {
	case cfg.Backend.Configured():
		db, err := store.OpenPostgres(ctx, cfg.Backend.URL, store.PoolConfig{})
		if err != nil {
			return nil, fmt.Errorf("postgres init failed: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		rp = postgresRepos(db)
		a.backend = "postgres"
	case memory:
		rp = memoryRepos()
		a.backend = "memory"
	default:
		log.Warn("backend not configured; data endpoints will answer 503")
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		var err error
		rdb, err = store.OpenRedis(ctx, store.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis init failed: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
	}

	policy, err := rbac.NewPolicy(rbac.Mode(cfg.Permission.Policy), cfg.Permission.MemberAllowList, rbac.DefaultCatalog())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("permission policy: %w", err)
	}

	activity := audit.NewService(rp.activity)
	workspaces := workspace.NewService(rp.workspaces, activity)
	userSvc := users.NewService(rp.users, users.Deps{Policy: policy, Memberships: workspaces, Activity: activity})

	provider, err := newProvider(cfg, rp.creds, rdb, userSvc, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	if provider != nil {
		userSvc.SetRegistrar(provider)
		userSvc.SetAccounts(provider)
	}

	clientSvc := clients.NewService(rp.clients, activity)
	projectSvc := projects.NewService(rp.projects, clientSvc, workspaces, activity)
	invoiceSvc := invoices.NewService(rp.invoices, clientSvc, activity)

	var extractor extraction.Extractor = extraction.NewHeuristicExtractor(nil)
	if cfg.AI.OpenAIKey != "" {
		extractor = extraction.Chain{
			Primary:  extraction.NewOpenAIExtractor(cfg.AI.OpenAIKey, cfg.AI.OpenAIModel),
			Fallback: extractor,
		}
	}
	extractionSvc := extraction.NewService(rp.extraction, extractor, clientSvc, activity)
	if rdb != nil {
		extractionSvc.WithSlots(store.NewRedisSlots(rdb, "crm:extraction:slots:", 2, 2*time.Minute))
	}

	dispatcher := email.NewDispatcher(email.NewSender(cfg.Email, log), email.DispatcherOptions{
		Config:   cfg.Email,
		AppName:  "CRM",
		BaseURL:  cfg.App.BaseURL,
		Activity: activity,
	})

	var idp identity.Provider
	if provider != nil {
		idp = provider
	}
	a.handlers = &httpapi.Handlers{
		Sessions: session.NewResolver(session.Options{
			Provider: idp,
			Profiles: userSvc,
			Policy:   policy,
			Activity: activity,
			Timeout:  cfg.Session.Timeout,
		}),
		Provider:   idp,
		Policy:     policy,
		Guard:      guard.New(policy),
		Users:      userSvc,
		Workspaces: workspaces,
		Clients:    clientSvc,
		Projects:   projectSvc,
		Invoices:   invoiceSvc,
		Extraction: extractionSvc,
		Activity:   activity,
		Dashboard: dashboard.NewService(dashboard.Sources{
			Users:    userSvc,
			Clients:  clientSvc,
			Projects: projectSvc,
			Invoices: invoiceSvc,
			Activity: activity,
		}),
		Email:         dispatcher,
		SecureCookies: cfg.IsProduction(),
		AccessTTL:     cfg.Auth.AccessTokenTTL,
	}
	return a, nil
}

// newProvider builds the local identity provider. It returns nil when there is no
// credential store or signing key, which the session layer reports as "not configured".
func newProvider(cfg config.Config, creds identity.CredentialStore, rdb *redis.Client, profiles *users.Service, log *slog.Logger) (*identity.Local, error) {
	if creds == nil {
		return nil, nil
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("no signing key; sign-in disabled")
		return nil, nil
	}
	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("auth init failed: %w", err)
	}

	limits := identity.ThrottleLimits{
		MaxAttempts:  cfg.Auth.MaxLoginAttempts,
		Window:       cfg.Auth.LoginLockDuration,
		LockDuration: cfg.Auth.LoginLockDuration,
	}
	opts := identity.LocalOptions{
		Credentials:  creds,
		Tokens:       tokens,
		LockDuration: cfg.Auth.LoginLockDuration,
		OnLockout: func(ctx context.Context, userID string, until time.Time) {
			if _, err := profiles.LockUntil(ctx, userID, until); err != nil {
				log.Warn("lockout not persisted", "user_id", userID, "err", err)
			}
		},
	}
	if rdb != nil {
		opts.Sessions = identity.NewRedisSessions(rdb)
		opts.Throttle = identity.NewRedisThrottle(rdb, limits)
	} else {
		opts.Throttle = identity.NewMemoryThrottle(limits)
	}
	return identity.NewLocal(opts), nil
}
