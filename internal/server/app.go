// Package server wires configuration, storage, notifications and the
// account services together and runs the HTTP listeners.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmitrijs2005/domainx/internal/logging"
	"github.com/dmitrijs2005/domainx/internal/server/auth"
	"github.com/dmitrijs2005/domainx/internal/server/config"
	"github.com/dmitrijs2005/domainx/internal/server/metrics"
	"github.com/dmitrijs2005/domainx/internal/server/notify"
	"github.com/dmitrijs2005/domainx/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/domainx/internal/server/rest"
	"github.com/dmitrijs2005/domainx/internal/server/services"
	"github.com/dmitrijs2005/domainx/internal/server/throttle"
)

const drainTimeout = 20 * time.Second

type App struct {
	config     *config.Config
	logger     logging.Logger
	rm         repomanager.RepositoryManager
	registry   *prometheus.Registry
	dispatcher *notify.Dispatcher
	services   map[string]*services.AccountService
}

// NewApp opens storage, applies migrations and builds one account service
// per kind. Logs go to logOut.
func NewApp(ctx context.Context, c *config.Config, logOut io.Writer) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(logOut, c.IsProduction())

	rm, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	app := &App{
		config:   c,
		logger:   logger,
		rm:       rm,
		registry: prometheus.NewRegistry(),
		services: make(map[string]*services.AccountService, len(services.Policies)),
	}

	if err := app.build(); err != nil {
		_ = rm.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) build() error {
	c := app.config

	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(app.registry)
	if err != nil {
		return fmt.Errorf("metrics init error: %w", err)
	}

	var sender notify.Sender = notify.NewLogSender(app.logger)
	if c.SMTPHost != "" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     c.SMTPHost,
			Port:     c.SMTPPort,
			User:     c.SMTPUser,
			Password: c.SMTPPassword,
			From:     c.MailFrom,
			FromName: c.MailFromName,
		})
	} else {
		app.logger.Warn(context.Background(), "SMTP_HOST not set, emails are only logged")
	}

	renderer, err := notify.NewRenderer(c.FrontendURL)
	if err != nil {
		return fmt.Errorf("template init error: %w", err)
	}
	app.dispatcher = notify.NewDispatcher(sender, c.MailSendTimeout, app.logger, m)
	notifier := notify.NewEmailNotifier(renderer, app.dispatcher, app.logger)

	hasher := auth.NewPasswordHasher(c.BcryptCost)
	tokens := auth.NewTokenIssuer([]byte(c.SecretKey), nil)
	settings := services.Settings{
		TokenTTL:          c.TokenTTL,
		RememberMeTTL:     c.RememberMeTTL,
		MinPasswordLength: c.MinPasswordLength,
		Throttle:          throttle.Policy{Threshold: c.LockThreshold, Duration: c.LockDuration},
	}

	for _, p := range services.Policies {
		svc, err := services.NewAccountService(p, app.rm, settings, hasher, tokens, notifier, app.logger, services.WithMetrics(m))
		if err != nil {
			return fmt.Errorf("service init error: %w", err)
		}
		app.services[p.Kind] = svc
	}
	return nil
}

// Service returns the account service for kind, or nil.
func (app *App) Service(kind string) *services.AccountService {
	return app.services[kind]
}

func (app *App) Logger() logging.Logger {
	return app.logger
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) newHTTPServer() (*rest.Server, error) {
	list := make([]rest.AccountService, 0, len(services.Policies))
	for _, p := range services.Policies {
		list = append(list, app.services[p.Kind])
	}

	return rest.NewServer(rest.Config{
		Address:        app.config.HTTPAddr,
		MetricsAddress: app.config.MetricsAddr,
		Production:     app.config.IsProduction(),
		BodyLimit:      app.config.BodyLimit,
	}, app.logger, app.registry, app.rm, list...)
}

// Run serves until a signal arrives or ctx is cancelled, then drains the
// email dispatcher and closes storage.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "env", app.config.Env)
	app.initSignalHandler(cancelFunc)

	s, err := app.newHTTPServer()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	var runErr error
	var once sync.Once

	for _, run := range []func(context.Context) error{s.Run, s.RunMetrics} {
		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			if err := run(ctx); err != nil {
				app.logger.Error(ctx, err.Error())
				once.Do(func() { runErr = err })
				cancelFunc()
			}
		}(run)
	}

	wg.Wait()
	app.Close()
	return runErr
}

// Close waits for queued emails and releases storage.
func (app *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := app.dispatcher.Close(ctx); err != nil {
		app.logger.Warn(ctx, "emails still queued at shutdown", "error", err.Error())
	}
	if err := app.rm.Close(); err != nil {
		app.logger.Error(ctx, "error closing storage", "error", err.Error())
	}
	app.logger.Info(ctx, "Stopped")
}
