package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joestump/bio-links/internal/auth"
	"github.com/joestump/bio-links/internal/build"
	"github.com/joestump/bio-links/internal/config"
	"github.com/joestump/bio-links/internal/db"
	"github.com/joestump/bio-links/internal/handler"
	"github.com/joestump/bio-links/internal/jobs"
	"github.com/joestump/bio-links/internal/logging"
	"github.com/joestump/bio-links/internal/metrics"
	"github.com/joestump/bio-links/internal/store"
)

const (
	clickQueueSize  = 256
	shutdownTimeout = 15 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
				return err
			}

			database, err := db.New(cfg.DB.Driver, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			if err := db.Migrate(database, cfg.DB.Driver); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sessionManager := auth.NewSessionManager(database, cfg.DB.Driver, cfg.SessionLifetime, !cfg.InsecureCookies)
			oidcProvider, err := auth.NewProvider(ctx, cfg)
			if err != nil {
				return err
			}

			userStore := store.NewUserStore(database)
			profileStore := store.NewProfileStore(database)
			linkStore := store.NewLinkStore(database, profileStore)
			clickStore := store.NewClickStore(database)
			tokenStore := auth.NewSQLTokenStore(database)
			bearerAuth := auth.NewBearerTokenMiddleware(tokenStore, userStore)

			if n, err := userStore.Count(ctx); err == nil {
				metrics.UsersTotal.Set(float64(n))
			}

			// The writer outlives ctx so clicks from in-flight requests are
			// still persisted during shutdown.
			writerCtx, stopWriter := context.WithCancel(context.Background())
			defer stopWriter()
			clickCh := make(chan store.ClickEvent, clickQueueSize)
			var writers sync.WaitGroup
			writers.Add(1)
			go func() {
				defer writers.Done()
				runClickWriter(writerCtx, clickCh, clickStore)
			}()

			scheduled := []jobs.Job{&jobs.UserCount{Users: userStore}}
			if cfg.Clicks.Retention > 0 {
				scheduled = append(scheduled, &jobs.ClickRetention{Clicks: clickStore, MaxAge: cfg.Clicks.Retention})
			}
			runner := jobs.NewRunner(scheduled...)
			if err := runner.Start(); err != nil {
				return err
			}
			defer runner.Stop()

			router := handler.NewRouter(handler.Deps{
				SessionManager: sessionManager,
				AuthHandlers:   auth.NewHandlers(oidcProvider, sessionManager, userStore, !cfg.InsecureCookies),
				AuthMiddleware: auth.NewMiddleware(sessionManager, userStore),
				Links:          linkStore,
				Profiles:       profileStore,
				Clicks:         clickStore,
				ClickCh:        clickCh,
				Users:          userStore,
				Tokens:         tokenStore,
				BearerAuth:     bearerAuth,
				AllowedOrigins: cfg.CORS.AllowedOrigins,
			})

			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			serveErr := make(chan error, 1)
			go func() {
				logrus.WithFields(logrus.Fields{
					"addr":     cfg.HTTP.Addr,
					"base_url": cfg.BaseURL,
					"version":  build.Version,
				}).Info("listening")
				serveErr <- srv.ListenAndServe()
			}()

			select {
			case err := <-serveErr:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				logrus.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logrus.WithError(err).Warn("http shutdown")
				}
			}

			// No handler sends after Shutdown returns, so the writer can drain.
			stopWriter()
			writers.Wait()
			bearerAuth.Wait()
			return nil
		},
	}
}

// runClickWriter reads click events from the channel and persists them.
// On context cancellation it drains remaining events before returning.
func runClickWriter(ctx context.Context, ch <-chan store.ClickEvent, cs *store.ClickStore) {
	record := func(ctx context.Context, e store.ClickEvent) {
		if err := cs.RecordClick(ctx, e); err != nil {
			metrics.ClicksRecordErrorsTotal.Inc()
			logrus.WithError(err).WithField("link_id", e.LinkID).Warn("click write failed")
			return
		}
		metrics.ClicksRecordedTotal.Inc()
	}

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			record(ctx, e)
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-ch:
					if !ok {
						return
					}
					record(context.Background(), e)
				default:
					return
				}
			}
		}
	}
}
