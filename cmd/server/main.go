package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"golang.org/x/sync/errgroup"

	"github.com/anonto42/shelfstream/internal/hub"
	"github.com/anonto42/shelfstream/internal/metrics"
	"github.com/anonto42/shelfstream/internal/middleware"
	"github.com/anonto42/shelfstream/internal/repositories"
	"github.com/anonto42/shelfstream/internal/router"
	"github.com/anonto42/shelfstream/pkg/config"
	"github.com/anonto42/shelfstream/pkg/firebase"
	"github.com/anonto42/shelfstream/validators"
)

func main() {
	if err := run(); err != nil {
		jww.FATAL.Printf("%+v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	config.SetupLogging(cfg.LogLevel)

	db, err := config.InitDB(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to initialize databases")
	}
	defer db.CloseDB()

	if err := router.Migrate(db.Postgres); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	h := hub.New(hub.Config{
		RPS:          cfg.SocketRPS,
		Burst:        cfg.SocketBurst,
		Participants: repositories.NewPostgresConversationRepository(db.Postgres),
	}, m)

	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e, cfg)
	router.SetupRoutes(e, router.NewDeps(db.Postgres, db.MongoDatabase(), verifier, h, cfg.AllowedOrigins))

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		jww.INFO.Printf("Listening on :%s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "api server failed")
		}
		return nil
	})
	g.Go(func() error {
		jww.INFO.Printf("Serving metrics on :%s", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics server failed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		jww.INFO.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		h.Close()
		if err := e.Shutdown(shutdownCtx); err != nil {
			jww.ERROR.Printf("api shutdown: %v", err)
		}
		return metricsServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newVerifier(ctx context.Context, cfg *config.Config) (middleware.Verifier, error) {
	if cfg.AuthMode != config.AuthFirebase {
		return middleware.NewJWTVerifier(cfg.JWTSecret), nil
	}
	app, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize Firebase")
	}
	return middleware.NewFirebaseVerifier(app.AuthClient), nil
}
