// Command xpengine runs the progression engine HTTP service and its
// maintenance tasks.
//
// @title                       Progression Engine API
// @version                     1.0
// @description                 XP awards, levels, daily check-ins, voice activity and boost events for a community platform.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-progression-engine/docs"
	"github.com/tbourn/go-progression-engine/internal/config"
	httpapi "github.com/tbourn/go-progression-engine/internal/http"
	"github.com/tbourn/go-progression-engine/internal/http/middleware"
	"github.com/tbourn/go-progression-engine/internal/observability"
	"github.com/tbourn/go-progression-engine/internal/repo"
	"github.com/tbourn/go-progression-engine/internal/services"
	"github.com/tbourn/go-progression-engine/internal/sysutil"
)

var version = "dev"

var cfg config.Config

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var policy string
	root := &cobra.Command{
		Use:           "xpengine",
		Short:         "Progression engine: XP, levels, streaks and voice activity",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if policy != "" {
				if err := os.Setenv("POLICY_FILE", policy); err != nil {
					return err
				}
			}
			var err error
			if cfg, err = config.Load(); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&policy, "policy", "p", "", "engine policy file (yaml, toml or json); overrides POLICY_FILE")

	root.AddCommand(serveCmd(), migrateCmd(), recomputeCmd(), adminTokenCmd(), purgeCmd())
	return root
}

// openDB connects, instruments and migrates the configured database.
func openDB(migrate bool) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	if cfg.OTEL.Enabled {
		if err := observability.InstrumentDB(db); err != nil {
			return nil, fmt.Errorf("instrument db: %w", err)
		}
	}
	if migrate {
		if err := repo.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}

func serveCmd() *cobra.Command {
	migrate := !sysutil.IsTruthy(os.Getenv("SKIP_MIGRATE"))
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the voice tracker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", migrate, "apply schema migrations on start (SKIP_MIGRATE=1 disables)")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	gin.SetMode(cfg.GinMode)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	db, err := openDB(migrate)
	if err != nil {
		return err
	}

	svc := httpapi.NewServices(db, cfg, services.SystemClock{})
	svc.Tracker.Start(ctx)
	go purgeLoop(ctx, svc.Idempotency, time.Hour)

	r := gin.New()
	httpapi.RegisterRoutes(r, svc, cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("db", cfg.DBDriver).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}
	log.Info().Msg("shutting down")

	httpCtx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}

	// Flush open voice sessions after the API stops accepting updates.
	voiceCtx, cancelVoice := context.WithTimeout(context.Background(), cfg.Engine.Voice.ShutdownTimeout)
	defer cancelVoice()
	if err := svc.Tracker.Shutdown(voiceCtx); err != nil {
		log.Warn().Err(err).Msg("voice tracker shutdown")
	}

	otelCtx, cancelOTel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelOTel()
	if err := shutdownOTel(otelCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}

// purgeLoop drops expired idempotency records every interval.
func purgeLoop(ctx context.Context, store *services.IdempotencyStore, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := store.Purge(ctx, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency purge")
				continue
			}
			if n > 0 {
				log.Debug().Int64("purged", n).Msg("idempotency purge")
			}
		}
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(*cobra.Command, []string) error {
			if _, err := openDB(true); err != nil {
				return err
			}
			log.Info().Str("db", cfg.DBDriver).Msg("schema up to date")
			return nil
		},
	}
}

func recomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-levels",
		Short: "Re-derive stored levels after a level curve change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(true)
			if err != nil {
				return err
			}
			eng := services.NewEngine(db, cfg.Engine, services.SystemClock{}, nil)
			n, err := eng.RecomputeLevels(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Int("changed", n).Float64("base_xp", cfg.Engine.Curve.BaseXP).Float64("exponent", cfg.Engine.Curve.Exponent).Msg("levels recomputed")
			return nil
		},
	}
}

func adminTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "admin-token <subject>",
		Short: "Sign an admin bearer token with ADMIN_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := middleware.IssueAdminToken([]byte(cfg.Security.AdminJWTSecret), args[0], ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-idempotency",
		Short: "Delete expired idempotency records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(false)
			if err != nil {
				return err
			}
			store := &services.IdempotencyStore{DB: db, TTL: cfg.IdempotencyTTL}
			n, err := store.Purge(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			log.Info().Int64("purged", n).Msg("idempotency records purged")
			return nil
		},
	}
}
