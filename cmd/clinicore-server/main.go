package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicore/clinicore/internal/config"
	"github.com/clinicore/clinicore/internal/domain/analytics"
	"github.com/clinicore/clinicore/internal/domain/appointment"
	"github.com/clinicore/clinicore/internal/domain/billing"
	"github.com/clinicore/clinicore/internal/domain/clinic"
	"github.com/clinicore/clinicore/internal/domain/clinical"
	"github.com/clinicore/clinicore/internal/domain/icd10"
	"github.com/clinicore/clinicore/internal/domain/patient"
	"github.com/clinicore/clinicore/internal/domain/user"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/cache"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/logging"
	"github.com/clinicore/clinicore/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicore-server",
		Short: "CliniCore clinic management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(icd10Cmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			_, pool, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func icd10Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "icd10",
		Short: "Manage the ICD-10 (CID-10) code tables",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the ICD-10 tables with a DATASUS CID10CSV.zip archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("zip")

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}

			ctx := context.Background()
			cfg, pool, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			ctx = newLogger(cfg).WithContext(ctx)

			svc := icd10.NewService(icd10.NewRepo(pool), txFunc(pool))
			res, err := svc.ImportArchive(ctx, f, info.Size())
			if err != nil {
				return fmt.Errorf("icd-10 import failed: %w", err)
			}
			fmt.Printf("Imported %d chapters, %d groups, %d categories, %d subcategories (%d search entries).\n",
				res.Chapters, res.Groups, res.Categories, res.Subcategories, res.SearchEntries)
			return nil
		},
	}
	importCmd.Flags().String("zip", "CID10CSV.zip", "Path to the DATASUS CID-10 archive")
	cmd.AddCommand(importCmd)

	return cmd
}

// bootstrap loads configuration and opens the database pool.
func bootstrap(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Options{
		Env:        cfg.Env,
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
}

// txFunc adapts db.WithTx to the TxFunc type of each domain service.
func txFunc(pool *pgxpool.Pool) func(context.Context, func(context.Context) error) error {
	return func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	zerolog.DefaultContextLogger = &logger

	signingKey, generated, err := resolveSigningKey(cfg.JWTSigningKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve signing key")
	}
	if generated {
		logger.Warn().Msg("JWT_SIGNING_KEY not set; using a random key, tokens will not survive a restart")
	}
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: signingKey,
		TTL:        cfg.JWTTTL,
		Skipper:    auth.AuthSkipper,
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Analytics cache
	checks := []db.Check{db.PoolCheck(pool)}
	var store cache.Store
	if cfg.UsesRedis() {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		redisStore := cache.NewRedisStore(client, "clinicore:analytics:")
		checks = append(checks, db.Check{Name: "redis", Ping: redisStore.Ping})
		store = redisStore
		logger.Info().Msg("analytics cache backed by redis")
	} else {
		store = cache.NewMemoryStore(cfg.AnalyticsCacheCap, cfg.AnalyticsCacheTTL)
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	ipExtractor, err := middleware.IPExtractor(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	e.IPExtractor = ipExtractor

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Metrics())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtCfg, cfg.DevClinicID))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	// Clinic scope
	e.Use(db.ClinicMiddleware())

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, checks...))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiV1 := e.Group("/api/v1")

	// Users and login
	userSvc := user.NewService(user.NewRepo(pool), jwtCfg)
	user.NewHandler(userSvc).RegisterRoutes(apiV1, middleware.RateLimit(middleware.LoginRateLimitConfig()))

	// Clinics
	clinicSvc := clinic.NewService(clinic.NewRepo(pool))
	clinic.NewHandler(clinicSvc).RegisterRoutes(apiV1)

	// Patients
	patientSvc := patient.NewService(patient.NewRepo(pool))
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// ICD-10
	icd10Svc := icd10.NewService(icd10.NewRepo(pool), txFunc(pool))
	icd10.NewHandler(icd10Svc).RegisterRoutes(apiV1)

	// Scheduling, clinical records and billing
	appointmentSvc := appointment.NewService(appointment.NewRepo(pool), txFunc(pool))
	appointment.NewHandler(appointmentSvc).RegisterRoutes(apiV1)

	clinicalSvc := clinical.NewService(clinical.NewRepo(pool), icd10Svc)
	clinical.NewHandler(clinicalSvc).RegisterRoutes(apiV1)

	billingSvc := billing.NewService(billing.NewRepo(pool), txFunc(pool))
	billing.NewHandler(billingSvc).RegisterRoutes(apiV1)

	// Analytics
	analyticsSvc := analytics.NewService(analytics.NewRepo(pool), store, cfg.AnalyticsCacheTTL)
	analyticsSvc.SetDefaultClinicName(cfg.DefaultClinicName)
	analytics.NewHandler(analyticsSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// resolveSigningKey returns the configured HS256 key. Without one it returns
// a random 32-byte key and reports that it did so.
func resolveSigningKey(configured string) ([]byte, bool, error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random signing key: %w", err)
	}
	return key, true, nil
}
