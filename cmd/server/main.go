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

	"github.com/diewo77/go-tasks/auth"
	"github.com/diewo77/go-tasks/internal/config"
	"github.com/diewo77/go-tasks/internal/db"
	"github.com/diewo77/go-tasks/internal/logger"
	"github.com/diewo77/go-tasks/internal/middleware"
	"github.com/diewo77/go-tasks/internal/policy"
	"github.com/diewo77/go-tasks/internal/services"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	configPath string

	// migrate flags
	migrateDown bool

	// create-admin flags
	adminUsername string
	adminEmail    string
	adminPassword string
)

var rootCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Task management REST API",
	Long: `A REST API for managing tasks, categories and priorities.

Users authenticate with bearer tokens; records are owned by their creator
and soft-deleted unless an administrator removes them.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Long: `Apply database migrations and exit.

With MIGRATIONS=1 on postgres the embedded SQL migrations are applied through
golang-migrate; otherwise the schema is brought up to date with AutoMigrate.`,
	RunE: runMigrate,
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator, or promote an existing user",
	RunE:  runCreateAdmin,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default: $CONFIG_FILE, tasks.yaml)")

	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Roll back the last SQL migration (postgres only)")

	createAdminCmd.Flags().StringVar(&adminUsername, "username", "admin", "Administrator username")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "Administrator email")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "Administrator password (default: $ADMIN_PASSWORD)")

	rootCmd.AddCommand(serveCmd, migrateCmd, createAdminCmd)
}

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads the configuration, sets up logging and opens the database.
func bootstrap(ctx context.Context) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.App.LogLevel, cfg.App.LogJSON)

	conn, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, conn, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, conn, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	if err := db.Setup(conn, cfg.Database, cfg.App.Migrations); err != nil {
		return err
	}

	metrics := middleware.NewMetrics()
	redisClient := middleware.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if redisClient != nil {
		defer redisClient.Close()
	}
	limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.Requests, cfg.RateLimit.WindowDuration(), cfg.RateLimit.TrustProxy, metrics)

	issuer := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TTL())
	routerCfg := NewRouterConfig(conn, issuer, limiter, metrics)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      NewApp(conn, routerCfg),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "dev", cfg.App.Dev, "driver", cfg.Database.Driver, "rate_limit", redisClient != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, conn, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	if migrateDown {
		if cfg.Database.Driver != "postgres" {
			return errors.New("--down requires the postgres driver")
		}
		if err := db.RollbackSQLMigrations(cfg.Database.URL()); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		logger.Info("rolled back last migration")
		return nil
	}
	if err := db.Setup(conn, cfg.Database, cfg.App.Migrations); err != nil {
		return err
	}
	logger.Info("migrations completed", "sql", cfg.App.Migrations && cfg.Database.Driver == "postgres")
	return nil
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	password := adminPassword
	if password == "" {
		password = os.Getenv("ADMIN_PASSWORD")
	}
	if password == "" {
		return errors.New("a password is required: use --password or ADMIN_PASSWORD")
	}

	cfg, conn, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	if err := db.Setup(conn, cfg.Database, cfg.App.Migrations); err != nil {
		return err
	}
	accounts := services.NewAccountService(conn, policy.NewGate(), auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TTL()))
	u, err := accounts.CreateAdmin(cmd.Context(), adminUsername, adminEmail, password)
	if err != nil {
		return err
	}
	logger.Info("administrator ready", "id", u.ID, "username", u.Username)
	return nil
}
