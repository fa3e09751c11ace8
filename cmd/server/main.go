package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rongwang/land-rental-server/internal/api"
	"github.com/rongwang/land-rental-server/internal/audit"
	"github.com/rongwang/land-rental-server/internal/config"
	"github.com/rongwang/land-rental-server/internal/contractdoc"
	"github.com/rongwang/land-rental-server/internal/repository"
	"github.com/rongwang/land-rental-server/internal/service"
	"github.com/rongwang/land-rental-server/internal/storage"
	"github.com/rongwang/land-rental-server/internal/utils"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "land-rental-server",
		Short: "Land rental booking server",
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			logger := utils.NewLogger(os.Stdout, cfg.Log.Format, cfg.Log.Level)

			db, err := config.SetupDatabase(cfg)
			if err != nil {
				return fmt.Errorf("failed to set up database: %w", err)
			}
			defer db.Close()

			if err := config.Migrate(db, logger); err != nil {
				return err
			}
			logger.Info("[migrate] schema is up to date")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "create missing tables before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Load configuration
	cfg := config.LoadConfig()
	logger := utils.NewLogger(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	slog.SetDefault(logger)

	// Create repository
	var repo repository.Repository
	switch cfg.Database.Driver {
	case "memory":
		logger.Warn("[server] using the in-memory store, data is lost on restart")
		repo = repository.NewMemoryRepository()
	default:
		db, err := config.SetupDatabase(cfg)
		if err != nil {
			return fmt.Errorf("failed to set up database: %w", err)
		}
		defer db.Close()
		if migrate {
			if err := config.Migrate(db, logger); err != nil {
				return err
			}
		}
		repo = repository.NewPostgresRepository(db, cfg.Database.LockTimeout)
	}

	// Create file storage
	var store storage.Storage
	switch cfg.Storage.Driver {
	case "s3":
		s3Store, err := storage.NewS3StorageFromEnv(ctx, cfg.Storage.S3Bucket)
		if err != nil {
			return fmt.Errorf("failed to set up s3 storage: %w", err)
		}
		store = s3Store
	default:
		store = storage.NewLocalStorage(cfg.Storage.Root)
	}

	// Contract documents need a TrueType font to draw Thai text
	renderer := contractdoc.NewPDFRenderer(cfg.App.BaseURL)
	if cfg.App.ContractFont != "" {
		withFont, err := renderer.WithFont(cfg.App.ContractFont)
		if err != nil {
			return err
		}
		renderer = withFont
	} else {
		logger.Warn("[server] CONTRACT_FONT_PATH not set, contract PDFs can only draw Latin-1 text")
	}

	// Create service
	svc := service.New(repo, service.Options{
		Logger:   logger,
		Audit:    audit.NewSlogSink(logger),
		Storage:  store,
		Renderer: renderer,
		Location: cfg.App.Location(),
	})

	// Create API handler
	var csrf api.CSRFVerifier
	if cfg.Auth.CSRFEnabled {
		csrf = api.NewDoubleSubmitVerifier()
	}
	handler := api.NewHandler(svc, api.Options{
		Logger:         logger,
		Locale:         cfg.App.Locale,
		Debug:          cfg.App.Debug,
		CSRF:           csrf,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// Set up Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = 16 << 20
	router.Use(gin.Recovery(), api.RequestLogger(logger))

	cc := cors.DefaultConfig()
	cc.AllowOrigins = cfg.Server.AllowedOrigins
	cc.AllowHeaders = append(cc.AllowHeaders, "Authorization", "X-CSRF-Token")
	cc.AllowCredentials = true
	router.Use(cors.New(cc))

	// Add middleware for JWT secret
	router.Use(func(c *gin.Context) {
		c.Set("jwtSecret", []byte(cfg.Auth.JWTSecret))
		c.Next()
	})

	if cfg.Storage.Driver != "s3" {
		router.Static(storage.PublicPrefix, cfg.Storage.Root+storage.PublicPrefix)
	}

	// Set up routes
	handler.SetupRoutes(router)

	// Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[server] starting", "addr", server.Addr, "env", cfg.App.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("[server] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
