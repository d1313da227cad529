package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenshop/visualsearch/internal/assets"
	"github.com/lumenshop/visualsearch/internal/config"
	dbRedis "github.com/lumenshop/visualsearch/internal/db/redis"
	logpkg "github.com/lumenshop/visualsearch/internal/logger"
	"github.com/lumenshop/visualsearch/internal/metrics"
	"github.com/lumenshop/visualsearch/internal/repository/catalog"
	chiTransport "github.com/lumenshop/visualsearch/internal/transport/chi"
	openaiCaption "github.com/lumenshop/visualsearch/internal/transport/openai"
	"github.com/lumenshop/visualsearch/internal/transport/titan"
	indexuc "github.com/lumenshop/visualsearch/internal/usecase/index"
	ingestuc "github.com/lumenshop/visualsearch/internal/usecase/ingest"
	searchuc "github.com/lumenshop/visualsearch/internal/usecase/search"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "visualsearch",
		Short: "Product visual search: index provisioning, feed ingestion and the query API",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the product feed into the embeddings index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context())
		},
	}

	createIndexCmd := &cobra.Command{
		Use:   "create-index",
		Short: "Create the product embeddings index if it does not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateIndex(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, createIndexCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds everything the subcommands share: configuration, logging,
// the vector store and the three use case services.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  *dbRedis.Store
	index  *indexuc.Service
	ingest *ingestuc.Service
	search *searchuc.Service
}

func (a *app) close() {
	a.store.Close()
	_ = a.logger.Sync()
}

func bootstrap(ctx context.Context) (*app, error) {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	logger.Info("Starting visualsearch",
		zap.String("env", env),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	metrics.Register()

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("store not ready: %w", err)
	}
	logger.Info("Connected to vector store")

	repo := catalog.New(store, catalog.HNSWConfig{
		M:           cfg.Index.HNSWM,
		EFConstruct: cfg.Index.HNSWEFConstruct,
	})

	embedder := titan.NewEmbedder(titan.Config{
		Endpoint:    cfg.Embedding.Endpoint,
		APIKey:      cfg.Embedding.APIKey,
		Model:       cfg.Embedding.Model,
		Dimensions:  cfg.Embedding.Dimensions,
		Timeout:     time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		MaxAttempts: cfg.Embedding.MaxAttempts,
		Logger:      logger,
	})

	captioner := openaiCaption.NewCaptioner(openaiCaption.Config{
		APIKey:  cfg.Caption.APIKey,
		BaseURL: cfg.Caption.BaseURL,
		Model:   cfg.Caption.Model,
		Timeout: time.Duration(cfg.Caption.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	fetcher := assets.NewFetcher(assets.Config{
		SourceBaseURL: cfg.Assets.SourceBaseURL,
		StoreBaseURL:  cfg.Assets.StoreBaseURL,
		Timeout:       time.Duration(cfg.Assets.TimeoutSec) * time.Second,
		Logger:        logger,
	})
	feed := assets.NewFeed(cfg.Assets.StoreBaseURL, cfg.Assets.FeedPath,
		time.Duration(cfg.Assets.TimeoutSec)*time.Second)

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		index:  indexuc.New(repo, logger),
		ingest: ingestuc.New(feed, fetcher, embedder, repo, logger),
		search: searchuc.New(captioner, embedder, repo, logger),
	}, nil
}

func runServe() error {
	a, err := bootstrap(context.Background())
	if err != nil {
		return err
	}
	defer a.close()

	// The index must exist before the first query.
	if err := a.index.Ensure(context.Background()); err != nil {
		return err
	}

	server := chiTransport.NewServer(a.search, a.ingest, a.index, a.store, a.logger)

	r := chi.NewRouter()
	r.Use(chiTransport.JSONRecoverer(a.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiTransport.WideEvent(a.logger))
	r.Use(metrics.Middleware())
	r.Mount("/", server.Routes())

	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	a.logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Error during shutdown", zap.Error(err))
	}

	a.logger.Info("Server stopped gracefully")
	return nil
}

func runIngest(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.index.Ensure(ctx); err != nil {
		return err
	}

	count, err := a.ingest.Ingest(ctx)
	if err != nil {
		return fmt.Errorf("ingestion aborted after %d products: %w", count, err)
	}

	fmt.Printf("Ingested %d products\n", count)
	return nil
}

func runCreateIndex(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.index.Ensure(ctx); err != nil {
		return err
	}

	fmt.Println("Index ready")
	return nil
}
