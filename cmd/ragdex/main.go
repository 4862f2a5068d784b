package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/mirefly/ragdex/internal/ai"
	"github.com/mirefly/ragdex/internal/config"
	"github.com/mirefly/ragdex/internal/db"
	"github.com/mirefly/ragdex/internal/embedcache"
	"github.com/mirefly/ragdex/internal/filestore"
	"github.com/mirefly/ragdex/internal/handler"
	"github.com/mirefly/ragdex/internal/job"
	"github.com/mirefly/ragdex/internal/middleware"
	"github.com/mirefly/ragdex/internal/repo"
	"github.com/mirefly/ragdex/internal/schedule"
	"github.com/mirefly/ragdex/internal/service"
	"github.com/mirefly/ragdex/internal/vectorindex"
	"github.com/mirefly/ragdex/internal/websearch"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragdex",
		Short: "ragdex retrieval-augmented answering server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run ragdex server",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			database, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(database); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, database)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, database *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	docRepo := repo.NewDocumentRepo(database)
	chunkRepo := repo.NewChunkRepo(database)
	sessionRepo := repo.NewSessionRepo(database)
	messageRepo := repo.NewMessageRepo(database)

	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	provider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	generator := ai.NewGenerator(provider, cfg.AI.Model)
	embedder := embedcache.WrapLruCacheToEmbedder(
		ai.NewEmbedder(provider, cfg.AI.EmbedModel),
		cfg.EmbedCacheSize,
		time.Duration(cfg.EmbedCacheTTLMinutes)*time.Minute,
	)

	index, err := vectorindex.New(cfg.VectorStore.Type, cfg.VectorStore.Data, database)
	if err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	var webProvider websearch.Provider
	if cfg.WebSearch.Provider != "" {
		webProvider, err = websearch.New(cfg.WebSearch.Provider, cfg.WebSearch.Data)
		if err != nil {
			return fmt.Errorf("init web search: %w", err)
		}
	}

	ingestService := service.NewIngestService(docRepo, chunkRepo, index, embedder, store, cfg.Chunking)
	retrievalService := service.NewRetrievalService(embedder, index, chunkRepo, webProvider, cfg.Retrieval, cfg.WebSearch)
	answerService := service.NewAnswerService(generator, retrievalService, docRepo, sessionRepo, messageRepo, cfg.Retrieval)
	chatService := service.NewChatService(sessionRepo, messageRepo)

	if err := ingestService.RecoverInterrupted(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Warn("failed to recover interrupted ingestions", zap.Error(err))
	}

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(ingestService),
		Query:     handler.NewQueryHandler(answerService, retrievalService),
		Sessions:  handler.NewSessionHandler(chatService),
		Health:    handler.NewHealthHandler(database, provider),
		JWTSecret: []byte(cfg.JWTSecret),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewPendingSweepJob(ingestService, 60), "*/5 * * * *"); err != nil {
		return err
	}
	if cfg.SessionRetentionDays > 0 {
		if err := scheduler.AddJob(job.NewChatCleanupJob(sessionRepo, cfg.SessionRetentionDays), "0 3 * * *"); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
