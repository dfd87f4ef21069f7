package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"posts-api/internal/config"
	"posts-api/internal/db"
	"posts-api/internal/filestore"
	apihttp "posts-api/internal/http"
	"posts-api/internal/repository"
	"posts-api/internal/schedule"
	"posts-api/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var (
		userRepo repository.UserRepository
		postRepo repository.PostRepository
	)
	if cfg.DatabaseURL != "" {
		pool := mustOpenPostgres(ctx, logger, cfg)
		defer pool.Close()
		userRepo = repository.NewPgUserRepository(pool)
		postRepo = repository.NewPgPostRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
		userRepo = repository.NewMemoryUserRepository()
		postRepo = repository.NewMemoryPostRepository()
	}

	store, imagesDir := mustOpenFileStore(ctx, logger, cfg)

	orphans := service.NewMemoryOrphanQueue()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, orphan queue stays in memory", zap.Error(err))
		} else {
			orphans = service.NewRedisOrphanQueue(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	userSvc := service.NewUserService(logger, userRepo, cfg.BcryptCost)
	attachmentSvc := service.NewAttachmentService(store, cfg.MaxUploadBytes)
	postSvc := service.NewPostService(logger, postRepo, attachmentSvc, orphans)

	if cfg.AttachmentGCEnabled {
		scheduler := schedule.NewCronScheduler(logger)
		janitor := service.NewAttachmentJanitor(logger, orphans, postRepo, attachmentSvc, cfg.AttachmentGCBatch)
		if err := scheduler.AddJob(janitor, cfg.AttachmentGCCron); err != nil {
			logger.Fatal("schedule attachment gc", zap.Error(err))
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	router := apihttp.NewRouter(logger,
		apihttp.RouterOptions{CORSAllowedOrigins: cfg.CORSAllowedOrigins, ImagesDir: imagesDir},
		jwtSvc,
		apihttp.NewUserHandler(logger, userSvc, jwtSvc),
		apihttp.NewPostHandler(logger, postSvc, cfg.MaxUploadBytes),
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("file_store", cfg.FileStore))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func mustOpenPostgres(ctx context.Context, logger *zap.Logger, cfg *config.Config) *pgxpool.Pool {
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}
	return pool
}

// mustOpenFileStore devuelve el store configurado y, si es local, el directorio a servir.
func mustOpenFileStore(ctx context.Context, logger *zap.Logger, cfg *config.Config) (filestore.Store, string) {
	if cfg.FileStore == "s3" {
		store, err := filestore.NewS3Store(ctx, filestore.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.S3Prefix,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			logger.Fatal("s3 store", zap.Error(err))
		}
		return store, ""
	}

	publicURL := strings.TrimSuffix(cfg.PublicBaseURL, "/") + "/images"
	store, err := filestore.NewLocalStore(cfg.UploadDir, publicURL)
	if err != nil {
		logger.Fatal("local store", zap.Error(err))
	}
	return store, store.Dir()
}
