// Package flow provides the chatbot-flow server implementation.
package flow

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/kart-io/logger/option"
	"github.com/panjf2000/ants/v2"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wbt-web-support/chatbot-flow/internal/flow/biz"
	"github.com/wbt-web-support/chatbot-flow/internal/flow/handler"
	"github.com/wbt-web-support/chatbot-flow/internal/flow/router"
	"github.com/wbt-web-support/chatbot-flow/internal/flow/store"
	"github.com/wbt-web-support/chatbot-flow/pkg/llm"

	// Register LLM providers.
	_ "github.com/wbt-web-support/chatbot-flow/pkg/llm/gemini"
	_ "github.com/wbt-web-support/chatbot-flow/pkg/llm/openai"
)

// Name is the service name.
const Name = "chatbot-flow"

// ProviderConfig selects and configures one LLM provider.
type ProviderConfig struct {
	Provider string
	Config   map[string]any
}

// RedisConfig configures the embedding cache backend.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// Config is the completed server configuration, built by the options layer.
type Config struct {
	HTTPAddr  string
	JWTSecret string

	LogOption *option.LogOption

	PostgresDSN string

	Redis *RedisConfig

	// Milvus is optional; nil selects the brute-force vector index.
	Milvus *store.MilvusConfig

	Embedding ProviderConfig
	Chat      ProviderConfig

	PromptBudget    int
	PoolSize        int
	ShutdownTimeout time.Duration
}

// Server is the assembled chatbot-flow service.
type Server struct {
	httpServer *http.Server
	shutdown   time.Duration

	factory store.Factory
	redis   *goredis.Client
	milvus  *store.MilvusIndex
	pool    *ants.Pool
}

// NewServer wires the whole service from configuration.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	cfg.LogOption.AddInitialField("service.name", Name)
	log, err := logger.New(cfg.LogOption)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(log)
	logger.Infof("starting %s", Name)

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	factory := store.NewFactory(db)
	logger.Info("database initialized")

	var redisClient *goredis.Client
	if cfg.Redis != nil && cfg.Redis.Enabled {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warnw("redis unreachable, embedding cache disabled", "error", err.Error())
			_ = redisClient.Close()
			redisClient = nil
		} else {
			logger.Info("redis embedding cache initialized")
		}
	}

	var index store.VectorIndex
	var milvusIndex *store.MilvusIndex
	if cfg.Milvus != nil {
		milvusIndex, err = store.NewMilvusIndex(ctx, cfg.Milvus)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus index: %w", err)
		}
		index = milvusIndex
		logger.Info("milvus vector index initialized")
	} else {
		index = store.NewBruteForceIndex(factory.Instructions())
		logger.Info("brute-force vector index initialized")
	}

	embedProvider, err := llm.NewEmbeddingProvider(cfg.Embedding.Provider, cfg.Embedding.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	chatProvider, err := llm.NewChatProvider(cfg.Chat.Provider, cfg.Chat.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat provider: %w", err)
	}
	logger.Infow("llm providers initialized",
		"embedding", embedProvider.Name(), "chat", chatProvider.Name())

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 32
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	service := biz.NewService(factory, index, embedProvider, chatProvider,
		biz.NewEmbeddingCache(redisClient, nil), pool,
		&biz.ServiceConfig{PromptBudget: cfg.PromptBudget})

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	router.Register(engine, handler.New(service), cfg.JWTSecret)

	return &Server{
		httpServer: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: engine,
		},
		shutdown: cfg.ShutdownTimeout,
		factory:  factory,
		redis:    redisClient,
		milvus:   milvusIndex,
		pool:     pool,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.cleanup(context.Background())
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.cleanup(shutdownCtx)
	return err
}

func (s *Server) cleanup(ctx context.Context) {
	s.pool.Release()
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.milvus != nil {
		_ = s.milvus.Close(ctx)
	}
	_ = s.factory.Close()
	_ = logger.Flush()
}
