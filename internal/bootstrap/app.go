package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"galaxychat/internal/ai"
	appsvc "galaxychat/internal/app"
	"galaxychat/internal/cache"
	"galaxychat/internal/catalog"
	"galaxychat/internal/chatcontext"
	"galaxychat/internal/config"
	"galaxychat/internal/model"
	"galaxychat/internal/pkg/logger"
	"galaxychat/internal/platform/database"
	rabbitmqClient "galaxychat/internal/platform/rabbitmq"
	redisClient "galaxychat/internal/platform/redis"
	"galaxychat/internal/repository"
	"galaxychat/internal/storage"
	"galaxychat/internal/worker"
)

type App struct {
	Config       *config.Config
	DB           *gorm.DB
	Redis        *redis.Client
	MQConn       *amqp.Connection
	AppendWorker *worker.AppendWorker

	Chats       *repository.ChatRepository
	Users       *repository.UserRepository
	RecentCache appsvc.RecentChatsCache
	Publisher   appsvc.MessagePublisher

	Catalog        *catalog.Catalog
	Storage        *storage.Service
	Completer      ai.Completer
	Registry       *prometheus.Registry
	ContextMetrics *chatcontext.Metrics

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger.Setup(cfg.Log)
	return Build(ctx, cfg)
}

// Build wires every dependency for cfg. Redis and RabbitMQ are optional: with
// Redis off there is no recent-chats cache, and with RabbitMQ off appends are
// applied inline.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	models, err := catalog.Load(cfg.Chat.ModelsFile)
	if err != nil {
		return nil, err
	}

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, DB: db, Catalog: models, StartedAt: time.Now()}

	if err := db.AutoMigrate(&model.User{}, &model.Chat{}, &model.Message{}); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}
	app.Chats = repository.NewChatRepository(db)
	app.Users = repository.NewUserRepository(db)

	if cfg.Redis.Enabled {
		redisCli, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Redis = redisCli
		app.RecentCache = cache.NewRecentChatsCache(
			redisCli,
			time.Duration(cfg.Redis.RecentTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.RecentDirtyTTLSeconds)*time.Second,
		)
	}

	appender := appsvc.NewAppendService(app.Chats, app.Users, app.RecentCache)
	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.MQConn = mqConn
		app.Publisher = rabbitmqClient.NewAppendPublisher(mqConn, cfg.RabbitMQ.AppendQueue)
		app.AppendWorker = worker.NewAppendWorker(mqConn, appender, cfg.RabbitMQ.AppendQueue)
		if err := app.AppendWorker.Start(ctx); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("start append worker failed: %w", err)
		}
	} else {
		app.Publisher = appsvc.NewInlinePublisher(appender)
	}

	app.Storage, err = storage.New(cfg.Upload, cfg.Cloudinary)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Completer = ai.NewInvoker(cfg.Providers)

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.ContextMetrics = chatcontext.NewMetrics(app.Registry)

	log.WithFields(log.Fields{
		"database": cfg.Database.Driver,
		"redis":    cfg.Redis.Enabled,
		"rabbitmq": cfg.RabbitMQ.Enabled,
		"models":   len(models.All()),
	}).Info("application bootstrapped")
	return app, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.AppendWorker != nil {
		a.AppendWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
