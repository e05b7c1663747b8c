package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/psds-microservice/support-chat-service/internal/agentsession"
	"github.com/psds-microservice/support-chat-service/internal/billing"
	"github.com/psds-microservice/support-chat-service/internal/config"
	"github.com/psds-microservice/support-chat-service/internal/database"
	"github.com/psds-microservice/support-chat-service/internal/handler"
	"github.com/psds-microservice/support-chat-service/internal/kafka"
	"github.com/psds-microservice/support-chat-service/internal/model"
	"github.com/psds-microservice/support-chat-service/internal/realtime"
	"github.com/psds-microservice/support-chat-service/internal/redisfeed"
	"github.com/psds-microservice/support-chat-service/internal/router"
	"github.com/psds-microservice/support-chat-service/internal/searchindex"
	"github.com/psds-microservice/support-chat-service/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// API сервер HTTP и websocket (режим api).
type API struct {
	cfg      *config.Config
	log      *zap.Logger
	httpSrv  *http.Server
	db       *gorm.DB
	rdb      *redis.Client
	broker   *realtime.Broker
	producer *kafka.Producer
}

// NewAPI применяет миграции и собирает все компоненты.
func NewAPI(ctx context.Context, cfg *config.Config, log *zap.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(ctx, cfg.DatabaseURL(), log); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN(), log)
	if err != nil {
		return nil, err
	}
	a := &API{cfg: cfg, log: log, db: db}

	var (
		feed      realtime.Feed
		publisher realtime.Publisher
		store     agentsession.Store
	)
	switch cfg.FeedBackend {
	case config.FeedRedis:
		a.rdb, err = redisfeed.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		rf := redisfeed.New(a.rdb, log)
		feed, publisher = rf, rf
		store = agentsession.NewRedisStore(a.rdb)
	default:
		a.broker = realtime.NewBroker()
		feed, publisher = a.broker, a.broker
		store = agentsession.NewMemoryStore()
	}

	a.producer = kafka.NewProducer(kafka.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopic, log)
	svc := service.New(service.Deps{
		DB:                db,
		Feed:              publisher,
		Events:            a.producer,
		Search:            searchindex.NewClient(cfg.SearchServiceURL, log),
		Log:               log,
		StrictTransitions: cfg.StrictTransitions,
	})
	sessions := agentsession.NewManager(cfg.JWTSecret, cfg.AgentSessionTTL, store).WithAccounts(svc.Agents)
	billingBus := realtime.NewBus[billing.SubscriptionUpdated]()
	confirmer := billing.NewConfirmer(billing.NewGormStatusChecker(db), billing.Policy{
		MaxAttempts: cfg.BillingMaxAttempts,
		Interval:    cfg.BillingInterval,
		Exponential: cfg.BillingBackoff == "exponential",
	}, billingBus, log)

	checks := map[string]handler.Pinger{
		"postgres": handler.PingFunc(func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	}
	if a.rdb != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() })
	}

	conversations := handler.NewConversationHandler(svc.ConversationService, log)
	newWorkspace := func(actor model.Actor) *realtime.Workspace {
		return realtime.NewWorkspace(actor, svc, feed, log)
	}
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := router.New(router.Handlers{
		Health:        handler.NewHealthHandler(checks),
		Auth:          handler.NewAuthHandler(svc.Agents, sessions, log),
		Conversations: conversations,
		Messages:      handler.NewMessageHandler(conversations, svc.MessageService, log),
		Participants:  handler.NewParticipantHandler(conversations, svc.ParticipantService, log),
		Stats:         handler.NewStatsHandler(svc.Stats, log),
		Billing:       handler.NewBillingHandler(confirmer, 2*time.Minute, log),
		Websocket:     handler.NewWebsocketHandler(newWorkspace, billingBus, cfg.WSCommandRate, cfg.WSCommandBurst, log),
	}, sessions, log)

	a.httpSrv = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

// Run обслуживает запросы до отмены ctx, затем корректно завершается.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("HTTP server listening",
		zap.String("addr", a.httpSrv.Addr),
		zap.String("swagger", base+"/swagger"),
		zap.String("health", base+"/health"),
		zap.String("metrics", base+"/metrics"),
		zap.String("websocket", "ws://"+host+":"+a.cfg.HTTPPort+"/api/v1/ws"),
		zap.String("feed", a.cfg.FeedBackend),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = a.Close()
			return fmt.Errorf("http: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		_ = a.Close()
		return fmt.Errorf("http shutdown: %w", err)
	}
	return a.Close()
}

// Close закрывает ленту, writer Kafka и пул базы.
func (a *API) Close() error {
	var errs []error
	if a.broker != nil {
		errs = append(errs, a.broker.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.producer != nil {
		errs = append(errs, a.producer.Close())
	}
	if a.db != nil {
		errs = append(errs, database.Close(a.db))
	}
	return errors.Join(errs...)
}
