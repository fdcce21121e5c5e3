package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MP2EZ/being-sub014/internal/config"
	"github.com/MP2EZ/being-sub014/internal/database"
	"github.com/MP2EZ/being-sub014/internal/evaluator"
	httpapi "github.com/MP2EZ/being-sub014/internal/http"
	"github.com/MP2EZ/being-sub014/internal/logger"
	"github.com/MP2EZ/being-sub014/internal/notifier"
	"github.com/MP2EZ/being-sub014/internal/repository"
	"github.com/MP2EZ/being-sub014/internal/service"
	"github.com/MP2EZ/being-sub014/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "being-assessment")
	if err != nil {
		log, _ = zap.NewProduction()
	}
	defer log.Sync()

	// 主存储:Redis 快照
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		// Redis 不可用时服务仍可启动:作答保留在内存,落盘走 warning 路径
		log.Warn("redis ping failed, snapshot persistence degraded", zap.Error(err))
	}
	kv := store.NewRedisKV(redisClient)
	primary := store.NewRedisSnapshotStore(kv, cfg.Session.KeyPrefix, cfg.Session.TTL, log)

	// 归档与旧存储:Postgres,连接失败时退化为内存归档(仅联调用)
	var db *sql.DB
	var archive repository.ResultsRepository
	var legacy store.SnapshotStore
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(&cfg.Database); err == nil {
			db = d
			archive = repository.NewPostgresResultsRepository(db)
			legacy = store.NewPostgresLegacyStore(db, cfg.Session.TTL, cfg.Session.StepSeconds, log)
			log.Info("DB enabled for being-assessment")
		} else {
			log.Warn("DB enabled but connection failed, falling back to in-memory archive", zap.Error(err))
		}
	}
	if archive == nil {
		archive = repository.NewMemoryResultsRepository()
	}

	// 危机信号下游:Redis Stream 常开,Webhook / MQTT 按配置挂载
	sinks := []notifier.CrisisNotifier{
		notifier.NewStreamNotifier(redisClient, cfg.Crisis.Stream, log),
	}
	if cfg.Crisis.WebhookURL != "" {
		sinks = append(sinks, notifier.NewWebhookNotifier(cfg.Crisis.WebhookURL, log))
	}
	var mqttNotifier *notifier.MQTTNotifier
	if cfg.MQTT.Enabled {
		n, err := notifier.NewMQTTNotifier(notifier.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
		}, log)
		if err != nil {
			log.Warn("MQTT notifier disabled, broker connect failed", zap.Error(err))
		} else {
			mqttNotifier = n
			sinks = append(sinks, n)
		}
	}
	crisisNotifier := notifier.NewMultiNotifier(log, sinks...)

	eval := evaluator.NewEvaluator(cfg.Session.MinProjectionAnswers, log)
	svc := service.NewAssessmentService(
		primary,
		legacy,
		archive,
		eval,
		crisisNotifier,
		cfg.Session.TTL,
		cfg.Session.StepSeconds,
		log,
	)

	router := httpapi.NewRouter(log)
	router.RegisterAssessmentRoutes(httpapi.NewAssessmentHandler(svc, log))
	router.RegisterHistoryRoutes(httpapi.NewHistoryHandler(svc, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if mqttNotifier != nil {
		mqttNotifier.Close()
	}
	_ = redisClient.Close()
	if db != nil {
		_ = db.Close()
	}
}
