package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/cmd/buildCFG"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/api/api"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/approval"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/cache"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/consumerWorker"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/mailer"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/metrics"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/notify"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/rabbit"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/repo"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/reservation"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/service"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "SLOTS"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	metrics.Register()

	ctx := context.Background()
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	storageCfg, err := buildCFG.BuildStorageConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build storage config")
	}

	var (
		repository repo.Repository
		health     func(context.Context) error
	)
	switch storageCfg.Driver {
	case buildCFG.DriverMemory:
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		repository = repo.NewMemoryRepository(&log)
	default:
		masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build DB config")
		}
		db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
		if err != nil {
			log.Fatal().Msgf("failed to connect to DB: %v", err)
		}
		defer db.Master.Close()

		if err := repo.Migrate(ctx, db.Master, storageCfg.MigrationsDir); err != nil {
			log.Fatal().Err(err).Msg("migration failed")
		}
		log.Info().Msg("Migrations applied successfully")

		repository, err = repo.NewRepository(db, &log)
		if err != nil {
			log.Fatal().Msgf("failed to initialize repository: %v", err)
		}
		health = db.Master.PingContext
		log.Info().Msg("Database connected successfully")
	}

	var slotCache *cache.SlotCache
	if redisCfg := buildCFG.BuildRedisConfig(cfg, &log); redisCfg.Enabled {
		rdb := redis.NewClient(&redis.Options{Addr: redisCfg.Addr, Password: redisCfg.Password, DB: redisCfg.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis is unreachable, listings will not be cached")
		} else {
			slotCache = cache.NewSlotCache(rdb, redisCfg.TTL, &log)
		}
	}

	mail, err := mailer.New(buildCFG.BuildMailConfig(cfg), &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure mailer")
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var (
		notifier notify.Notifier
		reader   *consumerWorker.Reader
	)
	notifyCfg := buildCFG.BuildNotifyConfig(cfg)
	if notifyCfg.Queue {
		rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
		}
		rmq, err := rabbit.NewRabbit(rabbitCfg)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()

		notifier = notify.NewQueueNotifier(rmq)
		reader = consumerWorker.NewReader(rmq, mail, notifyCfg.RatePerSec, &log)
		reader.Start(workerCtx)
	} else {
		notifier = notify.NewMailNotifier(mail)
	}

	engine := reservation.NewEngine(repository, slotCache, &log, buildCFG.BuildReservationConfig(cfg, &log))
	workflow := approval.NewWorkflow(repository, engine, notifier, &log)
	serviceInstance := service.NewService(repository, engine, workflow, slotCache, &log)
	app := api.NewRouters(&api.Routers{
		Service:    serviceInstance,
		Log:        &log,
		AdminToken: serverCfg.AdminToken,
		Health:     health,
	})

	srv := &http.Server{
		Addr:    ":" + serverCfg.Port,
		Handler: app,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	cancelWorkers()
	if reader != nil {
		reader.Stop()
	}
	log.Info().Msg("Shutdown complete")
}
