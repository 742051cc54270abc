package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/config"
	"github.com/Gopher0727/Guildhall/internal/api"
	"github.com/Gopher0727/Guildhall/internal/handler"
	"github.com/Gopher0727/Guildhall/internal/pkg/events"
	"github.com/Gopher0727/Guildhall/internal/pkg/gateway"
	grpcserver "github.com/Gopher0727/Guildhall/internal/pkg/grpc"
	"github.com/Gopher0727/Guildhall/internal/pkg/kafka"
	"github.com/Gopher0727/Guildhall/internal/pkg/media"
	"github.com/Gopher0727/Guildhall/internal/pkg/objectstore"
	"github.com/Gopher0727/Guildhall/internal/pkg/redis"
	"github.com/Gopher0727/Guildhall/internal/pkg/scheduler"
	"github.com/Gopher0727/Guildhall/internal/repository"
	"github.com/Gopher0727/Guildhall/internal/service"
	"github.com/Gopher0727/Guildhall/middleware/jwt"
	logger "github.com/Gopher0727/Guildhall/middleware/log"
	"github.com/Gopher0727/Guildhall/utils/ratelimit"
	"github.com/Gopher0727/Guildhall/utils/snowflake"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLog, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer appLog.Close()

	if err := run(cfg, appLog); err != nil {
		appLog.Error("guildhall exited", zap.Error(err))
		_ = appLog.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLog *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zl := appLog.Logger.With(zap.String("node", cfg.Server.NodeID))

	// Storage
	db, err := repository.InitPostgres(&cfg.Postgres, zl)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var store objectstore.Store
	if cfg.Minio.Endpoint != "" {
		minioStore, err := objectstore.NewMinioStore(ctx, &cfg.Minio)
		if err != nil {
			return err
		}
		store = minioStore
	} else {
		zl.Warn("minio endpoint not set, uploads disabled")
	}

	// Events
	publisher := events.Multi{events.NewRedisPublisher(redisClient)}
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()
		publisher = append(publisher, events.NewKafkaPublisher(producer))
	}

	var source events.Source
	switch cfg.Gateway.Source {
	case "kafka":
		if !cfg.Kafka.Enabled() {
			return errors.New("gateway.source is kafka but no kafka brokers are configured")
		}
		source = events.NewKafkaSource(&cfg.Kafka, cfg.Server.NodeID, zl.Named("events"))
	default:
		source = events.NewRedisSource(redisClient, zl.Named("events"))
	}

	ids, err := snowflake.NewGenerator(snowflake.WorkerIDFor(cfg.Server.NodeID))
	if err != nil {
		return fmt.Errorf("failed to init id generator: %w", err)
	}
	jobs := scheduler.New(redisClient.GetClient(), cfg.Scheduler, cfg.Server.NodeID, zl.Named("scheduler"))

	// Repositories
	users := repository.NewCachedUserRepository(repository.NewUserRepository(db), redisClient, zl)
	servers := repository.NewServerRepository(db)
	channels := repository.NewChannelRepository(db)
	members := repository.NewMemberRepository(db)
	invites := repository.NewInviteRepository(db)
	messages := repository.NewMessageRepository(db)
	dms := repository.NewDirectMessageRepository(db)
	typingRepo := repository.NewTypingRepository(db)
	uploads := repository.NewUploadRepository(db)
	friends := repository.NewFriendRepository(db)

	// Services
	tokenManager := jwt.NewTokenManager(cfg.JWT.Secret, cfg.JWT.ExpireHours, cfg.JWT.RefreshHours)
	guard := service.NewGuard(servers, channels, members, dms)
	storage := service.NewStorageService(uploads, store, &cfg.Minio, zl)
	identity := service.NewIdentityService(users, tokenManager, cfg.Auth.LocalEnabled)
	serverService := service.NewServerService(servers, members, guard, storage, publisher, zl)
	channelService := service.NewChannelService(channels, guard, storage, publisher, zl)
	inviteService := service.NewInviteService(invites, members, users, guard, storage, publisher, zl)
	typingService := service.NewTypingService(typingRepo, guard, jobs, publisher, zl)
	messageService := service.NewMessageService(messages, users, guard, storage, ids, jobs, publisher, zl)
	dmService := service.NewDirectMessageService(dms, users, guard, publisher, zl)
	friendService := service.NewFriendService(friends, users, publisher, zl)
	callService := service.NewCallService(members, guard, media.NewTokenIssuer(&cfg.LiveKit), publisher, zl)

	jobs.Register(service.TypingRemoveJob, typingService.HandleJob)

	// HTTP
	if err := handler.RegisterValidators(); err != nil {
		return err
	}
	hub := gateway.NewHub(guard, zl.Named("gateway"))
	limiter := ratelimit.NewRedisLimiter(redisClient.GetClient(), zl, true)
	mw := api.NewMiddlewareManager(tokenManager, identity, limiter, appLog)

	gin.SetMode(cfg.Server.Mode)
	router := api.NewRouter(mw, &api.Handlers{
		Auth:     handler.NewAuthHandler(identity, appLog),
		Servers:  handler.NewServerHandler(serverService, channelService, appLog),
		Invites:  handler.NewInviteHandler(inviteService, appLog),
		Messages: handler.NewMessageHandler(messageService, typingService, appLog),
		Social:   handler.NewSocialHandler(dmService, friendService, appLog),
		Media:    handler.NewMediaHandler(storage, callService, appLog),
		Gateway:  gateway.NewHandler(hub, identity, &cfg.Gateway, zl.Named("gateway")),
	}, ratelimit.RulesFromConfig(cfg.RateLimit))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, err := grpcserver.NewServer(fmt.Sprintf(":%d", cfg.Server.GRPCPort), zl.Named("grpc"))
	if err != nil {
		return err
	}

	// Background workers
	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(4)
	go func() {
		defer wg.Done()
		jobs.Run(ctx, runtime.NumCPU())
	}()
	go func() {
		defer wg.Done()
		if err := hub.Run(ctx, source); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("event source stopped: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		grpcServer.Watch(ctx, 10*time.Second,
			grpcserver.Check{Name: "postgres", Probe: sqlDB.PingContext},
			grpcserver.Check{Name: "redis", Probe: redisClient.Ping},
		)
	}()
	go func() {
		defer wg.Done()
		if err := grpcServer.Start(); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		zl.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		zl.Info("shutting down")
	case runErr = <-errCh:
		zl.Error("component failed, shutting down", zap.Error(runErr))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zl.Warn("http shutdown incomplete", zap.Error(err))
	}
	hub.Shutdown()
	grpcServer.Stop()
	wg.Wait()
	// Jobs already due would otherwise wait for another node's poll.
	if err := jobs.RunDue(shutdownCtx); err != nil {
		zl.Warn("draining due jobs failed", zap.Error(err))
	}
	return runErr
}
