package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/social-identity/internal/core/port"
	"github.com/arklim/social-identity/internal/infra/config"
	"github.com/arklim/social-identity/internal/infra/database"
	kafkainfra "github.com/arklim/social-identity/internal/infra/kafka"
	"github.com/arklim/social-identity/internal/infra/logger"
	"github.com/arklim/social-identity/internal/infra/mailer"
	redisinfra "github.com/arklim/social-identity/internal/infra/redis"
	"github.com/arklim/social-identity/internal/infra/security"
	"github.com/arklim/social-identity/internal/infra/telemetry"
	postgresrepo "github.com/arklim/social-identity/internal/repository/postgres"
	redisrepo "github.com/arklim/social-identity/internal/repository/redis"
	transportgrpc "github.com/arklim/social-identity/internal/transport/grpc"
	grpcinterceptors "github.com/arklim/social-identity/internal/transport/grpc/interceptors"
	"github.com/arklim/social-identity/internal/transport/http/middleware"
	"github.com/arklim/social-identity/internal/transport/http/routes"
	"github.com/arklim/social-identity/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	grpc     *transportgrpc.Server
	grpcAddr string
	sweeper  *usecase.CodeSweeper
	closers  []func(context.Context) error
}

func New(ctx context.Context, cfg *config.AppConfig) (_ *Application, err error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	shutdownTracing, err := telemetry.Attach(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.onClose(shutdownTracing)

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.onClose(closePool(pool))
	repos := postgresrepo.NewRepositories(pool)

	var (
		locker      port.Locker
		cacheHealth routes.CacheChecker
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.onClose(func(context.Context) error { return redisClient.Close() })
		locker = redisrepo.NewLockRepository(redisClient.Client(), cfg.Redis.KeyPrefix)
		cacheHealth = redisClient
	} else {
		log.Info("redis disabled, code sweeper runs without coordination")
	}

	events := newEventPublisher(cfg, log)
	if closer, ok := events.(interface{ Close() error }); ok {
		a.onClose(func(context.Context) error { return closer.Close() })
	}

	transport, err := newMailTransport(cfg.SMTP, log)
	if err != nil {
		return nil, fmt.Errorf("init mail transport: %w", err)
	}
	codeMailer, err := mailer.NewCodeMailer(transport, log)
	if err != nil {
		return nil, fmt.Errorf("init code mailer: %w", err)
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}

	tokens, err := security.NewSessionTokenIssuer(security.SessionTokenConfig{
		Secret:   cfg.JWT.Secret,
		TTL:      cfg.JWT.TTL,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})
	if err != nil {
		return nil, fmt.Errorf("init session tokens: %w", err)
	}

	identityMetrics, err := telemetry.NewIdentityMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("init identity metrics: %w", err)
	}

	opts := []usecase.Option{
		usecase.WithLogger(log),
		usecase.WithMetrics(identityMetrics),
		usecase.WithEventPublisher(events),
	}

	codes, err := usecase.NewCodeService(repos.Users, security.NewNumericCodeGenerator(cfg.OTP.Length), codeMailer, cfg.OTP.TTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("init code service: %w", err)
	}
	verifier, err := usecase.NewVerificationEngine(repos.Users, opts...)
	if err != nil {
		return nil, fmt.Errorf("init verification engine: %w", err)
	}
	identity, err := usecase.NewIdentityService(repos.Users, hasher, security.NewPasswordPolicy(), codes, verifier, tokens, opts...)
	if err != nil {
		return nil, fmt.Errorf("init identity service: %w", err)
	}
	a.sweeper, err = usecase.NewCodeSweeper(repos.Users, locker, cfg.Redis.CleanupLockKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("init code sweeper: %w", err)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}
	grpcMetrics, err := grpcinterceptors.NewGRPCMetrics(grpcinterceptors.GRPCMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init grpc metrics: %w", err)
	}

	a.engine = routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Identity: identity,
		Tokens:   tokens,
		Metrics:  httpMetrics,
		Gatherer: prometheus.DefaultGatherer,
		Database: pool,
		Cache:    cacheHealth,
	})

	if cfg.GRPC.Port > 0 {
		a.grpc = transportgrpc.NewServer(transportgrpc.ServerDependencies{Logger: log, Metrics: grpcMetrics})
		a.grpcAddr = net.JoinHostPort(cfg.GRPC.Host, fmt.Sprint(cfg.GRPC.Port))
	}

	return a, nil
}

func newEventPublisher(cfg *config.AppConfig, log *zap.Logger) port.EventPublisher {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}
	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return &closingPublisher{EventPublisher: kafkainfra.NewEventPublisher(producer, cfg.App, log), producer: producer}
}

// closingPublisher ties the producer lifetime to the publisher handed to use cases.
type closingPublisher struct {
	*kafkainfra.EventPublisher
	producer *kafkainfra.Producer
}

func (p *closingPublisher) Close() error { return p.producer.Close() }

func newMailTransport(cfg config.SMTPSettings, log *zap.Logger) (mailer.Transport, error) {
	if cfg.Host == "" {
		log.Warn("smtp host not configured, verification codes will only be logged")
		return mailer.NewLogTransport(log), nil
	}
	return mailer.NewSMTPTransport(mailer.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		FromName: cfg.FromName,
		Secure:   cfg.Secure,
		Timeout:  cfg.Timeout,
	})
}

func closePool(pool *pgxpool.Pool) func(context.Context) error {
	return func(context.Context) error {
		pool.Close()
		return nil
	}
}

func (a *Application) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// close runs the registered closers in reverse order.
func (a *Application) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
	a.closers = nil
}

// Run serves HTTP and gRPC and runs the code sweeper until ctx is cancelled or a server fails.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	errCh := make(chan error, 2)

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		a.sweeper.Run(runCtx, a.cfg.OTP.CleanupInterval)
	}()

	if a.grpc != nil {
		lis, err := net.Listen("tcp", a.grpcAddr)
		if err != nil {
			stop()
			<-sweeperDone
			a.close(context.Background())
			return fmt.Errorf("listen grpc: %w", err)
		}
		a.logger.Info("starting gRPC health server", zap.String("address", a.grpcAddr))
		go func() {
			if err := a.grpc.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(a.cfg.App.Host, fmt.Sprint(a.cfg.App.Port)),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server failed", zap.Error(runErr))
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.grpc != nil {
		a.grpc.SetServing(false)
		a.grpc.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("shutdown server: %w", err)
	}
	<-sweeperDone
	a.close(shutdownCtx)

	return runErr
}
