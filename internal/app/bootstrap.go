package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gunvolt24/amqp_receiver/config"
	s3archive "github.com/Gunvolt24/amqp_receiver/internal/archive/s3"
	cachemem "github.com/Gunvolt24/amqp_receiver/internal/cache/memory"
	"github.com/Gunvolt24/amqp_receiver/internal/kafka"
	"github.com/Gunvolt24/amqp_receiver/internal/ports"
	"github.com/Gunvolt24/amqp_receiver/internal/rabbitmq"
	"github.com/Gunvolt24/amqp_receiver/internal/repo/postgres"
	rest "github.com/Gunvolt24/amqp_receiver/internal/transport/http"
	"github.com/Gunvolt24/amqp_receiver/internal/usecase"
	"github.com/Gunvolt24/amqp_receiver/pkg/logger"
	"github.com/Gunvolt24/amqp_receiver/pkg/metrics"
	"github.com/Gunvolt24/amqp_receiver/pkg/telemetry"
	"github.com/gin-gonic/gin"
)

// App — собранное приложение и его внешние интерфейсы (HTTP, приёмник AMQP).
type App struct {
	Logger          ports.Logger   // логгер
	HTTPServer      *http.Server   // HTTP-сервер
	Receiver        ports.Receiver // приёмник сообщений из очереди
	AutoStart       bool           // запускать приёмник вместе с сервисом
	gracefulTimeout time.Duration  // время ожидания завершения HTTP-сервера
	stopTimeout     time.Duration  // время ожидания остановки приёмника
}

// Cleanup — функция освобождения ресурсов.
type Cleanup func()

// closers — освобождение ресурсов в порядке, обратном созданию.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// applyGinMode — устанавливает режим Gin по строке;
// неизвестное значение → debug и предупреждение в лог.
func applyGinMode(ctx context.Context, mode string, log ports.Logger) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	case "", "debug":
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.DebugMode)
		log.Warnf(ctx, "unknown GIN_MODE=%q, fallback to debug", mode)
	}
}

// receiverConfig — config.AMQP → rabbitmq.Config.
func receiverConfig(c config.AMQP) rabbitmq.Config {
	return rabbitmq.Config{
		URI:          c.URI,
		Queue:        c.Queue,
		Consumers:    c.Consumers,
		Prefetch:     c.Prefetch,
		DrainTimeout: c.DrainTimeout,
		Heartbeat:    c.Heartbeat,
		AckMode:      rabbitmq.AckMode(c.AckMode),
		ConsumerTag:  c.ConsumerTag,
	}
}

// Bootstrap — собирает зависимости и возвращает приложение, функцию очистки и ошибку.
// Этапы конвейера (Postgres, Kafka, S3, кэш) подключаются по флагам Enabled.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, Cleanup, error) {
	// Логгер (dev/prod режим задаётся конфигурацией).
	logg, cleanupLogger, err := logger.NewZapLogger(cfg.Logger.IsProd)
	if err != nil {
		return nil, func() {}, err
	}

	var cl closers
	cl.add(func() {
		if cerr := cleanupLogger(); cerr != nil {
			logg.Warnf(ctx, "cleanup logger: %v", cerr)
		}
	})
	fail := func(err error) (*App, Cleanup, error) {
		cl.run()
		return nil, func() {}, err
	}

	// Регистрация метрик (Prometheus).
	metrics.MustRegister()

	// Трейсинг OTEL (при включённой конфигурации); по умолчанию — no-op.
	if cfg.Tracing.Enabled {
		shutdownTrace, tErr := telemetry.SetupTracing(ctx, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
		if tErr != nil {
			logg.Warnf(ctx, "failed to setup tracing: %v", tErr)
		} else {
			logg.Infof(ctx, "otel tracing enabled service=%s endpoint=%s sample=%.2f",
				cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
			cl.add(func() {
				if terr := shutdownTrace(context.Background()); terr != nil {
					logg.Warnf(ctx, "shutdown tracing: %v", terr)
				}
			})
		}
	}

	var stages usecase.Stages

	// Postgres: миграции, пул, репозиторий.
	if cfg.Postgres.Enabled {
		if cfg.Postgres.AutoMigrate {
			if err := postgres.Migrate(ctx, cfg.Postgres.DSN); err != nil {
				return fail(fmt.Errorf("postgres migrate: %w", err))
			}
			logg.Infof(ctx, "postgres migrations applied")
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return fail(fmt.Errorf("postgres pool: %w", err))
		}
		cl.add(pool.Close)
		stages.Repo = postgres.NewEventRepository(pool)
	}

	// Kafka: пересылка payload дальше по конвейеру.
	if cfg.Kafka.Enabled {
		publisher, err := kafka.NewPublisher(&kafka.PublisherConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			WriteTimeout: cfg.Kafka.WriteTimeout,
			RetryInitial: cfg.Kafka.RetryInitial,
			RetryMax:     cfg.Kafka.RetryMax,
			MaxAttempts:  cfg.Kafka.MaxAttempts,
		}, logg)
		if err != nil {
			return fail(fmt.Errorf("kafka publisher: %w", err))
		}
		cl.add(func() {
			if cerr := publisher.Close(); cerr != nil {
				logg.Warnf(ctx, "kafka publisher close error: %v", cerr)
			}
		})
		stages.Publisher = publisher
	}

	// S3: архив сырых payload.
	if cfg.Archive.Enabled {
		archiveCfg := s3archive.Config{
			Bucket:       cfg.Archive.Bucket,
			Prefix:       cfg.Archive.Prefix,
			Region:       cfg.Archive.Region,
			Endpoint:     cfg.Archive.Endpoint,
			UsePathStyle: cfg.Archive.UsePathStyle,
		}
		client, err := s3archive.NewClient(ctx, archiveCfg)
		if err != nil {
			return fail(fmt.Errorf("s3 client: %w", err))
		}
		archive, err := s3archive.New(client, archiveCfg.Bucket, archiveCfg.Prefix)
		if err != nil {
			return fail(fmt.Errorf("s3 archive: %w", err))
		}
		stages.Archive = archive
	}

	if cfg.Cache.Enabled {
		stages.Cache = cachemem.NewLRUCacheTTL(cfg.Cache.Capacity, cfg.Cache.TTL)
	}

	eventService := usecase.NewEventService(stages, logg, cfg.AMQP.Queue)

	// Прогрев кэша
	if err := eventService.WarmUpCache(ctx, cfg.Cache.WarmUpN); err != nil {
		logg.Warnf(ctx, "warm-up cache failed: %v", err)
	}

	receiver, err := rabbitmq.NewReceiver(receiverConfig(cfg.AMQP), nil, eventService, logg)
	if err != nil {
		return fail(err)
	}

	// Режим Gin.
	applyGinMode(ctx, cfg.HTTP.GinMode, logg)

	// Имя сервиса для otelgin (только при включённом трейсинге).
	otelServiceName := ""
	if cfg.Tracing.Enabled {
		otelServiceName = cfg.Tracing.ServiceName
	}

	// Роутер и HTTP-сервер.
	httpHandler := rest.NewHandler(eventService, receiver, logg, cfg.HTTP.HandlerTimeout)
	router := rest.NewRouter(httpHandler, otelServiceName)

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	app := &App{
		Logger:          logg,
		HTTPServer:      httpSrv,
		Receiver:        receiver,
		AutoStart:       cfg.AMQP.AutoStart,
		gracefulTimeout: cfg.HTTP.GracefulTimeout,
		stopTimeout:     receiver.Config().DrainTimeout + 5*time.Second,
	}

	return app, cl.run, nil
}

// Run — запускает HTTP-сервер и приёмник; ждёт отмены контекста, ошибки сервера
// или отказа приёмника (потеря соединения) и останавливает их.
// Отказ приёмника возвращается как ошибка: сервис завершается, перезапуском управляет оркестратор.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	// Запуск HTTP-сервера.
	go func() {
		a.Logger.Infof(ctx, "http server starting (addr=%s)", a.HTTPServer.Addr)
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	// Запуск приёмника.
	if a.AutoStart {
		a.Logger.Infof(ctx, "receiver starting: %s", a.Receiver.DisplayName())
		if err := a.Receiver.Start(ctx); err != nil {
			a.Logger.Errorf(ctx, "receiver start failed: %v", err)
			runErr = fmt.Errorf("start receiver: %w", err)
		}
	}

	// Ожидание сигнала остановки или фоновой ошибки.
	if runErr == nil {
		select {
		case <-ctx.Done():
			a.Logger.Infof(ctx, "shutdown requested, starting graceful shutdown")
		case err := <-errCh:
			a.Logger.Warnf(ctx, "http server error: %v", err)
			runErr = err
		case err := <-a.Receiver.Failures():
			a.Logger.Errorf(ctx, "receiver failed: %v", err)
			runErr = err
		}
	}

	gt := a.gracefulTimeout
	if gt <= 0 {
		gt = 5 * time.Second
	}

	// Корректная остановка HTTP-сервера.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gt)
	defer cancel()

	if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
		a.Logger.Warnf(ctx, "http server shutdown failed: %v", err)
	} else {
		a.Logger.Infof(ctx, "http server stopped gracefully")
	}

	// Остановка приёмника: дожидаемся обработки принятых доставок.
	st := a.stopTimeout
	if st <= 0 {
		st = rabbitmq.DefaultDrainTimeout + 5*time.Second
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), st)
	defer stopCancel()

	if err := a.Receiver.Stop(stopCtx); err != nil {
		a.Logger.Warnf(ctx, "receiver stop: %v", err)
	} else {
		a.Logger.Infof(ctx, "receiver stopped")
	}

	a.Logger.Infof(ctx, "service stopped")
	return runErr
}
