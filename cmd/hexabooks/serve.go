package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davicafu/hexabooks/internal/book/application"
	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	bookEvents "github.com/davicafu/hexabooks/internal/book/infra/inbound/events"
	bookHttp "github.com/davicafu/hexabooks/internal/book/infra/inbound/http"
	bookAnalytics "github.com/davicafu/hexabooks/internal/book/infra/outbound/analytics/clickhouse"
	"github.com/davicafu/hexabooks/internal/config"
	sharedEvents "github.com/davicafu/hexabooks/internal/shared/infra/events"
	sharedBus "github.com/davicafu/hexabooks/internal/shared/infra/platform/bus"
	sharedCache "github.com/davicafu/hexabooks/internal/shared/infra/platform/cache"
	"github.com/davicafu/hexabooks/internal/shared/infra/platform/cursor"
	"github.com/davicafu/hexabooks/internal/shared/infra/platform/metrics"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"
	"github.com/davicafu/hexabooks/internal/shared/infra/platform/ratelimit"
	"github.com/davicafu/hexabooks/internal/shared/infra/relayer"
)

const shutdownTimeout = 10 * time.Second

func newBookService(cfg *config.Config, store *storage, cache sharedCache.Cache, log *zap.Logger) *application.BookService {
	codec := cursor.NewCodec(cursor.Config{Secret: cfg.CursorSecret, MaxAge: cfg.CursorMaxAge}, log)
	limits := sharedQuery.Limits{Default: cfg.PageDefaultLimit, Max: cfg.PageMaxLimit}
	return application.NewBookService(store.books, cache, codec, limits, log, application.WithCacheTTL(cfg.CacheTTL))
}

func runServe(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// ---------------- DB ----------------
	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close(context.Background())

	// ---------------- Cache ----------------
	cache, closeCache := openCache(ctx, cfg, log)
	defer closeCache()

	// --------------- Servicio --------------
	service := newBookService(cfg, store, cache, log)

	// ---------------- Analytics ---------------
	var analytics bookDomain.BookAnalyticsRepository
	var consumer *bookEvents.BookConsumer
	if cfg.ClickHouseAddr != "" {
		repo, err := bookAnalytics.NewBookAnalyticsRepo(ctx, cfg.ClickHouseAddr, cfg.ClickHouseDatabase)
		if err != nil {
			return err
		}
		defer repo.Close()
		if err := repo.InitSchema(ctx); err != nil {
			return err
		}
		analytics = repo
		consumer = bookEvents.NewBookConsumer(repo, cfg.AnalyticsBatchSize, cfg.AnalyticsFlushPeriod, log)
		consumer.Start(ctx)
		log.Info("ClickHouse analytics enabled", zap.String("addr", cfg.ClickHouseAddr))
	} else {
		log.Info("ClickHouse not configured, analytics disabled")
	}

	// ---------------- Events ---------------
	var publisher sharedBus.EventBus
	if cfg.UseKafka {
		log.Info("Using Kafka as event bus", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))

		// Balanceo por clave: los eventos de un mismo libro van a la misma partición.
		writer := &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Topic:    cfg.KafkaTopic,
			Balancer: &kafka.Hash{},
		}
		defer writer.Close()
		publisher = sharedEvents.NewKafkaPublisher(writer, log)

		if consumer != nil {
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:  cfg.KafkaBrokers,
				Topic:    cfg.KafkaTopic,
				GroupID:  cfg.KafkaGroupID,
				MinBytes: 10e3, // 10KB
				MaxBytes: 10e6, // 10MB
			})
			defer reader.Close()
			sharedEvents.NewConsumerAdapter(reader, consumer, log).Start(ctx)
		}
	} else {
		log.Info("Using in-memory event bus")
		bus := sharedEvents.NewInMemoryEventBus(bookDomain.BookTopic, log)
		publisher = bus
		if consumer != nil {
			sharedEvents.BackgroundConsumerChan(ctx, bus.Subscribe(cfg.AnalyticsBatchSize), consumer)
		}
	}

	// ------------ Outbox Worker ------------
	worker := relayer.NewOutboxWorker(store.outbox, publisher, bookDomain.NewEventRegistry(), cfg.OutboxPeriod, cfg.OutboxLimit, log)
	go worker.Start(ctx)

	// ---------------- HTTP ----------------
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	m := metrics.NewMetrics()
	handler := bookHttp.NewBookHandler(service, analytics, m, log)
	router := bookHttp.NewRouter(handler, bookHttp.RouterOptions{
		Metrics:     m,
		Log:         log,
		GlobalLimit: ratelimit.Middleware(ratelimit.NewTokenBucketLimiter(cfg.RateLimitWindow, cfg.RateLimitMaxRequests)),
		SearchLimit: ratelimit.Middleware(ratelimit.NewTokenBucketLimiter(cfg.RateLimitWindow, cfg.RateLimitSearchMaxRequests)),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server running", zap.String("url", "http://localhost:"+cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
