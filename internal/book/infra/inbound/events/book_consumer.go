package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"

	// --- Importaciones compartidas ---
	sharedEvents "github.com/davicafu/hexabooks/internal/shared/domain/events"
	sharedInfraEvents "github.com/davicafu/hexabooks/internal/shared/infra/events"
	sharedUtils "github.com/davicafu/hexabooks/internal/shared/infra/utils"
)

const flushTimeout = 2 * time.Second

// BookConsumer traduce los eventos de libros a actividad de analítica.
// Acumula en memoria y vuelca por lotes: por tamaño, por tiempo o al parar.
type BookConsumer struct {
	analytics     bookDomain.BookAnalyticsRepository
	batchSize     int
	flushInterval time.Duration
	log           *zap.Logger

	mu     sync.Mutex
	buffer []bookDomain.BookActivity
}

// NewBookConsumer es el constructor.
func NewBookConsumer(analytics bookDomain.BookAnalyticsRepository, batchSize int, flushInterval time.Duration, logger *zap.Logger) *BookConsumer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BookConsumer{
		analytics:     analytics,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		log:           logger,
	}
}

// HandleMessage es el punto de entrada para un nuevo mensaje/evento.
func (c *BookConsumer) HandleMessage(ctx context.Context, key string, payload []byte) {
	var base sharedEvents.IntegrationEvent
	if err := json.Unmarshal(payload, &base); err != nil {
		c.log.Warn("Failed to unmarshal integration event for book", zap.String("key", key), zap.Error(err))
		return
	}

	switch base.Type {
	case bookDomain.BookCreated, bookDomain.BookUpdated, bookDomain.BookDeleted:
		sharedUtils.UnmarshalAndHandle(c.log, base.Data, func(book bookDomain.Book) {
			c.enqueue(ctx, bookDomain.BookActivity{
				EventID:   base.ID,
				EventType: base.Type,
				Book:      book,
				EventTime: base.Timestamp.UTC(),
			})
		})

	default:
		c.log.Warn("Unknown book event type", zap.String("type", base.Type), zap.String("key", key))
	}
}

func (c *BookConsumer) enqueue(ctx context.Context, activity bookDomain.BookActivity) {
	c.mu.Lock()
	c.buffer = append(c.buffer, activity)
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if full {
		c.Flush(ctx)
	}
}

// Flush vuelca lo acumulado. Si ClickHouse falla, el lote vuelve al buffer para el siguiente intento.
func (c *BookConsumer) Flush(ctx context.Context) {
	c.mu.Lock()
	batch := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()

	if err := c.analytics.LogBatch(flushCtx, batch); err != nil {
		c.log.Warn("Failed to flush book activity", zap.Int("batch", len(batch)), zap.Error(err))
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		c.mu.Unlock()
		return
	}
	c.log.Debug("Book activity flushed", zap.Int("batch", len(batch)))
}

// Pending devuelve cuántas actividades esperan volcado.
func (c *BookConsumer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Start lanza el volcado periódico. Al cancelar ctx se hace un último volcado.
func (c *BookConsumer) Start(ctx context.Context) {
	if c.flushInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				c.Flush(ctx)
				c.log.Info("BookConsumer stopped")
				return
			case <-ticker.C:
				c.Flush(ctx)
			}
		}
	}()
}

// Verificación estática
var _ sharedInfraEvents.MessageHandler = (*BookConsumer)(nil)
