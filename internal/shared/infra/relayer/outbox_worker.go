package relayer

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedDomainEvents "github.com/davicafu/hexabooks/internal/shared/domain/events"
	sharedBus "github.com/davicafu/hexabooks/internal/shared/infra/platform/bus"
	"go.uber.org/zap"
)

// Worker procesa eventos pendientes de la tabla outbox de forma genérica.
// Cada evento se publica envuelto en un IntegrationEvent.
type Worker struct {
	repo          sharedDomain.OutboxRepository
	publisher     sharedBus.EventBus
	eventRegistry map[string]sharedDomainEvents.EventMetadata
	interval      time.Duration
	batchSize     int
	log           *zap.Logger
}

func NewOutboxWorker(
	repo sharedDomain.OutboxRepository,
	publisher sharedBus.EventBus,
	registry map[string]sharedDomainEvents.EventMetadata,
	interval time.Duration,
	batchSize int,
	log *zap.Logger,
) *Worker {
	return &Worker{
		repo:          repo,
		publisher:     publisher,
		eventRegistry: registry,
		interval:      interval,
		batchSize:     batchSize,
		log:           log,
	}
}

// Start inicia el bucle de polling del worker. Bloquea hasta que se cancela ctx.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("Outbox worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Outbox worker stopped")
			return
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch publica un lote de eventos pendientes y devuelve cuántos se marcaron.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	events, err := w.repo.FetchPendingOutbox(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("Failed to fetch pending outbox events", zap.Error(err))
		return 0
	}
	if len(events) > 0 {
		w.log.Debug(fmt.Sprintf("%d outbox events to process", len(events)))
	}

	published := 0
	for _, evt := range events {
		if w.publishAndMark(ctx, evt) {
			published++
		}
	}
	return published
}

func (w *Worker) publishAndMark(ctx context.Context, evt sharedDomain.OutboxEvent) bool {
	// 1. Validar el payload contra el tipo registrado
	metadata, ok := w.eventRegistry[evt.EventType]
	if !ok {
		// No se marca: queda pendiente hasta que alguien registre el tipo.
		w.log.Error("Unknown event type in registry", zap.String("event_type", evt.EventType))
		return false
	}

	payloadBytes, err := json.Marshal(evt.Payload)
	if err != nil {
		w.log.Error("Failed to encode event payload", zap.String("event_id", evt.ID.String()), zap.Error(err))
		return false
	}
	typed := reflect.New(metadata.Type).Interface()
	if err := json.Unmarshal(payloadBytes, typed); err != nil {
		w.log.Error("Failed to decode event payload", zap.String("event_id", evt.ID.String()), zap.Error(err))
		return false
	}
	data, err := json.Marshal(typed)
	if err != nil {
		w.log.Error("Failed to encode event payload", zap.String("event_id", evt.ID.String()), zap.Error(err))
		return false
	}

	// 2. Publicar el sobre de integración
	integration := sharedDomainEvents.IntegrationEvent{
		ID:          evt.ID.String(),
		Type:        evt.EventType,
		AggregateID: evt.AggregateID,
		Timestamp:   evt.CreatedAt,
		Data:        data,
	}
	if err := w.publisher.Publish(ctx, integration); err != nil {
		w.log.Warn("Failed to publish event",
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
		return false // No lo marcamos como procesado para que se reintente
	}

	// 3. Marcar como procesado en la DB
	if err := w.repo.MarkOutboxProcessed(ctx, evt.ID); err != nil {
		w.log.Warn("Failed to mark event as processed",
			zap.String("event_id", evt.ID.String()),
			zap.Error(err),
		)
		return false
	}
	w.log.Debug("Event published and marked", zap.String("event_id", evt.ID.String()), zap.String("type", evt.EventType))
	return true
}
