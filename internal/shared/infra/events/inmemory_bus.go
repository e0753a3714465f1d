package events

import (
	"context"
	"encoding/json"
	"sync"

	sharedBus "github.com/davicafu/hexabooks/internal/shared/infra/platform/bus"
	"go.uber.org/zap"
)

// InMemoryEventBus implementa un bus de eventos para UN solo topic.
// Los eventos viajan serializados, igual que por Kafka.
type InMemoryEventBus struct {
	subscribers []chan []byte
	mu          sync.RWMutex
	topic       string
	log         *zap.Logger
}

// Verifica en tiempo de compilación que cumple la interfaz
var _ sharedBus.EventBus = (*InMemoryEventBus)(nil)

// NewInMemoryEventBus crea un bus de eventos para un topic específico.
func NewInMemoryEventBus(topic string, log *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{topic: topic, log: log}
}

// Publish envía el evento a todos los suscriptores. Si el buffer de un suscriptor
// está lleno el mensaje se descarta para ese suscriptor.
func (b *InMemoryEventBus) Publish(ctx context.Context, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub <- payload:
		default:
			b.log.Warn("In-memory subscriber is full, event dropped", zap.String("topic", b.topic))
		}
	}
	return nil
}

// Subscribe suscribe un nuevo oyente a este bus.
func (b *InMemoryEventBus) Subscribe(bufferSize int) <-chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []byte, bufferSize)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// BackgroundConsumerChan entrega a handler los mensajes de un canal hasta que se cancela ctx.
func BackgroundConsumerChan(ctx context.Context, ch <-chan []byte, handler MessageHandler) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-ch:
				if !ok {
					return
				}
				// La 'key' no es relevante en el bus en memoria.
				handler.HandleMessage(ctx, "", payload)
			}
		}
	}()
}
