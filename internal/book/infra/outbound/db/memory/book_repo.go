package memory

import (
	"context"
	"encoding/json"
	"sync"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"
	"github.com/google/uuid"
)

// BookRepoMemory implementa BookRepository y OutboxRepository en memoria.
// Guarda copias: los punteros devueltos no comparten estado con el repositorio.
type BookRepoMemory struct {
	mu     sync.RWMutex
	books  map[uuid.UUID]*bookDomain.Book
	nextID int64
	outbox []sharedDomain.OutboxEvent
}

var (
	_ bookDomain.BookRepository     = (*BookRepoMemory)(nil)
	_ sharedDomain.OutboxRepository = (*BookRepoMemory)(nil)
)

func NewBookRepoMemory() *BookRepoMemory {
	return &BookRepoMemory{books: make(map[uuid.UUID]*bookDomain.Book)}
}

func (r *BookRepoMemory) Create(ctx context.Context, b *bookDomain.Book, evt sharedDomain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isbnTaken(b.ISBN, b.BookID) {
		return bookDomain.ErrDuplicateISBN
	}
	r.nextID++
	b.ID = r.nextID

	stored := *b
	r.books[b.BookID] = &stored
	return r.appendOutbox(evt)
}

func (r *BookRepoMemory) Update(ctx context.Context, b *bookDomain.Book, evt sharedDomain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.books[b.BookID]
	if !ok {
		return bookDomain.ErrBookNotFound
	}
	if r.isbnTaken(b.ISBN, b.BookID) {
		return bookDomain.ErrDuplicateISBN
	}

	stored := *b
	// id y created_at son inmutables
	stored.ID = current.ID
	stored.CreatedAt = current.CreatedAt
	r.books[b.BookID] = &stored
	return r.appendOutbox(evt)
}

func (r *BookRepoMemory) DeleteByBookID(ctx context.Context, id uuid.UUID, evt sharedDomain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.books[id]; !ok {
		return bookDomain.ErrBookNotFound
	}
	delete(r.books, id)
	return r.appendOutbox(evt)
}

func (r *BookRepoMemory) GetByBookID(ctx context.Context, id uuid.UUID) (*bookDomain.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.books[id]
	if !ok {
		return nil, bookDomain.ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *BookRepoMemory) GetByISBN(ctx context.Context, isbn string) (*bookDomain.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.books {
		if b.ISBN != nil && *b.ISBN == isbn {
			cp := *b
			return &cp, nil
		}
	}
	return nil, bookDomain.ErrBookNotFound
}

// Search evalúa criterios, orden y límite con el evaluador compartido.
func (r *BookRepoMemory) Search(ctx context.Context, q sharedQuery.Query) ([]*bookDomain.Book, error) {
	r.mu.RLock()
	snapshot := make([]*bookDomain.Book, 0, len(r.books))
	for _, b := range r.books {
		cp := *b
		snapshot = append(snapshot, &cp)
	}
	r.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return sharedQuery.Apply(snapshot, q, bookDomain.BookField)
}

func (r *BookRepoMemory) Count(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.books)), nil
}

// --- OutboxRepository ---

func (r *BookRepoMemory) FetchPendingOutbox(ctx context.Context, limit int) ([]sharedDomain.OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []sharedDomain.OutboxEvent
	for _, evt := range r.outbox {
		if evt.Processed {
			continue
		}
		pending = append(pending, evt)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (r *BookRepoMemory) MarkOutboxProcessed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.outbox {
		if r.outbox[i].ID == id {
			r.outbox[i].Processed = true
			return nil
		}
	}
	return nil
}

// Outbox devuelve una copia de todos los eventos, procesados o no.
func (r *BookRepoMemory) Outbox() []sharedDomain.OutboxEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]sharedDomain.OutboxEvent(nil), r.outbox...)
}

// appendOutbox congela el payload como JSON, igual que los adapters SQL.
func (r *BookRepoMemory) appendOutbox(evt sharedDomain.OutboxEvent) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	evt.Payload = json.RawMessage(payload)
	r.outbox = append(r.outbox, evt)
	return nil
}

func (r *BookRepoMemory) isbnTaken(isbn *string, self uuid.UUID) bool {
	if isbn == nil {
		return false
	}
	for id, b := range r.books {
		if id != self && b.ISBN != nil && *b.ISBN == *isbn {
			return true
		}
	}
	return false
}
