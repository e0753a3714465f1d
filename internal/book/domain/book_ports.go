package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	"github.com/davicafu/hexabooks/internal/shared/infra/platform/cursor"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"
	"github.com/google/uuid"
)

var (
	ErrBookNotFound  = errors.New("book not found")
	ErrDuplicateISBN = errors.New("a book with this isbn already exists")
	ErrInvalidBook   = errors.New("invalid book")
	ErrInvalidSearch = errors.New("invalid search")

	// Errores de paginación, reexportados para que las capas superiores no dependan de la infra.
	ErrInvalidCursor = cursor.ErrInvalidCursor
	ErrInvalidSort   = sharedQuery.ErrInvalidSort
)

// --- Repositorio de Books ---

// BookRepository persiste libros. Las escrituras guardan el evento de outbox en la misma transacción.
type BookRepository interface {
	// Create asigna b.ID.
	Create(ctx context.Context, b *Book, evt sharedDomain.OutboxEvent) error
	Update(ctx context.Context, b *Book, evt sharedDomain.OutboxEvent) error
	DeleteByBookID(ctx context.Context, id uuid.UUID, evt sharedDomain.OutboxEvent) error
	GetByBookID(ctx context.Context, id uuid.UUID) (*Book, error)
	GetByISBN(ctx context.Context, isbn string) (*Book, error)
	// Search ejecuta la consulta tal cual: criterios, orden total y límite ya resueltos.
	Search(ctx context.Context, q sharedQuery.Query) ([]*Book, error)
	Count(ctx context.Context) (int64, error)
}

// DTO para transportar la actividad diaria del catálogo.
type DailyBookActivity struct {
	Day          time.Time `json:"day"`
	CreatedCount int       `json:"created"`
	UpdatedCount int       `json:"updated"`
	DeletedCount int       `json:"deleted"`
}

// BookActivity es una entrada del log de analítica.
// EventID permite descartar entregas repetidas del mismo evento.
type BookActivity struct {
	EventID   string
	EventType string
	Book      Book
	EventTime time.Time
}

type BookAnalyticsRepository interface {
	LogBatch(ctx context.Context, activity []BookActivity) error
	GetDailyActivity(ctx context.Context, start, end time.Time) ([]DailyBookActivity, error)
}

// ---------- Helpers comunes (cache keys, etc.) ----------

func BookCacheKeyByID(id uuid.UUID) string {
	return fmt.Sprintf("book:id:%s", id.String())
}
