package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	sharedBus "github.com/davicafu/hexabooks/internal/shared/infra/platform/bus"
	"github.com/google/uuid"
)

const (
	MaxTitleLength  = 500
	MaxAuthorLength = 255
	MaxISBNLength   = 50
	MinRating       = 1.0
	MaxRating       = 5.0
)

// Book es el agregado del catálogo.
// ID es la clave sustituta interna (monótona, desempate del keyset); BookID es la identidad pública.
type Book struct {
	ID        int64     `json:"-"`
	BookID    uuid.UUID `json:"book_id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	ISBN      *string   `json:"isbn,omitempty"`
	Pages     *int      `json:"pages,omitempty"`
	Rating    *float64  `json:"rating,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BookInput son los datos necesarios para crear un libro.
type BookInput struct {
	Title  string
	Author string
	ISBN   *string
	Pages  *int
	Rating *float64
}

// BookPatch es una actualización parcial: los campos nil no se modifican.
type BookPatch struct {
	Title  *string
	Author *string
	ISBN   *string
	Pages  *int
	Rating *float64
}

// Now devuelve la hora actual en UTC truncada a milisegundos, la precisión que
// conservan todos los almacenamientos y el cursor.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewBook crea y valida un libro nuevo.
func NewBook(in BookInput, now time.Time) (*Book, error) {
	now = now.UTC().Truncate(time.Millisecond)
	b := &Book{
		BookID:    uuid.New(),
		Title:     strings.TrimSpace(in.Title),
		Author:    strings.TrimSpace(in.Author),
		ISBN:      trimPtr(in.ISBN),
		Pages:     in.Pages,
		Rating:    in.Rating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Apply aplica el patch y vuelve a validar. Si falla, el libro no se modifica.
func (b *Book) Apply(p BookPatch, now time.Time) error {
	next := *b
	if p.Title != nil {
		next.Title = strings.TrimSpace(*p.Title)
	}
	if p.Author != nil {
		next.Author = strings.TrimSpace(*p.Author)
	}
	if p.ISBN != nil {
		next.ISBN = trimPtr(p.ISBN)
	}
	if p.Pages != nil {
		next.Pages = p.Pages
	}
	if p.Rating != nil {
		next.Rating = p.Rating
	}
	if err := next.Validate(); err != nil {
		return err
	}
	next.UpdatedAt = now.UTC().Truncate(time.Millisecond)
	*b = next
	return nil
}

// Validate comprueba las reglas del catálogo.
func (b *Book) Validate() error {
	switch {
	case b.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidBook)
	case utf8.RuneCountInString(b.Title) > MaxTitleLength:
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidBook, MaxTitleLength)
	case b.Author == "":
		return fmt.Errorf("%w: author is required", ErrInvalidBook)
	case utf8.RuneCountInString(b.Author) > MaxAuthorLength:
		return fmt.Errorf("%w: author exceeds %d characters", ErrInvalidBook, MaxAuthorLength)
	}
	if b.ISBN != nil && (*b.ISBN == "" || utf8.RuneCountInString(*b.ISBN) > MaxISBNLength) {
		return fmt.Errorf("%w: isbn must have between 1 and %d characters", ErrInvalidBook, MaxISBNLength)
	}
	if b.Pages != nil && *b.Pages <= 0 {
		return fmt.Errorf("%w: pages must be positive", ErrInvalidBook)
	}
	if b.Rating != nil && (*b.Rating < MinRating || *b.Rating > MaxRating) {
		return fmt.Errorf("%w: rating must be between %.1f and %.1f", ErrInvalidBook, MinRating, MaxRating)
	}
	return nil
}

// RatingRank es la valoración efectiva para ordenar: los libros sin valorar cuentan como 0.
func (b *Book) RatingRank() float64 {
	if b.Rating == nil {
		return 0
	}
	return *b.Rating
}

// SearchText es el texto indexado para la búsqueda de texto completo.
func (b *Book) SearchText() string {
	return strings.ToLower(b.Title + " " + b.Author)
}

func (b *Book) PartitionKey() string {
	return b.BookID.String()
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// Verificación estática para asegurar que Book implementa la interfaz
var _ sharedBus.Keyer = (*Book)(nil)
