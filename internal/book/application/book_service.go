// en internal/book/application/book_service.go
package application

import (
	"context"
	"errors"
	"time"

	// --- Importaciones del dominio y compartidas ---
	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedCache "github.com/davicafu/hexabooks/internal/shared/infra/platform/cache"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"
	sharedUtils "github.com/davicafu/hexabooks/internal/shared/infra/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultCacheTTL = 60

// BookService define los casos de uso del catálogo.
// Incorpora repositorio, caché, paginador y logger.
type BookService struct {
	repo      bookDomain.BookRepository
	cache     sharedCache.Cache
	paginator *sharedQuery.Paginator[*bookDomain.Book]
	cacheTTL  int
	log       *zap.Logger
}

// Option configura el servicio.
type Option func(*BookService)

// WithCacheTTL fija el TTL (en segundos) de las entradas de caché.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *BookService) {
		if secs := int(ttl / time.Second); secs > 0 {
			s.cacheTTL = secs
		}
	}
}

// NewBookService es el constructor para el servicio de libros.
func NewBookService(
	repo bookDomain.BookRepository,
	cache sharedCache.Cache,
	codec sharedQuery.CursorCodec,
	limits sharedQuery.Limits,
	log *zap.Logger,
	opts ...Option,
) *BookService {
	s := &BookService{
		repo:      repo,
		cache:     cache,
		paginator: sharedQuery.NewPaginator(codec, bookDomain.BookSchema(), limits),
		cacheTTL:  defaultCacheTTL,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBook valida el libro, comprueba el ISBN, guarda libro + outbox y actualiza la caché.
func (s *BookService) CreateBook(ctx context.Context, in bookDomain.BookInput) (*bookDomain.Book, error) {
	book, err := bookDomain.NewBook(in, bookDomain.Now())
	if err != nil {
		return nil, err
	}

	if err := s.ensureISBNAvailable(ctx, book.ISBN, uuid.Nil); err != nil {
		return nil, err
	}

	// El payload es la entidad completa
	evt := sharedDomain.NewOutboxEvent(bookDomain.BookAggregate, book.BookID.String(), bookDomain.BookCreated, book)

	if err := s.repo.Create(ctx, book, evt); err != nil {
		s.logWriteError("Failed to create book", book.BookID, err)
		return nil, err
	}

	s.log.Info("Book created",
		zap.String("book_id", book.BookID.String()),
		zap.Int64("id", book.ID))

	// Actualizar caché en segundo plano
	sharedCache.AsyncCacheSet(ctx, s.cache, bookDomain.BookCacheKeyByID(book.BookID), book, s.cacheTTL, s.log)

	return book, nil
}

// GetBook obtiene un libro, usando el patrón cache-aside con reintentos.
func (s *BookService) GetBook(ctx context.Context, id uuid.UUID) (*bookDomain.Book, error) {
	// 1. Intentar obtener de la caché
	if s.cache != nil {
		var b bookDomain.Book
		if hit, _ := s.cache.Get(ctx, bookDomain.BookCacheKeyByID(id), &b); hit {
			return &b, nil
		}
	}

	// 2. Si es 'miss', ir al repositorio. Un not found no se reintenta.
	var book *bookDomain.Book
	err := sharedUtils.RetryIf(ctx, 3, 100*time.Millisecond, isTransient, func() error {
		var errRetry error
		book, errRetry = s.repo.GetByBookID(ctx, id)
		return errRetry
	})

	if err != nil {
		if errors.Is(err, bookDomain.ErrBookNotFound) {
			s.log.Debug("Book not found", zap.String("book_id", id.String()))
		} else {
			s.log.Error("Failed to fetch book", zap.String("book_id", id.String()), zap.Error(err))
		}
		return nil, err
	}

	// 3. Actualizar caché en segundo plano para la próxima vez
	sharedCache.AsyncCacheSet(ctx, s.cache, bookDomain.BookCacheKeyByID(book.BookID), book, s.cacheTTL, s.log)

	return book, nil
}

// UpdateBook aplica una actualización parcial. Solo los campos presentes cambian.
func (s *BookService) UpdateBook(ctx context.Context, id uuid.UUID, patch bookDomain.BookPatch) (*bookDomain.Book, error) {
	book, err := s.repo.GetByBookID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.ISBN != nil && (book.ISBN == nil || *book.ISBN != *patch.ISBN) {
		if err := s.ensureISBNAvailable(ctx, patch.ISBN, book.BookID); err != nil {
			return nil, err
		}
	}

	if err := book.Apply(patch, bookDomain.Now()); err != nil {
		return nil, err
	}

	evt := sharedDomain.NewOutboxEvent(bookDomain.BookAggregate, book.BookID.String(), bookDomain.BookUpdated, book)

	if err := s.repo.Update(ctx, book, evt); err != nil {
		s.logWriteError("Failed to update book", book.BookID, err)
		return nil, err
	}

	sharedCache.AsyncCacheSet(ctx, s.cache, bookDomain.BookCacheKeyByID(book.BookID), book, s.cacheTTL, s.log)

	return book, nil
}

// DeleteBook elimina un libro, crea el evento y limpia la caché.
func (s *BookService) DeleteBook(ctx context.Context, id uuid.UUID) error {
	book, err := s.repo.GetByBookID(ctx, id)
	if err != nil {
		return err
	}

	evt := sharedDomain.NewOutboxEvent(bookDomain.BookAggregate, id.String(), bookDomain.BookDeleted, book)

	if err := s.repo.DeleteByBookID(ctx, id, evt); err != nil {
		s.logWriteError("Failed to delete book", id, err)
		return err
	}

	// Eliminar de la caché en segundo plano
	sharedCache.AsyncCacheDelete(ctx, s.cache, bookDomain.BookCacheKeyByID(id), s.log)

	return nil
}

// SearchBooks devuelve una página de libros. Los errores de cursor y de orden se propagan tal cual;
// los del almacenamiento llegan envueltos en ErrStorage y no se reintentan.
func (s *BookService) SearchBooks(ctx context.Context, opts bookDomain.SearchOptions) (sharedQuery.Page[*bookDomain.Book], error) {
	if err := opts.Filters.Validate(); err != nil {
		return sharedQuery.Page[*bookDomain.Book]{}, err
	}

	page, err := s.paginator.Paginate(ctx, opts.Spec(), s.repo.Search)
	if err != nil {
		if errors.Is(err, sharedQuery.ErrStorage) {
			s.log.Error("Book search failed", zap.Error(err))
		}
		return sharedQuery.Page[*bookDomain.Book]{}, err
	}
	return page, nil
}

// ImportResult resume una carga masiva.
type ImportResult struct {
	Created int
	Skipped int
}

// ImportBooks da de alta cada entrada. Las inválidas o con ISBN repetido se saltan;
// cualquier otro error corta la carga.
func (s *BookService) ImportBooks(ctx context.Context, inputs []bookDomain.BookInput) (ImportResult, error) {
	var res ImportResult
	for i, in := range inputs {
		_, err := s.CreateBook(ctx, in)
		switch {
		case err == nil:
			res.Created++
		case errors.Is(err, bookDomain.ErrInvalidBook), errors.Is(err, bookDomain.ErrDuplicateISBN):
			s.log.Warn("Skipping book on import", zap.Int("index", i), zap.String("title", in.Title), zap.Error(err))
			res.Skipped++
		default:
			return res, err
		}
	}
	s.log.Info("Books imported", zap.Int("created", res.Created), zap.Int("skipped", res.Skipped))
	return res, nil
}

// SortColumns lista los valores admitidos en sort_by.
func (s *BookService) SortColumns() []string {
	return s.paginator.SortColumns()
}

// CountBooks es un pass-through al repositorio.
func (s *BookService) CountBooks(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// ensureISBNAvailable falla con ErrDuplicateISBN si otro libro distinto de 'self' usa el ISBN.
func (s *BookService) ensureISBNAvailable(ctx context.Context, isbn *string, self uuid.UUID) error {
	if isbn == nil {
		return nil
	}
	existing, err := s.repo.GetByISBN(ctx, *isbn)
	switch {
	case errors.Is(err, bookDomain.ErrBookNotFound):
		return nil
	case err != nil:
		return err
	case existing.BookID != self:
		return bookDomain.ErrDuplicateISBN
	}
	return nil
}

func (s *BookService) logWriteError(msg string, id uuid.UUID, err error) {
	if errors.Is(err, bookDomain.ErrDuplicateISBN) || errors.Is(err, bookDomain.ErrBookNotFound) {
		s.log.Debug(msg, zap.String("book_id", id.String()), zap.Error(err))
		return
	}
	s.log.Error(msg, zap.String("book_id", id.String()), zap.Error(err))
}

func isTransient(err error) bool {
	return !errors.Is(err, bookDomain.ErrBookNotFound) && !errors.Is(err, context.Canceled)
}
