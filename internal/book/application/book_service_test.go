// en internal/book/application/book_service_test.go
package application

import (
	"context"
	"errors"
	"testing"
	"time"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	"github.com/davicafu/hexabooks/internal/book/infra/outbound/db/memory"
	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedCache "github.com/davicafu/hexabooks/internal/shared/infra/platform/cache"
	"github.com/davicafu/hexabooks/internal/shared/infra/platform/cursor"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

// mockRepo simula fallos del almacenamiento.
type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, b *bookDomain.Book, evt sharedDomain.OutboxEvent) error {
	return m.Called(ctx, b, evt).Error(0)
}

func (m *mockRepo) Update(ctx context.Context, b *bookDomain.Book, evt sharedDomain.OutboxEvent) error {
	return m.Called(ctx, b, evt).Error(0)
}

func (m *mockRepo) DeleteByBookID(ctx context.Context, id uuid.UUID, evt sharedDomain.OutboxEvent) error {
	return m.Called(ctx, id, evt).Error(0)
}

func (m *mockRepo) GetByBookID(ctx context.Context, id uuid.UUID) (*bookDomain.Book, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*bookDomain.Book)
	return b, args.Error(1)
}

func (m *mockRepo) GetByISBN(ctx context.Context, isbn string) (*bookDomain.Book, error) {
	args := m.Called(ctx, isbn)
	b, _ := args.Get(0).(*bookDomain.Book)
	return b, args.Error(1)
}

func (m *mockRepo) Search(ctx context.Context, q sharedQuery.Query) ([]*bookDomain.Book, error) {
	args := m.Called(ctx, q)
	b, _ := args.Get(0).([]*bookDomain.Book)
	return b, args.Error(1)
}

func (m *mockRepo) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func newCodec() *cursor.Codec {
	return cursor.NewCodec(cursor.Config{Secret: "test-secret"}, zap.NewNop())
}

func newService(repo bookDomain.BookRepository) *BookService {
	return NewBookService(repo, nil, newCodec(), sharedQuery.DefaultLimits, zap.NewNop())
}

func TestCreateBook_Success(t *testing.T) {
	// Arrange
	repo := memory.NewBookRepoMemory()
	service := newService(repo)

	// Act
	book, err := service.CreateBook(context.Background(), bookDomain.BookInput{
		Title:  "Dune",
		Author: "Frank Herbert",
		ISBN:   strPtr("978-0441013593"),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, int64(1), book.ID)

	// Verificar que se creó un evento Outbox
	outbox := repo.Outbox()
	require.Len(t, outbox, 1)
	assert.Equal(t, bookDomain.BookCreated, outbox[0].EventType)
	assert.Equal(t, book.BookID.String(), outbox[0].AggregateID)
}

func TestCreateBook_InvalidInput(t *testing.T) {
	repo := memory.NewBookRepoMemory()
	service := newService(repo)

	_, err := service.CreateBook(context.Background(), bookDomain.BookInput{Title: "", Author: "A"})

	assert.ErrorIs(t, err, bookDomain.ErrInvalidBook)
	assert.Empty(t, repo.Outbox())
}

func TestCreateBook_DuplicateISBN(t *testing.T) {
	service := newService(memory.NewBookRepoMemory())
	ctx := context.Background()

	_, err := service.CreateBook(ctx, bookDomain.BookInput{Title: "A", Author: "A", ISBN: strPtr("111")})
	require.NoError(t, err)

	_, err = service.CreateBook(ctx, bookDomain.BookInput{Title: "B", Author: "B", ISBN: strPtr("111")})
	assert.ErrorIs(t, err, bookDomain.ErrDuplicateISBN)
}

func TestGetBook_NotFoundIsNotRetried(t *testing.T) {
	repo := new(mockRepo)
	id := uuid.New()
	repo.On("GetByBookID", mock.Anything, id).Return(nil, bookDomain.ErrBookNotFound).Once()

	_, err := newService(repo).GetBook(context.Background(), id)

	assert.ErrorIs(t, err, bookDomain.ErrBookNotFound)
	repo.AssertNumberOfCalls(t, "GetByBookID", 1)
}

func TestGetBook_RetriesTransientErrors(t *testing.T) {
	repo := new(mockRepo)
	id := uuid.New()
	want := &bookDomain.Book{BookID: id, Title: "T", Author: "A"}
	repo.On("GetByBookID", mock.Anything, id).Return(nil, errors.New("connection reset")).Once()
	repo.On("GetByBookID", mock.Anything, id).Return(want, nil).Once()

	got, err := newService(repo).GetBook(context.Background(), id)

	require.NoError(t, err)
	assert.Equal(t, want, got)
	repo.AssertExpectations(t)
}

func TestGetBook_CacheAside(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBookRepoMemory()
	cache := sharedCache.NewInMemoryCache(ctx, time.Minute, 0)
	service := NewBookService(repo, cache, newCodec(), sharedQuery.DefaultLimits, zap.NewNop(), WithCacheTTL(time.Minute))

	book, err := service.CreateBook(ctx, bookDomain.BookInput{Title: "Cacheado", Author: "A"})
	require.NoError(t, err)

	key := bookDomain.BookCacheKeyByID(book.BookID)
	assert.Eventually(t, func() bool {
		var cached bookDomain.Book
		hit, _ := cache.Get(ctx, key, &cached)
		return hit && cached.Title == "Cacheado"
	}, time.Second, 5*time.Millisecond)

	got, err := service.GetBook(ctx, book.BookID)
	require.NoError(t, err)
	assert.Equal(t, "Cacheado", got.Title)
}

func TestUpdateBook_PartialUpdate(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBookRepoMemory()
	service := newService(repo)

	book, err := service.CreateBook(ctx, bookDomain.BookInput{Title: "Original", Author: "Autor", ISBN: strPtr("1")})
	require.NoError(t, err)

	// Act
	updated, err := service.UpdateBook(ctx, book.BookID, bookDomain.BookPatch{Rating: floatPtr(4)})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Original", updated.Title)
	assert.Equal(t, 4.0, *updated.Rating)

	stored, _ := repo.GetByBookID(ctx, book.BookID)
	assert.Equal(t, 4.0, *stored.Rating)
	assert.Equal(t, book.ID, stored.ID)
	assert.Equal(t, bookDomain.BookUpdated, repo.Outbox()[1].EventType)
}

func TestUpdateBook_SameISBNIsAllowed(t *testing.T) {
	ctx := context.Background()
	service := newService(memory.NewBookRepoMemory())
	book, err := service.CreateBook(ctx, bookDomain.BookInput{Title: "T", Author: "A", ISBN: strPtr("1")})
	require.NoError(t, err)

	_, err = service.UpdateBook(ctx, book.BookID, bookDomain.BookPatch{ISBN: strPtr("1"), Title: strPtr("T2")})
	assert.NoError(t, err)
}

func TestUpdateBook_DuplicateISBN(t *testing.T) {
	ctx := context.Background()
	service := newService(memory.NewBookRepoMemory())
	_, err := service.CreateBook(ctx, bookDomain.BookInput{Title: "A", Author: "A", ISBN: strPtr("1")})
	require.NoError(t, err)
	other, err := service.CreateBook(ctx, bookDomain.BookInput{Title: "B", Author: "B", ISBN: strPtr("2")})
	require.NoError(t, err)

	_, err = service.UpdateBook(ctx, other.BookID, bookDomain.BookPatch{ISBN: strPtr("1")})
	assert.ErrorIs(t, err, bookDomain.ErrDuplicateISBN)
}

func TestUpdateBook_NotFound(t *testing.T) {
	service := newService(memory.NewBookRepoMemory())
	_, err := service.UpdateBook(context.Background(), uuid.New(), bookDomain.BookPatch{Title: strPtr("x")})
	assert.ErrorIs(t, err, bookDomain.ErrBookNotFound)
}

func TestDeleteBook(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBookRepoMemory()
	service := newService(repo)
	book, err := service.CreateBook(ctx, bookDomain.BookInput{Title: "T", Author: "A"})
	require.NoError(t, err)

	require.NoError(t, service.DeleteBook(ctx, book.BookID))

	_, err = service.GetBook(ctx, book.BookID)
	assert.ErrorIs(t, err, bookDomain.ErrBookNotFound)
	assert.ErrorIs(t, service.DeleteBook(ctx, book.BookID), bookDomain.ErrBookNotFound)

	outbox := repo.Outbox()
	assert.Equal(t, bookDomain.BookDeleted, outbox[len(outbox)-1].EventType)
}

// TestSearchBooks_PagesThroughCatalog recorre el catálogo completo con cursores.
func TestSearchBooks_PagesThroughCatalog(t *testing.T) {
	ctx := context.Background()
	service := newService(memory.NewBookRepoMemory())
	for i := 0; i < 11; i++ {
		_, err := service.CreateBook(ctx, bookDomain.BookInput{Title: "Libro", Author: "Autor"})
		require.NoError(t, err)
	}

	first, err := service.SearchBooks(ctx, bookDomain.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, first.Data, 10)
	assert.True(t, first.HasNextPage)
	require.NotEmpty(t, first.NextCursor)

	second, err := service.SearchBooks(ctx, bookDomain.SearchOptions{Cursor: first.NextCursor})
	require.NoError(t, err)
	assert.Len(t, second.Data, 1)
	assert.False(t, second.HasNextPage)
	assert.Empty(t, second.NextCursor)
	assert.Equal(t, int64(1), second.Data[0].ID, "el más antiguo va al final en orden descendente")
}

func TestSearchBooks_RatingSortWithUnratedBooks(t *testing.T) {
	ctx := context.Background()
	service := newService(memory.NewBookRepoMemory())
	ratings := []*float64{floatPtr(5), nil, floatPtr(3), nil, floatPtr(4.5), floatPtr(3)}
	for _, r := range ratings {
		_, err := service.CreateBook(ctx, bookDomain.BookInput{Title: "T", Author: "A", Rating: r})
		require.NoError(t, err)
	}

	seen := map[int64]bool{}
	opts := bookDomain.SearchOptions{SortBy: bookDomain.SortRating, SortOrder: "desc", Limit: 2}
	var ranks []float64
	for {
		page, err := service.SearchBooks(ctx, opts)
		require.NoError(t, err)
		for _, b := range page.Data {
			assert.False(t, seen[b.ID], "libro repetido")
			seen[b.ID] = true
			ranks = append(ranks, b.RatingRank())
		}
		if !page.HasNextPage {
			break
		}
		opts.Cursor = page.NextCursor
	}

	assert.Len(t, seen, len(ratings))
	assert.Equal(t, []float64{5, 4.5, 3, 3, 0, 0}, ranks)
}

func TestSearchBooks_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid filters", func(t *testing.T) {
		repo := new(mockRepo)
		_, err := newService(repo).SearchBooks(ctx, bookDomain.SearchOptions{
			Filters: bookDomain.SearchFilters{MinRating: floatPtr(5), MaxRating: floatPtr(1)},
		})
		assert.ErrorIs(t, err, bookDomain.ErrInvalidSearch)
		repo.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	})

	t.Run("invalid cursor never reaches storage", func(t *testing.T) {
		repo := new(mockRepo)
		_, err := newService(repo).SearchBooks(ctx, bookDomain.SearchOptions{Cursor: "not-a-cursor!!"})
		assert.ErrorIs(t, err, bookDomain.ErrInvalidCursor)
		repo.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	})

	t.Run("invalid sort", func(t *testing.T) {
		repo := new(mockRepo)
		_, err := newService(repo).SearchBooks(ctx, bookDomain.SearchOptions{SortBy: "isbn"})
		assert.ErrorIs(t, err, bookDomain.ErrInvalidSort)
	})

	t.Run("storage failure", func(t *testing.T) {
		repo := new(mockRepo)
		repo.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("db down")).Once()
		_, err := newService(repo).SearchBooks(ctx, bookDomain.SearchOptions{})
		assert.ErrorIs(t, err, sharedQuery.ErrStorage)
		repo.AssertNumberOfCalls(t, "Search", 1)
	})
}

func TestCountBooks(t *testing.T) {
	ctx := context.Background()
	service := newService(memory.NewBookRepoMemory())
	_, err := service.CreateBook(ctx, bookDomain.BookInput{Title: "T", Author: "A"})
	require.NoError(t, err)

	n, err := service.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestImportBooks_SkipsInvalidAndDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewBookRepoMemory()
	service := newService(repo)

	res, err := service.ImportBooks(ctx, []bookDomain.BookInput{
		{Title: "Dune", Author: "Frank Herbert", ISBN: strPtr("111")},
		{Title: "", Author: "Nadie"},
		{Title: "Dune (reedición)", Author: "Frank Herbert", ISBN: strPtr("111")},
		{Title: "Emma", Author: "Jane Austen"},
	})

	require.NoError(t, err)
	assert.Equal(t, ImportResult{Created: 2, Skipped: 2}, res)
	count, _ := repo.Count(ctx)
	assert.Equal(t, int64(2), count)
}

func TestImportBooks_StopsOnStorageError(t *testing.T) {
	repo := new(mockRepo)
	repo.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	res, err := newService(repo).ImportBooks(context.Background(), []bookDomain.BookInput{
		{Title: "A", Author: "B"},
		{Title: "C", Author: "D"},
	})

	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 0, res.Created)
	repo.AssertNumberOfCalls(t, "Create", 1)
}
