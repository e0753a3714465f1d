package memory

import (
	"context"
	"testing"
	"time"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBook(t *testing.T, title string, isbn *string) *bookDomain.Book {
	t.Helper()
	b, err := bookDomain.NewBook(bookDomain.BookInput{Title: title, Author: "Autor", ISBN: isbn}, time.Now())
	require.NoError(t, err)
	return b
}

func evtFor(b *bookDomain.Book, typ string) sharedDomain.OutboxEvent {
	return sharedDomain.NewOutboxEvent(bookDomain.BookAggregate, b.BookID.String(), typ, b)
}

func TestBookRepoMemory_CreateAssignsMonotonicIDs(t *testing.T) {
	repo := NewBookRepoMemory()
	ctx := context.Background()

	a := newBook(t, "A", nil)
	b := newBook(t, "B", nil)
	require.NoError(t, repo.Create(ctx, a, evtFor(a, bookDomain.BookCreated)))
	require.NoError(t, repo.Create(ctx, b, evtFor(b, bookDomain.BookCreated)))

	assert.Equal(t, int64(1), a.ID)
	assert.Equal(t, int64(2), b.ID)
	assert.Len(t, repo.Outbox(), 2)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestBookRepoMemory_DuplicateISBN(t *testing.T) {
	repo := NewBookRepoMemory()
	ctx := context.Background()
	isbn := "978-1"

	a := newBook(t, "A", &isbn)
	require.NoError(t, repo.Create(ctx, a, evtFor(a, bookDomain.BookCreated)))

	b := newBook(t, "B", &isbn)
	assert.ErrorIs(t, repo.Create(ctx, b, evtFor(b, bookDomain.BookCreated)), bookDomain.ErrDuplicateISBN)

	found, err := repo.GetByISBN(ctx, isbn)
	require.NoError(t, err)
	assert.Equal(t, a.BookID, found.BookID)
}

func TestBookRepoMemory_ReturnsCopies(t *testing.T) {
	repo := NewBookRepoMemory()
	ctx := context.Background()
	a := newBook(t, "Original", nil)
	require.NoError(t, repo.Create(ctx, a, evtFor(a, bookDomain.BookCreated)))

	got, err := repo.GetByBookID(ctx, a.BookID)
	require.NoError(t, err)
	got.Title = "cambiado"

	again, _ := repo.GetByBookID(ctx, a.BookID)
	assert.Equal(t, "Original", again.Title)
}

func TestBookRepoMemory_DeleteAndNotFound(t *testing.T) {
	repo := NewBookRepoMemory()
	ctx := context.Background()
	a := newBook(t, "A", nil)
	require.NoError(t, repo.Create(ctx, a, evtFor(a, bookDomain.BookCreated)))

	require.NoError(t, repo.DeleteByBookID(ctx, a.BookID, evtFor(a, bookDomain.BookDeleted)))
	_, err := repo.GetByBookID(ctx, a.BookID)
	assert.ErrorIs(t, err, bookDomain.ErrBookNotFound)
	assert.ErrorIs(t, repo.DeleteByBookID(ctx, a.BookID, evtFor(a, bookDomain.BookDeleted)), bookDomain.ErrBookNotFound)
}

func TestBookRepoMemory_SearchOrdersAndLimits(t *testing.T) {
	repo := NewBookRepoMemory()
	ctx := context.Background()
	for _, title := range []string{"Go in Action", "Dune", "Go Patterns"} {
		b := newBook(t, title, nil)
		require.NoError(t, repo.Create(ctx, b, evtFor(b, bookDomain.BookCreated)))
	}

	res, err := repo.Search(ctx, sharedQuery.Query{
		Criteria: bookDomain.TitleLikeCriteria{Title: "go"},
		OrderBy:  sharedQuery.CompositeOrder(bookDomain.FieldTitle, false),
		Limit:    10,
	})
	require.NoError(t, err)
	require.Len(t, res, 2)
	// orden binario: mayúsculas antes que minúsculas
	assert.Equal(t, "Go Patterns", res[0].Title)
	assert.Equal(t, "Go in Action", res[1].Title)
}

func TestBookRepoMemory_Outbox(t *testing.T) {
	repo := NewBookRepoMemory()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b := newBook(t, "T", nil)
		require.NoError(t, repo.Create(ctx, b, evtFor(b, bookDomain.BookCreated)))
	}

	pending, err := repo.FetchPendingOutbox(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, repo.MarkOutboxProcessed(ctx, pending[0].ID))
	pending, _ = repo.FetchPendingOutbox(ctx, 10)
	assert.Len(t, pending, 2)
}
