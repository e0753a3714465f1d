package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	"github.com/davicafu/hexabooks/internal/shared/infra/platform/cursor"
	sharedSQLite "github.com/davicafu/hexabooks/internal/shared/infra/platform/db/sqlite"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// cada conexión a :memory: es una base distinta
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, InitSQLite(context.Background(), db))
	return db
}

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

func insert(t *testing.T, repo *BookRepoSQLite, in bookDomain.BookInput, createdAt time.Time) *bookDomain.Book {
	t.Helper()
	b, err := bookDomain.NewBook(in, createdAt)
	require.NoError(t, err)
	evt := sharedDomain.NewOutboxEvent(bookDomain.BookAggregate, b.BookID.String(), bookDomain.BookCreated, b)
	require.NoError(t, repo.Create(context.Background(), b, evt))
	return b
}

func TestBookRepoSQLite_CRUD(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	repo := NewBookRepoSQLite(db)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	b := insert(t, repo, bookDomain.BookInput{
		Title: "Dune", Author: "Frank Herbert", ISBN: strPtr("978-0441013593"), Rating: floatPtr(4.5),
	}, now)
	assert.Equal(t, int64(1), b.ID)

	got, err := repo.GetByBookID(ctx, b.BookID)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	byISBN, err := repo.GetByISBN(ctx, "978-0441013593")
	require.NoError(t, err)
	assert.Equal(t, b.BookID, byISBN.BookID)

	require.NoError(t, b.Apply(bookDomain.BookPatch{Title: strPtr("Dune Messiah")}, now.Add(time.Minute)))
	evt := sharedDomain.NewOutboxEvent(bookDomain.BookAggregate, b.BookID.String(), bookDomain.BookUpdated, b)
	require.NoError(t, repo.Update(ctx, b, evt))

	got, err = repo.GetByBookID(ctx, b.BookID)
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)
	assert.Equal(t, now, got.CreatedAt)
	assert.Equal(t, now.Add(time.Minute), got.UpdatedAt)

	evt = sharedDomain.NewOutboxEvent(bookDomain.BookAggregate, b.BookID.String(), bookDomain.BookDeleted, b)
	require.NoError(t, repo.DeleteByBookID(ctx, b.BookID, evt))
	_, err = repo.GetByBookID(ctx, b.BookID)
	assert.ErrorIs(t, err, bookDomain.ErrBookNotFound)
	assert.ErrorIs(t, repo.DeleteByBookID(ctx, b.BookID, evt), bookDomain.ErrBookNotFound)

	// Tres eventos en la outbox compartida
	pending, err := sharedSQLite.NewOutboxRepoSQLite(db).FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, bookDomain.BookCreated, pending[0].EventType)
}

func TestBookRepoSQLite_DuplicateISBN(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	repo := NewBookRepoSQLite(db)
	insert(t, repo, bookDomain.BookInput{Title: "A", Author: "A", ISBN: strPtr("1")}, time.Now())

	b, err := bookDomain.NewBook(bookDomain.BookInput{Title: "B", Author: "B", ISBN: strPtr("1")}, time.Now())
	require.NoError(t, err)
	evt := sharedDomain.NewOutboxEvent(bookDomain.BookAggregate, b.BookID.String(), bookDomain.BookCreated, b)

	assert.ErrorIs(t, repo.Create(ctx, b, evt), bookDomain.ErrDuplicateISBN)

	// la transacción fallida no deja evento
	pending, err := sharedSQLite.NewOutboxRepoSQLite(db).FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestBookRepoSQLite_OutboxMarkProcessed(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	repo := NewBookRepoSQLite(db)
	insert(t, repo, bookDomain.BookInput{Title: "A", Author: "A"}, time.Now())

	outbox := sharedSQLite.NewOutboxRepoSQLite(db)
	pending, err := outbox.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, outbox.MarkOutboxProcessed(ctx, pending[0].ID))
	pending, err = outbox.FetchPendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBookRepoSQLite_SearchFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewBookRepoSQLite(openDB(t))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	insert(t, repo, bookDomain.BookInput{Title: "The Go Programming Language", Author: "Donovan", Rating: floatPtr(5)}, base)
	insert(t, repo, bookDomain.BookInput{Title: "Learning Go", Author: "Bodner", Rating: floatPtr(4)}, base.Add(time.Second))
	insert(t, repo, bookDomain.BookInput{Title: "Dune", Author: "Herbert"}, base.Add(2*time.Second))

	search := func(f bookDomain.SearchFilters) []string {
		res, err := repo.Search(ctx, sharedQuery.Query{
			Criteria: f.Criteria(),
			OrderBy:  sharedQuery.CompositeOrder(bookDomain.FieldCreatedAt, false),
			Limit:    10,
		})
		require.NoError(t, err)
		titles := make([]string, 0, len(res))
		for _, b := range res {
			titles = append(titles, b.Title)
		}
		return titles
	}

	assert.Equal(t, []string{"The Go Programming Language", "Learning Go"}, search(bookDomain.SearchFilters{Title: "GO"}))
	assert.Equal(t, []string{"Learning Go"}, search(bookDomain.SearchFilters{MaxRating: floatPtr(4.5)}))
	assert.Equal(t, []string{"The Go Programming Language"}, search(bookDomain.SearchFilters{SearchQuery: "go donovan"}))
	assert.Empty(t, search(bookDomain.SearchFilters{MinRating: floatPtr(1), Author: "herbert"}), "sin valorar no cumple rangos")
}

// TestBookRepoSQLite_KeysetEnumeration recorre todas las ordenaciones con el paginador real
// y comprueba que no hay huecos ni duplicados, incluso con empates en created_at y rating.
func TestBookRepoSQLite_KeysetEnumeration(t *testing.T) {
	ctx := context.Background()
	repo := NewBookRepoSQLite(openDB(t))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	const total = 23
	ratings := []*float64{nil, floatPtr(3), floatPtr(4.5), floatPtr(3), nil}
	for i := 0; i < total; i++ {
		insert(t, repo, bookDomain.BookInput{
			Title:  fmt.Sprintf("Title %02d", i%7),
			Author: fmt.Sprintf("Author %d", i%3),
			Rating: ratings[i%len(ratings)],
		}, base.Add(time.Duration(i/4)*time.Second)) // varios libros por instante
	}

	codec := cursor.NewCodec(cursor.Config{Secret: "s"}, zap.NewNop())
	paginator := sharedQuery.NewPaginator(codec, bookDomain.BookSchema(), sharedQuery.DefaultLimits)

	for _, sortBy := range paginator.SortColumns() {
		for _, order := range []sharedQuery.SortOrder{sharedQuery.Asc, sharedQuery.Desc} {
			t.Run(sortBy+"_"+string(order), func(t *testing.T) {
				seen := make(map[int64]bool, total)
				spec := sharedQuery.Spec{SortBy: sortBy, SortOrder: order, Limit: 4}
				for pages := 0; ; pages++ {
					require.Less(t, pages, total, "paginación sin fin")
					page, err := paginator.Paginate(ctx, spec, repo.Search)
					require.NoError(t, err)
					for _, b := range page.Data {
						assert.False(t, seen[b.ID], "duplicado %d", b.ID)
						seen[b.ID] = true
					}
					if !page.HasNextPage {
						break
					}
					spec.Cursor = page.NextCursor
				}
				assert.Len(t, seen, total)
			})
		}
	}
}

func TestBuildSearch(t *testing.T) {
	q, args, err := buildSearch(sharedQuery.Query{
		Criteria: bookDomain.TitleLikeCriteria{Title: "go"},
		OrderBy:  sharedQuery.CompositeOrder(bookDomain.FieldRatingRank, true),
		Limit:    11,
	})
	require.NoError(t, err)
	assert.Equal(t, selectBook+" WHERE title LIKE ? ORDER BY COALESCE(rating, 0) DESC, created_at DESC, id DESC LIMIT ?", q)
	assert.Equal(t, []interface{}{"%go%", 11}, args)
}
