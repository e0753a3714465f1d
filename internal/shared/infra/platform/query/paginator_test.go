package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	"github.com/davicafu/hexabooks/internal/shared/infra/platform/cursor"
)

type row struct {
	ID        int64
	CreatedAt time.Time
	Title     string
	Rating    *float64
}

func rowField(r *row, field string) (any, bool) {
	switch field {
	case FieldID:
		return r.ID, true
	case FieldCreatedAt:
		return r.CreatedAt, true
	case "title":
		return r.Title, true
	case "rating":
		if r.Rating == nil {
			return nil, true
		}
		return *r.Rating, true
	case "rating_rank":
		if r.Rating == nil {
			return 0.0, true
		}
		return *r.Rating, true
	}
	return nil, false
}

var rowSchema = Schema[*row]{
	Columns: []Column{
		{Name: "created_at", Field: FieldCreatedAt, Kind: KindTime},
		{Name: "title", Field: "title", Kind: KindString},
		{Name: "rating", Field: "rating_rank", Kind: KindNumber},
	},
	DefaultSort: "created_at",
	Key: func(r *row, col Column) (time.Time, int64, any) {
		v, _ := rowField(r, col.Field)
		return r.CreatedAt, r.ID, v
	},
}

// memStore simula un almacenamiento con inserciones concurrentes.
type memStore struct {
	mu      sync.Mutex
	rows    []*row
	nextID  int64
	fetches []Query
}

func (s *memStore) insert(createdAt time.Time, title string, rating *float64) *row {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r := &row{ID: s.nextID, CreatedAt: createdAt, Title: title, Rating: rating}
	s.rows = append(s.rows, r)
	return r
}

func (s *memStore) fetch(_ context.Context, q Query) ([]*row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, q)
	snapshot := append([]*row(nil), s.rows...)
	return Apply(snapshot, q, rowField)
}

func newTestPaginator() *Paginator[*row] {
	codec := cursor.NewCodec(cursor.Config{Secret: "test-secret"}, zap.NewNop())
	return NewPaginator(codec, rowSchema, DefaultLimits)
}

func ratingPtr(v float64) *float64 { return &v }

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func TestPaginate_ElevenRows(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 11; i++ {
		store.insert(t0.Add(time.Duration(i)*time.Minute), fmt.Sprintf("Book %02d", i), nil)
	}
	p := newTestPaginator()

	page1, err := p.Paginate(context.Background(), Spec{}, store.fetch)
	require.NoError(t, err)
	assert.Len(t, page1.Data, 10)
	assert.True(t, page1.HasNextPage)
	assert.NotEmpty(t, page1.NextCursor)
	assert.Equal(t, int64(11), page1.Data[0].ID, "desc por defecto: la más reciente primero")
	assert.Equal(t, 11, store.fetches[0].Limit, "se pide limit+1")

	page2, err := p.Paginate(context.Background(), Spec{Cursor: page1.NextCursor}, store.fetch)
	require.NoError(t, err)
	require.Len(t, page2.Data, 1)
	assert.Equal(t, int64(1), page2.Data[0].ID)
	assert.False(t, page2.HasNextPage)
	assert.Empty(t, page2.NextCursor)
}

func TestPaginate_ExactCountBoundary(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 10; i++ {
		store.insert(t0.Add(time.Duration(i)*time.Second), "x", nil)
	}

	page, err := newTestPaginator().Paginate(context.Background(), Spec{Limit: 10}, store.fetch)
	require.NoError(t, err)
	assert.Len(t, page.Data, 10)
	assert.False(t, page.HasNextPage)
	assert.Empty(t, page.NextCursor)
}

func TestPaginate_EmptyResultHasEmptySlice(t *testing.T) {
	page, err := newTestPaginator().Paginate(context.Background(), Spec{}, (&memStore{}).fetch)
	require.NoError(t, err)
	assert.NotNil(t, page.Data)
	assert.Empty(t, page.Data)
	assert.False(t, page.HasNextPage)
}

func TestPaginate_LimitClamp(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 150; i++ {
		store.insert(t0.Add(time.Duration(i)*time.Second), "x", nil)
	}
	p := newTestPaginator()

	page, err := p.Paginate(context.Background(), Spec{Limit: 1000}, store.fetch)
	require.NoError(t, err)
	assert.Len(t, page.Data, 100)
	assert.Equal(t, 101, store.fetches[0].Limit)

	page, err = p.Paginate(context.Background(), Spec{Limit: 0}, store.fetch)
	require.NoError(t, err)
	assert.Len(t, page.Data, 10)
}

func TestPaginate_InvalidSortDoesNotFetch(t *testing.T) {
	store := &memStore{}
	_, err := newTestPaginator().Paginate(context.Background(), Spec{SortBy: "isbn"}, store.fetch)
	assert.ErrorIs(t, err, ErrInvalidSort)

	_, err = newTestPaginator().Paginate(context.Background(), Spec{SortOrder: "up"}, store.fetch)
	assert.ErrorIs(t, err, ErrInvalidSort)
	assert.Empty(t, store.fetches)
}

func TestPaginate_MalformedCursorDoesNotFetch(t *testing.T) {
	store := &memStore{}
	_, err := newTestPaginator().Paginate(context.Background(), Spec{Cursor: "!!!not-a-cursor"}, store.fetch)
	assert.ErrorIs(t, err, cursor.ErrInvalidCursor)
	assert.Empty(t, store.fetches)
}

func TestPaginate_CursorFromOtherSortIsRejected(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 5; i++ {
		store.insert(t0.Add(time.Duration(i)*time.Second), fmt.Sprintf("T%d", i), nil)
	}
	p := newTestPaginator()

	byTitle, err := p.Paginate(context.Background(), Spec{SortBy: "title", Limit: 2}, store.fetch)
	require.NoError(t, err)
	require.True(t, byTitle.HasNextPage)

	_, err = p.Paginate(context.Background(), Spec{SortBy: "created_at", Cursor: byTitle.NextCursor}, store.fetch)
	assert.ErrorIs(t, err, cursor.ErrInvalidCursor)

	_, err = p.Paginate(context.Background(), Spec{SortBy: "rating", Cursor: byTitle.NextCursor}, store.fetch)
	assert.ErrorIs(t, err, cursor.ErrInvalidCursor)
}

func TestPaginate_StorageErrorIsWrapped(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := newTestPaginator().Paginate(context.Background(), Spec{}, func(context.Context, Query) ([]*row, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, boom)
}

func TestPaginate_TieBreakOnID(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 7; i++ {
		store.insert(t0, "same", nil)
	}
	ids := enumerate(t, newTestPaginator(), store, Spec{Limit: 3})
	assert.Equal(t, []int64{7, 6, 5, 4, 3, 2, 1}, ids)
}

func TestPaginate_FullEnumerationAllSorts(t *testing.T) {
	store := &memStore{}
	titles := []string{"Dune", "Emma", "Dune", "Ulysses", "Beloved", "Emma", "Dune"}
	ratings := []*float64{ratingPtr(4.5), nil, ratingPtr(4.5), ratingPtr(3), nil, ratingPtr(5), ratingPtr(1)}
	for i := 0; i < 35; i++ {
		// created_at se repite cada 3 filas para forzar empates
		store.insert(t0.Add(time.Duration(i/3)*time.Minute), titles[i%len(titles)], ratings[i%len(ratings)])
	}
	p := newTestPaginator()

	for _, sortBy := range []string{"created_at", "title", "rating"} {
		for _, order := range []SortOrder{Asc, Desc} {
			t.Run(sortBy+"_"+string(order), func(t *testing.T) {
				spec := Spec{SortBy: sortBy, SortOrder: order, Limit: 4}
				ids := enumerate(t, p, store, spec)

				full, err := store.fetch(context.Background(), Query{OrderBy: CompositeOrder(p.columns[sortBy].Field, order == Desc)})
				require.NoError(t, err)
				want := make([]int64, 0, len(full))
				for _, r := range full {
					want = append(want, r.ID)
				}
				assert.Equal(t, want, ids, "cada fila exactamente una vez y en orden")
			})
		}
	}
}

func TestPaginate_ConcurrentInsertsDoNotDuplicate(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 20; i++ {
		store.insert(t0.Add(time.Duration(i)*time.Second), "x", nil)
	}
	p := newTestPaginator()

	seen := map[int64]int{}
	spec := Spec{Limit: 6}
	for {
		page, err := p.Paginate(context.Background(), spec, store.fetch)
		require.NoError(t, err)
		for _, r := range page.Data {
			seen[r.ID]++
		}
		// inserciones nuevas (más recientes) entre páginas: no deben aparecer en desc
		store.insert(time.Now().UTC(), "new", nil)
		if !page.HasNextPage {
			break
		}
		spec.Cursor = page.NextCursor
	}

	for id := int64(1); id <= 20; id++ {
		assert.Equal(t, 1, seen[id], "id %d", id)
	}
	assert.Len(t, seen, 20)
}

func TestPaginate_FiltersCombineWithKeyset(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 12; i++ {
		title := "Other"
		if i%2 == 0 {
			title = "Dune part"
		}
		store.insert(t0.Add(time.Duration(i)*time.Second), title, nil)
	}
	spec := Spec{
		Filters: sharedDomain.Criterion{Field: "title", Op: sharedDomain.OpILike, Value: "%dune%"},
		Limit:   4,
	}
	ids := enumerate(t, newTestPaginator(), store, spec)
	assert.Equal(t, []int64{11, 9, 7, 5, 3, 1}, ids)
}

func enumerate(t *testing.T, p *Paginator[*row], store *memStore, spec Spec) []int64 {
	t.Helper()
	var ids []int64
	for guard := 0; guard < 100; guard++ {
		page, err := p.Paginate(context.Background(), spec, store.fetch)
		require.NoError(t, err)
		for _, r := range page.Data {
			ids = append(ids, r.ID)
		}
		if !page.HasNextPage {
			return ids
		}
		spec.Cursor = page.NextCursor
	}
	t.Fatal("la paginación no termina")
	return nil
}
