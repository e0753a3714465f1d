package query

import (
	"context"
	"fmt"
	"time"

	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	"github.com/davicafu/hexabooks/internal/shared/infra/platform/cursor"
)

// CursorCodec firma y verifica posiciones keyset.
type CursorCodec interface {
	Encode(p cursor.Position) (string, error)
	Decode(token string) (cursor.Position, error)
}

// ValueKind es el tipo de valor que admite una columna ordenable dentro de un cursor.
type ValueKind int

const (
	KindTime ValueKind = iota
	KindString
	KindNumber
)

// Column es una columna por la que se puede ordenar.
type Column struct {
	Name  string // nombre público, el valor de sort_by
	Field string // campo lógico usado en criterios y orden
	Kind  ValueKind
}

// Schema describe cómo paginar un recurso.
type Schema[T any] struct {
	Columns     []Column
	DefaultSort string
	// Key extrae de una fila created_at, id y el valor de la columna de orden.
	Key func(item T, col Column) (createdAt time.Time, id int64, value any)
}

// Fetcher ejecuta la consulta contra el almacenamiento.
type Fetcher[T any] func(ctx context.Context, q Query) ([]T, error)

// Paginator aplica paginación keyset con cursores firmados. No guarda estado entre peticiones.
type Paginator[T any] struct {
	codec   CursorCodec
	schema  Schema[T]
	limits  Limits
	columns map[string]Column
}

func NewPaginator[T any](codec CursorCodec, schema Schema[T], limits Limits) *Paginator[T] {
	if limits.Default <= 0 {
		limits.Default = DefaultLimits.Default
	}
	if limits.Max <= 0 {
		limits.Max = DefaultLimits.Max
	}
	columns := make(map[string]Column, len(schema.Columns))
	for _, c := range schema.Columns {
		columns[c.Name] = c
	}
	return &Paginator[T]{codec: codec, schema: schema, limits: limits, columns: columns}
}

// Paginate resuelve el orden, valida el cursor antes de tocar el almacenamiento,
// pide limit+1 filas y devuelve la página con el cursor de la última fila conservada.
func (p *Paginator[T]) Paginate(ctx context.Context, spec Spec, fetch Fetcher[T]) (Page[T], error) {
	col, err := p.resolveColumn(spec.SortBy)
	if err != nil {
		return Page[T]{}, err
	}
	order, err := ParseSortOrder(string(spec.SortOrder))
	if err != nil {
		return Page[T]{}, err
	}

	keys := CompositeOrder(col.Field, order == Desc)
	limit := p.limits.Clamp(spec.Limit)

	criteria := spec.Filters
	if spec.Cursor != "" {
		pos, err := p.codec.Decode(spec.Cursor)
		if err != nil {
			return Page[T]{}, err
		}
		values, err := keyValues(col, pos)
		if err != nil {
			return Page[T]{}, err
		}
		criteria = sharedDomain.And(spec.Filters, KeysetAfter(keys, values))
	}

	rows, err := fetch(ctx, Query{Criteria: criteria, OrderBy: keys, Limit: limit + 1})
	if err != nil {
		return Page[T]{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	page := Page[T]{Data: make([]T, 0, min(len(rows), limit))}
	if len(rows) > limit {
		page.HasNextPage = true
		rows = rows[:limit]
	}
	page.Data = append(page.Data, rows...)

	if page.HasNextPage {
		next, err := p.encodeAfter(rows[len(rows)-1], col)
		if err != nil {
			return Page[T]{}, fmt.Errorf("encode next cursor: %w", err)
		}
		page.NextCursor = next
	}
	return page, nil
}

// SortColumns devuelve los nombres públicos de las columnas ordenables.
func (p *Paginator[T]) SortColumns() []string {
	names := make([]string, 0, len(p.schema.Columns))
	for _, c := range p.schema.Columns {
		names = append(names, c.Name)
	}
	return names
}

func (p *Paginator[T]) resolveColumn(name string) (Column, error) {
	if name == "" {
		name = p.schema.DefaultSort
	}
	col, ok := p.columns[name]
	if !ok {
		return Column{}, fmt.Errorf("%w: unknown sort column %q", ErrInvalidSort, name)
	}
	return col, nil
}

func (p *Paginator[T]) encodeAfter(item T, col Column) (string, error) {
	createdAt, id, value := p.schema.Key(item, col)
	pos := cursor.Position{CreatedAt: createdAt, ID: id}
	if col.Field != FieldCreatedAt {
		pos.SortBy = col.Name
		pos.SortValue = value
	}
	return p.codec.Encode(pos)
}

// keyValues comprueba que el cursor pertenece al orden pedido y devuelve los valores
// de la clave compuesta en el mismo orden que CompositeOrder.
func keyValues(col Column, pos cursor.Position) ([]any, error) {
	if col.Field == FieldCreatedAt {
		if pos.SortBy != "" {
			return nil, cursor.ErrInvalidCursor
		}
		return []any{pos.CreatedAt, pos.ID}, nil
	}

	if pos.SortBy != col.Name {
		return nil, cursor.ErrInvalidCursor
	}
	switch col.Kind {
	case KindString:
		if _, ok := pos.SortValue.(string); !ok {
			return nil, cursor.ErrInvalidCursor
		}
	case KindNumber:
		if _, ok := pos.SortValue.(float64); !ok {
			return nil, cursor.ErrInvalidCursor
		}
	default:
		return nil, cursor.ErrInvalidCursor
	}
	return []any{pos.SortValue, pos.CreatedAt, pos.ID}, nil
}
