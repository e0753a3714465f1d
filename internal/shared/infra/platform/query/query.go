package query

import (
	"errors"
	"fmt"
	"strings"

	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
)

// Campos lógicos que toda clave keyset incluye como desempate.
const (
	FieldCreatedAt = "created_at"
	FieldID        = "id"
)

var (
	// ErrInvalidSort indica una columna o dirección de orden no soportada.
	ErrInvalidSort = errors.New("invalid sort")
	// ErrStorage envuelve cualquier fallo del almacenamiento durante una búsqueda.
	ErrStorage = errors.New("storage failure")
)

// ---------- Ordenamiento ----------

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// ParseSortOrder acepta "asc"/"desc" sin distinguir mayúsculas; vacío equivale a desc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Desc, nil
	case string(Asc):
		return Asc, nil
	case string(Desc):
		return Desc, nil
	default:
		return "", fmt.Errorf("%w: unknown sort order %q", ErrInvalidSort, s)
	}
}

// SortKey indica campo lógico y dirección.
type SortKey struct {
	Field string // ej. "created_at", "title", "rating_rank"
	Desc  bool
}

// ---------- Consulta y página ----------

// Spec es la petición de búsqueda tal y como llega al paginador.
type Spec struct {
	Filters   sharedDomain.Criteria
	SortBy    string
	SortOrder SortOrder
	Limit     int
	Cursor    string
}

// Query es lo que recibe el almacenamiento: filtros + predicado keyset, orden total y límite.
// Limit ya incluye la fila extra usada para detectar si hay página siguiente.
type Query struct {
	Criteria sharedDomain.Criteria
	OrderBy  []SortKey
	Limit    int
}

// Page es una página de resultados.
type Page[T any] struct {
	Data        []T    `json:"data"`
	HasNextPage bool   `json:"has_next_page"`
	NextCursor  string `json:"next_cursor,omitempty"`
}

// Limits controla el tamaño de página.
type Limits struct {
	Default int
	Max     int
}

// DefaultLimits: 10 por defecto, 100 como máximo.
var DefaultLimits = Limits{Default: 10, Max: 100}

// Clamp normaliza un límite pedido: <= 0 usa el valor por defecto y nunca supera el máximo.
func (l Limits) Clamp(limit int) int {
	if limit <= 0 {
		limit = l.Default
	}
	if l.Max > 0 && limit > l.Max {
		limit = l.Max
	}
	return limit
}
