package query

import (
	"fmt"
	"strings"
	"time"

	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedUtils "github.com/davicafu/hexabooks/internal/shared/infra/utils"
)

// SQLiteTimeLayout guarda las fechas como texto UTC de ancho fijo para que
// la comparación lexicográfica coincida con la cronológica.
const SQLiteTimeLayout = "2006-01-02T15:04:05.000Z"

// Dialect traduce condiciones neutrales a SQL. bind registra un argumento y devuelve su placeholder.
type Dialect interface {
	Placeholder(n int) string
	Condition(column string, op sharedDomain.Operator, value any, bind func(any) string) (string, error)
}

// FieldResolver traduce un campo lógico a una expresión SQL. false si el campo no existe.
type FieldResolver func(field string) (string, bool)

// MapResolver crea un FieldResolver a partir de un mapa campo → expresión.
func MapResolver(columns map[string]string) FieldResolver {
	return func(field string) (string, bool) {
		col, ok := columns[field]
		return col, ok
	}
}

// ---------------- Postgres ----------------

type postgresDialect struct{}

// Postgres usa $n, ILIKE nativo y tsvector para texto completo.
var Postgres Dialect = postgresDialect{}

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) Condition(column string, op sharedDomain.Operator, value any, bind func(any) string) (string, error) {
	if op == sharedDomain.OpMatch {
		return fmt.Sprintf("%s @@ plainto_tsquery('english', %s)", column, bind(value)), nil
	}
	if !isComparison(op) {
		return "", fmt.Errorf("unsupported operator %q", op)
	}
	return fmt.Sprintf("%s %s %s", column, op, bind(value)), nil
}

// ---------------- SQLite ----------------

type sqliteDialect struct{}

// SQLite usa ?, LIKE (ya insensible a mayúsculas en ASCII) y una columna de texto
// en minúsculas para la búsqueda de texto completo.
var SQLite Dialect = sqliteDialect{}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) Condition(column string, op sharedDomain.Operator, value any, bind func(any) string) (string, error) {
	switch op {
	case sharedDomain.OpMatch:
		terms := strings.Fields(strings.ToLower(fmt.Sprint(value)))
		if len(terms) == 0 {
			return "", nil
		}
		parts := make([]string, 0, len(terms))
		for _, term := range terms {
			parts = append(parts, fmt.Sprintf("%s LIKE %s", column, bind("%"+term+"%")))
		}
		return joinParts(parts, sharedDomain.OpAnd), nil
	case sharedDomain.OpILike:
		return fmt.Sprintf("%s LIKE %s", column, bind(value)), nil
	}
	if !isComparison(op) {
		return "", fmt.Errorf("unsupported operator %q", op)
	}
	if t, ok := value.(time.Time); ok {
		value = t.UTC().Format(SQLiteTimeLayout)
	}
	return fmt.Sprintf("%s %s %s", column, op, bind(value)), nil
}

func isComparison(op sharedDomain.Operator) bool {
	switch op {
	case sharedDomain.OpEq, sharedDomain.OpGt, sharedDomain.OpGte, sharedDomain.OpLt, sharedDomain.OpLte,
		sharedDomain.OpLike, sharedDomain.OpILike:
		return true
	}
	return false
}

// ---------------- Render ----------------

// RenderWhere traduce un árbol de criterios a una expresión SQL (sin "WHERE").
// argOffset es el número de argumentos ya usados antes de esta expresión.
// Devuelve "" si el árbol no tiene condiciones.
func RenderWhere(c sharedDomain.Criteria, d Dialect, resolve FieldResolver, argOffset int) (string, []interface{}, error) {
	if c == nil {
		return "", nil, nil
	}

	var args []interface{}
	bind := func(v any) string {
		args = append(args, v)
		return d.Placeholder(argOffset + len(args))
	}

	sql, err := sharedDomain.Visit(c, sharedDomain.Visitor[string]{
		Leaf: func(conds []sharedDomain.Criterion) (string, error) {
			parts := make([]string, 0, len(conds))
			for _, cond := range conds {
				col, ok := resolve(cond.Field)
				if !ok {
					return "", fmt.Errorf("unknown field %q", cond.Field)
				}
				part, err := d.Condition(col, cond.Op, cond.Value, bind)
				if err != nil {
					return "", err
				}
				if part != "" {
					parts = append(parts, part)
				}
			}
			return joinParts(parts, sharedDomain.OpAnd), nil
		},
		Group: func(op sharedDomain.LogicalOperator, children []string) (string, error) {
			parts := make([]string, 0, len(children))
			for _, child := range children {
				if child != "" {
					parts = append(parts, child)
				}
			}
			return joinParts(parts, op), nil
		},
	})
	if err != nil {
		return "", nil, err
	}
	return sql, args, nil
}

// RenderOrderBy traduce las claves de orden a una cláusula (sin "ORDER BY").
func RenderOrderBy(keys []SortKey, resolve FieldResolver) (string, error) {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		col, ok := resolve(k.Field)
		if !ok {
			return "", fmt.Errorf("%w: unknown field %q", ErrInvalidSort, k.Field)
		}
		parts = append(parts, col+" "+sharedUtils.Ternary(k.Desc, "DESC", "ASC"))
	}
	return strings.Join(parts, ", "), nil
}

func joinParts(parts []string, op sharedDomain.LogicalOperator) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, " "+string(op)+" ") + ")"
	}
}
