package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
)

// Accessor devuelve el valor de un campo lógico de una fila. ok=false si el campo no existe.
// Un valor nil se comporta como NULL en SQL: no cumple ninguna comparación.
type Accessor[T any] func(item T, field string) (value any, ok bool)

// Apply filtra, ordena y limita items en memoria con la misma semántica que los adapters SQL.
func Apply[T any](items []T, q Query, get Accessor[T]) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, it := range items {
		ok, err := Evaluate(q.Criteria, it, get)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, it)
		}
	}

	if err := SortItems(out, q.OrderBy, get); err != nil {
		return nil, err
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Evaluate comprueba si un item cumple el árbol de criterios. Un árbol vacío lo cumple siempre.
func Evaluate[T any](c sharedDomain.Criteria, item T, get Accessor[T]) (bool, error) {
	if c == nil {
		return true, nil
	}
	return sharedDomain.Visit(c, sharedDomain.Visitor[bool]{
		Leaf: func(conds []sharedDomain.Criterion) (bool, error) {
			for _, cond := range conds {
				v, ok := get(item, cond.Field)
				if !ok {
					return false, fmt.Errorf("unknown field %q", cond.Field)
				}
				match, err := evalCondition(v, cond.Op, cond.Value)
				if err != nil || !match {
					return false, err
				}
			}
			return true, nil
		},
		Group: func(op sharedDomain.LogicalOperator, children []bool) (bool, error) {
			if op == sharedDomain.OpOr {
				for _, c := range children {
					if c {
						return true, nil
					}
				}
				// un OR sin hijos no restringe nada
				return len(children) == 0, nil
			}
			for _, c := range children {
				if !c {
					return false, nil
				}
			}
			return true, nil
		},
	})
}

// SortItems ordena de forma estable según las claves.
func SortItems[T any](items []T, keys []SortKey, get Accessor[T]) error {
	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			a, okA := get(items[i], k.Field)
			b, okB := get(items[j], k.Field)
			if !okA || !okB {
				sortErr = fmt.Errorf("%w: unknown field %q", ErrInvalidSort, k.Field)
				return false
			}
			c, err := CompareValues(a, b)
			if err != nil {
				sortErr = err
				return false
			}
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sortErr
}

func evalCondition(v any, op sharedDomain.Operator, want any) (bool, error) {
	if v == nil || want == nil {
		return false, nil
	}

	switch op {
	case sharedDomain.OpLike, sharedDomain.OpILike:
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("LIKE over non-text value %T", v)
		}
		re, err := likePattern(fmt.Sprint(want), op == sharedDomain.OpILike)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	case sharedDomain.OpMatch:
		s, ok := v.(string)
		if !ok {
			return false, fmt.Errorf("full text over non-text value %T", v)
		}
		text := strings.ToLower(s)
		terms := strings.Fields(strings.ToLower(fmt.Sprint(want)))
		for _, term := range terms {
			if !strings.Contains(text, term) {
				return false, nil
			}
		}
		return len(terms) > 0, nil
	}

	c, err := CompareValues(v, want)
	if err != nil {
		return false, err
	}
	switch op {
	case sharedDomain.OpEq:
		return c == 0, nil
	case sharedDomain.OpGt:
		return c > 0, nil
	case sharedDomain.OpGte:
		return c >= 0, nil
	case sharedDomain.OpLt:
		return c < 0, nil
	case sharedDomain.OpLte:
		return c <= 0, nil
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

// CompareValues compara dos valores del mismo tipo lógico (texto, número o fecha).
func CompareValues(a, b any) (int, error) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, fmt.Errorf("cannot compare time with %T", b)
		}
		return ta.Compare(tb), nil
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("cannot compare string with %T", b)
		}
		return strings.Compare(sa, sb), nil
	}

	ia, aInt := asInt(a)
	ib, bInt := asInt(b)
	if aInt && bInt {
		switch {
		case ia < ib:
			return -1, nil
		case ia > ib:
			return 1, nil
		}
		return 0, nil
	}

	fa, okA := asFloat(a)
	fb, okB := asFloat(b)
	if !okA || !okB {
		return 0, fmt.Errorf("cannot compare %T with %T", a, b)
	}
	switch {
	case fa < fb:
		return -1, nil
	case fa > fb:
		return 1, nil
	}
	return 0, nil
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// likePattern traduce un patrón LIKE (% y _) a una expresión regular anclada.
func likePattern(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if caseInsensitive {
		b.WriteString("(?is)")
	} else {
		b.WriteString("(?s)")
	}
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}
