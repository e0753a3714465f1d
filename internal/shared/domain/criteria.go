package domain

// ---------------- Operadores ----------------

type Operator string

const (
	OpEq    Operator = "="
	OpGt    Operator = ">"
	OpGte   Operator = ">="
	OpLt    Operator = "<"
	OpLte   Operator = "<="
	OpLike  Operator = "LIKE"
	OpILike Operator = "ILIKE"
	// OpMatch es búsqueda de texto completo; cada adapter decide cómo resolverla.
	OpMatch Operator = "MATCH"
)

type LogicalOperator string

const (
	OpAnd LogicalOperator = "AND"
	OpOr  LogicalOperator = "OR"
)

// ---------------- Criterion ----------------

// Criterion describe una condición neutral de filtrado
type Criterion struct {
	Field string
	Op    Operator
	Value interface{}
}

// Un Criterion suelto también es un Criteria (hoja del árbol).
func (c Criterion) ToConditions() []Criterion {
	return []Criterion{c}
}

// ---------------- Criteria interface ----------------

// Criteria permite transformar filtros a condiciones neutrales.
// Las implementaciones simples se interpretan como un AND de sus condiciones.
type Criteria interface {
	ToConditions() []Criterion
}

// ---------------- Composite Criteria ----------------

// CompositeCriteria combina criterios con AND u OR y puede anidarse.
type CompositeCriteria struct {
	Operator  LogicalOperator
	Criterias []Criteria
}

// ToConditions aplana el árbol. Solo es fiel para árboles que únicamente usan AND;
// los adapters que soportan OR deben recorrer el árbol con Visit.
func (c CompositeCriteria) ToConditions() []Criterion {
	var all []Criterion
	for _, crit := range c.Criterias {
		if crit == nil {
			continue
		}
		all = append(all, crit.ToConditions()...)
	}
	return all
}

// ---------------- Helpers ----------------

// And crea un CompositeCriteria con operador AND
func And(criterias ...Criteria) CompositeCriteria {
	return CompositeCriteria{Operator: OpAnd, Criterias: compact(criterias)}
}

// Or crea un CompositeCriteria con operador OR
func Or(criterias ...Criteria) CompositeCriteria {
	return CompositeCriteria{Operator: OpOr, Criterias: compact(criterias)}
}

func compact(criterias []Criteria) []Criteria {
	out := make([]Criteria, 0, len(criterias))
	for _, c := range criterias {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Visitor recibe los nodos de un árbol de criterios.
// Leaf se llama con las condiciones de un criterio simple; Group con un nodo compuesto.
type Visitor[R any] struct {
	Leaf  func(conds []Criterion) (R, error)
	Group func(op LogicalOperator, children []R) (R, error)
}

// Visit recorre el árbol en profundidad y combina los resultados de abajo arriba.
// Los criterios simples con varias condiciones se tratan como un AND implícito.
func Visit[R any](c Criteria, v Visitor[R]) (R, error) {
	switch node := c.(type) {
	case CompositeCriteria:
		return visitGroup(node, v)
	case *CompositeCriteria:
		if node == nil {
			return v.Group(OpAnd, nil)
		}
		return visitGroup(*node, v)
	default:
		if c == nil {
			return v.Group(OpAnd, nil)
		}
		return v.Leaf(c.ToConditions())
	}
}

func visitGroup[R any](node CompositeCriteria, v Visitor[R]) (R, error) {
	children := make([]R, 0, len(node.Criterias))
	for _, child := range node.Criterias {
		if child == nil {
			continue
		}
		r, err := Visit(child, v)
		if err != nil {
			var zero R
			return zero, err
		}
		children = append(children, r)
	}
	op := node.Operator
	if op == "" {
		op = OpAnd
	}
	return v.Group(op, children)
}
