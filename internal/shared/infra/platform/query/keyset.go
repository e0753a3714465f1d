package query

import (
	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
)

// CompositeOrder devuelve el orden total para una columna: la columna pedida,
// created_at si no es la principal, e id como desempate final. Todas en la misma dirección.
func CompositeOrder(field string, desc bool) []SortKey {
	keys := []SortKey{{Field: field, Desc: desc}}
	if field != FieldCreatedAt {
		keys = append(keys, SortKey{Field: FieldCreatedAt, Desc: desc})
	}
	if field != FieldID {
		keys = append(keys, SortKey{Field: FieldID, Desc: desc})
	}
	return keys
}

// KeysetAfter construye el predicado "estrictamente después de values" en el orden keys:
//
//	k1 op v1 OR (k1 = v1 AND k2 op v2) OR (k1 = v1 AND k2 = v2 AND k3 op v3)
//
// con op = "<" en descendente y ">" en ascendente.
func KeysetAfter(keys []SortKey, values []any) sharedDomain.Criteria {
	if len(keys) == 0 || len(keys) != len(values) {
		return nil
	}

	disjuncts := make([]sharedDomain.Criteria, 0, len(keys))
	for i, key := range keys {
		conj := make([]sharedDomain.Criteria, 0, i+1)
		for j := 0; j < i; j++ {
			conj = append(conj, sharedDomain.Criterion{Field: keys[j].Field, Op: sharedDomain.OpEq, Value: values[j]})
		}
		conj = append(conj, sharedDomain.Criterion{Field: key.Field, Op: strictOp(key.Desc), Value: values[i]})

		if len(conj) == 1 {
			disjuncts = append(disjuncts, conj[0])
		} else {
			disjuncts = append(disjuncts, sharedDomain.And(conj...))
		}
	}
	return sharedDomain.Or(disjuncts...)
}

func strictOp(desc bool) sharedDomain.Operator {
	if desc {
		return sharedDomain.OpLt
	}
	return sharedDomain.OpGt
}
