package mongodb

import (
	"fmt"
	"regexp"
	"strings"

	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	"go.mongodb.org/mongo-driver/bson"
)

// criteriaToMongoFilter recorre el árbol de criterios y construye el filtro equivalente
// con $and/$or. Un árbol vacío devuelve un filtro vacío.
func criteriaToMongoFilter(criteria sharedDomain.Criteria) (bson.D, error) {
	if criteria == nil {
		return bson.D{}, nil
	}
	return sharedDomain.Visit(criteria, sharedDomain.Visitor[bson.D]{
		Leaf: func(conds []sharedDomain.Criterion) (bson.D, error) {
			docs := make([]bson.D, 0, len(conds))
			for _, c := range conds {
				doc, err := conditionToMongo(c)
				if err != nil {
					return nil, err
				}
				docs = append(docs, doc)
			}
			return combine("$and", docs), nil
		},
		Group: func(op sharedDomain.LogicalOperator, children []bson.D) (bson.D, error) {
			docs := make([]bson.D, 0, len(children))
			for _, child := range children {
				if len(child) > 0 {
					docs = append(docs, child)
				}
			}
			if op == sharedDomain.OpOr {
				return combine("$or", docs), nil
			}
			return combine("$and", docs), nil
		},
	})
}

func conditionToMongo(c sharedDomain.Criterion) (bson.D, error) {
	field, ok := fields(c.Field)
	if !ok {
		return nil, fmt.Errorf("unknown field %q", c.Field)
	}

	// Mapeo de operadores genéricos a operadores de MongoDB
	switch c.Op {
	case sharedDomain.OpEq:
		return bson.D{{Key: field, Value: bson.M{"$eq": c.Value}}}, nil
	case sharedDomain.OpGt:
		return bson.D{{Key: field, Value: bson.M{"$gt": c.Value}}}, nil
	case sharedDomain.OpGte:
		return bson.D{{Key: field, Value: bson.M{"$gte": c.Value}}}, nil
	case sharedDomain.OpLt:
		return bson.D{{Key: field, Value: bson.M{"$lt": c.Value}}}, nil
	case sharedDomain.OpLte:
		return bson.D{{Key: field, Value: bson.M{"$lte": c.Value}}}, nil
	case sharedDomain.OpLike, sharedDomain.OpILike:
		value := bson.M{"$regex": likeToRegex(fmt.Sprint(c.Value))}
		// Para ILIKE, añadimos la opción 'i' de insensibilidad a mayúsculas
		if c.Op == sharedDomain.OpILike {
			value["$options"] = "i"
		}
		return bson.D{{Key: field, Value: value}}, nil
	case sharedDomain.OpMatch:
		// searchText se guarda en minúsculas: cada término debe aparecer.
		terms := strings.Fields(strings.ToLower(fmt.Sprint(c.Value)))
		docs := make([]bson.D, 0, len(terms))
		for _, term := range terms {
			docs = append(docs, bson.D{{Key: field, Value: bson.M{"$regex": regexp.QuoteMeta(term)}}})
		}
		return combine("$and", docs), nil
	}
	return nil, fmt.Errorf("unsupported operator %q", c.Op)
}

// combine evita anidar $and/$or de un solo elemento.
func combine(op string, docs []bson.D) bson.D {
	switch len(docs) {
	case 0:
		return bson.D{}
	case 1:
		return docs[0]
	}
	arr := make(bson.A, 0, len(docs))
	for _, d := range docs {
		arr = append(arr, d)
	}
	return bson.D{{Key: op, Value: arr}}
}

// likeToRegex convierte un patrón LIKE (% y _) en una expresión regular anclada.
func likeToRegex(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return sb.String()
}
