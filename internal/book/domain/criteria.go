package domain

import (
	shared "github.com/davicafu/hexabooks/internal/shared/domain"
)

// Campos lógicos de Book. Cada adapter los traduce a su esquema.
const (
	FieldID         = "id"
	FieldCreatedAt  = "created_at"
	FieldTitle      = "title"
	FieldAuthor     = "author"
	FieldRating     = "rating"
	FieldRatingRank = "rating_rank"
	FieldSearch     = "search_vector"
)

// --- Criterios específicos para el dominio Book ---

// TitleLikeCriteria busca libros cuyo título contenga un texto.
type TitleLikeCriteria struct {
	Title string
}

// ToConditions implementa la interfaz shared.Criteria.
func (c TitleLikeCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		// ILIKE para búsquedas insensibles a mayúsculas/minúsculas
		{Field: FieldTitle, Op: shared.OpILike, Value: "%" + c.Title + "%"},
	}
}

// -----------------------------------------------------------

// AuthorLikeCriteria busca libros cuyo autor contenga un texto.
type AuthorLikeCriteria struct {
	Author string
}

func (c AuthorLikeCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: FieldAuthor, Op: shared.OpILike, Value: "%" + c.Author + "%"},
	}
}

// -----------------------------------------------------------

// RatingRangeCriteria filtra por valoración, con límites inclusivos.
// Los libros sin valorar nunca cumplen un límite.
type RatingRangeCriteria struct {
	Min *float64
	Max *float64
}

func (c RatingRangeCriteria) ToConditions() []shared.Criterion {
	var conds []shared.Criterion
	if c.Min != nil {
		conds = append(conds, shared.Criterion{Field: FieldRating, Op: shared.OpGte, Value: *c.Min})
	}
	if c.Max != nil {
		conds = append(conds, shared.Criterion{Field: FieldRating, Op: shared.OpLte, Value: *c.Max})
	}
	return conds
}

// -----------------------------------------------------------

// FullTextCriteria busca en título y autor.
type FullTextCriteria struct {
	Query string
}

func (c FullTextCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{
		{Field: FieldSearch, Op: shared.OpMatch, Value: c.Query},
	}
}
