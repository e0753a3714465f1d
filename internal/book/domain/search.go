package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	shared "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"
)

// Columnas ordenables (valores de sort_by).
const (
	SortCreatedAt = "created_at"
	SortTitle     = "title"
	SortAuthor    = "author"
	SortRating    = "rating"
)

// SearchFilters son los filtros opcionales de búsqueda; se combinan con AND.
type SearchFilters struct {
	Title       string
	Author      string
	MinRating   *float64
	MaxRating   *float64
	SearchQuery string
}

// SearchOptions es una petición de búsqueda paginada.
type SearchOptions struct {
	Filters   SearchFilters
	SortBy    string
	SortOrder string
	Limit     int
	Cursor    string
}

// Validate rechaza rangos de valoración imposibles.
func (f SearchFilters) Validate() error {
	for _, r := range []*float64{f.MinRating, f.MaxRating} {
		if r != nil && (math.IsNaN(*r) || *r < MinRating || *r > MaxRating) {
			return fmt.Errorf("%w: rating bounds must be between %.1f and %.1f", ErrInvalidSearch, MinRating, MaxRating)
		}
	}
	if f.MinRating != nil && f.MaxRating != nil && *f.MinRating > *f.MaxRating {
		return fmt.Errorf("%w: min_rating is greater than max_rating", ErrInvalidSearch)
	}
	return nil
}

// Criteria traduce los filtros presentes a un árbol de criterios.
func (f SearchFilters) Criteria() shared.Criteria {
	var criterias []shared.Criteria
	if t := strings.TrimSpace(f.Title); t != "" {
		criterias = append(criterias, TitleLikeCriteria{Title: t})
	}
	if a := strings.TrimSpace(f.Author); a != "" {
		criterias = append(criterias, AuthorLikeCriteria{Author: a})
	}
	if f.MinRating != nil || f.MaxRating != nil {
		criterias = append(criterias, RatingRangeCriteria{Min: f.MinRating, Max: f.MaxRating})
	}
	if q := strings.TrimSpace(f.SearchQuery); q != "" {
		criterias = append(criterias, FullTextCriteria{Query: q})
	}
	if len(criterias) == 0 {
		return nil
	}
	return shared.And(criterias...)
}

// Spec construye la petición del paginador.
func (o SearchOptions) Spec() sharedQuery.Spec {
	return sharedQuery.Spec{
		Filters:   o.Filters.Criteria(),
		SortBy:    o.SortBy,
		SortOrder: sharedQuery.SortOrder(strings.ToLower(o.SortOrder)),
		Limit:     o.Limit,
		Cursor:    o.Cursor,
	}
}

// BookSchema describe cómo paginar libros. rating ordena por la valoración efectiva.
func BookSchema() sharedQuery.Schema[*Book] {
	return sharedQuery.Schema[*Book]{
		Columns: []sharedQuery.Column{
			{Name: SortCreatedAt, Field: FieldCreatedAt, Kind: sharedQuery.KindTime},
			{Name: SortTitle, Field: FieldTitle, Kind: sharedQuery.KindString},
			{Name: SortAuthor, Field: FieldAuthor, Kind: sharedQuery.KindString},
			{Name: SortRating, Field: FieldRatingRank, Kind: sharedQuery.KindNumber},
		},
		DefaultSort: SortCreatedAt,
		Key: func(b *Book, col sharedQuery.Column) (time.Time, int64, any) {
			v, _ := BookField(b, col.Field)
			return b.CreatedAt, b.ID, v
		},
	}
}

// BookField expone los campos lógicos de un libro para evaluación en memoria.
func BookField(b *Book, field string) (any, bool) {
	switch field {
	case FieldID:
		return b.ID, true
	case FieldCreatedAt:
		return b.CreatedAt, true
	case FieldTitle:
		return b.Title, true
	case FieldAuthor:
		return b.Author, true
	case FieldRating:
		if b.Rating == nil {
			return nil, true
		}
		return *b.Rating, true
	case FieldRatingRank:
		return b.RatingRank(), true
	case FieldSearch:
		return b.SearchText(), true
	}
	return nil, false
}
