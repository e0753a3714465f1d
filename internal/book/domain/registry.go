package domain

import (
	"reflect"

	sharedEvents "github.com/davicafu/hexabooks/internal/shared/domain/events"
)

// Las constantes de los tipos de evento se definen aquí, como valores string.
const (
	BookCreated = "book.created"
	BookUpdated = "book.updated"
	BookDeleted = "book.deleted"
)

const BookTopic = "book"

const BookAggregate = "book"

func NewEventRegistry() map[string]sharedEvents.EventMetadata {
	return map[string]sharedEvents.EventMetadata{
		BookCreated: {
			Type:  reflect.TypeOf(Book{}),
			Topic: BookTopic,
		},
		BookUpdated: {
			Type:  reflect.TypeOf(Book{}),
			Topic: BookTopic,
		},
		BookDeleted: {
			Type:  reflect.TypeOf(Book{}),
			Topic: BookTopic,
		},
	}
}
