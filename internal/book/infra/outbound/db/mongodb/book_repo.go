// en internal/book/infra/outbound/db/mongodb/book_repo.go
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	// --- Importaciones del dominio y compartidas ---
	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedMongo "github.com/davicafu/hexabooks/internal/shared/infra/platform/db/mongodb"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	booksCollection    = "books"
	countersCollection = "counters"
	booksSequence      = "books"
	isbnIndexName      = "isbn_unique"
)

// BookRepoMongoDB implementa la interfaz BookRepository para MongoDB.
type BookRepoMongoDB struct {
	client       *mongo.Client
	booksColl    *mongo.Collection
	countersColl *mongo.Collection
	outboxColl   *mongo.Collection
}

var _ bookDomain.BookRepository = (*BookRepoMongoDB)(nil)

// NewBookRepoMongoDB es el constructor del repositorio.
func NewBookRepoMongoDB(ctx context.Context, client *mongo.Client, dbName string) (*BookRepoMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}

	db := client.Database(dbName)
	return &BookRepoMongoDB{
		client:       client,
		booksColl:    db.Collection(booksCollection),
		countersColl: db.Collection(countersCollection),
		outboxColl:   db.Collection(sharedMongo.OutboxCollection),
	}, nil
}

// EnsureIndexes crea los índices únicos y los de paginación.
func (r *BookRepoMongoDB) EnsureIndexes(ctx context.Context) error {
	_, err := r.booksColl.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "bookId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{{Key: "isbn", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(isbnIndexName).
				SetPartialFilterExpression(bson.M{"isbn": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "title", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "author", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "ratingRank", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}},
	})
	return err
}

// --- Structs de BSON para el mapeo ---
// Se definen localmente para no "contaminar" el dominio con tags de BSON.

type mongoBook struct {
	ID         int64     `bson:"_id"`
	BookID     string    `bson:"bookId"`
	Title      string    `bson:"title"`
	Author     string    `bson:"author"`
	ISBN       *string   `bson:"isbn,omitempty"`
	Pages      *int      `bson:"pages,omitempty"`
	Rating     *float64  `bson:"rating,omitempty"`
	RatingRank float64   `bson:"ratingRank"`
	SearchText string    `bson:"searchText"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

// fields traduce los campos lógicos de Book a claves del documento.
var fields = sharedQuery.MapResolver(map[string]string{
	bookDomain.FieldID:         "_id",
	bookDomain.FieldCreatedAt:  "createdAt",
	bookDomain.FieldTitle:      "title",
	bookDomain.FieldAuthor:     "author",
	bookDomain.FieldRating:     "rating",
	bookDomain.FieldRatingRank: "ratingRank",
	bookDomain.FieldSearch:     "searchText",
})

// --- CRUD Transaccional ---

// Create reserva un id en la colección de contadores e inserta libro y evento en una transacción.
func (r *BookRepoMongoDB) Create(ctx context.Context, b *bookDomain.Book, evt sharedDomain.OutboxEvent) error {
	id, err := r.nextID(ctx)
	if err != nil {
		return err
	}

	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	// La transacción asegura que ambas inserciones (libro y evento) sean atómicas.
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		mb := toMongoBook(b)
		mb.ID = id
		if _, err := r.booksColl.InsertOne(sessCtx, mb); err != nil {
			return nil, mapWriteError(err)
		}
		return nil, sharedMongo.InsertOutbox(sessCtx, r.outboxColl, evt)
	})
	if err != nil {
		return err
	}

	b.ID = id
	return nil
}

func (r *BookRepoMongoDB) Update(ctx context.Context, b *bookDomain.Book, evt sharedDomain.OutboxEvent) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		mb := toMongoBook(b)
		set := bson.M{
			"title": mb.Title, "author": mb.Author, "ratingRank": mb.RatingRank,
			"searchText": mb.SearchText, "updatedAt": mb.UpdatedAt,
		}
		unset := bson.M{}
		setOrUnset(set, unset, "isbn", mb.ISBN)
		setOrUnset(set, unset, "pages", mb.Pages)
		setOrUnset(set, unset, "rating", mb.Rating)

		update := bson.M{"$set": set}
		if len(unset) > 0 {
			update["$unset"] = unset
		}

		res, err := r.booksColl.UpdateOne(sessCtx, bson.M{"bookId": mb.BookID}, update)
		if err != nil {
			return nil, mapWriteError(err)
		}
		if res.MatchedCount == 0 {
			return nil, bookDomain.ErrBookNotFound
		}
		return nil, sharedMongo.InsertOutbox(sessCtx, r.outboxColl, evt)
	})

	return err
}

func (r *BookRepoMongoDB) DeleteByBookID(ctx context.Context, id uuid.UUID, evt sharedDomain.OutboxEvent) error {
	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		res, err := r.booksColl.DeleteOne(sessCtx, bson.M{"bookId": id.String()})
		if err != nil {
			return nil, err
		}
		if res.DeletedCount == 0 {
			return nil, bookDomain.ErrBookNotFound
		}
		return nil, sharedMongo.InsertOutbox(sessCtx, r.outboxColl, evt)
	})

	return err
}

// --- Lectura ---

func (r *BookRepoMongoDB) GetByBookID(ctx context.Context, id uuid.UUID) (*bookDomain.Book, error) {
	return r.findOne(ctx, bson.M{"bookId": id.String()})
}

func (r *BookRepoMongoDB) GetByISBN(ctx context.Context, isbn string) (*bookDomain.Book, error) {
	return r.findOne(ctx, bson.M{"isbn": isbn})
}

// Search traduce el árbol de criterios a un filtro BSON y aplica orden compuesto y límite.
func (r *BookRepoMongoDB) Search(ctx context.Context, q sharedQuery.Query) ([]*bookDomain.Book, error) {
	filter, err := criteriaToMongoFilter(q.Criteria)
	if err != nil {
		return nil, err
	}
	sort, err := sortToMongo(q.OrderBy)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := r.booksColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	books := make([]*bookDomain.Book, 0, q.Limit)
	for cursor.Next(ctx) {
		var mb mongoBook
		if err := cursor.Decode(&mb); err != nil {
			return nil, err
		}
		b, err := fromMongoBook(&mb)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, cursor.Err()
}

func (r *BookRepoMongoDB) Count(ctx context.Context) (int64, error) {
	return r.booksColl.CountDocuments(ctx, bson.M{})
}

func (r *BookRepoMongoDB) findOne(ctx context.Context, filter bson.M) (*bookDomain.Book, error) {
	var mb mongoBook
	err := r.booksColl.FindOne(ctx, filter).Decode(&mb)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookDomain.ErrBookNotFound
		}
		return nil, err
	}
	return fromMongoBook(&mb)
}

// nextID incrementa de forma atómica la secuencia de libros.
func (r *BookRepoMongoDB) nextID(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.countersColl.FindOneAndUpdate(ctx,
		bson.M{"_id": booksSequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate book id: %w", err)
	}
	return counter.Seq, nil
}

// --- Helpers de Mapeo y Conversión ---

func toMongoBook(b *bookDomain.Book) *mongoBook {
	return &mongoBook{
		ID: b.ID, BookID: b.BookID.String(), Title: b.Title, Author: b.Author,
		ISBN: b.ISBN, Pages: b.Pages, Rating: b.Rating,
		RatingRank: b.RatingRank(), SearchText: b.SearchText(),
		CreatedAt: b.CreatedAt.UTC(), UpdatedAt: b.UpdatedAt.UTC(),
	}
}

func fromMongoBook(mb *mongoBook) (*bookDomain.Book, error) {
	id, err := uuid.Parse(mb.BookID)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID in document %d: %w", mb.ID, err)
	}
	return &bookDomain.Book{
		ID: mb.ID, BookID: id, Title: mb.Title, Author: mb.Author,
		ISBN: mb.ISBN, Pages: mb.Pages, Rating: mb.Rating,
		CreatedAt: mb.CreatedAt.UTC(), UpdatedAt: mb.UpdatedAt.UTC(),
	}, nil
}

func setOrUnset[T any](set, unset bson.M, key string, v *T) {
	if v == nil {
		unset[key] = ""
		return
	}
	set[key] = *v
}

func mapWriteError(err error) error {
	if mongo.IsDuplicateKeyError(err) && strings.Contains(err.Error(), isbnIndexName) {
		return bookDomain.ErrDuplicateISBN
	}
	return err
}

func sortToMongo(keys []sharedQuery.SortKey) (bson.D, error) {
	sort := make(bson.D, 0, len(keys))
	for _, k := range keys {
		field, ok := fields(k.Field)
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q", sharedQuery.ErrInvalidSort, k.Field)
		}
		dir := 1 // Ascendente por defecto
		if k.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: field, Value: dir})
	}
	return sort, nil
}
