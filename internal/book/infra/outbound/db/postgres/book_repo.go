package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// --- Importaciones del dominio y compartidas ---
	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedPostgres "github.com/davicafu/hexabooks/internal/shared/infra/platform/db/postgres"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL
)

const (
	uniqueViolation    = "23505"
	isbnConstraintName = "books_isbn_key"
)

// El trigger mantiene search_vector a partir de título y autor.
const booksSchema = `
CREATE TABLE IF NOT EXISTS books (
    id BIGSERIAL PRIMARY KEY,
    book_id UUID NOT NULL UNIQUE,
    title VARCHAR(500) NOT NULL,
    author VARCHAR(255) NOT NULL,
    isbn VARCHAR(50),
    pages INTEGER CHECK (pages > 0),
    rating DOUBLE PRECISION CHECK (rating BETWEEN 1 AND 5),
    search_vector TSVECTOR,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    CONSTRAINT books_isbn_key UNIQUE (isbn)
);

CREATE OR REPLACE FUNCTION books_search_vector_update() RETURNS trigger AS $$
BEGIN
    NEW.search_vector := to_tsvector('english', coalesce(NEW.title, '') || ' ' || coalesce(NEW.author, ''));
    RETURN NEW;
END
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS books_search_vector_trigger ON books;
CREATE TRIGGER books_search_vector_trigger
    BEFORE INSERT OR UPDATE OF title, author ON books
    FOR EACH ROW EXECUTE FUNCTION books_search_vector_update();

CREATE INDEX IF NOT EXISTS idx_books_search ON books USING GIN (search_vector);
CREATE INDEX IF NOT EXISTS idx_books_created ON books (created_at, id);
CREATE INDEX IF NOT EXISTS idx_books_title ON books (title, created_at, id);
CREATE INDEX IF NOT EXISTS idx_books_author ON books (author, created_at, id);
CREATE INDEX IF NOT EXISTS idx_books_rating ON books ((COALESCE(rating, 0)), created_at, id);
`

const selectBook = `SELECT id, book_id, title, author, isbn, pages, rating, created_at, updated_at FROM books`

var columns = sharedQuery.MapResolver(map[string]string{
	bookDomain.FieldID:         "id",
	bookDomain.FieldCreatedAt:  "created_at",
	bookDomain.FieldTitle:      "title",
	bookDomain.FieldAuthor:     "author",
	bookDomain.FieldRating:     "rating",
	bookDomain.FieldRatingRank: "COALESCE(rating, 0)",
	bookDomain.FieldSearch:     "search_vector",
})

// BookRepoPostgres implementa la interfaz BookRepository para PostgreSQL.
type BookRepoPostgres struct {
	db *sql.DB
}

var _ bookDomain.BookRepository = (*BookRepoPostgres)(nil)

// NewBookRepoPostgres es el constructor del repositorio.
func NewBookRepoPostgres(db *sql.DB) *BookRepoPostgres {
	return &BookRepoPostgres{db: db}
}

// InitPostgres crea tablas, trigger e índices si no existen.
func InitPostgres(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, booksSchema); err != nil {
		return fmt.Errorf("failed to create books schema: %w", err)
	}
	return sharedPostgres.InitOutbox(ctx, db)
}

// ------------------ CRUD + Outbox ------------------

// Create inserta un libro y un evento en una transacción y asigna b.ID.
func (r *BookRepoPostgres) Create(ctx context.Context, b *bookDomain.Book, evt sharedDomain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() // Se ignora si el Commit() es exitoso

	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO books (book_id, title, author, isbn, pages, rating, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		b.BookID, b.Title, b.Author, b.ISBN, b.Pages, b.Rating, b.CreatedAt, b.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return mapWriteError(err)
	}

	if err := sharedPostgres.InsertOutboxTx(ctx, tx, evt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	b.ID = id
	return nil
}

// Update actualiza un libro y crea un evento en una transacción.
func (r *BookRepoPostgres) Update(ctx context.Context, b *bookDomain.Book, evt sharedDomain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE books SET title=$1, author=$2, isbn=$3, pages=$4, rating=$5, updated_at=$6 WHERE book_id=$7`,
		b.Title, b.Author, b.ISBN, b.Pages, b.Rating, b.UpdatedAt, b.BookID,
	)
	if err != nil {
		return mapWriteError(err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return bookDomain.ErrBookNotFound
	}

	if err := sharedPostgres.InsertOutboxTx(ctx, tx, evt); err != nil {
		return fmt.Errorf("failed to insert outbox: %w", err)
	}
	return tx.Commit()
}

// DeleteByBookID elimina un libro y crea un evento en una transacción.
func (r *BookRepoPostgres) DeleteByBookID(ctx context.Context, id uuid.UUID, evt sharedDomain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM books WHERE book_id=$1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return bookDomain.ErrBookNotFound
	}

	if err := sharedPostgres.InsertOutboxTx(ctx, tx, evt); err != nil {
		return fmt.Errorf("failed to insert outbox: %w", err)
	}
	return tx.Commit()
}

// ------------------ Lectura ------------------

func (r *BookRepoPostgres) GetByBookID(ctx context.Context, id uuid.UUID) (*bookDomain.Book, error) {
	return r.getOne(ctx, selectBook+` WHERE book_id=$1`, id)
}

func (r *BookRepoPostgres) GetByISBN(ctx context.Context, isbn string) (*bookDomain.Book, error) {
	return r.getOne(ctx, selectBook+` WHERE isbn=$1`, isbn)
}

// Search ejecuta la consulta keyset ya resuelta por el paginador.
func (r *BookRepoPostgres) Search(ctx context.Context, q sharedQuery.Query) ([]*bookDomain.Book, error) {
	query, args, err := buildSearch(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]*bookDomain.Book, 0, q.Limit)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (r *BookRepoPostgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// ------------------ Helpers ------------------

func buildSearch(q sharedQuery.Query) (string, []interface{}, error) {
	where, args, err := sharedQuery.RenderWhere(q.Criteria, sharedQuery.Postgres, columns, 0)
	if err != nil {
		return "", nil, err
	}
	orderBy, err := sharedQuery.RenderOrderBy(q.OrderBy, columns)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString(selectBook)
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	if orderBy != "" {
		sb.WriteString(" ORDER BY " + orderBy)
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	return sb.String(), args, nil
}

func (r *BookRepoPostgres) getOne(ctx context.Context, query string, arg interface{}) (*bookDomain.Book, error) {
	b, err := scanBook(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bookDomain.ErrBookNotFound
	}
	return b, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBook(s scanner) (*bookDomain.Book, error) {
	var (
		b      bookDomain.Book
		isbn   sql.NullString
		pages  sql.NullInt64
		rating sql.NullFloat64
	)
	if err := s.Scan(&b.ID, &b.BookID, &b.Title, &b.Author, &isbn, &pages, &rating, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	if isbn.Valid {
		b.ISBN = &isbn.String
	}
	if pages.Valid {
		p := int(pages.Int64)
		b.Pages = &p
	}
	if rating.Valid {
		b.Rating = &rating.Float64
	}
	return &b, nil
}

// mapWriteError traduce la violación del índice único de isbn a ErrDuplicateISBN.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == isbnConstraintName {
		return bookDomain.ErrDuplicateISBN
	}
	return err
}
