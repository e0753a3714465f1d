package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	// _ "github.com/mattn/go-sqlite3" // better performance but requires gcc
	_ "modernc.org/sqlite"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	sharedDomain "github.com/davicafu/hexabooks/internal/shared/domain"
	sharedSQLite "github.com/davicafu/hexabooks/internal/shared/infra/platform/db/sqlite"
	sharedQuery "github.com/davicafu/hexabooks/internal/shared/infra/platform/query"
)

const booksSchema = `
CREATE TABLE IF NOT EXISTS books (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    book_id TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL,
    author TEXT NOT NULL,
    isbn TEXT UNIQUE,
    pages INTEGER,
    rating REAL,
    search_vector TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_books_created ON books (created_at, id);
CREATE INDEX IF NOT EXISTS idx_books_title ON books (title, created_at, id);
CREATE INDEX IF NOT EXISTS idx_books_author ON books (author, created_at, id);
CREATE INDEX IF NOT EXISTS idx_books_rating ON books (COALESCE(rating, 0), created_at, id);
`

const selectBook = `SELECT id, book_id, title, author, isbn, pages, rating, created_at, updated_at FROM books`

// columns traduce los campos lógicos de Book a columnas SQLite.
var columns = sharedQuery.MapResolver(map[string]string{
	bookDomain.FieldID:         "id",
	bookDomain.FieldCreatedAt:  "created_at",
	bookDomain.FieldTitle:      "title",
	bookDomain.FieldAuthor:     "author",
	bookDomain.FieldRating:     "rating",
	bookDomain.FieldRatingRank: "COALESCE(rating, 0)",
	bookDomain.FieldSearch:     "search_vector",
})

type BookRepoSQLite struct {
	db *sql.DB
}

var _ bookDomain.BookRepository = (*BookRepoSQLite)(nil)

func NewBookRepoSQLite(db *sql.DB) *BookRepoSQLite {
	return &BookRepoSQLite{db: db}
}

// ------------------ Inicialización de DB ------------------

// InitSQLite crea las tablas books y outbox si no existen.
func InitSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, booksSchema); err != nil {
		return fmt.Errorf("failed to create books schema: %w", err)
	}
	return sharedSQLite.InitOutbox(ctx, db)
}

// ------------------ Escrituras ------------------

// Create inserta libro y evento en una transacción y asigna b.ID.
func (r *BookRepoSQLite) Create(ctx context.Context, b *bookDomain.Book, evt sharedDomain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO books (book_id, title, author, isbn, pages, rating, search_vector, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BookID.String(), b.Title, b.Author, b.ISBN, b.Pages, b.Rating, b.SearchText(),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return mapWriteError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if err := sharedSQLite.InsertOutboxTx(ctx, tx, evt); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	b.ID = id
	return nil
}

// Update actualiza el libro y crea el evento Outbox en transacción. id y created_at no cambian.
func (r *BookRepoSQLite) Update(ctx context.Context, b *bookDomain.Book, evt sharedDomain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE books SET title = ?, author = ?, isbn = ?, pages = ?, rating = ?, search_vector = ?, updated_at = ?
		 WHERE book_id = ?`,
		b.Title, b.Author, b.ISBN, b.Pages, b.Rating, b.SearchText(), formatTime(b.UpdatedAt), b.BookID.String(),
	)
	if err != nil {
		return mapWriteError(err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return bookDomain.ErrBookNotFound
	}

	if err := sharedSQLite.InsertOutboxTx(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteByBookID elimina el libro y crea el evento Outbox en transacción.
func (r *BookRepoSQLite) DeleteByBookID(ctx context.Context, id uuid.UUID, evt sharedDomain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM books WHERE book_id = ?`, id.String())
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return bookDomain.ErrBookNotFound
	}

	if err := sharedSQLite.InsertOutboxTx(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit()
}

// ------------------ Lecturas ------------------

func (r *BookRepoSQLite) GetByBookID(ctx context.Context, id uuid.UUID) (*bookDomain.Book, error) {
	return r.getOne(ctx, selectBook+` WHERE book_id = ?`, id.String())
}

func (r *BookRepoSQLite) GetByISBN(ctx context.Context, isbn string) (*bookDomain.Book, error) {
	return r.getOne(ctx, selectBook+` WHERE isbn = ?`, isbn)
}

// Search traduce la consulta a SQL: WHERE desde el árbol de criterios, ORDER BY compuesto y LIMIT.
func (r *BookRepoSQLite) Search(ctx context.Context, q sharedQuery.Query) ([]*bookDomain.Book, error) {
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

func (r *BookRepoSQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&n)
	return n, err
}

// ------------------ Helpers ------------------

func buildSearch(q sharedQuery.Query) (string, []interface{}, error) {
	where, args, err := sharedQuery.RenderWhere(q.Criteria, sharedQuery.SQLite, columns, 0)
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
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return sb.String(), args, nil
}

func (r *BookRepoSQLite) getOne(ctx context.Context, query string, arg interface{}) (*bookDomain.Book, error) {
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
		b                    bookDomain.Book
		bookID               string
		isbn                 sql.NullString
		pages                sql.NullInt64
		rating               sql.NullFloat64
		createdAt, updatedAt string
	)
	if err := s.Scan(&b.ID, &bookID, &b.Title, &b.Author, &isbn, &pages, &rating, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if b.BookID, err = uuid.Parse(bookID); err != nil {
		return nil, fmt.Errorf("invalid UUID in DB: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
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

func formatTime(t time.Time) string {
	return t.UTC().Format(sharedQuery.SQLiteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sharedQuery.SQLiteTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp in DB %q: %w", s, err)
	}
	return t, nil
}

// mapWriteError traduce la violación del índice único de isbn.
func mapWriteError(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed: books.isbn") {
		return bookDomain.ErrDuplicateISBN
	}
	return err
}
