package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const insertActivity = `INSERT INTO book_activity_log (event_id, event_type, book_id, title, author, isbn, pages, rating, created_at, updated_at, event_time)`

// BookAnalyticsRepo implementa BookAnalyticsRepository sobre ClickHouse.
type BookAnalyticsRepo struct {
	db *sql.DB
}

// NewBookAnalyticsRepo abre la conexión y comprueba que ClickHouse responde.
func NewBookAnalyticsRepo(ctx context.Context, addr string, dbName string) (*BookAnalyticsRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}

	return &BookAnalyticsRepo{db: conn}, nil
}

// NewBookAnalyticsRepoFromDB reutiliza una conexión ya abierta.
func NewBookAnalyticsRepoFromDB(db *sql.DB) *BookAnalyticsRepo {
	return &BookAnalyticsRepo{db: db}
}

// Close libera la conexión.
func (r *BookAnalyticsRepo) Close() error {
	return r.db.Close()
}

// LogBatch inserta un lote de actividad. ClickHouse funciona mejor con inserciones en lotes.
func (r *BookAnalyticsRepo) LogBatch(ctx context.Context, activity []bookDomain.BookActivity) error {
	if len(activity) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, insertActivity)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, a := range activity {
		if _, err := stmt.ExecContext(
			ctx,
			a.EventID,
			a.EventType,
			a.Book.BookID.String(),
			a.Book.Title,
			a.Book.Author,
			a.Book.ISBN,
			toInt32(a.Book.Pages),
			a.Book.Rating,
			a.Book.CreatedAt.UTC(),
			a.Book.UpdatedAt.UTC(),
			a.EventTime.UTC(),
		); err != nil {
			// Si un registro falla, se descarta el lote entero.
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for event %s: %w", a.EventID, err)
		}
	}

	return tx.Commit()
}

// GetDailyActivity cuenta altas, cambios y bajas por día en [start, end).
// FINAL colapsa los eventos entregados más de una vez.
func (r *BookAnalyticsRepo) GetDailyActivity(ctx context.Context, start, end time.Time) ([]bookDomain.DailyBookActivity, error) {
	query := `
		SELECT
			toStartOfDay(event_time) AS day,
			countIf(event_type = ?) AS created,
			countIf(event_type = ?) AS updated,
			countIf(event_type = ?) AS deleted
		FROM book_activity_log FINAL
		WHERE event_time >= ? AND event_time < ?
		GROUP BY day
		ORDER BY day
	`
	rows, err := r.db.QueryContext(ctx, query,
		bookDomain.BookCreated, bookDomain.BookUpdated, bookDomain.BookDeleted,
		start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []bookDomain.DailyBookActivity
	for rows.Next() {
		var (
			day                       time.Time
			created, updated, deleted uint64
		)
		if err := rows.Scan(&day, &created, &updated, &deleted); err != nil {
			return nil, err
		}
		out = append(out, bookDomain.DailyBookActivity{
			Day:          day.UTC(),
			CreatedCount: int(created),
			UpdatedCount: int(updated),
			DeletedCount: int(deleted),
		})
	}
	return out, rows.Err()
}

// InitSchema crea la tabla si no existe.
// Se particiona por mes; ReplacingMergeTree deduplica por la clave de ordenación, que incluye event_id.
func (r *BookAnalyticsRepo) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS book_activity_log (
			event_id   String,
			event_type LowCardinality(String),
			book_id    UUID,
			title      String,
			author     String,
			isbn       Nullable(String),
			pages      Nullable(Int32),
			rating     Nullable(Float64),
			created_at DateTime64(3, 'UTC'),
			updated_at DateTime64(3, 'UTC'),
			event_time DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree()
		PARTITION BY toYYYYMM(event_time)
		ORDER BY (event_type, event_time, event_id)
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

func toInt32(p *int) *int32 {
	if p == nil {
		return nil
	}
	v := int32(*p)
	return &v
}

// Verificación estática de la interfaz.
var _ bookDomain.BookAnalyticsRepository = (*BookAnalyticsRepo)(nil)
