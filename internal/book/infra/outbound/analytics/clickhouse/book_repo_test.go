package clickhouse

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
)

func newMockRepo(t *testing.T) (*BookAnalyticsRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBookAnalyticsRepoFromDB(db), mock
}

func sampleActivity(eventType string) bookDomain.BookActivity {
	isbn := "978-0441013593"
	pages := 412
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return bookDomain.BookActivity{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Book: bookDomain.Book{
			BookID:    uuid.New(),
			Title:     "Dune",
			Author:    "Frank Herbert",
			ISBN:      &isbn,
			Pages:     &pages,
			CreatedAt: ts,
			UpdatedAt: ts,
		},
		EventTime: ts.Add(time.Second),
	}
}

func TestLogBatch_InsertsEveryActivity(t *testing.T) {
	repo, mock := newMockRepo(t)
	a1 := sampleActivity(bookDomain.BookCreated)
	a2 := sampleActivity(bookDomain.BookUpdated)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta(insertActivity))
	prep.ExpectExec().
		WithArgs(a1.EventID, a1.EventType, a1.Book.BookID.String(), "Dune", "Frank Herbert",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), a1.Book.CreatedAt, a1.Book.UpdatedAt, a1.EventTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(a2.EventID, a2.EventType, a2.Book.BookID.String(), "Dune", "Frank Herbert",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), a2.Book.CreatedAt, a2.Book.UpdatedAt, a2.EventTime).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.LogBatch(context.Background(), []bookDomain.BookActivity{a1, a2}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogBatch_RollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleActivity(bookDomain.BookDeleted)

	mock.ExpectBegin()
	mock.ExpectPrepare(regexp.QuoteMeta(insertActivity)).
		ExpectExec().WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.LogBatch(context.Background(), []bookDomain.BookActivity{a})
	assert.ErrorContains(t, err, a.EventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogBatch_EmptyBatchSkipsDatabase(t *testing.T) {
	repo, mock := newMockRepo(t)
	require.NoError(t, repo.LogBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDailyActivity(t *testing.T) {
	repo, mock := newMockRepo(t)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 2)

	rows := sqlmock.NewRows([]string{"day", "created", "updated", "deleted"}).
		AddRow(start, 3, 1, 0).
		AddRow(start.AddDate(0, 0, 1), 0, 2, 1)

	mock.ExpectQuery(`FROM book_activity_log FINAL`).
		WithArgs(bookDomain.BookCreated, bookDomain.BookUpdated, bookDomain.BookDeleted, start, end).
		WillReturnRows(rows)

	got, err := repo.GetDailyActivity(context.Background(), start, end)
	require.NoError(t, err)
	assert.Equal(t, []bookDomain.DailyBookActivity{
		{Day: start, CreatedCount: 3, UpdatedCount: 1},
		{Day: start.AddDate(0, 0, 1), UpdatedCount: 2, DeletedCount: 1},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS book_activity_log`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
