package job_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepbot/features/job"
)

func TestPostgresRepo_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO failed_jobs (handler, payload, error, retries) VALUES ($1, $2, $3, $4) RETURNING id, created_at`)).
		WithArgs("pipeline-worker", []byte(`{"reason":"api"}`), "embed: boom", 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("b3c9", created))

	j := &job.Job{Handler: "pipeline-worker", Payload: json.RawMessage(`{"reason":"api"}`), Error: "embed: boom"}
	require.NoError(t, repo.Save(context.Background(), j))
	assert.Equal(t, "b3c9", j.ID)
	assert.Equal(t, created, j.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, handler, payload, error, retries, created_at FROM failed_jobs ORDER BY created_at DESC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "handler", "payload", "error", "retries", "created_at"}).
			AddRow("2", "pipeline-worker", []byte(`{}`), "e2", 0, now).
			AddRow("1", "pipeline-worker", []byte(`{}`), "e1", 1, now.Add(-time.Minute)))

	jobs, err := job.NewPostgresRepo(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "2", jobs[0].ID)
	assert.Equal(t, 1, jobs[1].Retries)
}

func TestPostgresRepo_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, handler, payload, error, retries, created_at FROM failed_jobs WHERE id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err = job.NewPostgresRepo(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestPostgresRepo_DeleteAndCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := job.NewPostgresRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM failed_jobs WHERE id = $1`)).
		WithArgs("1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM failed_jobs`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	require.NoError(t, repo.Delete(context.Background(), "1"))
	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
