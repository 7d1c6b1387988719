package job

import (
	"context"
	"database/sql"
	"encoding/json"
)

type Repository interface {
	Save(ctx context.Context, job *Job) error
	List(ctx context.Context, sessionID string) ([]Job, error)
	Get(ctx context.Context, id string) (*Job, error)
	Delete(ctx context.Context, id string) error
	DeleteByFile(ctx context.Context, sessionID, fileName string) error
	IncrementRetries(ctx context.Context, id, lastError string) error
	Count(ctx context.Context) (int, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Save keeps one row per (session, file). Recording the same file again
// replaces the error and bumps retries.
func (r *PostgresRepo) Save(ctx context.Context, job *Job) error {
	query := `INSERT INTO failed_jobs (session_id, file_name, handler, payload, error) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id, file_name) DO UPDATE SET handler = EXCLUDED.handler, payload = EXCLUDED.payload, error = EXCLUDED.error, retries = failed_jobs.retries + 1
		RETURNING id, created_at, retries`
	return r.db.QueryRowContext(ctx, query, job.SessionID, job.FileName, job.Handler, []byte(job.Payload), job.Error).
		Scan(&job.ID, &job.CreatedAt, &job.Retries)
}

// List returns failed jobs newest first; an empty sessionID lists all.
func (r *PostgresRepo) List(ctx context.Context, sessionID string) ([]Job, error) {
	query := `SELECT id, session_id, file_name, handler, payload, error, retries, created_at FROM failed_jobs WHERE ($1 = '' OR session_id = $1) ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		var payload []byte
		if err := rows.Scan(&j.ID, &j.SessionID, &j.FileName, &j.Handler, &payload, &j.Error, &j.Retries, &j.CreatedAt); err != nil {
			return nil, err
		}
		j.Payload = json.RawMessage(payload)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	j := &Job{}
	var payload []byte
	query := `SELECT id, session_id, file_name, handler, payload, error, retries, created_at FROM failed_jobs WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&j.ID, &j.SessionID, &j.FileName, &j.Handler, &payload, &j.Error, &j.Retries, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	j.Payload = json.RawMessage(payload)
	return j, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM failed_jobs WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) DeleteByFile(ctx context.Context, sessionID, fileName string) error {
	query := `DELETE FROM failed_jobs WHERE session_id = $1 AND file_name = $2`
	_, err := r.db.ExecContext(ctx, query, sessionID, fileName)
	return err
}

func (r *PostgresRepo) IncrementRetries(ctx context.Context, id, lastError string) error {
	query := `UPDATE failed_jobs SET retries = retries + 1, error = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, lastError)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM failed_jobs`
	err := r.db.QueryRowContext(ctx, query).Scan(&count)
	return count, err
}
