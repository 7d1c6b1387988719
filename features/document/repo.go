package document

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	Upsert(ctx context.Context, doc *Document) error
	ListBySession(ctx context.Context, sessionID string) ([]Document, error)
	MarkIndexed(ctx context.Context, sessionID string, at time.Time) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// Upsert keys documents by (session_id, file_name). Re-processing resets
// indexed_at since the stored vectors may no longer match.
func (r *PostgresRepo) Upsert(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (session_id, file_name, file_type, original_size, total_chunks, degraded, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, file_name) DO UPDATE SET
			file_type = EXCLUDED.file_type,
			original_size = EXCLUDED.original_size,
			total_chunks = EXCLUDED.total_chunks,
			degraded = EXCLUDED.degraded,
			processed_at = EXCLUDED.processed_at,
			indexed_at = NULL
		RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		doc.SessionID, doc.FileName, doc.FileType, doc.OriginalSize, doc.TotalChunks, doc.Degraded, doc.ProcessedAt,
	).Scan(&doc.ID)
}

func (r *PostgresRepo) ListBySession(ctx context.Context, sessionID string) ([]Document, error) {
	query := `SELECT id, session_id, file_name, file_type, original_size, total_chunks, degraded, processed_at, indexed_at FROM documents WHERE session_id = $1 ORDER BY file_name`
	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var indexedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.SessionID, &d.FileName, &d.FileType, &d.OriginalSize, &d.TotalChunks, &d.Degraded, &d.ProcessedAt, &indexedAt); err != nil {
			return nil, err
		}
		if indexedAt.Valid {
			t := indexedAt.Time
			d.IndexedAt = &t
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) MarkIndexed(ctx context.Context, sessionID string, at time.Time) error {
	query := `UPDATE documents SET indexed_at = $2 WHERE session_id = $1`
	_, err := r.db.ExecContext(ctx, query, sessionID, at)
	return err
}
