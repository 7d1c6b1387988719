package document_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liveworkshop/backend/features/document"
)

func TestPostgresRepo_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	doc := &document.Document{
		SessionID: "sessA", FileName: "a.txt", FileType: ".txt",
		OriginalSize: 72, TotalChunks: 1, ProcessedAt: fixedNow,
	}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO documents (session_id, file_name, file_type, original_size, total_chunks, degraded, processed_at)")).
		WithArgs("sessA", "a.txt", ".txt", int64(72), 1, false, fixedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-1"))

	require.NoError(t, document.NewPostgresRepo(db).Upsert(context.Background(), doc))
	assert.Equal(t, "doc-1", doc.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_ListBySession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	indexed := fixedNow.Add(time.Minute)
	rows := sqlmock.NewRows([]string{"id", "session_id", "file_name", "file_type", "original_size", "total_chunks", "degraded", "processed_at", "indexed_at"}).
		AddRow("1", "sessA", "a.txt", ".txt", 10, 1, false, fixedNow, indexed).
		AddRow("2", "sessA", "b.pdf", ".pdf", 20, 3, true, fixedNow, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents WHERE session_id = $1 ORDER BY file_name")).
		WithArgs("sessA").
		WillReturnRows(rows)

	docs, err := document.NewPostgresRepo(db).ListBySession(context.Background(), "sessA")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.NotNil(t, docs[0].IndexedAt)
	assert.Equal(t, indexed, *docs[0].IndexedAt)
	assert.Nil(t, docs[1].IndexedAt)
	assert.True(t, docs[1].Degraded)
}

func TestPostgresRepo_MarkIndexed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET indexed_at = $2 WHERE session_id = $1")).
		WithArgs("sessA", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 2))

	assert.NoError(t, document.NewPostgresRepo(db).MarkIndexed(context.Background(), "sessA", fixedNow))
}
