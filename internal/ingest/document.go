// Package ingest turns uploaded session files into chunked, manifest-backed
// documents and optionally indexes them for retrieval.
package ingest

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyContent     = errors.New("file has no text content")
	ErrFileNotFound     = errors.New("file not found")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidFileName  = errors.New("invalid file name")
	ErrDocumentNotFound = errors.New("processed document not found")
	ErrSessionMismatch  = errors.New("document belongs to another session")
	ErrUploadTooLarge   = errors.New("upload exceeds size limit")
)

type ChunkMetadata struct {
	FileName    string    `json:"fileName"`
	FileType    string    `json:"fileType"`
	ChunkIndex  int       `json:"chunkIndex"`
	TotalChunks int       `json:"totalChunks"`
	SessionID   string    `json:"sessionId"`
	SourceFile  string    `json:"sourceFile"`
	PageNumber  *int      `json:"pageNumber,omitempty"`
	WordCount   int       `json:"wordCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Chunk struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ProcessedDocument is the manifest of one ingested file. It is replaced
// wholesale when the file is processed again.
type ProcessedDocument struct {
	FileName     string    `json:"fileName"`
	FileType     string    `json:"fileType"`
	OriginalSize int64     `json:"originalSize"`
	Chunks       []Chunk   `json:"chunks"`
	TotalChunks  int       `json:"totalChunks"`
	ProcessedAt  time.Time `json:"processedAt"`
	SessionID    string    `json:"sessionId"`
	// Degraded marks a document whose text is a placeholder for content
	// that could not be extracted.
	Degraded bool `json:"degraded,omitempty"`
}

type FileFailure struct {
	FileName string `json:"fileName"`
	Error    string `json:"error"`
}

type SessionResult struct {
	Documents []*ProcessedDocument
	Failures  []FileFailure
}

func (r *SessionResult) ChunkCount() int {
	n := 0
	for _, d := range r.Documents {
		n += d.TotalChunks
	}
	return n
}

var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://liveworkshop/chunks"))

// ChunkID is the stable id of a chunk position. Re-ingesting a file yields
// the same ids, so upserts overwrite earlier vectors instead of adding new
// ones. If a re-parse produces fewer chunks, the trailing old ids are left
// in the index.
func ChunkID(sessionID, fileName string, chunkIndex int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(sessionID+"/"+fileName+"/"+strconv.Itoa(chunkIndex))).String()
}
