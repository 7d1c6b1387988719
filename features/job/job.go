package job

import (
	"encoding/json"
	"time"
)

// HandlerProcessFile marks a file that failed parsing or chunking.
const HandlerProcessFile = "ingest.process_file"

type Job struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	FileName  string          `json:"file_name"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Retries   int             `json:"retries"`
	CreatedAt time.Time       `json:"created_at"`
}

type filePayload struct {
	SessionID string `json:"session_id"`
	FileName  string `json:"file_name"`
}
