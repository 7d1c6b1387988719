package config

const (
	// TopicIngestResult carries the outcome of a session ingestion run.
	TopicIngestResult = "ingest.result"

	// TopicIngestIndex requests embedding and upsert of a session's processed documents.
	TopicIngestIndex = "ingest.index"
)
