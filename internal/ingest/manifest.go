package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ManifestStore persists ProcessedDocuments so they can be read back by
// session and file name.
type ManifestStore interface {
	Save(ctx context.Context, doc *ProcessedDocument) error
	Load(ctx context.Context, sessionID, fileName string) (*ProcessedDocument, error)
	List(ctx context.Context, sessionID string) ([]*ProcessedDocument, error)
}

const (
	manifestExt = ".json"
	chunkDirExt = ".chunks"
)

// FileManifestStore writes processed/<fileName>.json plus one side file per
// chunk under processed/<fileName>.chunks/.
type FileManifestStore struct {
	area *FileArea
}

func NewFileManifestStore(area *FileArea) *FileManifestStore {
	return &FileManifestStore{area: area}
}

func (s *FileManifestStore) Save(ctx context.Context, doc *ProcessedDocument) error {
	dir, err := s.area.ProcessedDir(doc.SessionID)
	if err != nil {
		return err
	}
	name, err := SanitizeFileName(doc.FileName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	chunkDir := filepath.Join(dir, name+chunkDirExt)
	if err := os.RemoveAll(chunkDir); err != nil {
		return fmt.Errorf("clear chunk dir: %w", err)
	}
	if err := os.MkdirAll(chunkDir, 0o750); err != nil {
		return err
	}
	for _, c := range doc.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(chunkDir, strconv.Itoa(c.Metadata.ChunkIndex)+manifestExt)
		if err := writeJSON(path, c); err != nil {
			return err
		}
	}

	return writeJSON(filepath.Join(dir, name+manifestExt), doc)
}

func (s *FileManifestStore) Load(ctx context.Context, sessionID, fileName string) (*ProcessedDocument, error) {
	dir, err := s.area.ProcessedDir(sessionID)
	if err != nil {
		return nil, err
	}
	name, err := SanitizeFileName(fileName)
	if err != nil {
		return nil, err
	}
	return readManifest(filepath.Join(dir, name+manifestExt))
}

func (s *FileManifestStore) List(ctx context.Context, sessionID string) ([]*ProcessedDocument, error) {
	dir, err := s.area.ProcessedDir(sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), manifestExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	docs := make([]*ProcessedDocument, 0, len(names))
	for _, n := range names {
		doc, err := readManifest(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func readManifest(path string) (*ProcessedDocument, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is built from a validated session id and base name
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, strings.TrimSuffix(filepath.Base(path), manifestExt))
	}
	if err != nil {
		return nil, err
	}
	var doc ProcessedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", filepath.Base(path), err)
	}
	return &doc, nil
}

// writeJSON replaces path atomically so readers never see a partial file.
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
