package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	uploadsDir   = "uploads"
	processedDir = "processed"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

// SanitizeFileName reduces name to its base name and rejects names that
// would escape the session directory.
func SanitizeFileName(name string) (string, error) {
	base := filepath.Base(filepath.Clean(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")))
	if base == "" || base == "." || base == ".." || base == "/" || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return base, nil
}

// FileArea is the on-disk layout of session files:
// <root>/<sessionId>/uploads and <root>/<sessionId>/processed.
type FileArea struct {
	root string
}

func NewFileArea(root string) *FileArea {
	return &FileArea{root: root}
}

func (a *FileArea) Root() string { return a.root }

func (a *FileArea) UploadsDir(sessionID string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(a.root, sessionID, uploadsDir), nil
}

func (a *FileArea) ProcessedDir(sessionID string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(a.root, sessionID, processedDir), nil
}

// Ensure creates both session directories if needed.
func (a *FileArea) Ensure(sessionID string) error {
	for _, dir := range []func(string) (string, error){a.UploadsDir, a.ProcessedDir} {
		path, err := dir(sessionID)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return err
		}
	}
	return nil
}

// UploadPath resolves fileName inside the session's uploads directory.
func (a *FileArea) UploadPath(sessionID, fileName string) (string, error) {
	dir, err := a.UploadsDir(sessionID)
	if err != nil {
		return "", err
	}
	name, err := SanitizeFileName(fileName)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ListUploads returns the regular files in the session's uploads directory
// in name order. A session without uploads has none.
func (a *FileArea) ListUploads(sessionID string) ([]string, error) {
	dir, err := a.UploadsDir(sessionID)
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
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// SaveUpload writes r into the uploads directory, replacing any file of the
// same name. At most maxBytes are accepted when maxBytes is positive.
func (a *FileArea) SaveUpload(sessionID, fileName string, r io.Reader, maxBytes int64) (int64, error) {
	if err := a.Ensure(sessionID); err != nil {
		return 0, err
	}
	path, err := a.UploadPath(sessionID, fileName)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if maxBytes > 0 && n > maxBytes {
		return 0, fmt.Errorf("%w: %s exceeds %d bytes", ErrUploadTooLarge, filepath.Base(path), maxBytes)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return n, nil
}
