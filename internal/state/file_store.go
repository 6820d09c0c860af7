package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/funding-collector/internal/models"
)

// FileStore keeps last-sent state in a flat JSON document.
type FileStore struct {
	path   string
	logger *logrus.Logger
}

// NewFileStore returns a store backed by the JSON document at path. The file is
// created on the first Store.
func NewFileStore(path string, logger *logrus.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Load reads the document. A missing file is empty state; an unreadable
// document is logged and treated as empty too.
func (f *FileStore) Load(_ context.Context) (map[string]models.LastSentState, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]models.LastSentState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	states := make(map[string]models.LastSentState)
	if err := json.Unmarshal(data, &states); err != nil {
		f.logger.WithFields(logrus.Fields{
			"path":  f.path,
			"error": err.Error(),
		}).Warn("Ignoring corrupt last-sent state file")
		return map[string]models.LastSentState{}, nil
	}
	return states, nil
}

// Store rewrites the whole document through a temp file and rename so a
// crash never leaves a truncated file behind.
func (f *FileStore) Store(_ context.Context, _ string, _ models.LastSentState, all map[string]models.LastSentState) error {
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("failed to encode last-sent state: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
