package datasets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"llm-finetune/core/errs"
	"llm-finetune/core/models"
)

// IndexFileName is the shared index holding every DatasetInfo record
const IndexFileName = "index.json"

// lineDelimited lists the extensions whose record count is the line count
var lineDelimited = map[string]bool{
	".jsonl":  true,
	".ndjson": true,
}

// Store persists uploaded datasets under <root>/<datasetId>/<fileName>
// and keeps an index of them. The store is the single writer of its index.
type Store struct {
	root  string
	mu    sync.Mutex
	index []models.Dataset
	now   func() time.Time
}

// NewStore opens the dataset store rooted at root, loading the index once
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("dataset root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dataset root: %w", err)
	}

	s := &Store{root: root, now: time.Now}

	data, err := os.ReadFile(s.indexPath())
	switch {
	case os.IsNotExist(err):
		s.index = []models.Dataset{}
	case err != nil:
		return nil, fmt.Errorf("failed to read dataset index: %w", err)
	default:
		if err := json.Unmarshal(data, &s.index); err != nil {
			return nil, fmt.Errorf("dataset index %s is corrupt: %w", s.indexPath(), err)
		}
	}

	log.Printf("Dataset store opened at %s with %d datasets", root, len(s.index))
	return s, nil
}

func (s *Store) indexPath() string {
	return filepath.Join(s.root, IndexFileName)
}

// Add writes the uploaded bytes into a new dataset directory and records it in the index
func (s *Store) Add(data []byte, fileName string) (models.Dataset, error) {
	name := filepath.Base(filepath.Clean(strings.TrimSpace(fileName)))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return models.Dataset{}, errs.Invalid("dataset file name %q", fileName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := models.NewID()
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.Dataset{}, fmt.Errorf("failed to create dataset dir: %w", err)
	}

	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		os.RemoveAll(dir)
		return models.Dataset{}, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		os.RemoveAll(dir)
		return models.Dataset{}, fmt.Errorf("failed to write dataset file: %w", err)
	}

	ds := models.Dataset{
		ID:        id,
		Path:      path,
		Count:     recordCount(name, data),
		CreatedAt: s.now().UTC(),
	}

	next := append(append([]models.Dataset(nil), s.index...), ds)
	if err := s.writeIndex(next); err != nil {
		// an unindexed directory would never be listed or cleaned up
		os.RemoveAll(dir)
		return models.Dataset{}, err
	}
	s.index = next

	log.Printf("Dataset %s stored (%s, %d records)", ds.ID, name, ds.Count)
	return ds, nil
}

// List returns all known datasets in insertion order
func (s *Store) List() []models.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Dataset, len(s.index))
	copy(out, s.index)
	return out
}

// Get returns the indexed dataset with the given id
func (s *Store) Get(id string) (models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ds := range s.index {
		if ds.ID == id {
			return ds, nil
		}
	}
	return models.Dataset{}, errs.NotFound("dataset %s", id)
}

// GetPath returns the absolute file path of the dataset with the given id
func (s *Store) GetPath(id string) (string, error) {
	ds, err := s.Get(id)
	if err != nil {
		return "", err
	}
	return ds.Path, nil
}

// writeIndex rewrites the whole index through a temp file and rename,
// so readers never observe a torn index.
func (s *Store) writeIndex(index []models.Dataset) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dataset index: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.root, IndexFileName+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create index temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write dataset index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync dataset index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.indexPath()); err != nil {
		return fmt.Errorf("failed to replace dataset index: %w", err)
	}
	committed = true
	return nil
}

// recordCount counts lines for line-delimited formats. A final line
// without a trailing newline still counts.
func recordCount(name string, data []byte) int {
	if !lineDelimited[strings.ToLower(filepath.Ext(name))] || len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}
