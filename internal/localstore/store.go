package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrInvalidKey is returned when an empty key is used.
var ErrInvalidKey = errors.New("invalid storage key")

// document is the on-disk layout of storage.json.
type document struct {
	Version int               `json:"version"`
	Items   map[string]string `json:"items"`
}

// File is a string key-value store persisted as a single JSON file,
// the process equivalent of browser local storage.
type File struct {
	mu      sync.Mutex
	baseDir string
}

// NewFile creates a file backed store.
// If baseDir is empty, uses ~/.sessionkit/
func NewFile(baseDir string) (*File, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".sessionkit")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	f := &File{baseDir: baseDir}

	if err := f.ensureDocument(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("local storage initialized")

	return f, nil
}

// Path returns the location of the backing file.
func (f *File) Path() string {
	return filepath.Join(f.baseDir, "storage.json")
}

// GetItem returns the value stored under key and whether it exists.
func (f *File) GetItem(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrInvalidKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return "", false, err
	}

	value, ok := doc.Items[key]
	return value, ok, nil
}

// SetItem stores value under key, replacing any previous value.
func (f *File) SetItem(key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}

	doc.Items[key] = value

	if err := f.save(doc); err != nil {
		return err
	}

	log.Debug().Str("key", key).Msg("storage item set")

	return nil
}

// RemoveItem deletes key. Removing a missing key is not an error.
func (f *File) RemoveItem(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}

	if _, ok := doc.Items[key]; !ok {
		return nil
	}

	delete(doc.Items, key)

	if err := f.save(doc); err != nil {
		return err
	}

	log.Debug().Str("key", key).Msg("storage item removed")

	return nil
}

func (f *File) ensureDocument() error {
	if _, err := os.Stat(f.Path()); err == nil {
		return nil
	}

	return f.save(&document{
		Version: 1,
		Items:   make(map[string]string),
	})
}

func (f *File) load() (*document, error) {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to read storage: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse storage: %w", err)
	}

	if doc.Items == nil {
		doc.Items = make(map[string]string)
	}

	return &doc, nil
}

// save writes the document atomically.
func (f *File) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage: %w", err)
	}

	path := f.Path()
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write storage: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save storage: %w", err)
	}

	return nil
}
