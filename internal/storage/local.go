package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for paths escaping the storage root
var ErrInvalidPath = errors.New("invalid storage path")

// LocalStorage keeps generated documents on the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Ensure the base directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// resolve maps a relative path under the root, rejecting traversal
func (s *LocalStorage) resolve(relativePath string) (string, error) {
	clean := filepath.Clean(relativePath)
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, relativePath)
	}
	return filepath.Join(s.basePath, clean), nil
}

// Save writes data to subDir/filename and returns the relative path.
// The write goes through a temp file so readers never see a partial document.
func (s *LocalStorage) Save(subDir, filename string, data []byte) (string, error) {
	relPath := filepath.Join(subDir, filepath.Base(filename))
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return relPath, nil
}

// Read returns a stored file's contents
func (s *LocalStorage) Read(relativePath string) ([]byte, error) {
	fullPath, err := s.resolve(relativePath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(fullPath)
}

// Delete removes a file
func (s *LocalStorage) Delete(relativePath string) error {
	fullPath, err := s.resolve(relativePath)
	if err != nil {
		return err
	}
	return os.Remove(fullPath)
}

// Exists checks if a file exists
func (s *LocalStorage) Exists(relativePath string) bool {
	fullPath, err := s.resolve(relativePath)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}
