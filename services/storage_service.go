package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// StorageService stores uploaded background images on local disk and hands
// back opaque references. The rest of the system only ever sees the
// reference string.
type StorageService struct {
	baseDir string
}

// NewStorageService creates a storage service rooted at baseDir, creating
// the directory if needed
func NewStorageService(baseDir string) (*StorageService, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &StorageService{baseDir: baseDir}, nil
}

// Save writes the uploaded bytes under a fresh uuid-based name, keeping the
// original extension, and returns the reference
func (s *StorageService) Save(data []byte, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	ref := uuid.New().String() + ext

	if err := os.WriteFile(filepath.Join(s.baseDir, ref), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"reference": ref,
		"bytes":     len(data),
	}).Info("Stored background image")

	return ref, nil
}

// Remove deletes a stored file by reference. Unknown references are not an
// error so callers can remove unconditionally.
func (s *StorageService) Remove(ref string) error {
	if ref == "" {
		return nil
	}
	// References are uuid-based names this service generated; reject
	// anything that points outside the base directory
	if ref != filepath.Base(ref) {
		return fmt.Errorf("invalid storage reference: %s", ref)
	}

	err := os.Remove(filepath.Join(s.baseDir, ref))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove file: %w", err)
	}
	return nil
}

// Path resolves a reference to its on-disk path for serving
func (s *StorageService) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return "", fmt.Errorf("invalid storage reference: %s", ref)
	}
	return filepath.Join(s.baseDir, ref), nil
}
