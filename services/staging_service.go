package services

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sorteohub/sorteo-backend/models"
	"github.com/sorteohub/sorteo-backend/shared"
)

// stagedImport holds one parsed upload between the upload and configure steps
type stagedImport struct {
	result    *models.ImportResult
	createdAt time.Time
}

// StagingService is the explicit handoff between the upload step and the
// create/replace step: upload parses the file and stages the result under a
// fresh id, and the caller passes that id into the create step. Entries
// expire after the configured TTL and are purged by the cleanup job.
type StagingService struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*stagedImport
	ttl     time.Duration
}

// NewStagingService creates a staging store with the given entry TTL
func NewStagingService(ttl time.Duration) *StagingService {
	return &StagingService{
		entries: make(map[uuid.UUID]*stagedImport),
		ttl:     ttl,
	}
}

// Put stages a parsed import and returns its id
func (s *StagingService) Put(result *models.ImportResult) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.entries[id] = &stagedImport{result: result, createdAt: time.Now()}
	return id
}

// Get returns a staged import, or ErrImportExpired when the id is unknown
// or the entry has outlived its TTL
func (s *StagingService) Get(id uuid.UUID) (*models.ImportResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[id]
	if !exists || time.Since(entry.createdAt) > s.ttl {
		return nil, shared.ErrImportExpired
	}
	return entry.result, nil
}

// Delete removes a staged import once it has been consumed
func (s *StagingService) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// PurgeExpired drops every entry past its TTL and returns how many were removed
func (s *StagingService) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if time.Since(entry.createdAt) > s.ttl {
			delete(s.entries, id)
			removed++
		}
	}

	if removed > 0 {
		logrus.WithField("removed", removed).Info("Purged expired staged imports")
	}
	return removed
}

// Len returns the number of currently staged imports
func (s *StagingService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
