package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/formsync/internal/core/domain"
	"github.com/custodia-labs/formsync/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	now       func() time.Time
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		now:       time.Now,
	}
}

// Create stores a new document at version 0.
func (s *DocumentStore) Create(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return domain.ErrAlreadyExists
	}
	stored := doc.Clone()
	stored.Version = 0
	s.documents[doc.ID] = stored
	return nil
}

// Get retrieves a document by ID.
func (s *DocumentStore) Get(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := doc.Clone()
	return &c, nil
}

// List returns the documents with the given IDs, skipping missing ones.
func (s *DocumentStore) List(_ context.Context, ids []string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := s.documents[id]; ok {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

// ApplyChanges merges fields and bumps the version under one lock.
func (s *DocumentStore) ApplyChanges(_ context.Context, id string, changes map[string]any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	doc = doc.Clone()
	for name, value := range changes {
		doc.SetField(name, value)
	}
	doc.Version++
	doc.UpdatedAt = s.now()
	s.documents[id] = doc
	return doc.Version, nil
}
