package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"clinical-doc-access/internal/ports/documents"
)

var ErrNotFound = errors.New("document not found")

// Fetcher in-memory para dev y tests: se cargan documentos a mano.
type Fetcher struct {
	mu   sync.RWMutex
	byID map[string]documents.Document
}

func NewFetcher() *Fetcher {
	return &Fetcher{byID: make(map[string]documents.Document)}
}

func (f *Fetcher) Put(doc documents.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[doc.ID] = doc
}

func (f *Fetcher) FetchByID(ctx context.Context, documentID string) (documents.Document, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	doc, ok := f.byID[documentID]
	if !ok {
		return documents.Document{}, ErrNotFound
	}
	doc.FetchedAt = time.Now()
	return doc, nil
}
