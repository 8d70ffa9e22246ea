// Package memory implements the document store port with in-process maps.
// It is the default backend and what the service tests run against.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"duit/internal/docstore"
)

type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]docstore.Document
}

func New() *Store {
	return &Store{collections: make(map[string]map[string]docstore.Document)}
}

var _ docstore.Store = (*Store)(nil)

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return clone(doc), nil
}

func (s *Store) Set(_ context.Context, collection, id string, doc docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(collection, id, doc)
	return nil
}

func (s *Store) Update(_ context.Context, collection, id string, fields docstore.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(collection, id, fields)
}

func (s *Store) QueryByField(_ context.Context, collection, field, value string) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []docstore.Document
	for _, doc := range s.collections[collection] {
		if v, ok := doc[field].(string); ok && v == value {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (s *Store) ListAll(_ context.Context, collection string) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]docstore.Document, 0, len(s.collections[collection]))
	for _, doc := range s.collections[collection] {
		out = append(out, clone(doc))
	}
	return out, nil
}

// Apply validates every operation against current state before mutating,
// so a failing op leaves the store untouched.
func (s *Store) Apply(_ context.Context, b *docstore.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range b.Ops {
		if op.Kind == docstore.OpUpdate {
			if _, ok := s.collections[op.Collection][op.ID]; !ok {
				return fmt.Errorf("update %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
			}
		}
	}

	for _, op := range b.Ops {
		switch op.Kind {
		case docstore.OpSet:
			s.set(op.Collection, op.ID, op.Doc)
		case docstore.OpUpdate:
			if err := s.update(op.Collection, op.ID, op.Doc); err != nil {
				return err
			}
		case docstore.OpDelete:
			delete(s.collections[op.Collection], op.ID)
		}
	}
	return nil
}

func (s *Store) NewID() string {
	return uuid.NewString()
}

func (s *Store) set(collection, id string, doc docstore.Document) {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]docstore.Document)
	}
	s.collections[collection][id] = clone(doc)
}

func (s *Store) update(collection, id string, fields docstore.Document) error {
	doc, ok := s.collections[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	merged := clone(doc)
	for k, v := range clone(fields) {
		merged[k] = v
	}
	s.collections[collection][id] = merged
	return nil
}

// clone deep-copies a document so callers never share nested maps with
// the store.
func clone(doc docstore.Document) docstore.Document {
	out := make(docstore.Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = cloneValue(e)
		}
		return l
	default:
		return v
	}
}
