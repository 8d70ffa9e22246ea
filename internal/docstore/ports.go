// Package docstore defines the document store port every backend adapter
// implements: keyed document reads and writes, partial field updates,
// query-by-field, and an atomic multi-document batch.
//
// The batch capability is what makes the directory and ledger services
// safe: inviting a member touches both the family and the user document,
// and a transfer touches two balances. Adapters must apply a batch
// all-or-nothing; an adapter that cannot guarantee that must fail the
// whole batch.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// Collection names used by the application.
const (
	Users        = "users"
	Families     = "families"
	Wallets      = "wallets"
	Budgets      = "budgets"
	Transactions = "transactions"
	Audit        = "audit"
)

// ErrNotFound is returned when a referenced document does not exist.
var ErrNotFound = errors.New("document not found")

// Document is a schemaless record as stored by an adapter.
type Document map[string]any

// Store is the port consumed by the services. Implementations:
// memory, sqlite, mongo.
type Store interface {
	// Get returns the document with the given id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)
	// Set writes the full document under the given id, creating or replacing it.
	Set(ctx context.Context, collection, id string, doc Document) error
	// Update merges the given top-level fields into an existing document.
	// Returns ErrNotFound when the document does not exist.
	Update(ctx context.Context, collection, id string, fields Document) error
	// QueryByField returns every document whose top-level field equals value.
	QueryByField(ctx context.Context, collection, field, value string) ([]Document, error)
	// ListAll returns every document in the collection.
	ListAll(ctx context.Context, collection string) ([]Document, error)
	// Apply executes all batch operations atomically.
	Apply(ctx context.Context, b *Batch) error
	// NewID returns a fresh server-assigned document identifier.
	NewID() string
}

// OpKind discriminates batch operations.
type OpKind int

const (
	OpSet OpKind = iota
	OpUpdate
	OpDelete
)

// Op is a single operation inside a batch.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Doc        Document
}

// Batch collects operations to be applied atomically by Store.Apply.
type Batch struct {
	Ops []Op
}

func NewBatch() *Batch {
	return &Batch{}
}

func (b *Batch) Set(collection, id string, doc Document) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpSet, Collection: collection, ID: id, Doc: doc})
	return b
}

func (b *Batch) Update(collection, id string, fields Document) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpUpdate, Collection: collection, ID: id, Doc: fields})
	return b
}

func (b *Batch) Delete(collection, id string) *Batch {
	b.Ops = append(b.Ops, Op{Kind: OpDelete, Collection: collection, ID: id})
	return b
}

// Encode converts a domain value into a Document via its JSON form.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Decode converts a Document back into a domain value via its JSON form.
func Decode(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
