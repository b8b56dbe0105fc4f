// Package catalog holds the relational media catalogue: domain entities,
// their invariants and the queries that maintain them. Entities are value
// structs carrying foreign-key ids; relationships resolve through the
// store so no ownership cycles form.
package catalog

import (
	"database/sql"

	"github.com/franz/medialib/internal/store"
)

// Catalog exposes every entity's operations over one store
type Catalog struct {
	store *store.Store
}

// New creates a catalogue over an opened store
func New(s *store.Store) *Catalog {
	return &Catalog{store: s}
}

// Store returns the underlying store
func (c *Catalog) Store() *store.Store { return c.store }

// Transaction runs fn inside a write transaction
func (c *Catalog) Transaction(fn func(tx *sql.Tx) error) error {
	return c.store.Transaction(fn)
}
