package catalog

import (
	"database/sql"
	"fmt"
	"strings"
)

// EntryPoint is one directory tree the user asked the library to index
type EntryPoint struct {
	ID  int64
	Mrl string
}

// AddEntryPoint records an entry point; adding the same MRL twice is a
// no-op
func (c *Catalog) AddEntryPoint(mrl string) (*EntryPoint, error) {
	mrl = strings.TrimSuffix(mrl, "/")
	var ep *EntryPoint
	err := c.store.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO entry_points (mrl) VALUES (?)`, mrl); err != nil {
			return fmt.Errorf("failed to insert entry point: %w", err)
		}
		ep = &EntryPoint{Mrl: mrl}
		return tx.QueryRow(`SELECT id_entry_point FROM entry_points WHERE mrl = ?`, mrl).
			Scan(&ep.ID)
	})
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// RemoveEntryPoint forgets an entry point. Already-indexed content stays
// in the catalogue.
func (c *Catalog) RemoveEntryPoint(mrl string) error {
	mrl = strings.TrimSuffix(mrl, "/")
	return c.store.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM entry_points WHERE mrl = ?`, mrl)
		if err != nil {
			return fmt.Errorf("failed to delete entry point: %w", err)
		}
		return nil
	})
}

// ListEntryPoints returns every registered entry point
func (c *Catalog) ListEntryPoints() ([]*EntryPoint, error) {
	rows, err := c.store.Query(`SELECT id_entry_point, mrl FROM entry_points ORDER BY id_entry_point`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*EntryPoint
	for rows.Next() {
		ep := &EntryPoint{}
		if err := rows.Scan(&ep.ID, &ep.Mrl); err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}
