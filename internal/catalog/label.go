package catalog

import (
	"database/sql"
	"fmt"
)

// Label is a user tag, many-to-many with media
type Label struct {
	ID   int64
	Name string
}

// CreateLabel inserts a label, returning the existing row when the name
// is already taken
func (c *Catalog) CreateLabel(name string) (*Label, error) {
	var l *Label
	err := c.store.Transaction(func(tx *sql.Tx) error {
		existing := &Label{}
		err := tx.QueryRow(`SELECT id_label, name FROM labels WHERE name = ?`, name).
			Scan(&existing.ID, &existing.Name)
		if err == nil {
			l = existing
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}
		res, err := tx.Exec(`INSERT INTO labels (name) VALUES (?)`, name)
		if err != nil {
			return fmt.Errorf("failed to insert label: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		l = &Label{ID: id, Name: name}
		return nil
	})
	return l, err
}

// ListLabels lists every label alphabetically
func (c *Catalog) ListLabels() ([]*Label, error) {
	rows, err := c.store.Query(`SELECT id_label, name FROM labels ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Label
	for rows.Next() {
		l := &Label{}
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// AttachLabel links a label to a media; attaching twice is a no-op
func (c *Catalog) AttachLabel(labelID, mediaID int64) error {
	return c.store.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO label_media (label_id, media_id) VALUES (?, ?)
		`, labelID, mediaID)
		if err != nil {
			return fmt.Errorf("failed to attach label: %w", err)
		}
		return nil
	})
}

// DetachLabel unlinks a label from a media
func (c *Catalog) DetachLabel(labelID, mediaID int64) error {
	return c.store.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			DELETE FROM label_media WHERE label_id = ? AND media_id = ?
		`, labelID, mediaID)
		if err != nil {
			return fmt.Errorf("failed to detach label: %w", err)
		}
		return nil
	})
}

// MediaByLabel lists the media carrying one label
func (c *Catalog) MediaByLabel(labelID int64) ([]*Media, error) {
	rows, err := c.store.Query(`
		SELECT `+mediaCols+` FROM media
		WHERE id_media IN (SELECT media_id FROM label_media WHERE label_id = ?)
		ORDER BY title
	`, labelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

// LabelsByMedia lists the labels attached to one media
func (c *Catalog) LabelsByMedia(mediaID int64) ([]*Label, error) {
	rows, err := c.store.Query(`
		SELECT id_label, name FROM labels
		WHERE id_label IN (SELECT label_id FROM label_media WHERE media_id = ?)
		ORDER BY name
	`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Label
	for rows.Next() {
		l := &Label{}
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
