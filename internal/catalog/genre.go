package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/store"
)

// Genre is a music genre, unique case-insensitively
type Genre struct {
	ID   int64
	Name string
}

const genreTable = "genres"

// CreateGenre inserts a genre row
func (c *Catalog) CreateGenre(q store.DBTX, name string) (*Genre, error) {
	res, err := q.Exec(`INSERT INTO genres (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to insert genre: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	g := &Genre{ID: id, Name: name}
	c.store.Identity().Put(genreTable, id, g)
	return g, nil
}

// GenreByName matches case-insensitively on the exact name
func (c *Catalog) GenreByName(q store.DBTX, name string) (*Genre, error) {
	g := &Genre{}
	err := q.QueryRow(`
		SELECT id_genre, name FROM genres WHERE name = ? COLLATE NOCASE
	`, name).Scan(&g.ID, &g.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch genre: %w", err)
	}
	c.store.Identity().Put(genreTable, g.ID, g)
	return g, nil
}

// GenreByID fetches a genre through the identity map
func (c *Catalog) GenreByID(id int64) (*Genre, error) {
	if v, ok := c.store.Identity().Get(genreTable, id); ok {
		return v.(*Genre), nil
	}
	g := &Genre{}
	err := c.store.QueryRow(`SELECT id_genre, name FROM genres WHERE id_genre = ?`, id).
		Scan(&g.ID, &g.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.store.Identity().Put(genreTable, id, g)
	return g, nil
}

// ListGenres lists every genre alphabetically
func (c *Catalog) ListGenres(desc bool) ([]*Genre, error) {
	rows, err := c.store.Query(`SELECT id_genre, name FROM genres ORDER BY name ` + sortDirection(desc))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Genre
	for rows.Next() {
		g := &Genre{}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// SearchGenres matches the query against the genre full-text mirror
func (c *Catalog) SearchGenres(pattern string) ([]*Genre, error) {
	rows, err := c.store.Query(`
		SELECT id_genre, name FROM genres
		WHERE id_genre IN (SELECT rowid FROM genre_fts WHERE genre_fts MATCH ?)
		ORDER BY name`, ftsQuery(pattern))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Genre
	for rows.Next() {
		g := &Genre{}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
