package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/store"
)

// Album groups the tracks of one release. AlbumArtistID is 0 until a
// track establishes it; it upgrades to Various Artists once two distinct
// performing artists appear on the album.
type Album struct {
	ID            int64
	Title         string
	AlbumArtistID int64
	ReleaseYear   int
	ShortSummary  string
	ArtworkMrl    string
	NbTracks      int
	Duration      int64
}

const albumTable = "albums"

const albumCols = `id_album, title, COALESCE(artist_id, 0),
	COALESCE(release_year, 0), short_summary, artwork, nb_tracks, duration`

func scanAlbum(row interface{ Scan(...any) error }) (*Album, error) {
	a := &Album{}
	err := row.Scan(&a.ID, &a.Title, &a.AlbumArtistID, &a.ReleaseYear,
		&a.ShortSummary, &a.ArtworkMrl, &a.NbTracks, &a.Duration)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAlbum inserts an album row. artistID 0 leaves the album artist
// unresolved.
func (c *Catalog) CreateAlbum(q store.DBTX, title string, artistID int64) (*Album, error) {
	res, err := q.Exec(`
		INSERT INTO albums (title, artist_id) VALUES (?, ?)
	`, title, store.NullableID(artistID))
	if err != nil {
		return nil, fmt.Errorf("failed to insert album: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if artistID != 0 {
		if err := c.addArtistAlbum(q, artistID); err != nil {
			return nil, err
		}
	}
	a := &Album{ID: id, Title: title, AlbumArtistID: artistID}
	c.store.Identity().Put(albumTable, id, a)
	return a, nil
}

// AlbumByTitleAndArtist requires both the title and the album artist to
// match. A title match with a different artist is a different album.
func (c *Catalog) AlbumByTitleAndArtist(q store.DBTX, title string, artistID int64) (*Album, error) {
	row := q.QueryRow(`
		SELECT `+albumCols+` FROM albums
		WHERE title = ? COLLATE NOCASE AND artist_id IS ?
	`, title, store.NullableID(artistID))
	a, err := scanAlbum(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch album: %w", err)
	}
	c.store.Identity().Put(albumTable, a.ID, a)
	return a, nil
}

// AlbumsByTitle returns every album carrying the title, any artist
func (c *Catalog) AlbumsByTitle(q store.DBTX, title string) ([]*Album, error) {
	rows, err := q.Query(`
		SELECT `+albumCols+` FROM albums WHERE title = ? COLLATE NOCASE
	`, title)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlbums(rows)
}

// AlbumByID fetches an album through the identity map
func (c *Catalog) AlbumByID(id int64) (*Album, error) {
	if v, ok := c.store.Identity().Get(albumTable, id); ok {
		return v.(*Album), nil
	}
	row := c.store.QueryRow(`SELECT `+albumCols+` FROM albums WHERE id_album = ?`, id)
	a, err := scanAlbum(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.store.Identity().Put(albumTable, id, a)
	return a, nil
}

// AlbumByIDTx fetches an album inside an open transaction, bypassing the
// identity map
func (c *Catalog) AlbumByIDTx(q store.DBTX, id int64) (*Album, error) {
	row := q.QueryRow(`SELECT `+albumCols+` FROM albums WHERE id_album = ?`, id)
	a, err := scanAlbum(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListAlbums lists albums sorted by the requested criteria
func (c *Catalog) ListAlbums(sort SortingCriteria, desc bool) ([]*Album, error) {
	dir := sortDirection(desc)
	order := "title " + dir
	switch sort {
	case SortDuration:
		order = "duration " + dir
	case SortReleaseDate:
		order = "release_year " + dir + ", title " + dir
	}
	rows, err := c.store.Query(`SELECT ` + albumCols + ` FROM albums ORDER BY ` + order)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlbums(rows)
}

// AlbumsByArtist lists the albums credited to one album artist
func (c *Catalog) AlbumsByArtist(artistID int64) ([]*Album, error) {
	rows, err := c.store.Query(`
		SELECT `+albumCols+` FROM albums WHERE artist_id = ?
		ORDER BY release_year, title
	`, artistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlbums(rows)
}

// SearchAlbums matches the query against the album full-text mirror
func (c *Catalog) SearchAlbums(pattern string) ([]*Album, error) {
	rows, err := c.store.Query(`
		SELECT `+albumCols+` FROM albums
		WHERE id_album IN (SELECT rowid FROM album_fts WHERE album_fts MATCH ?)
		ORDER BY title`, ftsQuery(pattern))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlbums(rows)
}

func collectAlbums(rows *sql.Rows) ([]*Album, error) {
	var out []*Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetAlbumArtist rewrites the album artist credit, maintaining artist
// album counters on both sides
func (c *Catalog) SetAlbumArtist(q store.DBTX, album *Album, artistID int64) error {
	if album.AlbumArtistID == artistID {
		return nil
	}
	if album.AlbumArtistID != 0 {
		if err := c.removeArtistAlbum(q, album.AlbumArtistID); err != nil {
			return err
		}
	}
	if artistID != 0 {
		if err := c.addArtistAlbum(q, artistID); err != nil {
			return err
		}
	}
	_, err := q.Exec(`UPDATE albums SET artist_id = ? WHERE id_album = ?`,
		store.NullableID(artistID), album.ID)
	if err != nil {
		return fmt.Errorf("failed to set album artist: %w", err)
	}
	album.AlbumArtistID = artistID
	c.store.Identity().Evict(albumTable, album.ID)
	return nil
}

// addAlbumTrackAggregates folds one new track into the album totals
func (c *Catalog) addAlbumTrackAggregates(q store.DBTX, albumID, duration int64) error {
	_, err := q.Exec(`
		UPDATE albums SET nb_tracks = nb_tracks + 1, duration = duration + ?
		WHERE id_album = ?
	`, duration, albumID)
	c.store.Identity().Evict(albumTable, albumID)
	return err
}

func (c *Catalog) removeAlbumTrackAggregates(q store.DBTX, albumID, duration int64) error {
	_, err := q.Exec(`
		UPDATE albums SET nb_tracks = nb_tracks - 1, duration = duration - ?
		WHERE id_album = ?
	`, duration, albumID)
	c.store.Identity().Evict(albumTable, albumID)
	return err
}
