package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/store"
)

// Synthetic artist rows seeded by the schema
const (
	UnknownArtistID  = store.UnknownArtistID
	VariousArtistsID = store.VariousArtistsID
)

// Artist is a performing or album artist
type Artist struct {
	ID            int64
	Name          string
	ShortBio      string
	ArtworkMrl    string
	MusicBrainzID string
	NbAlbums      int
	NbTracks      int
	IsPresent     bool
}

const artistTable = "artists"

const artistCols = `id_artist, COALESCE(name, ''), short_bio, artwork,
	musicbrainz_id, nb_albums, nb_tracks, is_present`

func scanArtist(row interface{ Scan(...any) error }) (*Artist, error) {
	a := &Artist{}
	err := row.Scan(&a.ID, &a.Name, &a.ShortBio, &a.ArtworkMrl,
		&a.MusicBrainzID, &a.NbAlbums, &a.NbTracks, &a.IsPresent)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateArtist inserts an artist row
func (c *Catalog) CreateArtist(q store.DBTX, name string) (*Artist, error) {
	res, err := q.Exec(`INSERT INTO artists (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to insert artist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	a := &Artist{ID: id, Name: name, IsPresent: true}
	c.store.Identity().Put(artistTable, id, a)
	return a, nil
}

// ArtistByName matches case-insensitively on the exact name
func (c *Catalog) ArtistByName(q store.DBTX, name string) (*Artist, error) {
	row := q.QueryRow(`SELECT `+artistCols+` FROM artists WHERE name = ? COLLATE NOCASE`, name)
	a, err := scanArtist(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch artist: %w", err)
	}
	c.store.Identity().Put(artistTable, a.ID, a)
	return a, nil
}

// ArtistByID fetches an artist through the identity map
func (c *Catalog) ArtistByID(id int64) (*Artist, error) {
	if v, ok := c.store.Identity().Get(artistTable, id); ok {
		return v.(*Artist), nil
	}
	row := c.store.QueryRow(`SELECT `+artistCols+` FROM artists WHERE id_artist = ?`, id)
	a, err := scanArtist(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.store.Identity().Put(artistTable, id, a)
	return a, nil
}

// ListArtists lists artists that actually have content, hiding the
// synthetic rows unless they accumulated albums or tracks
func (c *Catalog) ListArtists(sort SortingCriteria, desc bool) ([]*Artist, error) {
	order := "name " + sortDirection(desc)
	if sort == SortDefault {
		order = "name ASC"
	}
	rows, err := c.store.Query(`
		SELECT ` + artistCols + ` FROM artists
		WHERE nb_albums > 0 OR nb_tracks > 0
		ORDER BY ` + order)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArtists(rows)
}

// SearchArtists matches the query against the artist full-text mirror
func (c *Catalog) SearchArtists(pattern string) ([]*Artist, error) {
	rows, err := c.store.Query(`
		SELECT `+artistCols+` FROM artists
		WHERE id_artist IN (SELECT rowid FROM artist_fts WHERE artist_fts MATCH ?)
		ORDER BY name`, ftsQuery(pattern))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectArtists(rows)
}

func collectArtists(rows *sql.Rows) ([]*Artist, error) {
	var out []*Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteArtist removes an artist with no remaining content. Deleting an
// artist that still has albums or tracks is forbidden.
func (c *Catalog) DeleteArtist(id int64) error {
	return c.store.Transaction(func(tx *sql.Tx) error {
		var albums, tracks int
		err := tx.QueryRow(`
			SELECT nb_albums, nb_tracks FROM artists WHERE id_artist = ?
		`, id).Scan(&albums, &tracks)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if albums > 0 || tracks > 0 {
			return fmt.Errorf("artist %d still has %d albums and %d tracks", id, albums, tracks)
		}
		if _, err := tx.Exec(`DELETE FROM artists WHERE id_artist = ?`, id); err != nil {
			return fmt.Errorf("failed to delete artist: %w", err)
		}
		c.store.Identity().Evict(artistTable, id)
		return nil
	})
}

// SetArtistMusicBrainz records enrichment results
func (c *Catalog) SetArtistMusicBrainz(q store.DBTX, id int64, mbid, bio string) error {
	_, err := q.Exec(`
		UPDATE artists SET musicbrainz_id = ?, short_bio = ? WHERE id_artist = ?
	`, mbid, bio, id)
	if err != nil {
		return fmt.Errorf("failed to update artist: %w", err)
	}
	c.store.Identity().Evict(artistTable, id)
	return nil
}

func (c *Catalog) addArtistTrack(q store.DBTX, artistID int64) error {
	_, err := q.Exec(`
		UPDATE artists SET nb_tracks = nb_tracks + 1 WHERE id_artist = ?
	`, artistID)
	c.store.Identity().Evict(artistTable, artistID)
	return err
}

func (c *Catalog) removeArtistTrack(q store.DBTX, artistID int64) error {
	_, err := q.Exec(`
		UPDATE artists SET nb_tracks = nb_tracks - 1 WHERE id_artist = ?
	`, artistID)
	c.store.Identity().Evict(artistTable, artistID)
	return err
}

func (c *Catalog) addArtistAlbum(q store.DBTX, artistID int64) error {
	_, err := q.Exec(`
		UPDATE artists SET nb_albums = nb_albums + 1 WHERE id_artist = ?
	`, artistID)
	c.store.Identity().Evict(artistTable, artistID)
	return err
}

func (c *Catalog) removeArtistAlbum(q store.DBTX, artistID int64) error {
	_, err := q.Exec(`
		UPDATE artists SET nb_albums = nb_albums - 1 WHERE id_artist = ?
	`, artistID)
	c.store.Identity().Evict(artistTable, artistID)
	return err
}
