package catalog

import (
	"database/sql"
	"fmt"
	"time"
)

// Playlist is an ordered set of media. Positions stay a dense 1..N
// permutation; the triggers in the schema and the delete+reinsert shape
// of Move keep them that way.
type Playlist struct {
	ID           int64
	Name         string
	CreationDate int64
}

const playlistTable = "playlists"

// CreatePlaylist inserts a playlist row
func (c *Catalog) CreatePlaylist(name string) (*Playlist, error) {
	var p *Playlist
	err := c.store.Transaction(func(tx *sql.Tx) error {
		now := time.Now().Unix()
		res, err := tx.Exec(`INSERT INTO playlists (name, creation_date) VALUES (?, ?)`, name, now)
		if err != nil {
			return fmt.Errorf("failed to insert playlist: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		p = &Playlist{ID: id, Name: name, CreationDate: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.store.Identity().Put(playlistTable, p.ID, p)
	return p, nil
}

// PlaylistByID fetches a playlist through the identity map
func (c *Catalog) PlaylistByID(id int64) (*Playlist, error) {
	if v, ok := c.store.Identity().Get(playlistTable, id); ok {
		return v.(*Playlist), nil
	}
	p := &Playlist{}
	err := c.store.QueryRow(`
		SELECT id_playlist, name, creation_date FROM playlists WHERE id_playlist = ?
	`, id).Scan(&p.ID, &p.Name, &p.CreationDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.store.Identity().Put(playlistTable, id, p)
	return p, nil
}

// ListPlaylists lists playlists by creation date or name
func (c *Catalog) ListPlaylists(sort SortingCriteria, desc bool) ([]*Playlist, error) {
	order := "creation_date " + sortDirection(desc)
	if sort == SortAlpha {
		order = "name " + sortDirection(desc)
	}
	rows, err := c.store.Query(`
		SELECT id_playlist, name, creation_date FROM playlists ORDER BY ` + order)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Playlist
	for rows.Next() {
		p := &Playlist{}
		if err := rows.Scan(&p.ID, &p.Name, &p.CreationDate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SearchPlaylists matches the query against the playlist full-text
// mirror
func (c *Catalog) SearchPlaylists(pattern string) ([]*Playlist, error) {
	rows, err := c.store.Query(`
		SELECT id_playlist, name, creation_date FROM playlists
		WHERE id_playlist IN (SELECT rowid FROM playlist_fts WHERE playlist_fts MATCH ?)
		ORDER BY name`, ftsQuery(pattern))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Playlist
	for rows.Next() {
		p := &Playlist{}
		if err := rows.Scan(&p.ID, &p.Name, &p.CreationDate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePlaylist removes a playlist and its relation rows
func (c *Catalog) DeletePlaylist(id int64) error {
	err := c.store.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM playlists WHERE id_playlist = ?`, id); err != nil {
			return fmt.Errorf("failed to delete playlist: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.store.Identity().Evict(playlistTable, id)
	return nil
}

// PlaylistAppend adds a media at the end. The position sentinel 0 maps
// to NULL so the append trigger assigns N+1.
func (c *Catalog) PlaylistAppend(playlistID, mediaID int64) error {
	return c.PlaylistAdd(playlistID, mediaID, 0)
}

// PlaylistAdd inserts a media at an explicit position. position 0 means
// append; an explicit position is clamped to [1, N+1] so a far-off
// position degrades to append.
func (c *Catalog) PlaylistAdd(playlistID, mediaID int64, position int) error {
	return c.store.Transaction(func(tx *sql.Tx) error {
		return c.playlistAddTx(tx, playlistID, mediaID, position)
	})
}

func (c *Catalog) playlistAddTx(tx *sql.Tx, playlistID, mediaID int64, position int) error {
	if position < 0 {
		return fmt.Errorf("invalid playlist position %d", position)
	}
	if position > 0 {
		n, err := c.playlistSizeTx(tx, playlistID)
		if err != nil {
			return err
		}
		if position > n+1 {
			position = n + 1
		}
	}
	_, err := tx.Exec(`
		INSERT INTO playlist_media (playlist_id, media_id, position)
		VALUES (?, ?, ?)
	`, playlistID, mediaID, nullablePosition(position))
	if err != nil {
		return fmt.Errorf("failed to add media to playlist: %w", err)
	}
	return nil
}

// PlaylistMove reorders a media to position. Positions are 1-based;
// 0 is rejected. Expressed as remove + reinsert so the compaction and
// shift triggers keep 1..N dense.
func (c *Catalog) PlaylistMove(playlistID, mediaID int64, position int) error {
	if position < 1 {
		return fmt.Errorf("invalid playlist position %d", position)
	}
	return c.store.Transaction(func(tx *sql.Tx) error {
		var current int
		err := tx.QueryRow(`
			SELECT position FROM playlist_media WHERE playlist_id = ? AND media_id = ?
		`, playlistID, mediaID).Scan(&current)
		if err == sql.ErrNoRows {
			return fmt.Errorf("media %d is not in playlist %d", mediaID, playlistID)
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			DELETE FROM playlist_media WHERE playlist_id = ? AND media_id = ?
		`, playlistID, mediaID); err != nil {
			return fmt.Errorf("failed to detach media for move: %w", err)
		}
		return c.playlistAddTx(tx, playlistID, mediaID, position)
	})
}

// PlaylistRemove detaches a media; later positions shift down
func (c *Catalog) PlaylistRemove(playlistID, mediaID int64) error {
	return c.store.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			DELETE FROM playlist_media WHERE playlist_id = ? AND media_id = ?
		`, playlistID, mediaID)
		if err != nil {
			return fmt.Errorf("failed to remove media from playlist: %w", err)
		}
		return nil
	})
}

// PlaylistMedia lists a playlist's media in position order
func (c *Catalog) PlaylistMedia(playlistID int64) ([]*Media, error) {
	rows, err := c.store.Query(`
		SELECT `+mediaCols+` FROM media
		JOIN playlist_media pm ON pm.media_id = media.id_media
		WHERE pm.playlist_id = ?
		ORDER BY pm.position
	`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

// PlaylistPositions returns (media_id, position) pairs, mostly for
// invariant checks
func (c *Catalog) PlaylistPositions(playlistID int64) (map[int64]int, error) {
	rows, err := c.store.Query(`
		SELECT media_id, position FROM playlist_media WHERE playlist_id = ?
	`, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]int)
	for rows.Next() {
		var mediaID int64
		var pos int
		if err := rows.Scan(&mediaID, &pos); err != nil {
			return nil, err
		}
		out[mediaID] = pos
	}
	return out, rows.Err()
}

func (c *Catalog) playlistSizeTx(tx *sql.Tx, playlistID int64) (int, error) {
	var n int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM playlist_media WHERE playlist_id = ?
	`, playlistID).Scan(&n)
	return n, err
}

func nullablePosition(position int) any {
	if position == 0 {
		return nil
	}
	return position
}
