package catalog

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/franz/medialib/internal/store"
)

// Media is the user-visible unit of the catalogue. One media is backed
// by one or more files (main file plus external subtitle or cover
// files).
type Media struct {
	ID             int64
	Type           MediaType
	SubType        MediaSubType
	Title          string
	Duration       int64 // milliseconds
	PlayCount      int
	LastPlayedDate int64
	InsertionDate  int64
	ReleaseDate    int64
	ThumbnailMrl   string
	IsFavorite     bool
	IsPresent      bool
}

const mediaTable = "media"

const mediaCols = `id_media, type, subtype, title, duration, play_count,
	COALESCE(last_played_date, 0), insertion_date, COALESCE(release_date, 0),
	thumbnail, is_favorite, is_present`

func scanMedia(row interface{ Scan(...any) error }) (*Media, error) {
	m := &Media{}
	err := row.Scan(&m.ID, &m.Type, &m.SubType, &m.Title, &m.Duration,
		&m.PlayCount, &m.LastPlayedDate, &m.InsertionDate, &m.ReleaseDate,
		&m.ThumbnailMrl, &m.IsFavorite, &m.IsPresent)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateMedia inserts a media row
func (c *Catalog) CreateMedia(q store.DBTX, title string, mt MediaType) (*Media, error) {
	now := time.Now().Unix()
	res, err := q.Exec(`
		INSERT INTO media (type, title, insertion_date) VALUES (?, ?, ?)
	`, mt, title, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert media: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	m := &Media{ID: id, Type: mt, Title: title, InsertionDate: now, IsPresent: true}
	c.store.Identity().Put(mediaTable, id, m)
	return m, nil
}

// MediaByID fetches a media through the identity map
func (c *Catalog) MediaByID(id int64) (*Media, error) {
	if v, ok := c.store.Identity().Get(mediaTable, id); ok {
		return v.(*Media), nil
	}
	row := c.store.QueryRow(`SELECT `+mediaCols+` FROM media WHERE id_media = ?`, id)
	m, err := scanMedia(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.store.Identity().Put(mediaTable, id, m)
	return m, nil
}

// MediaByIDTx fetches a media inside an open transaction, bypassing both
// caches so the row reflects the transaction's own writes
func (c *Catalog) MediaByIDTx(q store.DBTX, id int64) (*Media, error) {
	row := q.QueryRow(`SELECT `+mediaCols+` FROM media WHERE id_media = ?`, id)
	m, err := scanMedia(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func mediaOrder(sort SortingCriteria, desc bool) string {
	dir := sortDirection(desc)
	switch sort {
	case SortAlpha:
		return "title " + dir
	case SortDuration:
		return "duration " + dir
	case SortReleaseDate:
		return "release_date " + dir
	case SortPlayCount:
		return "play_count " + dir
	case SortLastModified:
		return `(SELECT MAX(last_modification_date) FROM files
			WHERE files.media_id = media.id_media) ` + dir + `, id_media ` + dir
	case SortTrackNumber:
		return `(SELECT disc_number FROM album_tracks
			WHERE album_tracks.media_id = media.id_media) ` + dir + `,
			(SELECT track_number FROM album_tracks
			WHERE album_tracks.media_id = media.id_media) ` + dir
	case SortInsertionDate, SortDefault:
		fallthrough
	default:
		return "insertion_date " + dir + ", id_media " + dir
	}
}

// ListMedia lists media of one type
func (c *Catalog) ListMedia(mt MediaType, sort SortingCriteria, desc bool) ([]*Media, error) {
	rows, err := c.store.Query(`
		SELECT `+mediaCols+` FROM media WHERE type = ? ORDER BY `+mediaOrder(sort, desc), mt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

// ListPresentMedia lists media whose backing files are all reachable
func (c *Catalog) ListPresentMedia(mt MediaType, sort SortingCriteria, desc bool) ([]*Media, error) {
	rows, err := c.store.Query(`
		SELECT `+mediaCols+` FROM media WHERE type = ? AND is_present = 1
		ORDER BY `+mediaOrder(sort, desc), mt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

// ListHistory lists played media, most recent first
func (c *Catalog) ListHistory() ([]*Media, error) {
	rows, err := c.store.Query(`
		SELECT ` + mediaCols + ` FROM media
		WHERE last_played_date IS NOT NULL AND last_played_date > 0
		ORDER BY last_played_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

// SearchMedia matches the query against the media full-text mirror with
// prefix semantics
func (c *Catalog) SearchMedia(pattern string) ([]*Media, error) {
	rows, err := c.store.Query(`
		SELECT `+mediaCols+` FROM media
		WHERE id_media IN (SELECT rowid FROM media_fts WHERE media_fts MATCH ?)
		ORDER BY title`, ftsQuery(pattern))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMedia(rows)
}

func collectMedia(rows *sql.Rows) ([]*Media, error) {
	var out []*Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMediaMeta persists classification results from the parser
func (c *Catalog) UpdateMediaMeta(q store.DBTX, id int64, title string, mt MediaType, st MediaSubType, duration, releaseDate int64) error {
	_, err := q.Exec(`
		UPDATE media SET title = ?, type = ?, subtype = ?, duration = ?, release_date = ?
		WHERE id_media = ?
	`, title, mt, st, duration, store.NullableID(releaseDate), id)
	if err != nil {
		return fmt.Errorf("failed to update media: %w", err)
	}
	c.store.Identity().Evict(mediaTable, id)
	return nil
}

// SetMediaThumbnail records the generated thumbnail MRL
func (c *Catalog) SetMediaThumbnail(q store.DBTX, id int64, mrl string) error {
	_, err := q.Exec(`UPDATE media SET thumbnail = ? WHERE id_media = ?`, mrl, id)
	if err != nil {
		return fmt.Errorf("failed to set thumbnail: %w", err)
	}
	c.store.Identity().Evict(mediaTable, id)
	return nil
}

// MarkPlayed bumps the play count and stamps the play date
func (c *Catalog) MarkPlayed(id int64) error {
	err := c.store.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE media SET play_count = play_count + 1, last_played_date = ?
			WHERE id_media = ?
		`, time.Now().Unix(), id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to mark played: %w", err)
	}
	c.store.Identity().Evict(mediaTable, id)
	return nil
}

// SetFavorite flags or unflags a media as favourite
func (c *Catalog) SetFavorite(id int64, favorite bool) error {
	err := c.store.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE media SET is_favorite = ? WHERE id_media = ?`, favorite, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to set favorite: %w", err)
	}
	c.store.Identity().Evict(mediaTable, id)
	return nil
}

// DeleteMedia removes a media and its dependents. Playlist and album
// rows are removed explicitly, before the media row, so their
// maintenance triggers run while the media still exists.
func (c *Catalog) DeleteMedia(id int64) error {
	err := c.store.Transaction(func(tx *sql.Tx) error {
		track, err := c.TrackByMediaTx(tx, id)
		if err != nil {
			return err
		}
		if track != nil {
			if err := c.RemoveTrackTx(tx, track); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`DELETE FROM playlist_media WHERE media_id = ?`, id); err != nil {
			return fmt.Errorf("failed to clear playlist entries: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM media WHERE id_media = ?`, id); err != nil {
			return fmt.Errorf("failed to delete media: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.store.Identity().Evict(mediaTable, id)
	c.store.Identity().EvictTable(fileTable)
	return nil
}
