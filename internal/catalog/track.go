package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/store"
)

// AlbumTrack links a media to its album, performing artist and genre
type AlbumTrack struct {
	ID          int64
	MediaID     int64
	AlbumID     int64
	ArtistID    int64 // 0 when unknown
	GenreID     int64 // 0 when unknown
	TrackNumber int
	DiscNumber  int
}

const trackCols = `id_track, media_id, album_id, COALESCE(artist_id, 0),
	COALESCE(genre_id, 0), track_number, disc_number`

func scanTrack(row interface{ Scan(...any) error }) (*AlbumTrack, error) {
	t := &AlbumTrack{}
	err := row.Scan(&t.ID, &t.MediaID, &t.AlbumID, &t.ArtistID, &t.GenreID,
		&t.TrackNumber, &t.DiscNumber)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateAlbumTrack inserts a track and folds it into album and artist
// aggregates. duration is the media duration, already persisted.
func (c *Catalog) CreateAlbumTrack(q store.DBTX, mediaID, albumID, artistID, genreID int64, trackNumber, discNumber int, duration int64) (*AlbumTrack, error) {
	res, err := q.Exec(`
		INSERT INTO album_tracks (media_id, album_id, artist_id, genre_id, track_number, disc_number)
		VALUES (?, ?, ?, ?, ?, ?)
	`, mediaID, albumID, store.NullableID(artistID), store.NullableID(genreID),
		trackNumber, discNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to insert album track: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := c.addAlbumTrackAggregates(q, albumID, duration); err != nil {
		return nil, err
	}
	if artistID != 0 {
		if err := c.addArtistTrack(q, artistID); err != nil {
			return nil, err
		}
	}

	return &AlbumTrack{
		ID:          id,
		MediaID:     mediaID,
		AlbumID:     albumID,
		ArtistID:    artistID,
		GenreID:     genreID,
		TrackNumber: trackNumber,
		DiscNumber:  discNumber,
	}, nil
}

// TrackByMedia fetches the album track backing one media, if any
func (c *Catalog) TrackByMedia(mediaID int64) (*AlbumTrack, error) {
	row := c.store.QueryRow(`
		SELECT `+trackCols+` FROM album_tracks WHERE media_id = ?
	`, mediaID)
	t, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (c *Catalog) TrackByMediaTx(q store.DBTX, mediaID int64) (*AlbumTrack, error) {
	row := q.QueryRow(`
		SELECT `+trackCols+` FROM album_tracks WHERE media_id = ?
	`, mediaID)
	t, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// TracksByAlbum lists an album's tracks in disc and track order
func (c *Catalog) TracksByAlbum(albumID int64, sort SortingCriteria, desc bool) ([]*AlbumTrack, error) {
	order := "disc_number, track_number"
	if sort == SortAlpha {
		order = `(SELECT title FROM media WHERE id_media = media_id) ` + sortDirection(desc)
	} else if desc {
		order = "disc_number DESC, track_number DESC"
	}
	rows, err := c.store.Query(`
		SELECT `+trackCols+` FROM album_tracks WHERE album_id = ? ORDER BY `+order, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AlbumTrack
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DistinctTrackArtists counts the distinct performing artists on an
// album, used by the album-artist upgrade rule
func (c *Catalog) DistinctTrackArtists(q store.DBTX, albumID int64) (int, error) {
	var n int
	err := q.QueryRow(`
		SELECT COUNT(DISTINCT artist_id) FROM album_tracks
		WHERE album_id = ? AND artist_id IS NOT NULL
	`, albumID).Scan(&n)
	return n, err
}

// RemoveTrackTx unlinks a track and unwinds its aggregates. Runs before
// the media row disappears so the duration is still readable.
func (c *Catalog) RemoveTrackTx(q store.DBTX, t *AlbumTrack) error {
	var duration int64
	err := q.QueryRow(`SELECT duration FROM media WHERE id_media = ?`, t.MediaID).Scan(&duration)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if _, err := q.Exec(`DELETE FROM album_tracks WHERE id_track = ?`, t.ID); err != nil {
		return fmt.Errorf("failed to delete album track: %w", err)
	}
	if err := c.removeAlbumTrackAggregates(q, t.AlbumID, duration); err != nil {
		return err
	}
	if t.ArtistID != 0 {
		if err := c.removeArtistTrack(q, t.ArtistID); err != nil {
			return err
		}
	}
	return nil
}
