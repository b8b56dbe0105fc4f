package catalog

import (
	"fmt"

	"github.com/franz/medialib/internal/store"
)

// AudioTrack is one probed audio stream of a media
type AudioTrack struct {
	ID          int64
	MediaID     int64
	Codec       string
	Bitrate     int
	SampleRate  int
	NbChannels  int
	Language    string
	Description string
}

// VideoTrack is one probed video stream of a media
type VideoTrack struct {
	ID          int64
	MediaID     int64
	Codec       string
	Width       int
	Height      int
	Fps         float64
	Language    string
	Description string
}

// ReplaceAudioTracks rewrites a media's probed audio streams. The
// replace shape keeps re-runs of the persister stage idempotent.
func (c *Catalog) ReplaceAudioTracks(q store.DBTX, mediaID int64, tracks []AudioTrack) error {
	if _, err := q.Exec(`DELETE FROM audio_tracks WHERE media_id = ?`, mediaID); err != nil {
		return fmt.Errorf("failed to clear audio tracks: %w", err)
	}
	for _, t := range tracks {
		_, err := q.Exec(`
			INSERT INTO audio_tracks (media_id, codec, bitrate, samplerate, nb_channels, language, description)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, mediaID, t.Codec, t.Bitrate, t.SampleRate, t.NbChannels, t.Language, t.Description)
		if err != nil {
			return fmt.Errorf("failed to insert audio track: %w", err)
		}
	}
	return nil
}

// ReplaceVideoTracks rewrites a media's probed video streams
func (c *Catalog) ReplaceVideoTracks(q store.DBTX, mediaID int64, tracks []VideoTrack) error {
	if _, err := q.Exec(`DELETE FROM video_tracks WHERE media_id = ?`, mediaID); err != nil {
		return fmt.Errorf("failed to clear video tracks: %w", err)
	}
	for _, t := range tracks {
		_, err := q.Exec(`
			INSERT INTO video_tracks (media_id, codec, width, height, fps, language, description)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, mediaID, t.Codec, t.Width, t.Height, t.Fps, t.Language, t.Description)
		if err != nil {
			return fmt.Errorf("failed to insert video track: %w", err)
		}
	}
	return nil
}

// AudioTracksByMedia lists a media's probed audio streams
func (c *Catalog) AudioTracksByMedia(mediaID int64) ([]AudioTrack, error) {
	rows, err := c.store.Query(`
		SELECT id_audio_track, media_id, codec, bitrate, samplerate, nb_channels, language, description
		FROM audio_tracks WHERE media_id = ? ORDER BY id_audio_track
	`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AudioTrack
	for rows.Next() {
		var t AudioTrack
		err := rows.Scan(&t.ID, &t.MediaID, &t.Codec, &t.Bitrate, &t.SampleRate,
			&t.NbChannels, &t.Language, &t.Description)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// VideoTracksByMedia lists a media's probed video streams
func (c *Catalog) VideoTracksByMedia(mediaID int64) ([]VideoTrack, error) {
	rows, err := c.store.Query(`
		SELECT id_video_track, media_id, codec, width, height, fps, language, description
		FROM video_tracks WHERE media_id = ? ORDER BY id_video_track
	`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VideoTrack
	for rows.Next() {
		var t VideoTrack
		err := rows.Scan(&t.ID, &t.MediaID, &t.Codec, &t.Width, &t.Height,
			&t.Fps, &t.Language, &t.Description)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
