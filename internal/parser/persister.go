package parser

import (
	"database/sql"
	"path"
	"strings"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/util"
)

// PersisterStage writes a probed task into the catalogue under a single
// transaction: media row, stream rows, classification, artist / album /
// genre / show resolution and album aggregates. Every write is an upsert
// or replace keyed by stable identifiers so re-applying the stage after
// a crash is a no-op.
type PersisterStage struct {
	cat     *catalog.Catalog
	threads int

	// onMediaAdded fires after commit for a media created by this run;
	// onMediaModified fires instead when the run rewrote an existing
	// media (a re-parse after an on-disk change)
	onMediaAdded    func(mediaID int64)
	onMediaModified func(mediaID int64)
}

// NewPersisterStage creates the metadata persistence stage
func NewPersisterStage(cat *catalog.Catalog, threads int, onMediaAdded, onMediaModified func(mediaID int64)) *PersisterStage {
	if threads <= 0 {
		threads = 1
	}
	return &PersisterStage{
		cat:             cat,
		threads:         threads,
		onMediaAdded:    onMediaAdded,
		onMediaModified: onMediaModified,
	}
}

func (s *PersisterStage) Name() string { return "MetadataPersister" }

func (s *PersisterStage) NbThreads() int { return s.threads }

func (s *PersisterStage) Run(t *Task) Status {
	var createdMedia, modifiedMedia int64

	err := s.cat.Transaction(func(tx *sql.Tx) error {
		media, created, err := s.ensureMedia(tx, t)
		if err != nil {
			return err
		}
		if created {
			createdMedia = media.ID
		} else {
			modifiedMedia = media.ID
		}
		t.MediaID = media.ID

		if err := s.cat.ReplaceAudioTracks(tx, media.ID, t.AudioTracks); err != nil {
			return err
		}
		if err := s.cat.ReplaceVideoTracks(tx, media.ID, t.VideoTracks); err != nil {
			return err
		}

		if err := s.classify(tx, t, media); err != nil {
			return err
		}

		// the pipeline cursor commits with the metadata it describes
		if err := s.cat.SetFileParserStep(tx, t.FileID, t.CurrentStep()+1); err != nil {
			return err
		}
		t.MarkStepSaved()
		return nil
	})

	if err != nil {
		util.WarnLog("persister: transaction failed for file %d: %v", t.FileID, err)
		return StatusRetry
	}

	if createdMedia != 0 && s.onMediaAdded != nil {
		s.onMediaAdded(createdMedia)
	}
	if modifiedMedia != 0 && s.onMediaModified != nil {
		s.onMediaModified(modifiedMedia)
	}
	return StatusSuccess
}

// ensureMedia inserts or fetches the media row for the task's file.
// Re-runs find the row through the file's media_id.
func (s *PersisterStage) ensureMedia(tx *sql.Tx, t *Task) (*catalog.Media, bool, error) {
	var mediaID sql.NullInt64
	err := tx.QueryRow(`SELECT media_id FROM files WHERE id_file = ?`, t.FileID).Scan(&mediaID)
	if err != nil {
		return nil, false, err
	}
	if mediaID.Valid && mediaID.Int64 != 0 {
		m, err := s.cat.MediaByIDTx(tx, mediaID.Int64)
		if err != nil {
			return nil, false, err
		}
		if m != nil {
			return m, false, nil
		}
	}

	m, err := s.cat.CreateMedia(tx, s.title(t), s.mediaType(t))
	if err != nil {
		return nil, false, err
	}
	if err := s.cat.LinkFileToMedia(tx, t.FileID, m.ID); err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func (s *PersisterStage) title(t *Task) string {
	if t.Title != "" {
		return t.Title
	}
	base := path.Base(vfsPath(t.Mrl))
	return strings.TrimSuffix(base, path.Ext(base))
}

func vfsPath(mrl string) string {
	if idx := strings.Index(mrl, "://"); idx > 0 {
		return mrl[idx+3:]
	}
	return mrl
}

func (s *PersisterStage) mediaType(t *Task) catalog.MediaType {
	if len(t.VideoTracks) > 0 {
		return catalog.MediaTypeVideo
	}
	if len(t.AudioTracks) > 0 {
		return catalog.MediaTypeAudio
	}
	switch t.File.Type {
	case catalog.FileTypeVideo, catalog.FileTypeShowEpisode:
		return catalog.MediaTypeVideo
	case catalog.FileTypeAudio, catalog.FileTypeAlbumTrack:
		return catalog.MediaTypeAudio
	}
	return catalog.MediaTypeUnknown
}

// classify routes the task down the album-track or show-episode path
// and rewrites the media row accordingly
func (s *PersisterStage) classify(tx *sql.Tx, t *Task, media *catalog.Media) error {
	switch {
	case t.AlbumName != "" || t.AlbumArtist != "":
		return s.persistAlbumTrack(tx, t, media)
	case t.ShowName != "" || t.Episode > 0:
		return s.persistShowEpisode(tx, t, media)
	default:
		mt := s.mediaType(t)
		st := catalog.MediaSubTypeUnknown
		if mt == catalog.MediaTypeVideo {
			st = catalog.MediaSubTypeMovie
		}
		return s.cat.UpdateMediaMeta(tx, media.ID, s.title(t), mt, st, t.Duration, t.ReleaseDate)
	}
}

func (s *PersisterStage) persistAlbumTrack(tx *sql.Tx, t *Task, media *catalog.Media) error {
	if err := s.cat.UpdateMediaMeta(tx, media.ID, s.title(t), catalog.MediaTypeAudio,
		catalog.MediaSubTypeAlbumTrack, t.Duration, t.ReleaseDate); err != nil {
		return err
	}

	// replace semantics: a re-run or re-parse unwinds the previous
	// track row before inserting the fresh one
	if prev, err := s.trackForMedia(tx, media.ID); err != nil {
		return err
	} else if prev != nil {
		if err := s.removeTrack(tx, prev); err != nil {
			return err
		}
	}

	trackArtist, err := s.resolveArtist(tx, t.Artist)
	if err != nil {
		return err
	}

	var albumArtist *catalog.Artist
	if t.AlbumArtist != "" {
		albumArtist, err = s.resolveArtist(tx, t.AlbumArtist)
		if err != nil {
			return err
		}
	}

	album, err := s.resolveAlbum(tx, t, trackArtist, albumArtist)
	if err != nil {
		return err
	}

	var genreID int64
	if t.Genre != "" {
		genre, err := s.resolveGenre(tx, t.Genre)
		if err != nil {
			return err
		}
		genreID = genre.ID
	}

	_, err = s.cat.CreateAlbumTrack(tx, media.ID, album.ID, trackArtist.ID, genreID,
		t.TrackNumber, t.DiscNumber, t.Duration)
	if err != nil {
		return err
	}

	return s.updateAlbumArtist(tx, album, trackArtist)
}

func (s *PersisterStage) persistShowEpisode(tx *sql.Tx, t *Task, media *catalog.Media) error {
	if err := s.cat.UpdateMediaMeta(tx, media.ID, s.title(t), catalog.MediaTypeVideo,
		catalog.MediaSubTypeShowEpisode, t.Duration, t.ReleaseDate); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM show_episodes WHERE media_id = ?`, media.ID); err != nil {
		return err
	}

	showTitle := t.ShowName
	if showTitle == "" {
		showTitle = s.title(t)
	}
	show, err := s.cat.ShowByTitle(tx, showTitle)
	if err != nil {
		return err
	}
	if show == nil {
		show, err = s.cat.CreateShow(tx, showTitle)
		if err != nil {
			return err
		}
	}

	_, err = s.cat.CreateShowEpisode(tx, media.ID, show.ID, t.Episode, 0, s.title(t))
	return err
}

// resolveArtist matches case-insensitively on the exact name, falling
// back to the synthetic Unknown Artist when no name was parsed
func (s *PersisterStage) resolveArtist(tx *sql.Tx, name string) (*catalog.Artist, error) {
	if name == "" {
		return s.cat.ArtistByID(catalog.UnknownArtistID)
	}
	artist, err := s.cat.ArtistByName(tx, name)
	if err != nil {
		return nil, err
	}
	if artist != nil {
		return artist, nil
	}
	return s.cat.CreateArtist(tx, name)
}

// resolveGenre matches case-insensitively on the exact name
func (s *PersisterStage) resolveGenre(tx *sql.Tx, name string) (*catalog.Genre, error) {
	genre, err := s.cat.GenreByName(tx, name)
	if err != nil {
		return nil, err
	}
	if genre != nil {
		return genre, nil
	}
	return s.cat.CreateGenre(tx, name)
}

// resolveAlbum finds the album this track belongs to. With an explicit
// album-artist tag the match requires (title, album artist); without
// one, a title match joins the existing album so the various-artists
// rule can arbitrate.
func (s *PersisterStage) resolveAlbum(tx *sql.Tx, t *Task, trackArtist, albumArtist *catalog.Artist) (*catalog.Album, error) {
	title := t.AlbumName
	if title == "" {
		title = s.title(t)
	}

	if albumArtist != nil {
		album, err := s.cat.AlbumByTitleAndArtist(tx, title, albumArtist.ID)
		if err != nil {
			return nil, err
		}
		if album != nil {
			return album, nil
		}
		return s.cat.CreateAlbum(tx, title, albumArtist.ID)
	}

	albums, err := s.cat.AlbumsByTitle(tx, title)
	if err != nil {
		return nil, err
	}
	if len(albums) > 0 {
		return albums[0], nil
	}
	return s.cat.CreateAlbum(tx, title, trackArtist.ID)
}

// updateAlbumArtist applies the upgrade rule: a single-artist album is
// credited to that artist; two or more distinct performing artists
// upgrade the credit to Various Artists.
func (s *PersisterStage) updateAlbumArtist(tx *sql.Tx, album *catalog.Album, trackArtist *catalog.Artist) error {
	if album.AlbumArtistID == 0 {
		return s.setAlbumArtistTx(tx, album, trackArtist.ID)
	}
	if album.AlbumArtistID == trackArtist.ID || album.AlbumArtistID == catalog.VariousArtistsID {
		return nil
	}
	distinct, err := s.cat.DistinctTrackArtists(tx, album.ID)
	if err != nil {
		return err
	}
	if distinct >= 2 {
		return s.setAlbumArtistTx(tx, album, catalog.VariousArtistsID)
	}
	return nil
}

func (s *PersisterStage) setAlbumArtistTx(tx *sql.Tx, album *catalog.Album, artistID int64) error {
	fresh, err := s.cat.AlbumByIDTx(tx, album.ID)
	if err != nil {
		return err
	}
	if fresh == nil {
		return nil
	}
	return s.cat.SetAlbumArtist(tx, fresh, artistID)
}

func (s *PersisterStage) trackForMedia(tx *sql.Tx, mediaID int64) (*catalog.AlbumTrack, error) {
	return s.cat.TrackByMediaTx(tx, mediaID)
}

func (s *PersisterStage) removeTrack(tx *sql.Tx, track *catalog.AlbumTrack) error {
	return s.cat.RemoveTrackTx(tx, track)
}
