package parser

import (
	"testing"

	"github.com/franz/medialib/internal/catalog"
)

func audioTask(file *catalog.File, title, artist, albumArtist, album, genre string, trackNumber int) *Task {
	return &Task{
		FileID:      file.ID,
		Mrl:         file.Mrl,
		File:        file,
		Title:       title,
		Artist:      artist,
		AlbumArtist: albumArtist,
		AlbumName:   album,
		Genre:       genre,
		TrackNumber: trackNumber,
		Duration:    215000,
		AudioTracks: []catalog.AudioTrack{{Codec: "mp3"}},
	}
}

func countRows(t *testing.T, cat *catalog.Catalog, query string) int {
	t.Helper()
	var n int
	if err := cat.Store().QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}

func TestPersisterSingleTrackIngest(t *testing.T) {
	cat := openTestCatalog(t)
	file := addTestFile(t, cat, "track.mp3")

	var added []int64
	stage := NewPersisterStage(cat, 1, func(mediaID int64) { added = append(added, mediaID) }, nil)

	task := audioTask(file, "Zebra", "Ratatat", "", "Classics", "Electronic", 3)
	if status := stage.Run(task); status != StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	if n := countRows(t, cat, `SELECT COUNT(*) FROM media`); n != 1 {
		t.Errorf("expected 1 media, got %d", n)
	}
	if n := countRows(t, cat, `SELECT COUNT(*) FROM albums`); n != 1 {
		t.Errorf("expected 1 album, got %d", n)
	}
	// Unknown Artist and Various Artists are seeded; Ratatat is the
	// single created row
	if n := countRows(t, cat, `SELECT COUNT(*) FROM artists WHERE id_artist > 2`); n != 1 {
		t.Errorf("expected 1 created artist, got %d", n)
	}
	if n := countRows(t, cat, `SELECT COUNT(*) FROM genres`); n != 1 {
		t.Errorf("expected 1 genre, got %d", n)
	}
	if n := countRows(t, cat, `SELECT COUNT(*) FROM album_tracks`); n != 1 {
		t.Errorf("expected 1 album track, got %d", n)
	}

	track, err := cat.TrackByMedia(task.MediaID)
	if err != nil || track == nil {
		t.Fatalf("track lookup failed: %v", err)
	}
	if track.TrackNumber != 3 {
		t.Errorf("expected track number 3, got %d", track.TrackNumber)
	}

	album, _ := cat.AlbumByIDTx(cat.Store(), track.AlbumID)
	if album.Title != "Classics" || album.NbTracks != 1 {
		t.Errorf("unexpected album state: %+v", album)
	}
	artist, _ := cat.ArtistByID(album.AlbumArtistID)
	if artist == nil || artist.Name != "Ratatat" {
		t.Errorf("expected album artist Ratatat, got %+v", artist)
	}

	media, _ := cat.MediaByID(task.MediaID)
	if media.Title != "Zebra" || media.Type != catalog.MediaTypeAudio ||
		media.SubType != catalog.MediaSubTypeAlbumTrack {
		t.Errorf("unexpected media state: %+v", media)
	}
	if media.Duration != 215000 {
		t.Errorf("expected duration persisted, got %d", media.Duration)
	}

	if len(added) != 1 || added[0] != task.MediaID {
		t.Errorf("expected one media-added notification, got %v", added)
	}

	// the cursor advanced inside the same transaction
	if step := fileStep(t, cat, file.ID); step != task.CurrentStep()+1 {
		t.Errorf("expected step %d, got %d", task.CurrentStep()+1, step)
	}
}

func TestPersisterVariousArtistsUpgrade(t *testing.T) {
	cat := openTestCatalog(t)
	stage := NewPersisterStage(cat, 1, nil, nil)

	f1 := addTestFile(t, cat, "one.mp3")
	f2 := addTestFile(t, cat, "two.mp3")

	t1 := audioTask(f1, "One", "First Artist", "", "Mix", "", 1)
	t2 := audioTask(f2, "Two", "Second Artist", "", "Mix", "", 2)
	if status := stage.Run(t1); status != StatusSuccess {
		t.Fatalf("first run failed: %v", status)
	}
	if status := stage.Run(t2); status != StatusSuccess {
		t.Fatalf("second run failed: %v", status)
	}

	if n := countRows(t, cat, `SELECT COUNT(*) FROM albums`); n != 1 {
		t.Fatalf("expected both tracks to share one album, got %d", n)
	}

	track, _ := cat.TrackByMedia(t1.MediaID)
	album, _ := cat.AlbumByIDTx(cat.Store(), track.AlbumID)
	if album.NbTracks != 2 {
		t.Errorf("expected 2 tracks on the album, got %d", album.NbTracks)
	}
	if album.AlbumArtistID != catalog.VariousArtistsID {
		t.Errorf("expected Various Artists credit, got artist %d", album.AlbumArtistID)
	}
}

func TestPersisterExplicitAlbumArtistSeparatesAlbums(t *testing.T) {
	cat := openTestCatalog(t)
	stage := NewPersisterStage(cat, 1, nil, nil)

	f1 := addTestFile(t, cat, "a.mp3")
	f2 := addTestFile(t, cat, "b.mp3")

	// same album title under two explicit album artists stays two albums
	t1 := audioTask(f1, "A", "X", "X", "Greatest Hits", "", 1)
	t2 := audioTask(f2, "B", "Y", "Y", "Greatest Hits", "", 1)
	stage.Run(t1)
	stage.Run(t2)

	if n := countRows(t, cat, `SELECT COUNT(*) FROM albums`); n != 2 {
		t.Errorf("expected 2 albums for distinct album artists, got %d", n)
	}
}

func TestPersisterIsIdempotentOnRerun(t *testing.T) {
	cat := openTestCatalog(t)
	var added, modified []int64
	stage := NewPersisterStage(cat, 1,
		func(mediaID int64) { added = append(added, mediaID) },
		func(mediaID int64) { modified = append(modified, mediaID) })
	file := addTestFile(t, cat, "repeat.mp3")

	task := audioTask(file, "Loop", "Artist", "", "Album", "Rock", 5)
	if status := stage.Run(task); status != StatusSuccess {
		t.Fatalf("first run failed: %v", status)
	}

	snapshot := func() []int {
		return []int{
			countRows(t, cat, `SELECT COUNT(*) FROM media`),
			countRows(t, cat, `SELECT COUNT(*) FROM albums`),
			countRows(t, cat, `SELECT COUNT(*) FROM artists`),
			countRows(t, cat, `SELECT COUNT(*) FROM genres`),
			countRows(t, cat, `SELECT COUNT(*) FROM album_tracks`),
			countRows(t, cat, `SELECT COUNT(*) FROM audio_tracks`),
			countRows(t, cat, `SELECT CAST(SUM(nb_tracks) AS INTEGER) FROM albums`),
		}
	}
	before := snapshot()

	// re-running the stage on the same file must be a no-op: recovery
	// after a crash re-applies stages that already committed
	rerun := audioTask(file, "Loop", "Artist", "", "Album", "Rock", 5)
	if status := stage.Run(rerun); status != StatusSuccess {
		t.Fatalf("second run failed: %v", status)
	}
	after := snapshot()

	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("re-run changed state: %v vs %v", before, after)
		}
	}
	if rerun.MediaID != task.MediaID {
		t.Errorf("re-run created a different media: %d vs %d", rerun.MediaID, task.MediaID)
	}

	// the first run is an add, the re-run a modification
	if len(added) != 1 || added[0] != task.MediaID {
		t.Errorf("expected one media-added notification, got %v", added)
	}
	if len(modified) != 1 || modified[0] != task.MediaID {
		t.Errorf("expected one media-modified notification, got %v", modified)
	}
}

func TestPersisterShowEpisode(t *testing.T) {
	cat := openTestCatalog(t)
	stage := NewPersisterStage(cat, 1, nil, nil)
	file := addTestFile(t, cat, "episode.mkv")

	task := &Task{
		FileID:      file.ID,
		Mrl:         file.Mrl,
		File:        file,
		Title:       "Pilot",
		ShowName:    "Some Show",
		Episode:     1,
		Duration:    2520000,
		VideoTracks: []catalog.VideoTrack{{Codec: "h264", Width: 1920, Height: 1080}},
	}
	if status := stage.Run(task); status != StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	if n := countRows(t, cat, `SELECT COUNT(*) FROM shows`); n != 1 {
		t.Errorf("expected 1 show, got %d", n)
	}
	episode, err := cat.EpisodeByMedia(task.MediaID)
	if err != nil || episode == nil {
		t.Fatalf("episode lookup failed: %v", err)
	}
	if episode.EpisodeNumber != 1 || episode.Title != "Pilot" {
		t.Errorf("unexpected episode: %+v", episode)
	}

	media, _ := cat.MediaByID(task.MediaID)
	if media.Type != catalog.MediaTypeVideo || media.SubType != catalog.MediaSubTypeShowEpisode {
		t.Errorf("unexpected media classification: %+v", media)
	}
}

func TestPersisterMissingArtistUsesUnknownArtist(t *testing.T) {
	cat := openTestCatalog(t)
	stage := NewPersisterStage(cat, 1, nil, nil)
	file := addTestFile(t, cat, "untagged.mp3")

	task := audioTask(file, "Mystery", "", "", "Found Sounds", "", 0)
	if status := stage.Run(task); status != StatusSuccess {
		t.Fatalf("expected success, got %v", status)
	}

	track, _ := cat.TrackByMedia(task.MediaID)
	if track.ArtistID != catalog.UnknownArtistID {
		t.Errorf("expected Unknown Artist, got %d", track.ArtistID)
	}
}
