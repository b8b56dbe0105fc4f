package medialib

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/device"
	"github.com/franz/medialib/internal/parser"
)

const usbUUID = "12345678-0000-0000-0000-000000000001"

// fakeProber serves canned probe results keyed by MRL
type fakeProber struct {
	mu      sync.Mutex
	results map[string]*parser.ProbeResult
}

func (p *fakeProber) add(mrl string, meta map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.results == nil {
		p.results = make(map[string]*parser.ProbeResult)
	}
	p.results[mrl] = &parser.ProbeResult{
		Meta:        meta,
		Duration:    180000,
		AudioTracks: []catalog.AudioTrack{{Codec: "mp3"}},
	}
}

func (p *fakeProber) StartProbe(mrl string, done func(*parser.ProbeResult, error)) {
	p.mu.Lock()
	res := p.results[mrl]
	p.mu.Unlock()
	go func() {
		if res == nil {
			done(&parser.ProbeResult{Meta: map[string]string{}}, nil)
			return
		}
		done(res, nil)
	}()
}

type libFixture struct {
	lib    *MediaLibrary
	fs     afero.Fs
	lister *device.FixedLister
	prober *fakeProber

	discoveryDone chan string
	added         chan *catalog.Media
	modified      chan *catalog.Media
	deleted       chan int64
}

func newLibFixture(t *testing.T) *libFixture {
	t.Helper()
	fx := &libFixture{
		fs:            afero.NewMemMapFs(),
		prober:        &fakeProber{},
		discoveryDone: make(chan string, 16),
		added:         make(chan *catalog.Media, 16),
		modified:      make(chan *catalog.Media, 16),
		deleted:       make(chan int64, 16),
	}
	fx.lister = device.NewFixedLister(
		device.Info{UUID: "00000000-0000-0000-0000-0000000000ff", Mountpoint: "/", Removable: false},
		device.Info{UUID: usbUUID, Mountpoint: "/media/usb0", Removable: true},
	)

	dir := t.TempDir()
	fx.lib = New(Config{
		DBPath:        filepath.Join(dir, "catalog.db"),
		ThumbnailPath: filepath.Join(dir, "thumbs"),
		Fs:            fx.fs,
		DeviceLister:  fx.lister,
		Prober:        fx.prober,
	}, Callbacks{
		OnDiscoveryCompleted: func(entryPoint string) {
			fx.discoveryDone <- entryPoint
		},
		OnMediaAdded: func(m *catalog.Media) {
			fx.added <- m
		},
		OnMediaModified: func(m *catalog.Media) {
			fx.modified <- m
		},
		OnMediaDeleted: func(mediaID int64) {
			fx.deleted <- mediaID
		},
	})
	if err := fx.lib.Initialize(); err != nil {
		t.Fatalf("initialise failed: %v", err)
	}
	t.Cleanup(func() { fx.lib.Close() })
	return fx
}

func (fx *libFixture) waitDiscovery(t *testing.T) {
	t.Helper()
	select {
	case <-fx.discoveryDone:
	case <-time.After(10 * time.Second):
		t.Fatal("discovery did not complete")
	}
	if !fx.lib.WaitIdle(10 * time.Second) {
		t.Fatal("pipeline did not drain")
	}
}

func (fx *libFixture) writeTrack(t *testing.T, path string, meta map[string]string) {
	t.Helper()
	if err := afero.WriteFile(fx.fs, path, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	mtime := time.Now().Add(-time.Hour)
	fx.fs.Chtimes(path, mtime, mtime)
	fx.prober.add("file://"+path, meta)
}

func TestSingleTrackIngestEndToEnd(t *testing.T) {
	fx := newLibFixture(t)
	fx.writeTrack(t, "/media/usb0/music/track.mp3", map[string]string{
		parser.MetaTitle:       "Zebra",
		parser.MetaArtist:      "Ratatat",
		parser.MetaAlbum:       "Classics",
		parser.MetaTrackNumber: "3",
		parser.MetaGenre:       "Electronic",
	})

	if err := fx.lib.AddEntryPoint("file:///media/usb0/music"); err != nil {
		t.Fatalf("add entry point failed: %v", err)
	}
	fx.waitDiscovery(t)

	cat := fx.lib.Catalog()
	media, err := cat.ListMedia(catalog.MediaTypeAudio, catalog.SortDefault, false)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(media) != 1 || media[0].Title != "Zebra" {
		t.Fatalf("expected the single ingested media, got %+v", media)
	}

	albums, _ := cat.ListAlbums(catalog.SortDefault, false)
	if len(albums) != 1 || albums[0].Title != "Classics" || albums[0].NbTracks != 1 {
		t.Fatalf("expected album Classics with one track, got %+v", albums)
	}
	artists, _ := cat.ListArtists(catalog.SortDefault, false)
	if len(artists) != 1 || artists[0].Name != "Ratatat" {
		t.Fatalf("expected artist Ratatat, got %+v", artists)
	}
	genres, _ := cat.ListGenres(false)
	if len(genres) != 1 || genres[0].Name != "Electronic" {
		t.Fatalf("expected genre Electronic, got %+v", genres)
	}
	track, _ := cat.TrackByMedia(media[0].ID)
	if track == nil || track.TrackNumber != 3 {
		t.Fatalf("expected album track number 3, got %+v", track)
	}

	select {
	case m := <-fx.added:
		if m.Title != "Zebra" {
			t.Errorf("unexpected media-added payload: %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Error("expected an OnMediaAdded callback")
	}
}

func TestTwoArtistsSameAlbumEndToEnd(t *testing.T) {
	fx := newLibFixture(t)
	fx.writeTrack(t, "/media/usb0/music/a.mp3", map[string]string{
		parser.MetaTitle:  "A",
		parser.MetaArtist: "First",
		parser.MetaAlbum:  "Mix",
	})
	fx.writeTrack(t, "/media/usb0/music/b.mp3", map[string]string{
		parser.MetaTitle:  "B",
		parser.MetaArtist: "Second",
		parser.MetaAlbum:  "Mix",
	})

	if err := fx.lib.AddEntryPoint("file:///media/usb0/music"); err != nil {
		t.Fatalf("add entry point failed: %v", err)
	}
	fx.waitDiscovery(t)

	albums, _ := fx.lib.Catalog().ListAlbums(catalog.SortDefault, false)
	if len(albums) != 1 {
		t.Fatalf("expected one shared album, got %d", len(albums))
	}
	if albums[0].NbTracks != 2 {
		t.Errorf("expected 2 tracks, got %d", albums[0].NbTracks)
	}
	if albums[0].AlbumArtistID != catalog.VariousArtistsID {
		t.Errorf("expected Various Artists, got artist %d", albums[0].AlbumArtistID)
	}
}

func TestDeviceUnmountRemountEndToEnd(t *testing.T) {
	fx := newLibFixture(t)
	for i, name := range []string{"a", "b", "c"} {
		fx.writeTrack(t, "/media/usb0/music/"+name+".mp3", map[string]string{
			parser.MetaTitle:       name,
			parser.MetaArtist:      "Band",
			parser.MetaAlbum:       "Live",
			parser.MetaTrackNumber: string(rune('1' + i)),
		})
	}

	if err := fx.lib.AddEntryPoint("file:///media/usb0/music"); err != nil {
		t.Fatalf("add entry point failed: %v", err)
	}
	fx.waitDiscovery(t)

	cat := fx.lib.Catalog()
	before, _ := cat.ListMedia(catalog.MediaTypeAudio, catalog.SortDefault, false)
	if len(before) != 3 {
		t.Fatalf("expected 3 media, got %d", len(before))
	}
	beforeIDs := map[int64]bool{}
	for _, m := range before {
		beforeIDs[m.ID] = true
	}

	// unmount: the tree vanishes from the host along with the device;
	// rows stay, presence flips off
	fx.fs.RemoveAll("/media/usb0")
	fx.lister.Unmount(usbUUID)
	if err := fx.lib.RefreshDevices(); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	after, _ := cat.ListMedia(catalog.MediaTypeAudio, catalog.SortDefault, false)
	if len(after) != 3 {
		t.Fatalf("unmount must not delete media, got %d", len(after))
	}
	for _, m := range after {
		if m.IsPresent {
			t.Errorf("expected media %d absent after unmount", m.ID)
		}
	}

	// remount at a different mountpoint: the same content reappears
	// there; presence returns, ids stay stable, nothing is re-parsed
	mtime := time.Now().Add(-time.Hour)
	for _, name := range []string{"a", "b", "c"} {
		path := "/media/usb1/music/" + name + ".mp3"
		afero.WriteFile(fx.fs, path, []byte("audio-bytes"), 0o644)
		fx.fs.Chtimes(path, mtime, mtime)
	}
	fx.lister.Mount(device.Info{UUID: usbUUID, Mountpoint: "/media/usb1", Removable: true})
	if err := fx.lib.RefreshDevices(); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	// the mount triggers a background reload; let it settle
	select {
	case <-fx.discoveryDone:
	case <-time.After(5 * time.Second):
	}
	fx.lib.WaitIdle(5 * time.Second)

	final, _ := cat.ListMedia(catalog.MediaTypeAudio, catalog.SortDefault, false)
	if len(final) != 3 {
		t.Fatalf("expected the same 3 media after remount, got %d", len(final))
	}
	for _, m := range final {
		if !m.IsPresent {
			t.Errorf("expected media %d present after remount", m.ID)
		}
		if !beforeIDs[m.ID] {
			t.Errorf("media id %d changed across the unmount cycle", m.ID)
		}
	}
}

func TestModifiedFileFiresOnMediaModified(t *testing.T) {
	fx := newLibFixture(t)
	fx.writeTrack(t, "/media/usb0/music/song.mp3", map[string]string{
		parser.MetaTitle:  "Original",
		parser.MetaArtist: "Band",
		parser.MetaAlbum:  "Demo",
	})

	if err := fx.lib.AddEntryPoint("file:///media/usb0/music"); err != nil {
		t.Fatalf("add entry point failed: %v", err)
	}
	fx.waitDiscovery(t)

	select {
	case <-fx.added:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an OnMediaAdded callback for the first parse")
	}

	// rewrite the file with a newer mtime and retagged content
	path := "/media/usb0/music/song.mp3"
	if err := afero.WriteFile(fx.fs, path, []byte("audio-bytes-v2"), 0o644); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	fx.fs.Chtimes(path, time.Now(), time.Now())
	fx.prober.add("file://"+path, map[string]string{
		parser.MetaTitle:  "Retitled",
		parser.MetaArtist: "Band",
		parser.MetaAlbum:  "Demo",
	})

	fx.lib.Reload()
	fx.waitDiscovery(t)

	select {
	case m := <-fx.modified:
		if m.Title != "Retitled" {
			t.Errorf("expected the modified snapshot to carry the new title, got %q", m.Title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an OnMediaModified callback for the re-parse")
	}
	select {
	case m := <-fx.added:
		t.Fatalf("re-parse must not report a new media, got %+v", m)
	default:
	}

	media, _ := fx.lib.Catalog().ListMedia(catalog.MediaTypeAudio, catalog.SortDefault, false)
	if len(media) != 1 || media[0].Title != "Retitled" {
		t.Fatalf("expected one retitled media, got %+v", media)
	}
}

func TestDeleteMediaFiresOnMediaDeleted(t *testing.T) {
	fx := newLibFixture(t)
	fx.writeTrack(t, "/media/usb0/music/gone.mp3", map[string]string{
		parser.MetaTitle: "Ephemeral",
	})

	if err := fx.lib.AddEntryPoint("file:///media/usb0/music"); err != nil {
		t.Fatalf("add entry point failed: %v", err)
	}
	fx.waitDiscovery(t)

	cat := fx.lib.Catalog()
	media, _ := cat.ListMedia(catalog.MediaTypeAudio, catalog.SortDefault, false)
	if len(media) != 1 {
		t.Fatalf("expected 1 media, got %d", len(media))
	}

	if err := fx.lib.DeleteMedia(media[0].ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	select {
	case id := <-fx.deleted:
		if id != media[0].ID {
			t.Errorf("expected deleted id %d, got %d", media[0].ID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an OnMediaDeleted callback")
	}

	remaining, _ := cat.ListMedia(catalog.MediaTypeAudio, catalog.SortDefault, false)
	if len(remaining) != 0 {
		t.Errorf("expected no media after delete, got %d", len(remaining))
	}
}

func TestBanFolderExcludesTree(t *testing.T) {
	fx := newLibFixture(t)
	fx.writeTrack(t, "/media/usb0/music/keep/a.mp3", map[string]string{
		parser.MetaTitle: "kept",
	})
	fx.writeTrack(t, "/media/usb0/music/skip/b.mp3", map[string]string{
		parser.MetaTitle: "skipped",
	})

	if err := fx.lib.BanFolder("file:///media/usb0/music/skip"); err != nil {
		t.Fatalf("ban failed: %v", err)
	}
	if err := fx.lib.AddEntryPoint("file:///media/usb0/music"); err != nil {
		t.Fatalf("add entry point failed: %v", err)
	}
	fx.waitDiscovery(t)

	media, _ := fx.lib.Catalog().ListMedia(catalog.MediaTypeAudio, catalog.SortDefault, false)
	if len(media) != 1 || media[0].Title != "kept" {
		t.Fatalf("expected only the unbanned track, got %+v", media)
	}
}
