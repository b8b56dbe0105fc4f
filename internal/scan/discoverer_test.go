package scan

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/device"
	"github.com/franz/medialib/internal/parser"
	"github.com/franz/medialib/internal/store"
	"github.com/franz/medialib/internal/vfs"
)

// recordingSink collects pushed tasks instead of parsing them
type recordingSink struct {
	tasks []*parser.Task
}

func (s *recordingSink) Push(t *parser.Task) {
	s.tasks = append(s.tasks, t)
}

type scanFixture struct {
	fs     afero.Fs
	cat    *catalog.Catalog
	sink   *recordingSink
	disc   *Discoverer
	lister *device.FixedLister
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	memFs := afero.NewMemMapFs()
	lister := device.NewFixedLister(device.Info{
		UUID:       "00000000-0000-0000-0000-0000000000aa",
		Mountpoint: "/",
		Removable:  false,
	})
	factory, err := vfs.NewFactory(memFs, lister)
	if err != nil {
		t.Fatalf("failed to create factory: %v", err)
	}

	cat := catalog.New(s)
	sink := &recordingSink{}
	disc := New(cat, factory, sink, Events{})
	return &scanFixture{fs: memFs, cat: cat, sink: sink, disc: disc, lister: lister}
}

func (fx *scanFixture) writeFile(t *testing.T, path string, content string, mtime time.Time) {
	t.Helper()
	if err := afero.WriteFile(fx.fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	if err := fx.fs.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to set mtime on %s: %v", path, err)
	}
}

func TestDiscoveryFindsNewFiles(t *testing.T) {
	fx := newScanFixture(t)
	base := time.Now().Add(-time.Hour)
	fx.writeFile(t, "/music/track.mp3", "audio", base)
	fx.writeFile(t, "/music/cover.txt", "not media", base)
	fx.writeFile(t, "/music/sub/clip.mkv", "video", base)

	if err := fx.disc.Discover(context.Background(), "file:///music"); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	if len(fx.sink.tasks) != 2 {
		t.Fatalf("expected 2 tasks (txt skipped), got %d", len(fx.sink.tasks))
	}

	var fileCount int
	fx.cat.Store().QueryRow(`SELECT COUNT(*) FROM files`).Scan(&fileCount)
	if fileCount != 2 {
		t.Errorf("expected 2 file rows, got %d", fileCount)
	}

	var audioType int
	err := fx.cat.Store().QueryRow(`SELECT type FROM files WHERE mrl LIKE '%track.mp3'`).Scan(&audioType)
	if err != nil {
		t.Fatalf("file row missing: %v", err)
	}
	if catalog.FileType(audioType) != catalog.FileTypeAudio {
		t.Errorf("expected audio type, got %d", audioType)
	}
}

func TestRescanUnchangedEmitsNoTasks(t *testing.T) {
	fx := newScanFixture(t)
	base := time.Now().Add(-time.Hour)
	fx.writeFile(t, "/music/one.mp3", "a", base)
	fx.writeFile(t, "/music/two.mp3", "b", base)

	ctx := context.Background()
	if err := fx.disc.Discover(ctx, "file:///music"); err != nil {
		t.Fatalf("first discovery failed: %v", err)
	}
	first := len(fx.sink.tasks)
	if first != 2 {
		t.Fatalf("expected 2 tasks on first pass, got %d", first)
	}

	if err := fx.disc.Discover(ctx, "file:///music"); err != nil {
		t.Fatalf("second discovery failed: %v", err)
	}
	if len(fx.sink.tasks) != first {
		t.Errorf("expected zero new tasks on unchanged rescan, got %d",
			len(fx.sink.tasks)-first)
	}
}

func TestModifiedFileIsReparsedWithStableID(t *testing.T) {
	fx := newScanFixture(t)
	base := time.Now().Add(-time.Hour)
	fx.writeFile(t, "/music/song.mp3", "v1", base)

	ctx := context.Background()
	fx.disc.Discover(ctx, "file:///music")
	if len(fx.sink.tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(fx.sink.tasks))
	}
	originalID := fx.sink.tasks[0].FileID

	// simulate a parse having completed, then an on-disk change
	fx.cat.SetFileParserStep(fx.cat.Store(), originalID, catalog.ParserStepCompleted)
	fx.writeFile(t, "/music/song.mp3", "v2 longer", base.Add(30*time.Minute))

	fx.disc.Discover(ctx, "file:///music")
	if len(fx.sink.tasks) != 2 {
		t.Fatalf("expected a reparse task, got %d tasks", len(fx.sink.tasks))
	}
	if fx.sink.tasks[1].FileID != originalID {
		t.Errorf("reparse must keep the file id: %d vs %d",
			fx.sink.tasks[1].FileID, originalID)
	}

	var step int
	fx.cat.Store().QueryRow(`SELECT parser_step FROM files WHERE id_file = ?`, originalID).Scan(&step)
	if step != catalog.ParserStepPending {
		t.Errorf("expected pending step after modification, got %d", step)
	}
}

func TestBlacklistedFolderIsSkipped(t *testing.T) {
	fx := newScanFixture(t)
	base := time.Now().Add(-time.Hour)
	fx.writeFile(t, "/music/keep/a.mp3", "a", base)
	fx.writeFile(t, "/music/banned/b.mp3", "b", base)

	ctx := context.Background()
	fx.disc.Discover(ctx, "file:///music")
	if len(fx.sink.tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(fx.sink.tasks))
	}

	// ban the folder, add new content below it, rescan
	var deviceID int64
	fx.cat.Store().QueryRow(`SELECT id_device FROM devices LIMIT 1`).Scan(&deviceID)
	folder, err := fx.cat.FolderByPath(fx.cat.Store(), "/music/banned", deviceID)
	if err != nil || folder == nil {
		t.Fatalf("banned folder row missing: %v", err)
	}
	err = fx.cat.Transaction(func(tx *sql.Tx) error {
		return fx.cat.SetFolderBlacklisted(tx, folder.ID, true)
	})
	if err != nil {
		t.Fatalf("ban failed: %v", err)
	}
	fx.writeFile(t, "/music/banned/c.mp3", "c", base)

	before := len(fx.sink.tasks)
	fx.disc.Discover(ctx, "file:///music")
	if len(fx.sink.tasks) != before {
		t.Errorf("expected banned folder to be skipped, got %d new tasks",
			len(fx.sink.tasks)-before)
	}
}

func TestMissingFolderFlipsPresenceAndComesBack(t *testing.T) {
	fx := newScanFixture(t)
	base := time.Now().Add(-time.Hour)
	fx.writeFile(t, "/music/albums/x.mp3", "x", base)

	ctx := context.Background()
	fx.disc.Discover(ctx, "file:///music")

	var deviceID int64
	fx.cat.Store().QueryRow(`SELECT id_device FROM devices LIMIT 1`).Scan(&deviceID)
	folder, _ := fx.cat.FolderByPath(fx.cat.Store(), "/music/albums", deviceID)
	if folder == nil || !folder.IsPresent {
		t.Fatalf("expected present folder row, got %+v", folder)
	}

	// remove the subtree on disk and rescan
	if err := fx.fs.RemoveAll("/music/albums"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	fx.disc.Discover(ctx, "file:///music")

	folder, _ = fx.cat.FolderByPath(fx.cat.Store(), "/music/albums", deviceID)
	if folder == nil {
		t.Fatal("folder row must survive disappearance")
	}
	if folder.IsPresent {
		t.Error("expected absent folder after disappearance")
	}

	// restore the subtree unchanged; presence flips back without a
	// reparse task for the unchanged file
	fx.writeFile(t, "/music/albums/x.mp3", "x", base)
	before := len(fx.sink.tasks)
	fx.disc.Discover(ctx, "file:///music")

	folder, _ = fx.cat.FolderByPath(fx.cat.Store(), "/music/albums", deviceID)
	if !folder.IsPresent {
		t.Error("expected folder back after reappearance")
	}
	if len(fx.sink.tasks) != before {
		t.Errorf("unchanged children must not be reparsed, got %d new tasks",
			len(fx.sink.tasks)-before)
	}
}
