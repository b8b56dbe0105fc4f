// Package medialib is the embedding surface of the media library: it
// owns every component's lifecycle and fans events out to the host
// application.
package medialib

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/device"
	"github.com/franz/medialib/internal/musicbrainz"
	"github.com/franz/medialib/internal/parser"
	"github.com/franz/medialib/internal/report"
	"github.com/franz/medialib/internal/scan"
	"github.com/franz/medialib/internal/store"
	"github.com/franz/medialib/internal/util"
	"github.com/franz/medialib/internal/vfs"
)

// Config holds the library's knobs. DBPath and ThumbnailPath are
// required; everything else has a default.
type Config struct {
	DBPath        string
	ThumbnailPath string

	ProbeTimeout   time.Duration // default 5s
	ParserRetryMax int           // default 3
	StageQueueCap  int           // default 1000
	StmtCacheSize  int           // default 32

	// Fs is the host filesystem; defaults to the OS filesystem. Tests
	// inject a memory fs.
	Fs afero.Fs
	// DeviceLister enumerates storage devices; defaults to a local
	// lister covering the root filesystem and removable mounts under
	// /media, /run/media and /mnt.
	DeviceLister device.Lister
	// Prober extracts metadata; defaults to the embedded tag reader.
	Prober parser.Prober
	// FrameExtractor renders video thumbnails; nil disables them.
	FrameExtractor parser.FrameExtractor
	// Journal, when set, receives a JSONL audit trail of discovery,
	// persistence and device events.
	Journal *report.EventLogger
}

// Callbacks receive library events. All callbacks run on the single
// notifier goroutine, in transaction commit order, and must not call
// back into the library from that goroutine.
type Callbacks struct {
	OnMediaAdded          func(m *catalog.Media)
	OnMediaModified       func(m *catalog.Media)
	OnMediaDeleted        func(mediaID int64)
	OnDiscoveryStarted    func(entryPoint string)
	OnDiscoveryCompleted  func(entryPoint string)
	OnParsingStatsUpdated func(done, scheduled uint32)
	OnDeviceMounted       func(uuid, mountpoint string)
	OnDeviceUnmounted     func(uuid string)
}

// MediaLibrary is the facade over discovery, parsing and the catalogue
type MediaLibrary struct {
	cfg Config
	cb  Callbacks

	store    *store.Store
	cat      *catalog.Catalog
	factory  *vfs.Factory
	pipeline *parser.Pipeline
	disc     *scan.Discoverer
	watcher  *device.MountWatcher

	extraStages []parser.Stage

	notifyCh  chan func()
	reloadCh  chan string
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	initOnce  sync.Once
	closeOnce sync.Once
}

// New creates an uninitialised library. Call Initialize before anything
// else.
func New(cfg Config, cb Callbacks) *MediaLibrary {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.ParserRetryMax <= 0 {
		cfg.ParserRetryMax = 3
	}
	if cfg.StageQueueCap <= 0 {
		cfg.StageQueueCap = 1000
	}
	if cfg.DeviceLister == nil {
		cfg.DeviceLister = device.NewLocalLister(cfg.Fs, "/", []string{"/media", "/run/media", "/mnt"})
	}
	if cfg.Prober == nil {
		cfg.Prober = parser.NewTagProber(cfg.Fs)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MediaLibrary{
		cfg:      cfg,
		cb:       cb,
		notifyCh: make(chan func(), 256),
		reloadCh: make(chan string, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// AddMetadataService appends a custom stage to the parser chain. Only
// valid before Initialize.
func (ml *MediaLibrary) AddMetadataService(s parser.Stage) {
	ml.extraStages = append(ml.extraStages, s)
}

// Initialize opens the store, snapshots devices, starts the parser
// workers (recovering unfinished files) and the notifier and discovery
// goroutines.
func (ml *MediaLibrary) Initialize() error {
	if ml.cfg.DBPath == "" || ml.cfg.ThumbnailPath == "" {
		return fmt.Errorf("%w: db and thumbnail paths are required", util.ErrInvalidConfig)
	}

	var initErr error
	ml.initOnce.Do(func() {
		initErr = ml.initialize()
	})
	return initErr
}

func (ml *MediaLibrary) initialize() error {
	s, err := store.OpenWithOptions(ml.cfg.DBPath, &store.Options{
		StmtCacheSize: ml.cfg.StmtCacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	ml.store = s
	ml.cat = catalog.New(s)

	ml.factory, err = vfs.NewFactory(ml.cfg.Fs, ml.cfg.DeviceLister)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to create fs factory: %w", err)
	}

	if err := ml.reconcileDevices(); err != nil {
		s.Close()
		return err
	}

	stages := []parser.Stage{
		parser.NewProbeStage(ml.cfg.Prober, ml.cfg.ProbeTimeout, 1),
		parser.NewPersisterStage(ml.cat, 1, ml.notifyMediaAdded, ml.notifyMediaModified),
		parser.NewThumbnailStage(ml.cat, ml.cfg.FrameExtractor, ml.cfg.Fs, ml.cfg.ThumbnailPath, 1),
	}
	stages = append(stages, ml.extraStages...)

	ml.pipeline = parser.New(ml.cat, parser.Config{
		QueueCap: ml.cfg.StageQueueCap,
		RetryMax: ml.cfg.ParserRetryMax,
	}, parser.Events{
		OnStats: ml.notifyStats,
	}, stages...)

	ml.disc = scan.New(ml.cat, ml.factory, ml.pipeline, scan.Events{
		OnDiscoveryStarted:   ml.notifyDiscoveryStarted,
		OnDiscoveryCompleted: ml.notifyDiscoveryCompleted,
	})

	ml.wg.Add(1)
	go ml.notifierLoop()

	if err := ml.pipeline.Start(); err != nil {
		return fmt.Errorf("failed to start parser: %w", err)
	}

	ml.wg.Add(1)
	go ml.discoveryLoop()

	util.InfoLog("medialib: initialised at %s", ml.cfg.DBPath)
	return nil
}

// reconcileDevices aligns device rows with the current snapshot: known
// devices flip presence and take their current mountpoint. Devices with
// no row are not inserted here; discovery and mount handling create
// their rows when they first meet them.
func (ml *MediaLibrary) reconcileDevices() error {
	infos, err := ml.cfg.DeviceLister.Devices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	present := make(map[string]device.Info, len(infos))
	for _, info := range infos {
		present[info.UUID] = info
	}

	rows, err := ml.cat.ListDevices()
	if err != nil {
		return err
	}
	for _, row := range rows {
		info, ok := present[row.UUID]
		if ok == row.IsPresent && (!ok || info.Mountpoint == row.LastMountpoint) {
			continue
		}
		if err := ml.cat.SetDevicePresence(ml.store, row.ID, ok, info.Mountpoint); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the pipeline with a bounded grace period and tears every
// component down
func (ml *MediaLibrary) Close() error {
	var err error
	ml.closeOnce.Do(func() {
		if ml.watcher != nil {
			ml.watcher.Close()
		}
		ml.cancel()
		if ml.pipeline != nil {
			ml.pipeline.Stop(10 * time.Second)
		}
		close(ml.notifyCh)
		ml.wg.Wait()
		if ml.store != nil {
			err = ml.store.Close()
		}
	})
	return err
}

// Catalog exposes the entity operations
func (ml *MediaLibrary) Catalog() *catalog.Catalog { return ml.cat }

// AddEntryPoint registers a directory tree and discovers it
func (ml *MediaLibrary) AddEntryPoint(mrl string) error {
	if _, err := ml.cat.AddEntryPoint(mrl); err != nil {
		return err
	}
	ml.requestReload(mrl)
	return nil
}

// RemoveEntryPoint forgets an entry point; indexed content stays
func (ml *MediaLibrary) RemoveEntryPoint(mrl string) error {
	return ml.cat.RemoveEntryPoint(mrl)
}

// Reload re-runs discovery over every entry point
func (ml *MediaLibrary) Reload() {
	ml.requestReload("")
}

func (ml *MediaLibrary) requestReload(entryPoint string) {
	select {
	case ml.reloadCh <- entryPoint:
	case <-ml.ctx.Done():
	}
}

// Pause flips parser workers into a drain state
func (ml *MediaLibrary) Pause() { ml.pipeline.Pause() }

// Resume wakes paused parser workers
func (ml *MediaLibrary) Resume() { ml.pipeline.Resume() }

// WaitIdle blocks until the pipeline drained or the timeout expired
func (ml *MediaLibrary) WaitIdle(timeout time.Duration) bool {
	return ml.pipeline.WaitIdle(timeout)
}

// BanFolder excludes a directory tree from discovery, creating the
// folder row when the tree was never scanned
func (ml *MediaLibrary) BanFolder(mrl string) error {
	folder, err := ml.folderForMrl(mrl, true)
	if err != nil {
		return err
	}
	return ml.cat.Transaction(func(tx *sql.Tx) error {
		return ml.cat.SetFolderBlacklisted(tx, folder.ID, true)
	})
}

// UnbanFolder re-admits a banned directory tree
func (ml *MediaLibrary) UnbanFolder(mrl string) error {
	folder, err := ml.folderForMrl(mrl, false)
	if err != nil {
		return err
	}
	if folder == nil {
		return util.ErrNotFound
	}
	err = ml.cat.Transaction(func(tx *sql.Tx) error {
		return ml.cat.SetFolderBlacklisted(tx, folder.ID, false)
	})
	if err != nil {
		return err
	}
	ml.Reload()
	return nil
}

// folderForMrl resolves the folder row backing a directory MRL
func (ml *MediaLibrary) folderForMrl(mrl string, createMissing bool) (*catalog.Folder, error) {
	dev := ml.factory.CreateDeviceFromMrl(mrl)
	if dev == nil {
		return nil, util.ErrDeviceMissing
	}
	row, err := ml.cat.DeviceByUUID(ml.store, dev.UUID())
	if err != nil {
		return nil, err
	}
	if row == nil {
		if !createMissing {
			return nil, nil
		}
		err = ml.cat.Transaction(func(tx *sql.Tx) error {
			row, err = ml.cat.CreateDevice(tx, dev.UUID(), dev.Mountpoint(), dev.IsRemovable())
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	path := vfs.ToPath(mrl)
	if row.IsRemovable {
		path = strings.TrimPrefix(strings.TrimPrefix(path, strings.TrimSuffix(dev.Mountpoint(), "/")), "/")
	}

	folder, err := ml.cat.FolderByPath(ml.store, path, row.ID)
	if err != nil {
		return nil, err
	}
	if folder == nil && createMissing {
		err = ml.cat.Transaction(func(tx *sql.Tx) error {
			folder, err = ml.cat.CreateFolder(tx, path, 0, row.ID)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return folder, nil
}

// StartDeviceWatcher begins watching removable mount roots and routing
// mount events into the catalogue
func (ml *MediaLibrary) StartDeviceWatcher(roots []string) error {
	w, err := device.NewMountWatcher(ml.cfg.DeviceLister, roots, device.Events{
		OnDeviceMounted:   ml.handleDeviceMounted,
		OnDeviceUnmounted: ml.handleDeviceUnmounted,
	})
	if err != nil {
		return err
	}
	ml.watcher = w
	return nil
}

// RefreshDevices re-reads the device lister and applies mount state
// changes, for hosts without a watcher
func (ml *MediaLibrary) RefreshDevices() error {
	if err := ml.factory.RefreshDevices(); err != nil {
		return err
	}
	before, err := ml.cat.ListDevices()
	if err != nil {
		return err
	}
	infos, err := ml.cfg.DeviceLister.Devices()
	if err != nil {
		return err
	}
	current := make(map[string]device.Info, len(infos))
	for _, info := range infos {
		current[info.UUID] = info
	}
	for _, row := range before {
		info, ok := current[row.UUID]
		switch {
		case ok && !row.IsPresent:
			ml.handleDeviceMounted(info)
		case ok && info.Mountpoint != row.LastMountpoint:
			ml.handleDeviceMounted(info)
		case !ok && row.IsPresent:
			ml.handleDeviceUnmounted(row.UUID)
		}
	}
	for _, info := range infos {
		found := false
		for _, row := range before {
			if row.UUID == info.UUID {
				found = true
				break
			}
		}
		if !found {
			ml.handleDeviceMounted(info)
		}
	}
	return nil
}

// handleDeviceMounted updates the device row (new mountpoint, presence
// cascade back on) without rewriting folder paths, creating the row for
// a first-seen device, then reloads every registered entry point. The
// device's root is not discovered on its own: a first-seen device gets
// indexed only where a registered entry point lies on it.
func (ml *MediaLibrary) handleDeviceMounted(info device.Info) {
	ml.factory.SetDevicePresent(info.UUID, info.Mountpoint, true)
	ml.factory.InvalidateDirectories(info.Mountpoint)

	row, err := ml.cat.DeviceByUUID(ml.store, info.UUID)
	if err != nil {
		util.ErrorLog("medialib: device lookup failed: %v", err)
		return
	}
	if row == nil {
		err = ml.cat.Transaction(func(tx *sql.Tx) error {
			_, err := ml.cat.CreateDevice(tx, info.UUID, info.Mountpoint, info.Removable)
			return err
		})
		if err != nil {
			util.ErrorLog("medialib: device insert failed: %v", err)
			return
		}
	} else {
		if err := ml.cat.SetDevicePresence(ml.store, row.ID, true, info.Mountpoint); err != nil {
			util.ErrorLog("medialib: device mount update failed: %v", err)
			return
		}
	}

	ml.cfg.Journal.LogDeviceEvent(info.UUID, true)
	ml.notify(func() {
		if ml.cb.OnDeviceMounted != nil {
			ml.cb.OnDeviceMounted(info.UUID, info.Mountpoint)
		}
	})
	ml.Reload()
}

// handleDeviceUnmounted flips the presence cascade off; nothing is
// deleted so the device's media reappear on remount
func (ml *MediaLibrary) handleDeviceUnmounted(uuid string) {
	ml.factory.SetDevicePresent(uuid, "", false)

	row, err := ml.cat.DeviceByUUID(ml.store, uuid)
	if err != nil || row == nil {
		return
	}
	ml.factory.InvalidateDirectories(row.LastMountpoint)
	if err := ml.cat.SetDevicePresence(ml.store, row.ID, false, ""); err != nil {
		util.ErrorLog("medialib: device unmount update failed: %v", err)
		return
	}
	ml.cfg.Journal.LogDeviceEvent(uuid, false)
	ml.notify(func() {
		if ml.cb.OnDeviceUnmounted != nil {
			ml.cb.OnDeviceUnmounted(uuid)
		}
	})
}

// discoveryLoop is the single discovery thread: reload requests run one
// at a time, in arrival order
func (ml *MediaLibrary) discoveryLoop() {
	defer ml.wg.Done()
	for {
		select {
		case <-ml.ctx.Done():
			return
		case entryPoint := <-ml.reloadCh:
			var err error
			if entryPoint == "" {
				err = ml.disc.DiscoverAll(ml.ctx)
			} else {
				err = ml.disc.Discover(ml.ctx, entryPoint)
			}
			if err != nil && err != context.Canceled {
				util.WarnLog("medialib: discovery failed: %v", err)
			}
		}
	}
}

// notifierLoop delivers callbacks in order on one dedicated goroutine
func (ml *MediaLibrary) notifierLoop() {
	defer ml.wg.Done()
	for fn := range ml.notifyCh {
		fn()
	}
}

// notify enqueues a callback; the bounded queue applies back-pressure
// to event producers rather than dropping events
func (ml *MediaLibrary) notify(fn func()) {
	defer func() {
		// the notifier channel closes during shutdown; late events from
		// draining workers are dropped
		recover()
	}()
	ml.notifyCh <- fn
}

func (ml *MediaLibrary) notifyMediaAdded(mediaID int64) {
	ml.cfg.Journal.LogPersist(0, mediaID)
	if ml.cb.OnMediaAdded == nil {
		return
	}
	media, err := ml.cat.MediaByID(mediaID)
	if err != nil || media == nil {
		return
	}
	snapshot := *media
	ml.notify(func() { ml.cb.OnMediaAdded(&snapshot) })
}

func (ml *MediaLibrary) notifyMediaModified(mediaID int64) {
	ml.cfg.Journal.LogPersist(0, mediaID)
	if ml.cb.OnMediaModified == nil {
		return
	}
	media, err := ml.cat.MediaByID(mediaID)
	if err != nil || media == nil {
		return
	}
	snapshot := *media
	ml.notify(func() { ml.cb.OnMediaModified(&snapshot) })
}

// DeleteMedia removes a media and its dependent rows (tracks, playlist
// entries, files) from the catalogue. The on-disk file is untouched; a
// later rescan of its folder re-indexes it.
func (ml *MediaLibrary) DeleteMedia(mediaID int64) error {
	if err := ml.cat.DeleteMedia(mediaID); err != nil {
		return err
	}
	ml.notify(func() {
		if ml.cb.OnMediaDeleted != nil {
			ml.cb.OnMediaDeleted(mediaID)
		}
	})
	return nil
}

// EnrichArtists fills MusicBrainz ids for artists that have none.
// Network-bound and rate-limited; run it from a background command, not
// the parse path.
func (ml *MediaLibrary) EnrichArtists(ctx context.Context) error {
	enricher := musicbrainz.NewEnricher(ml.cat, nil)
	if err := enricher.EnsureSchema(); err != nil {
		return err
	}
	artists, err := ml.cat.ListArtists(catalog.SortDefault, false)
	if err != nil {
		return err
	}
	for _, artist := range artists {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := enricher.EnrichArtist(ctx, artist); err != nil {
			util.WarnLog("medialib: enrichment failed for %q: %v", artist.Name, err)
		}
	}
	return nil
}

func (ml *MediaLibrary) notifyStats(done, scheduled uint32) {
	if ml.cb.OnParsingStatsUpdated == nil {
		return
	}
	ml.notify(func() { ml.cb.OnParsingStatsUpdated(done, scheduled) })
}

func (ml *MediaLibrary) notifyDiscoveryStarted(entryPoint string) {
	if ml.cb.OnDiscoveryStarted == nil {
		return
	}
	ml.notify(func() { ml.cb.OnDiscoveryStarted(entryPoint) })
}

func (ml *MediaLibrary) notifyDiscoveryCompleted(entryPoint string) {
	ml.cfg.Journal.LogDiscovery(entryPoint, 0)
	if ml.cb.OnDiscoveryCompleted == nil {
		return
	}
	ml.notify(func() { ml.cb.OnDiscoveryCompleted(entryPoint) })
}
