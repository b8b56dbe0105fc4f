// Package scan walks entry-point directory trees, reconciles what it
// finds against the catalogue and feeds new or modified files to the
// parser pipeline.
package scan

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/parser"
	"github.com/franz/medialib/internal/util"
	"github.com/franz/medialib/internal/vfs"
)

// AudioExtensions are the file extensions treated as audio
var AudioExtensions = []string{
	"mp3", "flac", "m4a", "aac", "ogg", "opus", "wav", "aiff", "aif",
	"wma", "ape", "wv", "mpc",
}

// VideoExtensions are the file extensions treated as video
var VideoExtensions = []string{
	"mp4", "mkv", "avi", "mov", "webm", "wmv", "m4v", "mpg", "mpeg", "ts",
}

// PlaylistExtensions are recognised playlist container formats
var PlaylistExtensions = []string{"m3u", "m3u8", "pls"}

// TaskSink receives a task for each file that needs (re)parsing. The
// pipeline implements it; pushes block when its first queue is full.
type TaskSink interface {
	Push(t *parser.Task)
}

// Events receives discovery lifecycle notifications
type Events struct {
	OnDiscoveryStarted   func(entryPoint string)
	OnDiscoveryCompleted func(entryPoint string)
}

// Discoverer walks entry points and reconciles the catalogue with the
// filesystem. It is reentrant; runs against the same entry point are
// serialised.
type Discoverer struct {
	cat     *catalog.Catalog
	factory *vfs.Factory
	sink    TaskSink
	events  Events

	fileTypes map[string]catalog.FileType

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per entry point
}

// New creates a discoverer
func New(cat *catalog.Catalog, factory *vfs.Factory, sink TaskSink, events Events) *Discoverer {
	types := make(map[string]catalog.FileType)
	for _, e := range AudioExtensions {
		types[e] = catalog.FileTypeAudio
	}
	for _, e := range VideoExtensions {
		types[e] = catalog.FileTypeVideo
	}
	for _, e := range PlaylistExtensions {
		types[e] = catalog.FileTypePlaylist
	}
	return &Discoverer{
		cat:       cat,
		factory:   factory,
		sink:      sink,
		events:    events,
		fileTypes: types,
		locks:     make(map[string]*sync.Mutex),
	}
}

// DiscoverAll walks every registered entry point whose device is
// present
func (d *Discoverer) DiscoverAll(ctx context.Context) error {
	entryPoints, err := d.cat.ListEntryPoints()
	if err != nil {
		return fmt.Errorf("failed to list entry points: %w", err)
	}
	for _, ep := range entryPoints {
		if err := d.Discover(ctx, ep.Mrl); err != nil {
			util.WarnLog("discovery: %s failed: %v", ep.Mrl, err)
		}
	}
	return nil
}

// Discover walks one entry point tree. A root that cannot be opened is
// skipped without error; store errors on the root surface to the
// caller; errors below it skip the offending directory.
func (d *Discoverer) Discover(ctx context.Context, entryPoint string) error {
	lock := d.entryPointLock(entryPoint)
	lock.Lock()
	defer lock.Unlock()

	if d.events.OnDiscoveryStarted != nil {
		d.events.OnDiscoveryStarted(entryPoint)
	}
	defer func() {
		if d.events.OnDiscoveryCompleted != nil {
			d.events.OnDiscoveryCompleted(entryPoint)
		}
	}()

	dir := d.factory.CreateDirectory(entryPoint)
	if dir == nil {
		// the tree may live on an absent device; presence flips are the
		// device manager's job, nothing to delete here
		util.DebugLog("discovery: cannot open %s", entryPoint)
		return nil
	}

	dev, err := d.ensureDevice(dir.Device())
	if err != nil {
		return err
	}
	if !dev.IsPresent {
		util.DebugLog("discovery: device for %s is absent", entryPoint)
		return nil
	}

	return d.walk(ctx, dir, dev, 0)
}

func (d *Discoverer) entryPointLock(entryPoint string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[entryPoint]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[entryPoint] = lock
	}
	return lock
}

// ensureDevice maps a vfs device onto its catalogue row, creating it on
// first sight
func (d *Discoverer) ensureDevice(dev vfs.Device) (*catalog.Device, error) {
	row, err := d.cat.DeviceByUUID(d.cat.Store(), dev.UUID())
	if err != nil {
		return nil, err
	}
	if row != nil {
		return row, nil
	}
	var created *catalog.Device
	err = d.cat.Transaction(func(tx *sql.Tx) error {
		created, err = d.cat.CreateDevice(tx, dev.UUID(), dev.Mountpoint(), dev.IsRemovable())
		return err
	})
	return created, err
}

// folderPath converts a directory MRL to the stored folder path:
// device-relative on removable devices, absolute elsewhere
func (d *Discoverer) folderPath(dirMrl string, dev *catalog.Device, mountpoint string) string {
	p := vfs.ToPath(dirMrl)
	if !dev.IsRemovable {
		return p
	}
	rel := strings.TrimPrefix(p, strings.TrimSuffix(mountpoint, "/"))
	return strings.TrimPrefix(rel, "/")
}

func (d *Discoverer) walk(ctx context.Context, dir vfs.Directory, dev *catalog.Device, parentID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	mountpoint := dir.Device().Mountpoint()
	folderPath := d.folderPath(dir.Mrl(), dev, mountpoint)

	folder, err := d.cat.FolderByPath(d.cat.Store(), folderPath, dev.ID)
	if err != nil {
		return err
	}
	if folder == nil {
		folder, err = d.createFolder(folderPath, parentID, dev.ID)
		if err != nil {
			return err
		}
	} else if folder.IsBlacklisted {
		util.DebugLog("discovery: skipping banned folder %s", folderPath)
		return nil
	} else if !folder.IsPresent {
		// the folder came back; flip it without reparsing unchanged
		// children
		if err := d.setFolderPresent(folder, true); err != nil {
			return err
		}
	}

	if err := d.reconcileFiles(dir, dev, folder); err != nil {
		util.WarnLog("discovery: failed to reconcile %s: %v", dir.Mrl(), err)
	}

	subDirs, err := dir.Dirs()
	if err != nil {
		util.WarnLog("discovery: cannot list %s: %v", dir.Mrl(), err)
		return nil
	}

	onDisk := make(map[string]bool, len(subDirs))
	for _, sub := range subDirs {
		onDisk[d.folderPath(sub.Mrl(), dev, mountpoint)] = true
		if err := d.walk(ctx, sub, dev, folder.ID); err != nil {
			if err == ctx.Err() {
				return err
			}
			util.WarnLog("discovery: subtree %s failed: %v", sub.Mrl(), err)
		}
	}

	// known children missing from disk flip absent; their files and
	// media follow through the presence cascade
	known, err := d.cat.SubFolders(folder.ID)
	if err != nil {
		return err
	}
	for _, child := range known {
		if !onDisk[child.Path] && child.IsPresent {
			util.InfoLog("discovery: folder %s disappeared", child.Path)
			if err := d.setFolderPresent(child, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// reconcileFiles diffs one directory listing against the catalogue
func (d *Discoverer) reconcileFiles(dir vfs.Directory, dev *catalog.Device, folder *catalog.Folder) error {
	files, err := dir.Files()
	if err != nil {
		return err
	}

	known, err := d.cat.FilesByFolder(folder.ID)
	if err != nil {
		return err
	}
	knownByMrl := make(map[string]*catalog.File, len(known))
	for _, f := range known {
		knownByMrl[f.Mrl] = f
	}

	mountpoint := dir.Device().Mountpoint()
	for _, f := range files {
		ft, ok := d.fileTypes[f.Extension()]
		if !ok {
			continue
		}

		storedMrl := d.storedFileMrl(f, dev, mountpoint)
		mtime := f.LastModificationDate().Unix()

		existing := knownByMrl[storedMrl]
		delete(knownByMrl, storedMrl)

		switch {
		case existing == nil:
			if err := d.addFile(f, storedMrl, ft, folder); err != nil {
				util.WarnLog("discovery: failed to add %s: %v", f.FullPath(), err)
			}
		case mtime > existing.LastModificationDate:
			util.DebugLog("discovery: %s changed, reparsing", f.FullPath())
			if err := d.refreshFile(f, existing, mtime); err != nil {
				util.WarnLog("discovery: failed to refresh %s: %v", f.FullPath(), err)
			}
		case !existing.IsPresent:
			// the file came back unchanged; no reparse, just presence
			if err := d.setFilePresent(existing, true); err != nil {
				util.WarnLog("discovery: failed to restore %s: %v", f.FullPath(), err)
			}
		default:
			// unchanged
		}
	}

	// files gone from disk while the device is present flip absent;
	// rows are never deleted so a reappearing file keeps its identity
	for _, gone := range knownByMrl {
		if gone.IsPresent {
			if err := d.setFilePresent(gone, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// storedFileMrl is the catalogue key for a file: device-relative path on
// removable devices, full MRL elsewhere
func (d *Discoverer) storedFileMrl(f vfs.File, dev *catalog.Device, mountpoint string) string {
	if !dev.IsRemovable {
		return f.FullPath()
	}
	p := vfs.ToPath(f.FullPath())
	rel := strings.TrimPrefix(p, strings.TrimSuffix(mountpoint, "/"))
	return strings.TrimPrefix(rel, "/")
}

func (d *Discoverer) addFile(f vfs.File, storedMrl string, ft catalog.FileType, folder *catalog.Folder) error {
	var file *catalog.File
	err := d.cat.Transaction(func(tx *sql.Tx) error {
		var err error
		file, err = d.cat.CreateFile(tx, storedMrl, ft, folder.ID, f.LastModificationDate().Unix(), f.Size())
		return err
	})
	if err != nil {
		return err
	}
	d.sink.Push(&parser.Task{
		FileID: file.ID,
		Mrl:    f.FullPath(),
		File:   file,
	})
	return nil
}

func (d *Discoverer) refreshFile(f vfs.File, existing *catalog.File, mtime int64) error {
	err := d.cat.Transaction(func(tx *sql.Tx) error {
		return d.cat.ResetFileForReparse(tx, existing, mtime, f.Size())
	})
	if err != nil {
		return err
	}
	fresh, err := d.cat.FileByID(existing.ID)
	if err != nil {
		return err
	}
	d.sink.Push(&parser.Task{
		FileID:  fresh.ID,
		MediaID: fresh.MediaID,
		Mrl:     f.FullPath(),
		File:    fresh,
	})
	return nil
}

func (d *Discoverer) createFolder(path string, parentID, deviceID int64) (*catalog.Folder, error) {
	var folder *catalog.Folder
	err := d.cat.Transaction(func(tx *sql.Tx) error {
		var err error
		folder, err = d.cat.CreateFolder(tx, path, parentID, deviceID)
		return err
	})
	return folder, err
}

func (d *Discoverer) setFolderPresent(folder *catalog.Folder, present bool) error {
	return d.cat.Transaction(func(tx *sql.Tx) error {
		return d.cat.SetFolderPresence(tx, folder.ID, present)
	})
}

func (d *Discoverer) setFilePresent(file *catalog.File, present bool) error {
	return d.cat.Transaction(func(tx *sql.Tx) error {
		return d.cat.SetFilePresence(tx, file, present)
	})
}
