package vfs

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/franz/medialib/internal/device"
	"github.com/franz/medialib/internal/util"
)

// deviceEntry is the factory's view of one storage device. A device that
// disappears from the lister stays in the cache with present=false so its
// UUID keeps resolving.
type deviceEntry struct {
	uuid       string
	mountpoint string
	removable  bool
	present    bool
}

func (d *deviceEntry) UUID() string       { return d.uuid }
func (d *deviceEntry) Mountpoint() string { return d.mountpoint }
func (d *deviceEntry) IsRemovable() bool  { return d.removable }
func (d *deviceEntry) IsPresent() bool    { return d.present }

// Factory converts MRLs into directories and devices for the file://
// scheme. Directory instances are cached by MRL; the device cache is
// seeded from a lister and refreshed on demand.
type Factory struct {
	fs     afero.Fs
	lister device.Lister

	dirMu    sync.Mutex
	dirCache map[string]*localDirectory

	devMu   sync.Mutex
	devices map[string]*deviceEntry // keyed by uuid
}

// NewFactory creates a file:// factory over the given afero filesystem.
// Production code passes afero.NewOsFs(); tests pass a memory fs.
func NewFactory(hostFs afero.Fs, lister device.Lister) (*Factory, error) {
	f := &Factory{
		fs:       hostFs,
		lister:   lister,
		dirCache: make(map[string]*localDirectory),
		devices:  make(map[string]*deviceEntry),
	}
	if err := f.RefreshDevices(); err != nil {
		return nil, err
	}
	return f, nil
}

// Scheme returns the MRL scheme this factory handles
func (f *Factory) Scheme() string { return "file" }

// RefreshDevices re-reads the device lister and updates the cache.
// Known devices absent from the listing flip to present=false; they are
// never evicted.
func (f *Factory) RefreshDevices() error {
	infos, err := f.lister.Devices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	f.devMu.Lock()
	defer f.devMu.Unlock()

	seen := make(map[string]bool, len(infos))
	for _, info := range infos {
		seen[info.UUID] = true
		if d, ok := f.devices[info.UUID]; ok {
			d.mountpoint = info.Mountpoint
			d.present = true
			continue
		}
		f.devices[info.UUID] = &deviceEntry{
			uuid:       info.UUID,
			mountpoint: info.Mountpoint,
			removable:  info.Removable,
			present:    true,
		}
	}
	for uuid, d := range f.devices {
		if !seen[uuid] {
			d.present = false
		}
	}
	return nil
}

// CreateDirectory returns a Directory for the MRL, or nil when the path
// cannot be served. Callers skip nil directories rather than abort.
func (f *Factory) CreateDirectory(mrl string) Directory {
	mrl = strings.TrimSuffix(mrl, "/")

	f.dirMu.Lock()
	if d, ok := f.dirCache[mrl]; ok {
		f.dirMu.Unlock()
		return d
	}
	f.dirMu.Unlock()

	scheme, p, err := SplitMrl(mrl)
	if err != nil || scheme != "file" {
		util.DebugLog("vfs: cannot serve mrl %q", mrl)
		return nil
	}

	fi, err := f.fs.Stat(p)
	if err != nil || !fi.IsDir() {
		util.DebugLog("vfs: not a directory: %s", mrl)
		return nil
	}

	dev := f.CreateDeviceFromMrl(mrl)
	if dev == nil {
		util.DebugLog("vfs: no device for mrl %s", mrl)
		return nil
	}

	dir := &localDirectory{
		fs:      f.fs,
		mrl:     mrl,
		path:    p,
		device:  dev,
		factory: f,
	}

	f.dirMu.Lock()
	// another caller may have raced us; first insert wins
	if existing, ok := f.dirCache[mrl]; ok {
		f.dirMu.Unlock()
		return existing
	}
	f.dirCache[mrl] = dir
	f.dirMu.Unlock()
	return dir
}

// CreateDeviceFromMrl picks the device whose mountpoint is the longest
// prefix of the MRL's path. Longer prefix wins ties deterministically.
func (f *Factory) CreateDeviceFromMrl(mrl string) Device {
	p := ToPath(mrl)
	if p == "" {
		return nil
	}

	f.devMu.Lock()
	defer f.devMu.Unlock()

	var best *deviceEntry
	for _, d := range f.devices {
		mp := strings.TrimSuffix(d.mountpoint, "/")
		if p != mp && !strings.HasPrefix(p, mp+"/") && mp != "" {
			continue
		}
		if best == nil || len(d.mountpoint) > len(best.mountpoint) {
			best = d
		}
	}
	if best == nil {
		return nil
	}
	return best
}

// DeviceByUUID returns the cached device for a UUID, or nil
func (f *Factory) DeviceByUUID(uuid string) Device {
	f.devMu.Lock()
	defer f.devMu.Unlock()
	if d, ok := f.devices[uuid]; ok {
		return d
	}
	return nil
}

// SetDevicePresent flips a cached device's presence and, on mount,
// records its new mountpoint. Used by the facade when mount events fire.
func (f *Factory) SetDevicePresent(uuid, mountpoint string, present bool) {
	f.devMu.Lock()
	defer f.devMu.Unlock()
	d, ok := f.devices[uuid]
	if !ok {
		d = &deviceEntry{uuid: uuid, removable: true}
		f.devices[uuid] = d
	}
	d.present = present
	if present && mountpoint != "" {
		d.mountpoint = mountpoint
	}
}

// InvalidateDirectories drops cached directories below a mountpoint so a
// remount rebuilds them with the fresh device view.
func (f *Factory) InvalidateDirectories(mountpoint string) {
	prefix := ToMrl(strings.TrimSuffix(mountpoint, "/"))
	f.dirMu.Lock()
	defer f.dirMu.Unlock()
	for mrl := range f.dirCache {
		if mrl == prefix || strings.HasPrefix(mrl, prefix+"/") {
			delete(f.dirCache, mrl)
		}
	}
}
