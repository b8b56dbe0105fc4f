package device

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/franz/medialib/internal/util"
)

// Events receives mount-state changes. Both callbacks run on the
// watcher's goroutine and must not block.
type Events struct {
	OnDeviceMounted   func(info Info)
	OnDeviceUnmounted func(uuid string)
}

// MountWatcher watches removable roots with fsnotify and diffs the
// lister's view whenever something changes below them.
type MountWatcher struct {
	lister  Lister
	events  Events
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	known map[string]Info // last seen snapshot, keyed by uuid

	done chan struct{}
	wg   sync.WaitGroup
}

// NewMountWatcher creates a watcher over the given roots. The initial
// snapshot is taken immediately; no events fire for it.
func NewMountWatcher(lister Lister, roots []string, events Events) (*MountWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		if err := w.Add(root); err != nil {
			util.DebugLog("device: not watching %s: %v", root, err)
		}
	}

	mw := &MountWatcher{
		lister:  lister,
		events:  events,
		watcher: w,
		known:   make(map[string]Info),
		done:    make(chan struct{}),
	}

	devices, err := lister.Devices()
	if err != nil {
		w.Close()
		return nil, err
	}
	for _, d := range devices {
		mw.known[d.UUID] = d
	}

	mw.wg.Add(1)
	go mw.loop()
	return mw, nil
}

func (mw *MountWatcher) loop() {
	defer mw.wg.Done()
	for {
		select {
		case <-mw.done:
			return
		case _, ok := <-mw.watcher.Events:
			if !ok {
				return
			}
			mw.Resync()
		case err, ok := <-mw.watcher.Errors:
			if !ok {
				return
			}
			util.WarnLog("device: watcher error: %v", err)
		}
	}
}

// Resync re-reads the lister and fires mount/unmount events for the
// difference against the previous snapshot. Safe to call directly; the
// facade uses this for explicit refreshes.
func (mw *MountWatcher) Resync() {
	devices, err := mw.lister.Devices()
	if err != nil {
		util.WarnLog("device: resync failed: %v", err)
		return
	}

	mw.mu.Lock()
	current := make(map[string]Info, len(devices))
	for _, d := range devices {
		current[d.UUID] = d
	}

	var mounted []Info
	var unmounted []string
	for id, d := range current {
		prev, ok := mw.known[id]
		if !ok || prev.Mountpoint != d.Mountpoint {
			mounted = append(mounted, d)
		}
	}
	for id := range mw.known {
		if _, ok := current[id]; !ok {
			unmounted = append(unmounted, id)
		}
	}
	mw.known = current
	mw.mu.Unlock()

	for _, d := range mounted {
		util.InfoLog("device: mounted %s at %s", d.UUID, d.Mountpoint)
		if mw.events.OnDeviceMounted != nil {
			mw.events.OnDeviceMounted(d)
		}
	}
	for _, id := range unmounted {
		util.InfoLog("device: unmounted %s", id)
		if mw.events.OnDeviceUnmounted != nil {
			mw.events.OnDeviceUnmounted(id)
		}
	}
}

// Close stops the watcher goroutine
func (mw *MountWatcher) Close() error {
	close(mw.done)
	err := mw.watcher.Close()
	mw.wg.Wait()
	return err
}
