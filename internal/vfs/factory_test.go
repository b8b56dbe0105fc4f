package vfs

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/franz/medialib/internal/device"
)

func newTestFactory(t *testing.T, devices ...device.Info) (*Factory, afero.Fs, *device.FixedLister) {
	t.Helper()
	memFs := afero.NewMemMapFs()
	lister := device.NewFixedLister(devices...)
	f, err := NewFactory(memFs, lister)
	if err != nil {
		t.Fatalf("failed to create factory: %v", err)
	}
	return f, memFs, lister
}

func TestSplitMrl(t *testing.T) {
	cases := []struct {
		mrl     string
		scheme  string
		path    string
		wantErr bool
	}{
		{"file:///music/a.mp3", "file", "/music/a.mp3", false},
		{"smb://server/share", "smb", "server/share", false},
		{"/music/a.mp3", "", "", true},
		{"://nothing", "", "", true},
	}
	for _, tc := range cases {
		scheme, p, err := SplitMrl(tc.mrl)
		if tc.wantErr {
			if err == nil {
				t.Errorf("expected error for %q", tc.mrl)
			}
			continue
		}
		if err != nil {
			t.Errorf("unexpected error for %q: %v", tc.mrl, err)
			continue
		}
		if scheme != tc.scheme || p != tc.path {
			t.Errorf("%q split to (%q, %q), want (%q, %q)", tc.mrl, scheme, p, tc.scheme, tc.path)
		}
	}
}

func TestCreateDirectoryCachesInstances(t *testing.T) {
	f, memFs, _ := newTestFactory(t, device.Info{
		UUID: "aa", Mountpoint: "/", Removable: false,
	})
	afero.WriteFile(memFs, "/music/a.mp3", []byte("x"), 0o644)

	d1 := f.CreateDirectory("file:///music")
	if d1 == nil {
		t.Fatal("expected a directory")
	}
	d2 := f.CreateDirectory("file:///music/")
	if d1 != d2 {
		t.Error("expected the cached instance for the same mrl")
	}
}

func TestCreateDirectoryReturnsNilOnFailure(t *testing.T) {
	f, memFs, _ := newTestFactory(t, device.Info{
		UUID: "aa", Mountpoint: "/", Removable: false,
	})

	if d := f.CreateDirectory("file:///does-not-exist"); d != nil {
		t.Error("expected nil for a missing directory")
	}
	if d := f.CreateDirectory("smb://server/share"); d != nil {
		t.Error("expected nil for a foreign scheme")
	}

	afero.WriteFile(memFs, "/plain.txt", []byte("x"), 0o644)
	if d := f.CreateDirectory("file:///plain.txt"); d != nil {
		t.Error("expected nil for a file mrl")
	}
}

func TestDeviceFromMrlPicksLongestMountpointPrefix(t *testing.T) {
	f, _, _ := newTestFactory(t,
		device.Info{UUID: "root", Mountpoint: "/", Removable: false},
		device.Info{UUID: "usb", Mountpoint: "/media/usb0", Removable: true},
	)

	if d := f.CreateDeviceFromMrl("file:///media/usb0/music"); d == nil || d.UUID() != "usb" {
		t.Errorf("expected the usb device, got %v", d)
	}
	if d := f.CreateDeviceFromMrl("file:///home/franz/music"); d == nil || d.UUID() != "root" {
		t.Errorf("expected the root device, got %v", d)
	}
	if d := f.CreateDeviceFromMrl("smb://server/share"); d != nil {
		t.Error("expected nil for a foreign scheme")
	}
}

func TestRefreshDevicesKeepsAbsentDevicesResolvable(t *testing.T) {
	f, _, lister := newTestFactory(t,
		device.Info{UUID: "root", Mountpoint: "/", Removable: false},
		device.Info{UUID: "usb", Mountpoint: "/media/usb0", Removable: true},
	)

	lister.Unmount("usb")
	if err := f.RefreshDevices(); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	d := f.DeviceByUUID("usb")
	if d == nil {
		t.Fatal("absent devices must stay resolvable by uuid")
	}
	if d.IsPresent() {
		t.Error("expected the unplugged device to be absent")
	}

	lister.Mount(device.Info{UUID: "usb", Mountpoint: "/media/usb1", Removable: true})
	if err := f.RefreshDevices(); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	d = f.DeviceByUUID("usb")
	if !d.IsPresent() || d.Mountpoint() != "/media/usb1" {
		t.Errorf("expected present device at /media/usb1, got %v / %v", d.IsPresent(), d.Mountpoint())
	}
}

func TestDirectoryListingsAreRestartable(t *testing.T) {
	f, memFs, _ := newTestFactory(t, device.Info{
		UUID: "aa", Mountpoint: "/", Removable: false,
	})
	now := time.Now()
	afero.WriteFile(memFs, "/music/a.mp3", []byte("aa"), 0o644)
	afero.WriteFile(memFs, "/music/b.mp3", []byte("bbb"), 0o644)
	memFs.Chtimes("/music/a.mp3", now, now)

	dir := f.CreateDirectory("file:///music")
	if dir == nil {
		t.Fatal("expected a directory")
	}

	files, err := dir.Files()
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Name() != "a.mp3" || files[0].Extension() != "mp3" {
		t.Errorf("unexpected first file: %s", files[0].Name())
	}
	if files[0].FullPath() != "file:///music/a.mp3" {
		t.Errorf("unexpected full path: %s", files[0].FullPath())
	}
	if files[1].Size() != 3 {
		t.Errorf("expected size 3, got %d", files[1].Size())
	}

	// a second listing restarts and sees new content
	afero.WriteFile(memFs, "/music/c.mp3", []byte("c"), 0o644)
	files, err = dir.Files()
	if err != nil {
		t.Fatalf("second listing failed: %v", err)
	}
	if len(files) != 3 {
		t.Errorf("expected restartable listing to see 3 files, got %d", len(files))
	}
}
