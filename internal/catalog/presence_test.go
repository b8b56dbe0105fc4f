package catalog

import (
	"database/sql"
	"testing"
)

type presenceFixture struct {
	device *Device
	folder *Folder
	file   *File
	media  *Media
}

func buildPresenceFixture(t *testing.T, c *Catalog) *presenceFixture {
	t.Helper()
	fx := &presenceFixture{}
	err := c.Transaction(func(tx *sql.Tx) error {
		var err error
		fx.device, err = c.CreateDevice(tx, "11111111-2222-3333-4444-555555555555", "/media/usb0", true)
		if err != nil {
			return err
		}
		fx.folder, err = c.CreateFolder(tx, "music", 0, fx.device.ID)
		if err != nil {
			return err
		}
		fx.media, err = c.CreateMedia(tx, "portable track", MediaTypeAudio)
		if err != nil {
			return err
		}
		fx.file, err = c.CreateFile(tx, "music/track.mp3", FileTypeAudio, fx.folder.ID, 100, 2048)
		if err != nil {
			return err
		}
		return c.LinkFileToMedia(tx, fx.file.ID, fx.media.ID)
	})
	if err != nil {
		t.Fatalf("fixture failed: %v", err)
	}
	return fx
}

func TestDevicePresenceCascades(t *testing.T) {
	c := openTestCatalog(t)
	fx := buildPresenceFixture(t, c)

	// unmount flips device, folder, file and media in one statement
	if err := c.SetDevicePresence(c.Store(), fx.device.ID, false, ""); err != nil {
		t.Fatalf("unmount failed: %v", err)
	}

	folder, _ := c.FolderByID(fx.folder.ID)
	if folder.IsPresent {
		t.Error("expected folder to follow device absence")
	}
	file, _ := c.FileByID(fx.file.ID)
	if file.IsPresent {
		t.Error("expected file to follow folder absence")
	}
	media, _ := c.MediaByID(fx.media.ID)
	if media.IsPresent {
		t.Error("expected media to follow file absence")
	}

	// remount at a different mountpoint restores everything; folder
	// paths are device-relative and untouched
	if err := c.SetDevicePresence(c.Store(), fx.device.ID, true, "/media/usb1"); err != nil {
		t.Fatalf("remount failed: %v", err)
	}

	device, _ := c.DeviceByID(fx.device.ID)
	if !device.IsPresent || device.LastMountpoint != "/media/usb1" {
		t.Errorf("expected present device at /media/usb1, got %+v", device)
	}
	folder, _ = c.FolderByID(fx.folder.ID)
	if !folder.IsPresent || folder.Path != "music" {
		t.Errorf("expected present folder with unchanged path, got %+v", folder)
	}
	media, _ = c.MediaByID(fx.media.ID)
	if !media.IsPresent {
		t.Error("expected media back after remount")
	}
}

func TestUnmountRemountKeepsCatalogueIdentical(t *testing.T) {
	c := openTestCatalog(t)
	fx := buildPresenceFixture(t, c)

	before, err := c.MediaByID(fx.media.ID)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	beforeID, beforeTitle := before.ID, before.Title

	if err := c.SetDevicePresence(c.Store(), fx.device.ID, false, ""); err != nil {
		t.Fatalf("unmount failed: %v", err)
	}
	if err := c.SetDevicePresence(c.Store(), fx.device.ID, true, "/media/elsewhere"); err != nil {
		t.Fatalf("remount failed: %v", err)
	}

	after, err := c.MediaByID(fx.media.ID)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if after.ID != beforeID || after.Title != beforeTitle || !after.IsPresent {
		t.Errorf("catalogue changed across unmount cycle: %+v", after)
	}

	var fileCount int
	if err := c.Store().QueryRow(`SELECT COUNT(*) FROM files`).Scan(&fileCount); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if fileCount != 1 {
		t.Errorf("expected file rows preserved, got %d", fileCount)
	}
}

func TestMediaPresenceIsConjunctionOverFiles(t *testing.T) {
	c := openTestCatalog(t)
	fx := buildPresenceFixture(t, c)

	// second backing file on a second device (external subtitle case)
	var dev2 *Device
	var file2 *File
	err := c.Transaction(func(tx *sql.Tx) error {
		var err error
		dev2, err = c.CreateDevice(tx, "99999999-8888-7777-6666-555555555555", "/media/usb9", true)
		if err != nil {
			return err
		}
		folder2, err := c.CreateFolder(tx, "subs", 0, dev2.ID)
		if err != nil {
			return err
		}
		file2, err = c.CreateFile(tx, "subs/track.srt", FileTypeUnknown, folder2.ID, 100, 10)
		if err != nil {
			return err
		}
		return c.LinkFileToMedia(tx, file2.ID, fx.media.ID)
	})
	if err != nil {
		t.Fatalf("fixture failed: %v", err)
	}

	// one absent backing file is enough to make the media absent
	if err := c.SetDevicePresence(c.Store(), dev2.ID, false, ""); err != nil {
		t.Fatalf("unmount failed: %v", err)
	}
	media, _ := c.MediaByID(fx.media.ID)
	if media.IsPresent {
		t.Error("expected media absent while any backing file is absent")
	}

	if err := c.SetDevicePresence(c.Store(), dev2.ID, true, "/media/usb9"); err != nil {
		t.Fatalf("remount failed: %v", err)
	}
	media, _ = c.MediaByID(fx.media.ID)
	if !media.IsPresent {
		t.Error("expected media present once every backing file is back")
	}
}
