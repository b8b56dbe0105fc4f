package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/store"
)

// Device is a storage device row. Devices are never deleted: keeping the
// row lets files on a removable disk re-attach when it comes back.
type Device struct {
	ID             int64
	UUID           string
	LastMountpoint string
	IsRemovable    bool
	IsPresent      bool
}

const deviceTable = "devices"

const deviceCols = "id_device, uuid, last_mountpoint, is_removable, is_present"

func scanDevice(row interface{ Scan(...any) error }) (*Device, error) {
	d := &Device{}
	err := row.Scan(&d.ID, &d.UUID, &d.LastMountpoint, &d.IsRemovable, &d.IsPresent)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CreateDevice inserts a device row on first observation
func (c *Catalog) CreateDevice(q store.DBTX, uuid, mountpoint string, removable bool) (*Device, error) {
	res, err := q.Exec(`
		INSERT INTO devices (uuid, last_mountpoint, is_removable, is_present)
		VALUES (?, ?, ?, 1)
	`, uuid, mountpoint, removable)
	if err != nil {
		return nil, fmt.Errorf("failed to insert device: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	d := &Device{
		ID:             id,
		UUID:           uuid,
		LastMountpoint: mountpoint,
		IsRemovable:    removable,
		IsPresent:      true,
	}
	c.store.Identity().Put(deviceTable, id, d)
	return d, nil
}

// DeviceByUUID fetches a device by its stable UUID
func (c *Catalog) DeviceByUUID(q store.DBTX, uuid string) (*Device, error) {
	row := q.QueryRow(`SELECT `+deviceCols+` FROM devices WHERE uuid = ?`, uuid)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device: %w", err)
	}
	c.store.Identity().Put(deviceTable, d.ID, d)
	return d, nil
}

// DeviceByID fetches a device through the identity map
func (c *Catalog) DeviceByID(id int64) (*Device, error) {
	if v, ok := c.store.Identity().Get(deviceTable, id); ok {
		return v.(*Device), nil
	}
	row := c.store.QueryRow(`SELECT `+deviceCols+` FROM devices WHERE id_device = ?`, id)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.store.Identity().Put(deviceTable, id, d)
	return d, nil
}

// ListDevices returns every known device
func (c *Catalog) ListDevices() ([]*Device, error) {
	rows, err := c.store.Query(`SELECT ` + deviceCols + ` FROM devices ORDER BY id_device`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetDevicePresence flips a device's presence. The presence cascade
// propagates to folders, files and media through triggers. On mount with
// a new mountpoint only the device row is rewritten; folder paths are
// device-relative and stay valid.
func (c *Catalog) SetDevicePresence(q store.DBTX, deviceID int64, present bool, mountpoint string) error {
	if present && mountpoint != "" {
		_, err := q.Exec(`
			UPDATE devices SET is_present = ?, last_mountpoint = ? WHERE id_device = ?
		`, present, mountpoint, deviceID)
		if err != nil {
			return fmt.Errorf("failed to update device: %w", err)
		}
	} else {
		_, err := q.Exec(`UPDATE devices SET is_present = ? WHERE id_device = ?`, present, deviceID)
		if err != nil {
			return fmt.Errorf("failed to update device: %w", err)
		}
	}

	// Bulk presence flips invalidate whole tables at once
	c.store.Identity().EvictTable(deviceTable)
	c.store.Identity().EvictTable(folderTable)
	c.store.Identity().EvictTable(fileTable)
	c.store.Identity().EvictTable(mediaTable)
	return nil
}
