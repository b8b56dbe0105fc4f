package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/store"
)

// Folder is one directory known to the catalogue. Path is stored
// device-relative for removable devices so a remount to a different
// mountpoint does not invalidate children.
type Folder struct {
	ID            int64
	Path          string
	ParentID      int64 // 0 when root of an entry point
	DeviceID      int64
	IsBlacklisted bool
	IsPresent     bool
}

const folderTable = "folders"

const folderCols = `id_folder, path, COALESCE(parent_id, 0), device_id,
	is_blacklisted, is_present`

func scanFolder(row interface{ Scan(...any) error }) (*Folder, error) {
	f := &Folder{}
	err := row.Scan(&f.ID, &f.Path, &f.ParentID, &f.DeviceID, &f.IsBlacklisted, &f.IsPresent)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CreateFolder inserts a folder row
func (c *Catalog) CreateFolder(q store.DBTX, path string, parentID, deviceID int64) (*Folder, error) {
	res, err := q.Exec(`
		INSERT INTO folders (path, parent_id, device_id, is_present)
		VALUES (?, ?, ?, 1)
	`, path, store.NullableID(parentID), deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert folder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	f := &Folder{ID: id, Path: path, ParentID: parentID, DeviceID: deviceID, IsPresent: true}
	c.store.Identity().Put(folderTable, id, f)
	return f, nil
}

// FolderByPath fetches a folder by its device-relative path
func (c *Catalog) FolderByPath(q store.DBTX, path string, deviceID int64) (*Folder, error) {
	row := q.QueryRow(`
		SELECT `+folderCols+` FROM folders WHERE path = ? AND device_id = ?
	`, path, deviceID)
	f, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch folder: %w", err)
	}
	c.store.Identity().Put(folderTable, f.ID, f)
	return f, nil
}

// FolderByID fetches a folder through the identity map
func (c *Catalog) FolderByID(id int64) (*Folder, error) {
	if v, ok := c.store.Identity().Get(folderTable, id); ok {
		return v.(*Folder), nil
	}
	row := c.store.QueryRow(`SELECT `+folderCols+` FROM folders WHERE id_folder = ?`, id)
	f, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.store.Identity().Put(folderTable, id, f)
	return f, nil
}

// SubFolders lists the direct children of a folder
func (c *Catalog) SubFolders(parentID int64) ([]*Folder, error) {
	rows, err := c.store.Query(`
		SELECT `+folderCols+` FROM folders WHERE parent_id = ? ORDER BY path
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SetFolderPresence flips one folder; the trigger cascade takes care of
// its files and their media
func (c *Catalog) SetFolderPresence(q store.DBTX, folderID int64, present bool) error {
	_, err := q.Exec(`UPDATE folders SET is_present = ? WHERE id_folder = ?`, present, folderID)
	if err != nil {
		return fmt.Errorf("failed to update folder presence: %w", err)
	}
	c.store.Identity().Evict(folderTable, folderID)
	c.store.Identity().EvictTable(fileTable)
	c.store.Identity().EvictTable(mediaTable)
	return nil
}

// SetFolderBlacklisted bans or unbans a folder from discovery
func (c *Catalog) SetFolderBlacklisted(q store.DBTX, folderID int64, banned bool) error {
	_, err := q.Exec(`UPDATE folders SET is_blacklisted = ? WHERE id_folder = ?`, banned, folderID)
	if err != nil {
		return fmt.Errorf("failed to update folder blacklist: %w", err)
	}
	c.store.Identity().Evict(folderTable, folderID)
	return nil
}
