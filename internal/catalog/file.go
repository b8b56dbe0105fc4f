package catalog

import (
	"database/sql"
	"fmt"

	"github.com/franz/medialib/internal/store"
)

// File holds raw filesystem facts and pipeline progress for one on-disk
// file. Mrl is stored device-relative for files on removable devices.
type File struct {
	ID         int64
	MediaID    int64 // 0 until the first pipeline stage materialises Media
	Mrl        string
	Type       FileType
	LastModificationDate int64
	Size       int64
	ParserStep int
	RetryCount int
	FolderID   int64
	IsPresent  bool
}

const fileTable = "files"

const fileCols = `id_file, COALESCE(media_id, 0), mrl, type,
	last_modification_date, size, parser_step, retry_count,
	COALESCE(folder_id, 0), is_present`

func scanFile(row interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	err := row.Scan(&f.ID, &f.MediaID, &f.Mrl, &f.Type, &f.LastModificationDate,
		&f.Size, &f.ParserStep, &f.RetryCount, &f.FolderID, &f.IsPresent)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CreateFile inserts a file row with parser_step pending
func (c *Catalog) CreateFile(q store.DBTX, mrl string, ft FileType, folderID int64, mtime, size int64) (*File, error) {
	res, err := q.Exec(`
		INSERT INTO files (mrl, type, last_modification_date, size, folder_id, parser_step)
		VALUES (?, ?, ?, ?, ?, ?)
	`, mrl, ft, mtime, size, store.NullableID(folderID), ParserStepPending)
	if err != nil {
		return nil, fmt.Errorf("failed to insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	f := &File{
		ID:                   id,
		Mrl:                  mrl,
		Type:                 ft,
		LastModificationDate: mtime,
		Size:                 size,
		FolderID:             folderID,
		ParserStep:           ParserStepPending,
		IsPresent:            true,
	}
	c.store.Identity().Put(fileTable, id, f)
	return f, nil
}

// FileByMrl fetches a file by its (device-relative) MRL within a folder
func (c *Catalog) FileByMrl(q store.DBTX, mrl string, folderID int64) (*File, error) {
	row := q.QueryRow(`
		SELECT `+fileCols+` FROM files WHERE mrl = ? AND folder_id = ?
	`, mrl, folderID)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file: %w", err)
	}
	c.store.Identity().Put(fileTable, f.ID, f)
	return f, nil
}

// FileByID fetches a file through the identity map
func (c *Catalog) FileByID(id int64) (*File, error) {
	if v, ok := c.store.Identity().Get(fileTable, id); ok {
		return v.(*File), nil
	}
	row := c.store.QueryRow(`SELECT `+fileCols+` FROM files WHERE id_file = ?`, id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.store.Identity().Put(fileTable, id, f)
	return f, nil
}

// FilesByFolder lists the files below one folder
func (c *Catalog) FilesByFolder(folderID int64) ([]*File, error) {
	rows, err := c.store.Query(`
		SELECT `+fileCols+` FROM files WHERE folder_id = ? ORDER BY mrl
	`, folderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFiles(rows)
}

// FilesByMedia lists the files backing one media
func (c *Catalog) FilesByMedia(mediaID int64) ([]*File, error) {
	rows, err := c.store.Query(`
		SELECT `+fileCols+` FROM files WHERE media_id = ? ORDER BY id_file
	`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFiles(rows)
}

// IncompleteFiles returns files whose pipeline run has not finished:
// parser_step holds a stage index, not a terminal sentinel. Used by the
// startup recovery pass.
func (c *Catalog) IncompleteFiles() ([]*File, error) {
	rows, err := c.store.Query(`
		SELECT ` + fileCols + ` FROM files
		WHERE parser_step >= 0 AND is_present = 1
		ORDER BY id_file
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFiles(rows)
}

func collectFiles(rows *sql.Rows) ([]*File, error) {
	var out []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SetFileParserStep persists the pipeline cursor
func (c *Catalog) SetFileParserStep(q store.DBTX, fileID int64, step int) error {
	_, err := q.Exec(`UPDATE files SET parser_step = ? WHERE id_file = ?`, step, fileID)
	if err != nil {
		return fmt.Errorf("failed to update parser step: %w", err)
	}
	c.store.Identity().Evict(fileTable, fileID)
	return nil
}

// SetFileRetryCount persists the per-file retry budget consumption
func (c *Catalog) SetFileRetryCount(q store.DBTX, fileID int64, count int) error {
	_, err := q.Exec(`UPDATE files SET retry_count = ? WHERE id_file = ?`, count, fileID)
	if err != nil {
		return fmt.Errorf("failed to update retry count: %w", err)
	}
	c.store.Identity().Evict(fileTable, fileID)
	return nil
}

// SetFilePresence flips one file; its media recomputes through the
// presence trigger
func (c *Catalog) SetFilePresence(q store.DBTX, f *File, present bool) error {
	_, err := q.Exec(`UPDATE files SET is_present = ? WHERE id_file = ?`, present, f.ID)
	if err != nil {
		return fmt.Errorf("failed to update file presence: %w", err)
	}
	c.store.Identity().Evict(fileTable, f.ID)
	if f.MediaID != 0 {
		c.store.Identity().Evict(mediaTable, f.MediaID)
	}
	return nil
}

// LinkFileToMedia attaches a file to its media row
func (c *Catalog) LinkFileToMedia(q store.DBTX, fileID, mediaID int64) error {
	_, err := q.Exec(`UPDATE files SET media_id = ? WHERE id_file = ?`, mediaID, fileID)
	if err != nil {
		return fmt.Errorf("failed to link file to media: %w", err)
	}
	c.store.Identity().Evict(fileTable, fileID)
	return nil
}

// ResetFileForReparse clears pipeline progress after an on-disk change.
// The file id stays stable; dependent metadata rows are removed so the
// pipeline rebuilds them.
func (c *Catalog) ResetFileForReparse(q store.DBTX, f *File, mtime, size int64) error {
	if f.MediaID != 0 {
		if _, err := q.Exec(`DELETE FROM album_tracks WHERE media_id = ?`, f.MediaID); err != nil {
			return fmt.Errorf("failed to clear album track: %w", err)
		}
		if _, err := q.Exec(`DELETE FROM show_episodes WHERE media_id = ?`, f.MediaID); err != nil {
			return fmt.Errorf("failed to clear show episode: %w", err)
		}
		if _, err := q.Exec(`DELETE FROM audio_tracks WHERE media_id = ?`, f.MediaID); err != nil {
			return fmt.Errorf("failed to clear audio tracks: %w", err)
		}
		if _, err := q.Exec(`DELETE FROM video_tracks WHERE media_id = ?`, f.MediaID); err != nil {
			return fmt.Errorf("failed to clear video tracks: %w", err)
		}
	}
	_, err := q.Exec(`
		UPDATE files SET parser_step = ?, retry_count = 0,
			last_modification_date = ?, size = ?
		WHERE id_file = ?
	`, ParserStepPending, mtime, size, f.ID)
	if err != nil {
		return fmt.Errorf("failed to reset file: %w", err)
	}
	c.store.Identity().Evict(fileTable, f.ID)
	return nil
}
