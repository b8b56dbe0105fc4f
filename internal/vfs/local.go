package vfs

import (
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// localFile implements File over an afero FileInfo
type localFile struct {
	dirMrl string
	name   string
	mtime  time.Time
	size   int64
}

func (f *localFile) Name() string { return f.name }

func (f *localFile) Path() string { return f.dirMrl }

func (f *localFile) FullPath() string {
	return strings.TrimSuffix(f.dirMrl, "/") + "/" + f.name
}

func (f *localFile) Extension() string {
	ext := path.Ext(f.name)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

func (f *localFile) LastModificationDate() time.Time { return f.mtime }

func (f *localFile) Size() int64 { return f.size }

// localDirectory implements Directory over an afero filesystem.
// Listings are restartable: each call re-reads the directory.
type localDirectory struct {
	fs      afero.Fs
	mrl     string
	path    string
	device  Device
	factory *Factory
}

func (d *localDirectory) Mrl() string { return d.mrl }

func (d *localDirectory) Device() Device { return d.device }

func (d *localDirectory) list() ([]os.FileInfo, error) {
	entries, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, wrapFsError(d.mrl, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	return entries, nil
}

func (d *localDirectory) Files() ([]File, error) {
	entries, err := d.list()
	if err != nil {
		return nil, err
	}
	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, &localFile{
			dirMrl: d.mrl,
			name:   e.Name(),
			mtime:  e.ModTime(),
			size:   e.Size(),
		})
	}
	return files, nil
}

func (d *localDirectory) Dirs() ([]Directory, error) {
	entries, err := d.list()
	if err != nil {
		return nil, err
	}
	var dirs []Directory
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := strings.TrimSuffix(d.path, "/") + "/" + e.Name()
		dirs = append(dirs, &localDirectory{
			fs:      d.fs,
			mrl:     ToMrl(sub),
			path:    sub,
			device:  d.device,
			factory: d.factory,
		})
	}
	return dirs, nil
}

func wrapFsError(mrl string, err error) error {
	kind := ErrIO
	switch {
	case os.IsNotExist(err):
		kind = ErrNotFound
	case os.IsPermission(err):
		kind = ErrAccessDenied
	default:
		var pathErr *fs.PathError
		if ok := asPathError(err, &pathErr); ok && pathErr.Err == fs.ErrInvalid {
			kind = ErrNotSupported
		}
	}
	return &FsError{Kind: kind, Mrl: mrl, Err: err}
}

func asPathError(err error, target **fs.PathError) bool {
	pe, ok := err.(*fs.PathError)
	if ok {
		*target = pe
	}
	return ok
}
