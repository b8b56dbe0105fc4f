package device

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/franz/medialib/internal/util"
)

// markerFile carries the UUID we assign to a volume the first time we see
// it. Writing it at the volume root makes the identity survive remounts
// at a different mountpoint.
const markerFile = ".medialib-device"

// LocalLister enumerates a fixed root plus any volume mounted below the
// configured removable roots (typically /media, /run/media, /mnt).
type LocalLister struct {
	fs             afero.Fs
	fixedMount     string
	fixedUUID      string
	removableRoots []string
}

// NewLocalLister builds a lister over the given afero filesystem.
// fixedMount is the mountpoint covering the primary disk ("/").
func NewLocalLister(hostFs afero.Fs, fixedMount string, removableRoots []string) *LocalLister {
	return &LocalLister{
		fs:             hostFs,
		fixedMount:     fixedMount,
		fixedUUID:      uuid.NewSHA1(uuid.NameSpaceURL, []byte("medialib-fixed:"+fixedMount)).String(),
		removableRoots: removableRoots,
	}
}

// Devices lists the fixed device followed by every mounted removable
// volume, assigning (and persisting) a UUID per volume.
func (l *LocalLister) Devices() ([]Info, error) {
	out := []Info{{
		UUID:       l.fixedUUID,
		Mountpoint: l.fixedMount,
		Removable:  false,
	}}

	for _, root := range l.removableRoots {
		entries, err := afero.ReadDir(l.fs, root)
		if err != nil {
			// roots that do not exist on this host are simply skipped
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			mp := strings.TrimSuffix(root, "/") + "/" + e.Name()
			id, err := l.volumeUUID(mp)
			if err != nil {
				util.WarnLog("device: cannot identify volume at %s: %v", mp, err)
				continue
			}
			out = append(out, Info{UUID: id, Mountpoint: mp, Removable: true})
		}
	}
	return out, nil
}

// volumeUUID reads the volume's marker file, creating it when missing
func (l *LocalLister) volumeUUID(mountpoint string) (string, error) {
	marker := mountpoint + "/" + markerFile
	data, err := afero.ReadFile(l.fs, marker)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, perr := uuid.Parse(id); perr == nil {
			return id, nil
		}
		util.DebugLog("device: invalid marker at %s, regenerating", marker)
	}

	id := uuid.NewString()
	if werr := afero.WriteFile(l.fs, marker, []byte(id+"\n"), 0o644); werr != nil {
		return "", fmt.Errorf("failed to write device marker: %w", werr)
	}
	return id, nil
}
