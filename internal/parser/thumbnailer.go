package parser

import (
	"database/sql"
	"strings"

	"github.com/spf13/afero"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/util"
	"github.com/franz/medialib/internal/vfs"
)

// FrameExtractor renders a representative frame of a video to destPath.
// The concrete implementation wraps the host's decoding library.
type FrameExtractor interface {
	ExtractFrame(mrl, destPath string) error
}

// NoopExtractor is the built-in fallback when no decoder is wired in.
// Every request fails, which the thumbnail stage treats as non-fatal.
type NoopExtractor struct{}

func (NoopExtractor) ExtractFrame(mrl, destPath string) error {
	return util.ErrUnsupported
}

// ThumbnailStage generates a thumbnail for video media that have none.
// Extraction failures never fail the file: the media simply keeps an
// unset thumbnail MRL. A failure to store the thumbnail MRL returns
// Retry, so it counts against the pipeline's retry limit like any
// store error.
type ThumbnailStage struct {
	cat       *catalog.Catalog
	extractor FrameExtractor
	fs        afero.Fs
	thumbDir  string
	threads   int
}

// NewThumbnailStage creates the thumbnail stage writing into thumbDir
func NewThumbnailStage(cat *catalog.Catalog, extractor FrameExtractor, hostFs afero.Fs, thumbDir string, threads int) *ThumbnailStage {
	if extractor == nil {
		extractor = NoopExtractor{}
	}
	if threads <= 0 {
		threads = 1
	}
	return &ThumbnailStage{
		cat:       cat,
		extractor: extractor,
		fs:        hostFs,
		thumbDir:  thumbDir,
		threads:   threads,
	}
}

func (s *ThumbnailStage) Name() string { return "Thumbnailer" }

func (s *ThumbnailStage) NbThreads() int { return s.threads }

func (s *ThumbnailStage) Run(t *Task) Status {
	if t.MediaID == 0 {
		return StatusSuccess
	}
	media, err := s.cat.MediaByID(t.MediaID)
	if err != nil || media == nil {
		return StatusSuccess
	}
	if media.Type != catalog.MediaTypeVideo || media.ThumbnailMrl != "" {
		return StatusSuccess
	}

	dest := strings.TrimSuffix(s.thumbDir, "/") + "/" + util.MrlKey(t.Mrl) + ".jpg"
	if err := s.fs.MkdirAll(s.thumbDir, 0o755); err != nil {
		util.DebugLog("thumbnailer: cannot create %s: %v", s.thumbDir, err)
		return StatusSuccess
	}
	if err := s.extractor.ExtractFrame(t.Mrl, dest); err != nil {
		util.DebugLog("thumbnailer: no frame for %s: %v", t.Mrl, err)
		return StatusSuccess
	}

	err = s.cat.Transaction(func(tx *sql.Tx) error {
		return s.cat.SetMediaThumbnail(tx, media.ID, vfs.ToMrl(dest))
	})
	if err != nil {
		util.WarnLog("thumbnailer: failed to persist thumbnail for media %d: %v", media.ID, err)
		return StatusRetry
	}
	return StatusSuccess
}
