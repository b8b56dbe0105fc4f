package parser

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/spf13/afero"

	"github.com/franz/medialib/internal/catalog"
	"github.com/franz/medialib/internal/util"
	"github.com/franz/medialib/internal/vfs"
)

// ProbeResult is the raw outcome of one media probe: the stream list
// plus the extractor's meta map, keyed by the external tag names.
type ProbeResult struct {
	Meta        map[string]string
	Duration    int64 // milliseconds
	AudioTracks []catalog.AudioTrack
	VideoTracks []catalog.VideoTrack
}

// External meta tag names
const (
	MetaTitle       = "Title"
	MetaArtist      = "Artist"
	MetaAlbumArtist = "AlbumArtist"
	MetaAlbum       = "Album"
	MetaGenre       = "Genre"
	MetaDate        = "Date"
	MetaShowName    = "ShowName"
	MetaTrackNumber = "TrackNumber"
	MetaEpisode     = "Episode"
	MetaDiscNumber  = "DiscNumber"
	MetaDiscTotal   = "DiscTotal"
	MetaArtworkURL  = "ArtworkURL"
)

// Prober starts an asynchronous probe of one MRL. The done callback is
// invoked exactly once, from the prober's own goroutine.
type Prober interface {
	StartProbe(mrl string, done func(*ProbeResult, error))
}

// ProbeStage extracts metadata from a file by running the prober and
// waiting for its callback with a bounded timeout.
type ProbeStage struct {
	prober  Prober
	timeout time.Duration
	threads int
}

// NewProbeStage creates the probe stage. timeout bounds the wait for the
// prober callback; 0 means the 5 second default.
func NewProbeStage(prober Prober, timeout time.Duration, threads int) *ProbeStage {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if threads <= 0 {
		threads = 1
	}
	return &ProbeStage{prober: prober, timeout: timeout, threads: threads}
}

func (s *ProbeStage) Name() string { return "MediaProbe" }

func (s *ProbeStage) NbThreads() int { return s.threads }

// Run starts the probe and waits on a condition variable for its
// completion. One waker (the callback), one waiter (this worker); the
// predicate is checked under the mutex so a spurious or timeout wake
// cannot be mistaken for completion.
func (s *ProbeStage) Run(t *Task) Status {
	var mu sync.Mutex
	cond := sync.NewCond(&mu)
	var result *ProbeResult
	var probeErr error
	completed := false

	s.prober.StartProbe(t.Mrl, func(r *ProbeResult, err error) {
		mu.Lock()
		result, probeErr = r, err
		completed = true
		cond.Broadcast()
		mu.Unlock()
	})

	timer := time.AfterFunc(s.timeout, func() {
		mu.Lock()
		cond.Broadcast()
		mu.Unlock()
	})
	defer timer.Stop()
	deadline := time.Now().Add(s.timeout)

	mu.Lock()
	for !completed && time.Now().Before(deadline) {
		cond.Wait()
	}
	done := completed
	mu.Unlock()

	if !done {
		util.WarnLog("probe: timed out on %s", t.Mrl)
		return StatusFatal
	}
	if probeErr != nil {
		if util.IsRetryableError(probeErr) {
			return StatusRetry
		}
		util.DebugLog("probe: failed on %s: %v", t.Mrl, probeErr)
		return StatusFatal
	}
	if len(result.AudioTracks) == 0 && len(result.VideoTracks) == 0 {
		util.DebugLog("probe: no streams in %s", t.Mrl)
		return StatusFatal
	}

	s.fill(t, result)
	return StatusSuccess
}

// fill maps the probe's meta map onto the task fields. Numeric tags
// parse leniently: invalid values become 0.
func (s *ProbeStage) fill(t *Task, r *ProbeResult) {
	meta := r.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	t.Title = meta[MetaTitle]
	t.Artist = meta[MetaArtist]
	t.AlbumArtist = meta[MetaAlbumArtist]
	t.AlbumName = meta[MetaAlbum]
	t.Genre = meta[MetaGenre]
	t.ShowName = meta[MetaShowName]
	t.ArtworkMrl = meta[MetaArtworkURL]
	t.TrackNumber = lenientInt(meta[MetaTrackNumber])
	t.Episode = lenientInt(meta[MetaEpisode])
	t.DiscNumber = lenientInt(meta[MetaDiscNumber])
	t.DiscTotal = lenientInt(meta[MetaDiscTotal])
	t.ReleaseDate = parseReleaseDate(meta[MetaDate])
	t.Duration = r.Duration
	t.AudioTracks = r.AudioTracks
	t.VideoTracks = r.VideoTracks
}

func lenientInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseReleaseDate accepts a bare year or a full date
func parseReleaseDate(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if year, err := strconv.Atoi(s); err == nil && year > 1000 && year < 3000 {
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	}
	for _, layout := range []string{"2006-01-02", "2006-01", time.RFC3339} {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Unix()
		}
	}
	return 0
}

// TagProber reads embedded tags with the dhowden/tag library. It covers
// the audio formats the library understands; anything else fails the
// probe so the file degrades to fatal, matching a decoder that cannot
// open the stream.
type TagProber struct {
	fs afero.Fs
}

// NewTagProber creates a tag-based prober over the given filesystem
func NewTagProber(hostFs afero.Fs) *TagProber {
	return &TagProber{fs: hostFs}
}

// StartProbe reads the file's tags on a fresh goroutine and invokes
// done exactly once
func (p *TagProber) StartProbe(mrl string, done func(*ProbeResult, error)) {
	go func() {
		res, err := p.probe(mrl)
		done(res, err)
	}()
}

func (p *TagProber) probe(mrl string) (*ProbeResult, error) {
	filePath := vfs.ToPath(mrl)
	if filePath == "" {
		return nil, fmt.Errorf("unsupported mrl %q: %w", mrl, util.ErrUnsupported)
	}

	f, err := p.fs.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrCorrupt, err)
	}

	meta := map[string]string{
		MetaTitle:       m.Title(),
		MetaArtist:      m.Artist(),
		MetaAlbumArtist: m.AlbumArtist(),
		MetaAlbum:       m.Album(),
		MetaGenre:       m.Genre(),
	}
	if m.Year() > 0 {
		meta[MetaDate] = strconv.Itoa(m.Year())
	}
	if track, _ := m.Track(); track > 0 {
		meta[MetaTrackNumber] = strconv.Itoa(track)
	}
	if disc, total := m.Disc(); disc > 0 {
		meta[MetaDiscNumber] = strconv.Itoa(disc)
		if total > 0 {
			meta[MetaDiscTotal] = strconv.Itoa(total)
		}
	}
	if meta[MetaTitle] == "" {
		base := path.Base(filePath)
		meta[MetaTitle] = strings.TrimSuffix(base, path.Ext(base))
	}

	return &ProbeResult{
		Meta: meta,
		AudioTracks: []catalog.AudioTrack{{
			Codec: strings.ToLower(string(m.FileType())),
		}},
	}, nil
}
