// Package parser runs discovered files through an ordered chain of
// metadata stages, each with its own worker pool. Pipeline progress is
// persisted per file so an interrupted run resumes where it left off.
package parser

import (
	"github.com/franz/medialib/internal/catalog"
)

// Status is the outcome of one stage run
type Status int

const (
	// StatusSuccess hands the task to the next stage
	StatusSuccess Status = iota
	// StatusFatal marks the file permanently failed and drops the task
	StatusFatal
	// StatusDiscarded drops the task without error signalling
	StatusDiscarded
	// StatusRetry re-enqueues the task at the same stage, up to the
	// configured retry budget
	StatusRetry
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFatal:
		return "fatal"
	case StatusDiscarded:
		return "discarded"
	case StatusRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// Stage is one step of the pipeline
type Stage interface {
	Name() string
	// NbThreads is the stage's worker pool size
	NbThreads() int
	Run(t *Task) Status
}

// Task carries one file through the pipeline. The intermediate fields
// are filled by the probe stage and consumed by the persister; MediaID
// is set by the first stage that materialises the media row.
type Task struct {
	FileID  int64
	MediaID int64
	Mrl     string // full MRL, resolvable right now
	File    *catalog.File

	Title       string
	Artist      string
	AlbumArtist string
	AlbumName   string
	Genre       string
	ShowName    string
	ReleaseDate int64 // unix; 0 when unknown
	ArtworkMrl  string
	TrackNumber int
	DiscNumber  int
	DiscTotal   int
	Episode     int
	Duration    int64 // milliseconds

	AudioTracks []catalog.AudioTrack
	VideoTracks []catalog.VideoTrack

	// currentStep is the index of the stage about to run; mirrored on
	// the file row as parser_step
	currentStep int
	retries     int

	// stepSaved is set by a stage that persisted the advanced
	// parser_step inside its own transaction, so the pipeline does not
	// write it a second time
	stepSaved bool
}

// CurrentStep returns the index of the stage the task sits at
func (t *Task) CurrentStep() int { return t.currentStep }

// MarkStepSaved tells the pipeline the stage already persisted the
// advanced parser_step in its own transaction
func (t *Task) MarkStepSaved() { t.stepSaved = true }
