// Package report journals library activity to a JSONL file so a run can
// be audited after the fact. The journal complements the store: the
// store holds the outcome, the journal holds the sequence.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventDiscovery EventType = "discovery"
	EventProbe     EventType = "probe"
	EventPersist   EventType = "persist"
	EventThumbnail EventType = "thumbnail"
	EventDevice    EventType = "device"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event is a single journal entry
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	Mrl        string            `json:"mrl,omitempty"`
	FileID     int64             `json:"file_id,omitempty"`
	MediaID    int64             `json:"media_id,omitempty"`
	DeviceUUID string            `json:"device_uuid,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a journal in outputDir. minLevel filters what
// gets written.
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events-%s.jsonl", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Path returns the journal file path
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log writes an event. A nil logger ignores everything so callers need
// no guards.
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil
	}
	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

// LogDiscovery journals one discovered or refreshed file
func (l *EventLogger) LogDiscovery(mrl string, fileID int64) error {
	return l.Log(&Event{Level: LevelInfo, Event: EventDiscovery, Mrl: mrl, FileID: fileID})
}

// LogPersist journals a committed metadata transaction
func (l *EventLogger) LogPersist(fileID, mediaID int64) error {
	return l.Log(&Event{Level: LevelInfo, Event: EventPersist, FileID: fileID, MediaID: mediaID})
}

// LogDeviceEvent journals a mount state change
func (l *EventLogger) LogDeviceEvent(uuid string, mounted bool) error {
	state := "unmounted"
	if mounted {
		state = "mounted"
	}
	return l.Log(&Event{
		Level: LevelInfo, Event: EventDevice, DeviceUUID: uuid,
		Extra: map[string]string{"state": state},
	})
}

// LogError journals a failure tied to one file
func (l *EventLogger) LogError(mrl string, fileID int64, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return l.Log(&Event{Level: LevelError, Event: EventError, Mrl: mrl, FileID: fileID, Error: msg})
}

// Close flushes and closes the journal
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.file.Close()
	l.file = nil
	return err
}
