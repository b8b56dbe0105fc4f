package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Summary tallies one event journal
type Summary struct {
	Total    int
	ByType   map[EventType]int
	ByLevel  map[EventLevel]int
	Errors   []Event
	LastSeen map[EventType]Event
}

// Summarize reads a JSONL journal and aggregates it. Unparseable lines
// are counted but otherwise skipped.
func Summarize(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	s := &Summary{
		ByType:   make(map[EventType]int),
		ByLevel:  make(map[EventLevel]int),
		LastSeen: make(map[EventType]Event),
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		s.Total++
		s.ByType[ev.Event]++
		s.ByLevel[ev.Level]++
		s.LastSeen[ev.Event] = ev
		if ev.Level == LevelError {
			s.Errors = append(s.Errors, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return s, nil
}

// Print writes a human-readable summary to stdout
func (s *Summary) Print() {
	fmt.Printf("Events: %d\n", s.Total)

	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %-10s %d\n", t, s.ByType[EventType(t)])
	}

	if len(s.Errors) > 0 {
		fmt.Printf("Errors (%d):\n", len(s.Errors))
		for _, ev := range s.Errors {
			fmt.Printf("  %s: %s\n", ev.Mrl, ev.Error)
		}
	}
}
