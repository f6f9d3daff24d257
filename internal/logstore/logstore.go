// Package logstore provides the log source queried during evidence gathering.
// Entries are loaded from scenario JSON files keyed by service name, matching
// the shape of the operational log pipeline this service reads from.
package logstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// MaxQueryLimit caps how many entries a single query returns.
const MaxQueryLimit = 100

// Entry is a single log record.
type Entry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Level      string            `json:"level"`
	Service    string            `json:"service"`
	Message    string            `json:"message"`
	ErrorCode  string            `json:"error_code,omitempty"`
	StackTrace string            `json:"stack_trace,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// QueryParams narrows a log query.
type QueryParams struct {
	Service string
	Start   time.Time
	End     time.Time
	Level   string // optional level filter
	Limit   int    // capped at MaxQueryLimit
}

// QueryResult holds matched entries. TotalCount is the number of entries that
// matched before the limit was applied, so it may exceed len(Entries).
type QueryResult struct {
	Entries    []Entry
	TotalCount int
}

// Store serves log queries from in-memory scenario data. Construct once and
// share; the data is read-only after load.
type Store struct {
	byService map[string][]Entry
}

type scenarioFile struct {
	Service string  `json:"service"`
	Logs    []Entry `json:"logs"`
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{byService: make(map[string][]Entry)}
}

// LoadDir loads every scenario JSON file from dir. A missing directory is not
// an error; the store just stays empty.
func LoadDir(dir string) (*Store, error) {
	s := NewStore()
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenario files: %w", err)
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read scenario %s: %w", f, err)
		}
		if err := s.AddScenario(data); err != nil {
			log.Printf("Skipping scenario %s: %v", f, err)
		}
	}
	return s, nil
}

// AddScenario parses one scenario document and merges its entries.
func (s *Store) AddScenario(data []byte) error {
	var sc scenarioFile
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("invalid scenario file: %w", err)
	}
	if sc.Service == "" {
		return fmt.Errorf("scenario file missing service name")
	}
	s.byService[sc.Service] = append(s.byService[sc.Service], sc.Logs...)
	sort.Slice(s.byService[sc.Service], func(i, j int) bool {
		return s.byService[sc.Service][i].Timestamp.Before(s.byService[sc.Service][j].Timestamp)
	})
	return nil
}

// Add appends entries for a service directly. Used by tests and seeding.
func (s *Store) Add(service string, entries ...Entry) {
	s.byService[service] = append(s.byService[service], entries...)
}

// Query returns entries for the service within [Start, End], optionally
// filtered by level, capped at the limit. An unknown service yields an empty
// result, never an error: absence of logs is legitimate evidence absence.
func (s *Store) Query(ctx context.Context, p QueryParams) (QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return QueryResult{}, err
	}

	limit := p.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}

	var matched []Entry
	for _, e := range s.byService[p.Service] {
		if e.Timestamp.Before(p.Start) || e.Timestamp.After(p.End) {
			continue
		}
		if p.Level != "" && e.Level != p.Level {
			continue
		}
		matched = append(matched, e)
	}

	total := len(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return QueryResult{Entries: matched, TotalCount: total}, nil
}
