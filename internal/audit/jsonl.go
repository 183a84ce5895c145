package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/toolgate-dev/toolgate/api"
)

// JSONLStore is an append-only JSONL audit store. The file is size-rotated
// with a bounded backup count; a bounded in-memory window backs Query and
// Stats for the current session.
type JSONLStore struct {
	mu     sync.Mutex
	out    *lumberjack.Logger
	maxMem int

	records []*api.AuditRecord
}

// JSONLOptions tunes rotation. Zero values take the defaults below.
type JSONLOptions struct {
	MaxSizeMB  int // rotate after this many megabytes (default 10)
	MaxBackups int // rotated files kept (default 5)
}

// NewJSONLStore creates a JSONL audit store writing to the given file path.
func NewJSONLStore(path string, opts JSONLOptions) *JSONLStore {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	return &JSONLStore{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		},
		maxMem: 10000,
	}
}

func (s *JSONLStore) Write(_ context.Context, record *api.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit record: %w", err)
	}

	if len(s.records) >= s.maxMem {
		s.records = s.records[1:]
	}
	s.records = append(s.records, record)
	return nil
}

func (s *JSONLStore) Query(_ context.Context, filter api.QueryFilter) ([]*api.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []*api.AuditRecord
	for _, r := range s.records {
		if matchesFilter(r, filter) {
			results = append(results, r)
		}
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(results) {
			return nil, nil
		}
		results = results[filter.Offset:]
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *JSONLStore) Stats(_ context.Context) (*api.AuditStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &api.AuditStats{
		ByLayer: make(map[string]int),
		ByTool:  make(map[string]int),
	}
	for _, r := range s.records {
		stats.Total++
		if r.Approved {
			stats.Approved++
		} else {
			stats.Denied++
		}
		if r.Layer != "" {
			stats.ByLayer[r.Layer]++
		}
		if r.Tool != "" {
			stats.ByTool[r.Tool]++
		}
	}
	return stats, nil
}

func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}
