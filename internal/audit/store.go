// Package audit provides the append-only decision log shared by all layers.
package audit

import (
	"context"

	"github.com/toolgate-dev/toolgate/api"
)

// Store defines the interface for audit record persistence and retrieval.
// Records are append-only and never edited retroactively.
type Store interface {
	// Write appends an audit record.
	Write(ctx context.Context, record *api.AuditRecord) error

	// Query retrieves audit records matching the filter.
	Query(ctx context.Context, filter api.QueryFilter) ([]*api.AuditRecord, error)

	// Stats returns aggregate statistics.
	Stats(ctx context.Context) (*api.AuditStats, error)

	// Close shuts down the store and flushes any buffers.
	Close() error
}

// NopStore discards all records. It substitutes for a real backend when
// auditing is unavailable so call sites never branch on availability.
type NopStore struct{}

func (NopStore) Write(context.Context, *api.AuditRecord) error { return nil }

func (NopStore) Query(context.Context, api.QueryFilter) ([]*api.AuditRecord, error) {
	return nil, nil
}

func (NopStore) Stats(context.Context) (*api.AuditStats, error) {
	return &api.AuditStats{ByLayer: map[string]int{}, ByTool: map[string]int{}}, nil
}

func (NopStore) Close() error { return nil }

func matchesFilter(r *api.AuditRecord, f api.QueryFilter) bool {
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Timestamp.After(f.Until) {
		return false
	}
	if f.Tool != "" && r.Tool != f.Tool {
		return false
	}
	if f.Layer != "" && r.Layer != f.Layer {
		return false
	}
	if f.DeniedOnly && r.Approved {
		return false
	}
	return true
}
