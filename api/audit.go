package api

import "time"

// AuditRecord is one append-only entry in the decision log. Records carry a
// call digest rather than raw arguments so the log never leaks secrets or
// denylist contents.
type AuditRecord struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	CallDigest string        `json:"call_digest,omitempty"`
	Tool       string        `json:"tool,omitempty"`
	Agent      string        `json:"agent,omitempty"`
	Class      ResourceClass `json:"class,omitempty"`
	Layer      string        `json:"layer"`
	Approved   bool          `json:"approved"`
	Reason     string        `json:"reason,omitempty"`
	Threat     string        `json:"threat,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// QueryFilter selects audit records.
type QueryFilter struct {
	Since      time.Time
	Until      time.Time
	Tool       string
	Layer      string
	DeniedOnly bool
	Limit      int
	Offset     int
}

// AuditStats aggregates decision counts.
type AuditStats struct {
	Total    int            `json:"total"`
	Approved int            `json:"approved"`
	Denied   int            `json:"denied"`
	ByLayer  map[string]int `json:"by_layer"`
	ByTool   map[string]int `json:"by_tool"`
}
