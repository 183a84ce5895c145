package config

const DefaultBreakerThreshold = 5

// DefaultAuditLogPath returns the default audit log location.
func DefaultAuditLogPath() string {
	return "~/.toolgate/audit.jsonl"
}
