package shared

import (
	"strconv"
	"time"
)

// Audit outcomes.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeFailed  = "failed"
)

// AuditEvent is the record handed to the audit collaborator.
type AuditEvent struct {
	ID          string         `json:"id"`
	PrincipalID int64          `json:"principal_id"`
	Action      string         `json:"action"`
	Resource    string         `json:"resource"`
	Outcome     string         `json:"outcome"`
	Reason      string         `json:"reason,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	At          time.Time      `json:"at"`
}

// ResourceRef formats a resource reference such as "election:12".
func ResourceRef(kind string, id int64) string {
	return kind + ":" + strconv.FormatInt(id, 10)
}
