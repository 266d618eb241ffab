package rolechange

import (
	"fmt"
	"strings"
	"time"

	"github.com/electcore/electcore/internal/shared"
)

// Status is the lifecycle state of a request.
type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Action is an officer's decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction validates a submitted decision.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject:
		return a, nil
	default:
		return "", fmt.Errorf("rolechange: %w: unknown action %q", shared.ErrValidation, s)
	}
}

// Target returns the terminal status the action moves a request to.
func (a Action) Target() Status {
	if a == ActionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// Request asks for a role on behalf of its submitter.
type Request struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	RoleID      int64      `json:"role_id"`
	Reason      string     `json:"reason"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	ProcessedBy *int64     `json:"processed_by,omitempty"`
}

// Transition describes one terminal move of a request.
type Transition struct {
	RequestID int64
	To        Status
	By        int64
	At        time.Time
}
