package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/electcore/electcore/internal/shared"
)

// LedgerRepository is the persistence port of the assignment ledger.
type LedgerRepository interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	RolesByIDs(ctx context.Context, ids []int64) ([]Role, error)
	AppendAssignment(ctx context.Context, entry Assignment) (int64, error)
	AssignmentHistory(ctx context.Context, userID int64) ([]Assignment, error)
}

// Ledger is the append-only record of role grants and revocations.
type Ledger struct {
	repo LedgerRepository
	now  func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger(repo LedgerRepository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// WithClock overrides the ledger clock.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Grant appends a grant entry and returns its id.
func (l *Ledger) Grant(ctx context.Context, roleID, userID, by int64) (int64, error) {
	if userID == 0 {
		return 0, fmt.Errorf("rbac: grant: %w: user required", shared.ErrValidation)
	}
	if _, err := l.repo.GetRole(ctx, roleID); err != nil {
		return 0, err
	}
	return l.repo.AppendAssignment(ctx, Assignment{RoleID: roleID, UserID: userID, Kind: EntryGrant, At: l.now(), By: by})
}

// Revoke appends a revoke entry. History is never deleted.
func (l *Ledger) Revoke(ctx context.Context, roleID, userID, by int64) (int64, error) {
	history, err := l.repo.AssignmentHistory(ctx, userID)
	if err != nil {
		return 0, err
	}
	held := false
	for _, id := range Fold(history) {
		if id == roleID {
			held = true
			break
		}
	}
	if !held {
		return 0, fmt.Errorf("rbac: revoke: %w: role %d not held by user %d", shared.ErrConflict, roleID, userID)
	}
	return l.repo.AppendAssignment(ctx, Assignment{RoleID: roleID, UserID: userID, Kind: EntryRevoke, At: l.now(), By: by})
}

// History returns the raw ledger entries for a user in append order.
func (l *Ledger) History(ctx context.Context, userID int64) ([]Assignment, error) {
	return l.repo.AssignmentHistory(ctx, userID)
}

// CurrentRoles folds the user's history into the set of roles held now.
func (l *Ledger) CurrentRoles(ctx context.Context, userID int64) ([]Role, error) {
	history, err := l.repo.AssignmentHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := Fold(history)
	if len(ids) == 0 {
		return nil, nil
	}
	return l.repo.RolesByIDs(ctx, ids)
}

// HasRoleKind reports whether the user currently holds any role of the given kind.
func (l *Ledger) HasRoleKind(ctx context.Context, userID int64, kinds ...RoleKind) (bool, error) {
	roles, err := l.CurrentRoles(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		for _, kind := range kinds {
			if role.Kind == kind {
				return true, nil
			}
		}
	}
	return false, nil
}

// Fold replays ledger entries in append order and returns the held role ids, ascending.
// A revoke removes the role regardless of how many grants preceded it.
func Fold(entries []Assignment) []int64 {
	ordered := make([]Assignment, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	held := make(map[int64]struct{})
	for _, e := range ordered {
		switch e.Kind {
		case EntryGrant:
			held[e.RoleID] = struct{}{}
		case EntryRevoke:
			delete(held, e.RoleID)
		}
	}
	ids := make([]int64, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
