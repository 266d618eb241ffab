package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/shared"
)

func newTestService(t *testing.T) (*Service, *memoryRepo, *recordingAudit) {
	t.Helper()
	repo := newMemoryRepo()
	audit := &recordingAudit{}
	return NewService(repo, NewLedger(repo), audit, nil), repo, audit
}

func TestCreateRoleRequiresSystemOverride(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, identity.Principal{ID: 1}, RoleInput{Name: "Auditor"})
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, repo.roles)

	role, err := svc.CreateRole(ctx, identity.Principal{ID: 1, Superuser: true}, RoleInput{Name: "Auditor"})
	require.NoError(t, err)
	assert.Equal(t, RoleCustom, role.Kind)
}

func TestCreateRoleRejectsDuplicateNameIgnoringCase(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	admin := identity.Principal{ID: 1, Staff: true}

	_, err := svc.CreateRole(ctx, admin, RoleInput{Name: "Observer"})
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, admin, RoleInput{Name: "OBSERVER"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateRoleValidatesKind(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateRole(context.Background(), identity.Principal{ID: 1, Staff: true}, RoleInput{Name: "X", Kind: "emperor"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAssignRoleRequiresAdminOrOfficer(t *testing.T) {
	svc, repo, audit := newTestService(t)
	ctx := context.Background()
	officer, _ := repo.CreateRole(ctx, Role{Name: "Officer", Kind: RoleOfficer})
	voter, _ := repo.CreateRole(ctx, Role{Name: "Voter", Kind: RoleVoter})

	// Staff flag alone does not make someone an officer.
	_, err := svc.AssignRole(ctx, identity.Principal{ID: 1, Staff: true}, voter.ID, 9)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = repo.AppendAssignment(ctx, Assignment{RoleID: officer.ID, UserID: 1, Kind: EntryGrant})
	require.NoError(t, err)

	id, err := svc.AssignRole(ctx, identity.Principal{ID: 1}, voter.ID, 9)
	require.NoError(t, err)
	assert.NotZero(t, id)

	roles, err := svc.ledger.CurrentRoles(ctx, 9)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, voter.ID, roles[0].ID)

	require.Len(t, audit.events, 2)
	assert.Equal(t, shared.OutcomeDenied, audit.events[0].Outcome)
	assert.Equal(t, shared.OutcomeAllowed, audit.events[1].Outcome)
}

func TestSavePolicyValidatesRules(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	admin := identity.Principal{ID: 1, Superuser: true}

	_, err := svc.SavePolicy(ctx, admin, AccessPolicy{
		Name:         "bad",
		ResourceType: shared.ResourceElection,
		Rules:        map[string]Rule{"district": {Equals: "north", MinLabel: "Internal"}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	saved, err := svc.SavePolicy(ctx, admin, AccessPolicy{
		Name:         "district-match",
		ResourceType: shared.ResourceElection,
		Rules:        map[string]Rule{"district": {Equals: "north"}},
	})
	require.NoError(t, err)
	assert.NotZero(t, saved.ID)

	policies, err := svc.PoliciesFor(ctx, shared.ResourceElection)
	require.NoError(t, err)
	require.Len(t, policies, 1)

	none, err := svc.PoliciesFor(ctx, shared.ResourceAudit)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteReferencedRoleConflicts(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	admin := identity.Principal{ID: 1, Superuser: true}
	role, _ := repo.CreateRole(ctx, Role{Name: "Voter", Kind: RoleVoter})
	_, _ = repo.AppendAssignment(ctx, Assignment{RoleID: role.ID, UserID: 3, Kind: EntryGrant})

	err := svc.DeleteRole(ctx, admin, role.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestRevokeRoleRequiresAdminKindOrOverride(t *testing.T) {
	svc, repo, audit := newTestService(t)
	ctx := context.Background()
	admin, _ := repo.CreateRole(ctx, Role{Name: "Admin", Kind: RoleAdmin})
	officer, _ := repo.CreateRole(ctx, Role{Name: "Officer", Kind: RoleOfficer})
	voter, _ := repo.CreateRole(ctx, Role{Name: "Voter", Kind: RoleVoter})
	_, _ = repo.AppendAssignment(ctx, Assignment{RoleID: admin.ID, UserID: 1, Kind: EntryGrant})
	_, _ = repo.AppendAssignment(ctx, Assignment{RoleID: officer.ID, UserID: 2, Kind: EntryGrant})
	for _, user := range []int64{7, 8} {
		_, _ = repo.AppendAssignment(ctx, Assignment{RoleID: voter.ID, UserID: user, Kind: EntryGrant})
	}

	// Officers may grant but not revoke.
	_, err := svc.RevokeRole(ctx, identity.Principal{ID: 2}, voter.ID, 7)
	require.ErrorIs(t, err, shared.ErrForbidden)
	assert.Equal(t, shared.OutcomeDenied, audit.events[len(audit.events)-1].Outcome)

	id, err := svc.RevokeRole(ctx, identity.Principal{ID: 1}, voter.ID, 7)
	require.NoError(t, err)
	assert.NotZero(t, id)
	roles, err := svc.ledger.CurrentRoles(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, roles)

	_, err = svc.RevokeRole(ctx, identity.Principal{ID: 99, Superuser: true}, voter.ID, 8)
	require.NoError(t, err)
	held, err := svc.HasRoleKind(ctx, 8, RoleVoter)
	require.NoError(t, err)
	assert.False(t, held)

	_, err = svc.RevokeRole(ctx, identity.Principal{ID: 1}, voter.ID, 8)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, shared.OutcomeAllowed, audit.events[len(audit.events)-1].Outcome)
}

func TestUpdateRoleAndPermissionsRequireOverride(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	role, _ := repo.CreateRole(ctx, Role{Name: "Observer", Kind: RoleCustom})
	perm, _ := repo.EnsurePermission(ctx, "results.view", "")

	_, err := svc.UpdateRole(ctx, identity.Principal{ID: 1}, role.ID, RoleInput{Name: "Watcher"})
	require.ErrorIs(t, err, shared.ErrForbidden)
	err = svc.SetRolePermissions(ctx, identity.Principal{ID: 1}, role.ID, []int64{perm.ID})
	require.ErrorIs(t, err, shared.ErrForbidden)

	root := identity.Principal{ID: 1, Superuser: true}
	updated, err := svc.UpdateRole(ctx, root, role.ID, RoleInput{Name: "Watcher", Kind: "officer"})
	require.NoError(t, err)
	assert.Equal(t, "Watcher", updated.Name)
	assert.Equal(t, RoleOfficer, updated.Kind)

	_, err = svc.UpdateRole(ctx, root, 404, RoleInput{Name: "Ghost"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.NoError(t, svc.SetRolePermissions(ctx, root, role.ID, []int64{perm.ID, perm.ID}))
	names, err := svc.PermissionsForRoles(ctx, []int64{role.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"results.view"}, names)

	err = svc.SetRolePermissions(ctx, root, 404, []int64{perm.ID})
	require.ErrorIs(t, err, shared.ErrNotFound)
}
