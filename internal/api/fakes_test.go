package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/electcore/electcore/internal/audit"
	"github.com/electcore/electcore/internal/elections"
	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/policy"
	"github.com/electcore/electcore/internal/rbac"
	"github.com/electcore/electcore/internal/rolechange"
	"github.com/electcore/electcore/internal/shared"
	"github.com/electcore/electcore/internal/voting"
)

type fakeEvaluator struct {
	allowed map[string]bool
	err     error
	calls   []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ identity.Principal, action string, _ policy.Resource, _ map[string]string) (policy.Decision, error) {
	f.calls = append(f.calls, action)
	if f.err != nil {
		return policy.Decision{}, f.err
	}
	if f.allowed[action] {
		return policy.Decision{Allowed: true, Stage: policy.StageRoles}, nil
	}
	return policy.Decision{Stage: policy.StageRoles, Reason: "no role grants " + action}, nil
}

type fakeRoles struct {
	roles    []rbac.Role
	policies []rbac.AccessPolicy
	saved    rbac.AccessPolicy
	perms    []int64
	deleted  int64
	revoked  [2]int64
	err      error
}

func (f *fakeRoles) ListRoles(context.Context) ([]rbac.Role, error) { return f.roles, f.err }

func (f *fakeRoles) GetRole(_ context.Context, id int64) (rbac.Role, error) {
	for _, r := range f.roles {
		if r.ID == id {
			return r, f.err
		}
	}
	return rbac.Role{}, shared.ErrNotFound
}

func (f *fakeRoles) UpdateRole(_ context.Context, actor identity.Principal, id int64, in rbac.RoleInput) (rbac.Role, error) {
	if !actor.SystemOverride() {
		return rbac.Role{}, shared.ErrForbidden
	}
	if _, err := f.GetRole(context.Background(), id); err != nil {
		return rbac.Role{}, err
	}
	return rbac.Role{ID: id, Name: in.Name, Kind: rbac.RoleKind(in.Kind)}, f.err
}

func (f *fakeRoles) DeleteRole(_ context.Context, actor identity.Principal, id int64) error {
	if !actor.SystemOverride() {
		return shared.ErrForbidden
	}
	if f.err != nil {
		return f.err
	}
	f.deleted = id
	return nil
}

func (f *fakeRoles) SetRolePermissions(_ context.Context, actor identity.Principal, _ int64, ids []int64) error {
	if !actor.SystemOverride() {
		return shared.ErrForbidden
	}
	f.perms = ids
	return f.err
}

func (f *fakeRoles) RevokeRole(_ context.Context, _ identity.Principal, roleID, userID int64) (int64, error) {
	f.revoked = [2]int64{roleID, userID}
	return 78, f.err
}

func (f *fakeRoles) CreateRole(_ context.Context, actor identity.Principal, in rbac.RoleInput) (rbac.Role, error) {
	if !actor.SystemOverride() {
		return rbac.Role{}, shared.ErrForbidden
	}
	return rbac.Role{ID: 9, Name: in.Name, Kind: rbac.RoleKind(in.Kind)}, f.err
}

func (f *fakeRoles) ListPermissions(context.Context) ([]rbac.Permission, error) { return nil, f.err }

func (f *fakeRoles) ListPolicies(_ context.Context, resourceType string) ([]rbac.AccessPolicy, error) {
	var out []rbac.AccessPolicy
	for _, p := range f.policies {
		if resourceType == "" || p.ResourceType == resourceType {
			out = append(out, p)
		}
	}
	return out, f.err
}

func (f *fakeRoles) SavePolicy(_ context.Context, _ identity.Principal, p rbac.AccessPolicy) (rbac.AccessPolicy, error) {
	p.ID = 1
	f.saved = p
	return p, f.err
}

func (f *fakeRoles) ListLabels(context.Context) ([]rbac.SecurityLabel, error) { return nil, f.err }

func (f *fakeRoles) AssignRole(context.Context, identity.Principal, int64, int64) (int64, error) {
	return 77, f.err
}

type fakeRoleChanges struct {
	decided rolechange.Action
	page    shared.Pagination
	err     error
}

func (f *fakeRoleChanges) Submit(_ context.Context, p identity.Principal, roleID int64, reason string) (rolechange.Request, error) {
	return rolechange.Request{ID: 1, UserID: p.ID, RoleID: roleID, Reason: reason, Status: rolechange.StatusRequested}, f.err
}

func (f *fakeRoleChanges) Decide(_ context.Context, id int64, _ identity.Principal, action rolechange.Action) (rolechange.Request, error) {
	f.decided = action
	if f.err != nil {
		return rolechange.Request{}, f.err
	}
	return rolechange.Request{ID: id, Status: action.Target()}, nil
}

func (f *fakeRoleChanges) Pending(_ context.Context, _ identity.Principal, page shared.Pagination) ([]rolechange.Request, shared.Pagination, error) {
	f.page = page
	return nil, shared.NewPagination(page.Page, page.PerPage, 0), f.err
}

type fakeVoting struct {
	castErr error
	rows    []voting.TallyRow
	gotVote [2]int64
}

func (f *fakeVoting) Cast(_ context.Context, _ identity.Principal, electionID, candidateID int64) (int64, error) {
	f.gotVote = [2]int64{electionID, candidateID}
	if f.castErr != nil {
		return 0, f.castErr
	}
	return 501, nil
}

func (f *fakeVoting) ResultsFor(context.Context, identity.Principal, int64) ([]voting.TallyRow, error) {
	return f.rows, nil
}

type fakeElections struct {
	list       []elections.Election
	candidates map[int64][]elections.Candidate
}

func (f fakeElections) Get(_ context.Context, id int64) (elections.Election, error) {
	for _, e := range f.list {
		if e.ID == id {
			return e, nil
		}
	}
	return elections.Election{}, shared.ErrNotFound
}

func (f fakeElections) ListActive(context.Context, time.Time) ([]elections.Election, error) {
	return f.list, nil
}

func (f fakeElections) Candidates(_ context.Context, electionID int64) ([]elections.Candidate, error) {
	return f.candidates[electionID], nil
}

type fakeTrail struct{ got audit.TrailFilters }

func (f *fakeTrail) Trail(_ context.Context, _ identity.Principal, filters audit.TrailFilters) (audit.Result, error) {
	f.got = filters
	return audit.Result{}, nil
}

type fakeDirectory struct {
	principals map[int64]identity.Principal
	err        error
}

func (f fakeDirectory) Principal(_ context.Context, id int64) (identity.Principal, error) {
	if f.err != nil {
		return identity.Principal{}, f.err
	}
	p, ok := f.principals[id]
	if !ok {
		return identity.Principal{}, shared.ErrNotFound
	}
	return p, nil
}

type testDeps struct {
	eval        *fakeEvaluator
	roles       *fakeRoles
	roleChanges *fakeRoleChanges
	voting      *fakeVoting
	trail       *fakeTrail
}

func newTestRouter(principal identity.Principal) (http.Handler, *testDeps) {
	d := &testDeps{
		eval:        &fakeEvaluator{allowed: map[string]bool{}},
		roles:       &fakeRoles{},
		roleChanges: &fakeRoleChanges{},
		voting:      &fakeVoting{},
		trail:       &fakeTrail{},
	}
	ballots := fakeElections{
		list: []elections.Election{{ID: 3, Name: "General"}, {ID: 4, Name: "Runoff"}},
		candidates: map[int64][]elections.Candidate{
			3: {{ID: 11, ElectionID: 3, Name: "Ada"}, {ID: 12, ElectionID: 3, Name: "Grace"}},
		},
	}
	h := NewHandler(Deps{
		Evaluator:   d.eval,
		Roles:       d.roles,
		RoleChanges: d.roleChanges,
		Voting:      d.voting,
		Elections:   ballots,
		Trail:       d.trail,
	})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(identity.ContextWithPrincipal(req.Context(), principal)))
		})
	})
	h.MountRoutes(r)
	return r, d
}
