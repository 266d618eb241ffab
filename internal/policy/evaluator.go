// Package policy decides whether a principal may perform an action on a resource.
//
// Evaluation runs in a fixed order and the first failing stage denies:
// the SystemOverride capability, role permissions, attribute policies bound to
// the resource type, and finally the election time window for time-scoped actions.
// The override skips the role and attribute stages only.
package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/electcore/electcore/internal/elections"
	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/rbac"
	"github.com/electcore/electcore/internal/shared"
)

// Stage names the evaluation step that produced a decision.
type Stage string

const (
	StageOverride   Stage = "override"
	StageRoles      Stage = "rbac"
	StageAttributes Stage = "abac"
	StageWindow     Stage = "rubac"
)

// ReasonOutsideWindow is the deny reason of the time-window stage.
const ReasonOutsideWindow = "outside active window"

// Decision is the outcome of an evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Stage   Stage  `json:"stage"`
	Reason  string `json:"reason,omitempty"`
}

// Err converts a deny into the error taxonomy. Allowed decisions return nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Stage == StageWindow {
		return fmt.Errorf("%w: %s", shared.ErrNotActive, d.Reason)
	}
	return fmt.Errorf("%w: %s", shared.ErrForbidden, d.Reason)
}

// Resource identifies what the action targets. ElectionID links the resource to
// an election window; for election resources it defaults to ID.
type Resource struct {
	Type       string `json:"type"`
	ID         int64  `json:"id,omitempty"`
	ElectionID int64  `json:"election_id,omitempty"`
}

func (r Resource) electionID() int64 {
	if r.ElectionID != 0 {
		return r.ElectionID
	}
	if r.Type == shared.ResourceElection {
		return r.ID
	}
	return 0
}

// RoleResolver folds the assignment ledger into current roles.
type RoleResolver interface {
	CurrentRoles(ctx context.Context, userID int64) ([]rbac.Role, error)
}

// PermissionSource resolves folded permission names granted by roles.
type PermissionSource interface {
	PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]string, error)
}

// PolicySource supplies attribute policies and the security label scale.
type PolicySource interface {
	PoliciesFor(ctx context.Context, resourceType string) ([]rbac.AccessPolicy, error)
	ListLabels(ctx context.Context) ([]rbac.SecurityLabel, error)
}

// WindowSource supplies election windows.
type WindowSource interface {
	Window(ctx context.Context, electionID int64) (elections.Window, error)
}

// DecisionObserver is notified of every decision.
type DecisionObserver interface {
	ObserveDecision(action string, stage string, allowed bool)
}

// Evaluator composes the four stages. It performs reads only.
type Evaluator struct {
	roles       RoleResolver
	permissions PermissionSource
	policies    PolicySource
	windows     WindowSource
	timeScoped  map[string]struct{}
	observer    DecisionObserver
	now         func() time.Time
}

// Option customises an Evaluator.
type Option func(*Evaluator)

// WithTimeScopedActions replaces the set of actions gated by election windows.
func WithTimeScopedActions(actions ...string) Option {
	return func(e *Evaluator) {
		e.timeScoped = make(map[string]struct{}, len(actions))
		for _, a := range actions {
			if a = rbac.NormalizeName(a); a != "" {
				e.timeScoped[a] = struct{}{}
			}
		}
	}
}

// WithClock overrides the evaluation clock.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

// WithObserver registers a decision observer.
func WithObserver(o DecisionObserver) Option {
	return func(e *Evaluator) { e.observer = o }
}

// NewEvaluator constructs an Evaluator. vote.cast is time-scoped unless overridden.
func NewEvaluator(roles RoleResolver, permissions PermissionSource, policies PolicySource, windows WindowSource, opts ...Option) *Evaluator {
	e := &Evaluator{
		roles:       roles,
		permissions: permissions,
		policies:    policies,
		windows:     windows,
		now:         time.Now,
	}
	WithTimeScopedActions(shared.TimeScopedActions()...)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate decides whether principal may perform action on resource given the
// request attributes. Store failures are returned as errors and never allow.
func (e *Evaluator) Evaluate(ctx context.Context, principal identity.Principal, action string, resource Resource, attrs map[string]string) (Decision, error) {
	action = rbac.NormalizeName(action)
	decision, err := e.evaluate(ctx, principal, action, resource, attrs)
	if err != nil {
		return Decision{}, err
	}
	if e.observer != nil {
		e.observer.ObserveDecision(action, string(decision.Stage), decision.Allowed)
	}
	return decision, nil
}

func (e *Evaluator) evaluate(ctx context.Context, principal identity.Principal, action string, resource Resource, attrs map[string]string) (Decision, error) {
	if action == "" {
		return deny(StageRoles, "action required"), nil
	}
	stage := StageOverride
	if !principal.SystemOverride() {
		if d, err := e.checkRoles(ctx, principal, action); err != nil || !d.Allowed {
			return d, err
		}
		if d, err := e.checkAttributes(ctx, principal, resource, attrs); err != nil || !d.Allowed {
			return d, err
		}
		stage = StageAttributes
	}
	if _, scoped := e.timeScoped[action]; scoped {
		return e.checkWindow(ctx, resource)
	}
	return Decision{Allowed: true, Stage: stage}, nil
}

func (e *Evaluator) checkRoles(ctx context.Context, principal identity.Principal, action string) (Decision, error) {
	if principal.ID == 0 {
		return deny(StageRoles, "anonymous principal"), nil
	}
	roles, err := e.roles.CurrentRoles(ctx, principal.ID)
	if err != nil {
		return Decision{}, shared.StoreFailure("policy: resolve roles", err)
	}
	if len(roles) == 0 {
		return deny(StageRoles, "no roles held"), nil
	}
	ids := make([]int64, 0, len(roles))
	for _, r := range roles {
		ids = append(ids, r.ID)
	}
	granted, err := e.permissions.PermissionsForRoles(ctx, ids)
	if err != nil {
		return Decision{}, shared.StoreFailure("policy: resolve permissions", err)
	}
	for _, p := range granted {
		if rbac.NormalizeName(p) == action {
			return Decision{Allowed: true, Stage: StageRoles}, nil
		}
	}
	return deny(StageRoles, "missing permission "+action), nil
}

func (e *Evaluator) checkAttributes(ctx context.Context, principal identity.Principal, resource Resource, attrs map[string]string) (Decision, error) {
	if resource.Type == "" {
		return Decision{Allowed: true, Stage: StageAttributes}, nil
	}
	policies, err := e.policies.PoliciesFor(ctx, resource.Type)
	if err != nil {
		return Decision{}, shared.StoreFailure("policy: load policies", err)
	}
	if len(policies) == 0 {
		return Decision{Allowed: true, Stage: StageAttributes}, nil
	}
	merged := mergeAttributes(attrs, principal.Attributes())
	var ranks map[string]int
	for _, p := range policies {
		for key, rule := range p.Rules {
			if rule.MinLabel != "" && ranks == nil {
				if ranks, err = e.labelRanks(ctx); err != nil {
					return Decision{}, err
				}
			}
			if !matchRule(rule, merged[key], ranks) {
				return deny(StageAttributes, fmt.Sprintf("policy %s: attribute %s does not match", p.Name, key)), nil
			}
		}
	}
	return Decision{Allowed: true, Stage: StageAttributes}, nil
}

func (e *Evaluator) labelRanks(ctx context.Context) (map[string]int, error) {
	labels, err := e.policies.ListLabels(ctx)
	if err != nil {
		return nil, shared.StoreFailure("policy: load labels", err)
	}
	ranks := make(map[string]int, len(labels))
	for _, l := range labels {
		ranks[strings.ToLower(l.Name)] = l.Rank
	}
	return ranks, nil
}

func (e *Evaluator) checkWindow(ctx context.Context, resource Resource) (Decision, error) {
	electionID := resource.electionID()
	if electionID == 0 {
		return deny(StageWindow, ReasonOutsideWindow), nil
	}
	window, err := e.windows.Window(ctx, electionID)
	if err != nil {
		return Decision{}, err
	}
	if !window.Contains(e.now()) {
		return deny(StageWindow, ReasonOutsideWindow), nil
	}
	return Decision{Allowed: true, Stage: StageWindow}, nil
}

func deny(stage Stage, reason string) Decision {
	return Decision{Allowed: false, Stage: stage, Reason: reason}
}

// mergeAttributes overlays principal attributes on request attributes so a
// request cannot claim a clearance or district the principal does not hold.
func mergeAttributes(request, principal map[string]string) map[string]string {
	out := make(map[string]string, len(request)+len(principal))
	for k, v := range request {
		out[k] = v
	}
	for k, v := range principal {
		out[k] = v
	}
	return out
}
