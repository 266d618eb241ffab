package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/policy"
	"github.com/electcore/electcore/internal/shared"
)

// TrailFilters narrows the trail. Zero values mean no filter.
type TrailFilters struct {
	From     time.Time
	To       time.Time
	UserID   int64
	Page     int
	PageSize int
}

// TrailRow is one entry of the combined role-change and ledger history.
type TrailRow struct {
	At       time.Time `json:"at"`
	ActorID  int64     `json:"actor_id,omitempty"`
	Action   string    `json:"action"`
	Entity   string    `json:"entity"`
	EntityID int64     `json:"entity_id"`
	UserID   int64     `json:"user_id"`
	RoleID   int64     `json:"role_id"`
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result membungkus hasil trail dengan informasi paging.
type Result struct {
	Rows   []TrailRow `json:"rows"`
	Paging PagingInfo `json:"paging"`
}

// TrailQuery is the repository-level query; Limit already includes the look-ahead row.
type TrailQuery struct {
	From   time.Time
	To     time.Time
	UserID int64
	Limit  int
	Offset int
}

// TrailRepository reads the combined history.
type TrailRepository interface {
	Trail(ctx context.Context, q TrailQuery) ([]TrailRow, error)
}

// Gate evaluates access decisions.
type Gate interface {
	Evaluate(ctx context.Context, principal identity.Principal, action string, resource policy.Resource, attrs map[string]string) (policy.Decision, error)
}

// Service lists the audit trail for principals holding audit.view.
type Service struct {
	repo TrailRepository
	gate Gate
}

// NewService constructs a Service.
func NewService(repo TrailRepository, gate Gate) *Service {
	return &Service{repo: repo, gate: gate}
}

// Trail returns role-change requests, decisions and ledger entries, newest first.
func (s *Service) Trail(ctx context.Context, actor identity.Principal, filters TrailFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	decision, err := s.gate.Evaluate(ctx, actor, shared.PermAuditView, policy.Resource{Type: shared.ResourceAudit}, nil)
	if err != nil {
		return Result{}, err
	}
	if err := decision.Err(); err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Trail(ctx, TrailQuery{
		From:   filters.From,
		To:     filters.To,
		UserID: filters.UserID,
		Limit:  pageSize + 1,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}
