package app

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/electcore/electcore/internal/audit"
	"github.com/electcore/electcore/internal/elections"
	"github.com/electcore/electcore/internal/identity"
	"github.com/electcore/electcore/internal/observability"
	"github.com/electcore/electcore/internal/policy"
	"github.com/electcore/electcore/internal/rbac"
	"github.com/electcore/electcore/internal/rolechange"
	"github.com/electcore/electcore/internal/shared"
	"github.com/electcore/electcore/internal/voting"
)

const defaultTallyTTL = 10 * time.Minute

// CoreParams groups the infrastructure the domain services are built on.
type CoreParams struct {
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Audit   *audit.QueueEmitter
	Metrics *observability.Metrics
	Config  *Config
	Logger  *slog.Logger
}

// Core bundles the wired domain services shared by the binaries.
type Core struct {
	Directory   *identity.Directory
	Roles       *rbac.Service
	Ledger      *rbac.Ledger
	Evaluator   *policy.Evaluator
	Elections   *elections.Repository
	RoleChanges *rolechange.Service
	Voting      *voting.Service
	Trail       *audit.Service
}

// NewCore wires repositories and services over a single pool.
func NewCore(p CoreParams) *Core {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rbacRepo := rbac.NewRepository(p.Pool)
	ledger := rbac.NewLedger(rbacRepo)
	roles := rbac.NewService(rbacRepo, ledger, p.Audit, logger)
	electionRepo := elections.NewRepository(p.Pool)

	scoped := shared.TimeScopedActions()
	if p.Config != nil && len(p.Config.TimeScopedActions) > 0 {
		scoped = p.Config.TimeScopedActions
	}
	evaluator := policy.NewEvaluator(ledger, roles, roles, electionRepo,
		policy.WithTimeScopedActions(scoped...),
		policy.WithObserver(p.Metrics),
	)

	var tallyCache *voting.TallyCache
	if p.Redis != nil {
		ttl := defaultTallyTTL
		if p.Config != nil && p.Config.TallyCacheTTL > 0 {
			ttl = p.Config.TallyCacheTTL
		}
		tallyCache = voting.NewTallyCache(p.Redis, ttl, logger)
	}
	votingService := voting.NewService(voting.NewRepository(p.Pool), electionRepo, evaluator, voting.Config{
		Cache:    tallyCache,
		Audit:    p.Audit,
		Recorder: p.Metrics,
		Logger:   logger,
	})

	return &Core{
		Directory:   identity.NewDirectory(p.Pool),
		Roles:       roles,
		Ledger:      ledger,
		Evaluator:   evaluator,
		Elections:   electionRepo,
		RoleChanges: rolechange.NewService(rolechange.NewRepository(p.Pool), roles, p.Audit, logger),
		Voting:      votingService,
		Trail:       audit.NewService(audit.NewRepository(p.Pool), evaluator),
	}
}
