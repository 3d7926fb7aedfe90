package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/orgboard/orgboard/internal/config"
	"github.com/orgboard/orgboard/internal/githubapi"
	"github.com/orgboard/orgboard/internal/health"
	"github.com/orgboard/orgboard/internal/metrics"
	"github.com/orgboard/orgboard/internal/session"
	"github.com/orgboard/orgboard/internal/store"
	"go.uber.org/zap"
)

type dashboardStore interface {
	UpsertUserOnSignIn(ctx context.Context, login, name, email, avatarURL string, organizations []string) (*store.User, error)
	GetUser(ctx context.Context, id uint) (*store.User, error)
	ListUserOrganizations(ctx context.Context, userID uint) ([]store.Organization, error)
	GetOrganization(ctx context.Context, id uint) (*store.Organization, error)
	SetUserOrganization(ctx context.Context, userID, orgID uint) (*store.Organization, error)
	TimeEntriesSince(ctx context.Context, userID uint, since time.Time) ([]store.TimeEntry, error)
	SeedDemoActivity(ctx context.Context, userID uint, repo string) error
	Ping(ctx context.Context) error
}

type identityProvider interface {
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (string, error)
	LoadClaims(ctx context.Context, accessToken string) (githubapi.IdentityClaims, error)
}

// Gateway is the token-scoped source-control client consumed by request
// handlers.
type Gateway interface {
	ListOrgRepositories(ctx context.Context, org string) ([]githubapi.Repository, error)
	ListOrgMembers(ctx context.Context, org string) ([]githubapi.Member, error)
	ListCommits(ctx context.Context, org, repo string, opts githubapi.ListCommitsOptions) ([]githubapi.CommitRef, error)
	GetCommitStats(ctx context.Context, org, repo, sha string) (githubapi.CommitStats, error)
	GetUser(ctx context.Context, username string) (githubapi.UserProfile, error)
}

// GatewayFactory builds a gateway bound to one user's access token.
type GatewayFactory func(accessToken string) (Gateway, error)

// Dependencies carries the collaborators wired into a Runtime at process
// start. Every field is explicit so tests can substitute fakes.
type Dependencies struct {
	Store      dashboardStore
	Sessions   session.Store
	Identity   identityProvider
	GatewayFor GatewayFactory
	Metrics    *metrics.Metrics
	// SessionsPing verifies the session backend, nil when the backend has
	// no liveness probe (in-memory store).
	SessionsPing func(ctx context.Context) error
}

// Runtime is the application orchestrator: it owns the wired collaborators
// and serves the HTTP surface.
type Runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      dashboardStore
	sessions   session.Store
	identity   identityProvider
	gatewayFor GatewayFactory
	metrics    *metrics.Metrics
	evaluator  *health.StatusEvaluator

	sessionsPing func(ctx context.Context) error

	mu            sync.RWMutex
	githubHealthy bool

	// Now is injected for deterministic tests.
	Now func() time.Time
}

// NewRuntime creates a runtime instance.
func NewRuntime(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Runtime {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		cfg:           cfg,
		logger:        logger,
		store:         deps.Store,
		sessions:      deps.Sessions,
		identity:      deps.Identity,
		gatewayFor:    deps.GatewayFor,
		metrics:       deps.Metrics,
		evaluator:     health.NewStatusEvaluator(),
		sessionsPing:  deps.SessionsPing,
		githubHealthy: true,
		Now:           time.Now,
	}
}

// CurrentStatus evaluates dependency health for the health endpoints.
func (rt *Runtime) CurrentStatus(ctx context.Context) health.Status {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	databaseHealthy := rt.store != nil && rt.store.Ping(probeCtx) == nil
	sessionsHealthy := rt.sessions != nil
	if sessionsHealthy && rt.sessionsPing != nil {
		sessionsHealthy = rt.sessionsPing(probeCtx) == nil
	}

	rt.mu.RLock()
	githubHealthy := rt.githubHealthy
	rt.mu.RUnlock()

	return rt.evaluator.Evaluate(health.Input{
		DatabaseHealthy: databaseHealthy,
		SessionsHealthy: sessionsHealthy,
		GitHubReachable: githubHealthy,
	})
}

// noteGitHubOutcome tracks upstream reachability from request outcomes so
// the health mode can report degradation without a dedicated probe. Only
// upstream failures flip the flag; auth and validation problems are the
// caller's fault, not GitHub's.
func (rt *Runtime) noteGitHubOutcome(err error) {
	rt.mu.Lock()
	switch {
	case err == nil:
		rt.githubHealthy = true
	case errors.Is(err, githubapi.ErrUpstream):
		rt.githubHealthy = false
	}
	rt.mu.Unlock()
}
