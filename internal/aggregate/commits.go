package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/orgboard/orgboard/internal/githubapi"
	"go.uber.org/zap"
)

// Gateway is the typed source-control client consumed by the pipeline.
type Gateway interface {
	ListOrgRepositories(ctx context.Context, org string) ([]githubapi.Repository, error)
	ListCommits(ctx context.Context, org, repo string, opts githubapi.ListCommitsOptions) ([]githubapi.CommitRef, error)
	GetCommitStats(ctx context.Context, org, repo, sha string) (githubapi.CommitStats, error)
}

// Commit is one annotated commit in the aggregated activity feed.
type Commit struct {
	SHA             string    `json:"sha"`
	Message         string    `json:"message"`
	AuthorName      string    `json:"authorName"`
	AuthorLogin     string    `json:"authorLogin,omitempty"`
	AuthorDate      time.Time `json:"authorDate"`
	AuthorAvatarURL string    `json:"authorAvatarUrl,omitempty"`
	Repository      string    `json:"repository"`
	LinesAdded      int       `json:"linesAdded"`
	LinesRemoved    int       `json:"linesRemoved"`
	LinesChanged    int       `json:"linesChanged"`
}

// Window bounds the aggregation to a time range. The zero value means
// "most recent activity" and caps the result instead.
type Window struct {
	Since time.Time
	Until time.Time
}

// IsZero reports whether no window was requested.
func (w Window) IsZero() bool {
	return w.Since.IsZero() && w.Until.IsZero()
}

// DayWindow builds the UTC day window [00:00:00, 23:59:59] for one date.
func DayWindow(day time.Time) Window {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return Window{
		Since: start,
		Until: start.Add(24*time.Hour - time.Second),
	}
}

// Failure is one per-item error collected when partial results are enabled.
type Failure struct {
	Repository string `json:"repository"`
	SHA        string `json:"sha,omitempty"`
	Reason     string `json:"reason"`
}

// Result is the aggregation output. Failures is only populated when the
// pipeline runs in partial-results mode.
type Result struct {
	Commits  []Commit  `json:"commits"`
	Failures []Failure `json:"failures,omitempty"`
}

// Config configures pipeline limits and join policy.
type Config struct {
	// CommitsPerRepo caps commits fetched per repository when no window is set.
	CommitsPerRepo int
	// RecentLimit caps the final result when no window is set.
	RecentLimit int
	// RepoWorkers bounds the repository fan-out width.
	RepoWorkers int
	// StatWorkers bounds the per-commit stats fan-out width.
	StatWorkers int
	// PartialResults switches the join policy from fail-fast to
	// collect-successes-plus-error-manifest.
	PartialResults bool
}

// Pipeline aggregates commit activity across every repository in an
// organization.
type Pipeline struct {
	gateway Gateway
	cfg     Config
	logger  *zap.Logger
}

// New creates a commit aggregation pipeline.
func New(gateway Gateway, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.CommitsPerRepo <= 0 {
		cfg.CommitsPerRepo = 10
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = 50
	}
	if cfg.RepoWorkers <= 0 {
		cfg.RepoWorkers = 8
	}
	if cfg.StatWorkers <= 0 {
		cfg.StatWorkers = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		gateway: gateway,
		cfg:     cfg,
		logger:  logger,
	}
}

// Aggregate produces the time-ordered, annotated commit feed for one
// organization. An empty author matches all authors. When the window is zero
// the result is capped at RecentLimit; a windowed query returns the full
// matching set.
func (p *Pipeline) Aggregate(ctx context.Context, org string, window Window, author string) (Result, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return Result{}, fmt.Errorf("organization is required")
	}

	repos, err := p.gateway.ListOrgRepositories(ctx, trimmedOrg)
	if err != nil {
		return Result{}, fmt.Errorf("list repositories for %q: %w", trimmedOrg, err)
	}
	if len(repos) == 0 {
		return Result{Commits: []Commit{}}, nil
	}

	collected, listFailures, err := p.collectCommits(ctx, trimmedOrg, repos, window, author)
	if err != nil {
		return Result{}, err
	}

	commits, statFailures, err := p.annotateStats(ctx, trimmedOrg, collected)
	if err != nil {
		return Result{}, err
	}

	// Stable sort keeps encounter order for equal timestamps; a missing
	// author date is the zero time and therefore sorts oldest.
	sort.SliceStable(commits, func(i, j int) bool {
		return commits[i].AuthorDate.After(commits[j].AuthorDate)
	})

	if window.IsZero() && len(commits) > p.cfg.RecentLimit {
		commits = commits[:p.cfg.RecentLimit]
	}

	result := Result{Commits: commits}
	if p.cfg.PartialResults {
		result.Failures = append(listFailures, statFailures...)
	}

	p.logger.Debug("commit aggregation completed",
		zap.String("org", trimmedOrg),
		zap.Int("repos", len(repos)),
		zap.Int("commits", len(result.Commits)),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

// collectCommits fans out over repositories with a bounded worker pool and
// returns the flattened commit list in repository encounter order.
func (p *Pipeline) collectCommits(
	ctx context.Context,
	org string,
	repos []githubapi.Repository,
	window Window,
	author string,
) ([]Commit, []Failure, error) {
	fanoutCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := githubapi.ListCommitsOptions{Author: author}
	if window.IsZero() {
		opts.PerPage = p.cfg.CommitsPerRepo
	} else {
		opts.Since = window.Since
		opts.Until = window.Until
	}

	perRepo := make([][]githubapi.CommitRef, len(repos))
	failed := make([]bool, len(repos))
	guard := newFailFastGuard(!p.cfg.PartialResults, cancel)

	jobs := make(chan int, len(repos))
	var wg sync.WaitGroup
	for range min(p.cfg.RepoWorkers, len(repos)) {
		wg.Go(func() {
			for index := range jobs {
				if fanoutCtx.Err() != nil {
					continue
				}
				refs, err := p.gateway.ListCommits(fanoutCtx, org, repos[index].Name, opts)
				if err != nil {
					failed[index] = true
					guard.observe(fmt.Errorf("list commits for %s/%s: %w", org, repos[index].Name, err))
					continue
				}
				perRepo[index] = refs
			}
		})
	}
	for index := range repos {
		jobs <- index
	}
	close(jobs)
	wg.Wait()

	if err := guard.firstError(); err != nil {
		return nil, nil, err
	}

	var failures []Failure
	commits := make([]Commit, 0)
	for index, refs := range perRepo {
		if failed[index] {
			failures = append(failures, Failure{
				Repository: repos[index].Name,
				Reason:     "list_commits_failed",
			})
			continue
		}
		for _, ref := range refs {
			commits = append(commits, Commit{
				SHA:             ref.SHA,
				Message:         ref.Message,
				AuthorName:      ref.AuthorName,
				AuthorLogin:     ref.AuthorLogin,
				AuthorDate:      ref.AuthorDate,
				AuthorAvatarURL: ref.AuthorAvatarURL,
				Repository:      repos[index].Name,
			})
		}
	}
	return commits, failures, nil
}

// annotateStats fans out over the flattened commit list, merging diff
// statistics onto each record in place so encounter order is preserved.
func (p *Pipeline) annotateStats(ctx context.Context, org string, commits []Commit) ([]Commit, []Failure, error) {
	if len(commits) == 0 {
		return []Commit{}, nil, nil
	}

	fanoutCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failed := make([]bool, len(commits))
	guard := newFailFastGuard(!p.cfg.PartialResults, cancel)

	jobs := make(chan int, len(commits))
	var wg sync.WaitGroup
	for range min(p.cfg.StatWorkers, len(commits)) {
		wg.Go(func() {
			for index := range jobs {
				if fanoutCtx.Err() != nil {
					continue
				}
				stats, err := p.gateway.GetCommitStats(fanoutCtx, org, commits[index].Repository, commits[index].SHA)
				if err != nil {
					failed[index] = true
					guard.observe(fmt.Errorf("commit stats for %s/%s@%s: %w", org, commits[index].Repository, commits[index].SHA, err))
					continue
				}
				commits[index].LinesAdded = stats.Additions
				commits[index].LinesRemoved = stats.Deletions
				commits[index].LinesChanged = stats.Total
			}
		})
	}
	for index := range commits {
		jobs <- index
	}
	close(jobs)
	wg.Wait()

	if err := guard.firstError(); err != nil {
		return nil, nil, err
	}

	var failures []Failure
	annotated := make([]Commit, 0, len(commits))
	for index, commit := range commits {
		if failed[index] {
			failures = append(failures, Failure{
				Repository: commit.Repository,
				SHA:        commit.SHA,
				Reason:     "commit_stats_failed",
			})
			continue
		}
		annotated = append(annotated, commit)
	}
	return annotated, failures, nil
}

// failFastGuard records the first observed error and cancels outstanding
// work when the fail-fast join policy is active.
type failFastGuard struct {
	failFast bool
	cancel   context.CancelFunc

	mu  sync.Mutex
	err error
}

func newFailFastGuard(failFast bool, cancel context.CancelFunc) *failFastGuard {
	return &failFastGuard{failFast: failFast, cancel: cancel}
}

func (g *failFastGuard) observe(err error) {
	if !g.failFast {
		return
	}
	g.mu.Lock()
	if g.err == nil {
		g.err = err
		g.cancel()
	}
	g.mu.Unlock()
}

func (g *failFastGuard) firstError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}
