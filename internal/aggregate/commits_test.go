package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/orgboard/orgboard/internal/githubapi"
)

type fakeGateway struct {
	mu sync.Mutex

	repos    []githubapi.Repository
	reposErr error

	commits    map[string][]githubapi.CommitRef
	commitErr  map[string]error
	commitOpts map[string]githubapi.ListCommitsOptions

	stats    map[string]githubapi.CommitStats
	statsErr map[string]error
}

func (f *fakeGateway) ListOrgRepositories(ctx context.Context, org string) ([]githubapi.Repository, error) {
	if f.reposErr != nil {
		return nil, f.reposErr
	}
	return f.repos, nil
}

func (f *fakeGateway) ListCommits(ctx context.Context, org, repo string, opts githubapi.ListCommitsOptions) ([]githubapi.CommitRef, error) {
	f.mu.Lock()
	if f.commitOpts == nil {
		f.commitOpts = map[string]githubapi.ListCommitsOptions{}
	}
	f.commitOpts[repo] = opts
	f.mu.Unlock()
	if err, ok := f.commitErr[repo]; ok {
		return nil, err
	}
	return f.commits[repo], nil
}

func (f *fakeGateway) GetCommitStats(ctx context.Context, org, repo, sha string) (githubapi.CommitStats, error) {
	if err, ok := f.statsErr[sha]; ok {
		return githubapi.CommitStats{}, err
	}
	return f.stats[sha], nil
}

func repoNamed(name string) githubapi.Repository {
	return githubapi.Repository{Name: name, FullName: "acme/" + name}
}

func commitRef(sha string, authoredAt time.Time) githubapi.CommitRef {
	return githubapi.CommitRef{
		SHA:        sha,
		Message:    "change " + sha,
		AuthorName: "Dev",
		AuthorDate: authoredAt,
	}
}

func TestAggregateOrdersAcrossRepositories(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	gateway := &fakeGateway{
		repos: []githubapi.Repository{repoNamed("api"), repoNamed("web")},
		commits: map[string][]githubapi.CommitRef{
			"api": {commitRef("a1", base.Add(1*time.Hour)), commitRef("a2", base)},
			"web": {commitRef("w1", base.Add(2*time.Hour))},
		},
		stats: map[string]githubapi.CommitStats{
			"a1": {Additions: 5, Deletions: 2, Total: 7},
			"a2": {Additions: 1, Deletions: 1, Total: 2},
			"w1": {Additions: 9, Deletions: 0, Total: 9},
		},
	}

	pipeline := New(gateway, Config{}, nil)
	result, err := pipeline.Aggregate(context.Background(), "acme", Window{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{"w1", "a1", "a2"}
	if len(result.Commits) != len(wantOrder) {
		t.Fatalf("expected %d commits, got %d", len(wantOrder), len(result.Commits))
	}
	for i, sha := range wantOrder {
		if result.Commits[i].SHA != sha {
			t.Fatalf("position %d: expected %s, got %s", i, sha, result.Commits[i].SHA)
		}
	}
	if result.Commits[0].LinesAdded != 9 || result.Commits[0].LinesChanged != 9 {
		t.Fatalf("expected stats merged onto w1, got %+v", result.Commits[0])
	}
	if result.Commits[1].Repository != "api" {
		t.Fatalf("expected repository annotation, got %q", result.Commits[1].Repository)
	}
}

func TestAggregateStableOrderForEqualTimestamps(t *testing.T) {
	t.Parallel()

	when := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	gateway := &fakeGateway{
		repos: []githubapi.Repository{repoNamed("first"), repoNamed("second")},
		commits: map[string][]githubapi.CommitRef{
			"first":  {commitRef("f1", when), commitRef("f2", when)},
			"second": {commitRef("s1", when)},
		},
		stats: map[string]githubapi.CommitStats{},
	}

	pipeline := New(gateway, Config{}, nil)
	result, err := pipeline.Aggregate(context.Background(), "acme", Window{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{"f1", "f2", "s1"}
	for i, sha := range wantOrder {
		if result.Commits[i].SHA != sha {
			t.Fatalf("position %d: expected %s, got %s", i, sha, result.Commits[i].SHA)
		}
	}
}

func TestAggregateCapsUnfilteredResults(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	refs := make([]githubapi.CommitRef, 0, 8)
	for i := range 8 {
		refs = append(refs, commitRef(fmt.Sprintf("c%d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	gateway := &fakeGateway{
		repos:   []githubapi.Repository{repoNamed("api")},
		commits: map[string][]githubapi.CommitRef{"api": refs},
		stats:   map[string]githubapi.CommitStats{},
	}

	pipeline := New(gateway, Config{RecentLimit: 3}, nil)
	result, err := pipeline.Aggregate(context.Background(), "acme", Window{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Commits) != 3 {
		t.Fatalf("expected capped result of 3, got %d", len(result.Commits))
	}
	if result.Commits[0].SHA != "c7" {
		t.Fatalf("expected newest commit first, got %s", result.Commits[0].SHA)
	}
}

func TestAggregateWindowedQueryIsUncapped(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	refs := make([]githubapi.CommitRef, 0, 6)
	for i := range 6 {
		refs = append(refs, commitRef(fmt.Sprintf("c%d", i), base.Add(time.Duration(i)*time.Hour)))
	}
	gateway := &fakeGateway{
		repos:   []githubapi.Repository{repoNamed("api")},
		commits: map[string][]githubapi.CommitRef{"api": refs},
		stats:   map[string]githubapi.CommitStats{},
	}

	window := DayWindow(base)
	pipeline := New(gateway, Config{RecentLimit: 2}, nil)
	result, err := pipeline.Aggregate(context.Background(), "acme", window, "octocat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Commits) != 6 {
		t.Fatalf("expected full windowed set of 6, got %d", len(result.Commits))
	}

	opts := gateway.commitOpts["api"]
	if !opts.Since.Equal(window.Since) || !opts.Until.Equal(window.Until) {
		t.Fatalf("expected window forwarded to gateway, got %+v", opts)
	}
	if opts.Author != "octocat" {
		t.Fatalf("expected author filter forwarded, got %q", opts.Author)
	}
	if opts.PerPage != 0 {
		t.Fatalf("expected no per-repo cap on windowed query, got %d", opts.PerPage)
	}
}

func TestAggregateFailFastOnListError(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{
		repos: []githubapi.Repository{repoNamed("api"), repoNamed("web")},
		commits: map[string][]githubapi.CommitRef{
			"api": {commitRef("a1", time.Now().UTC())},
		},
		commitErr: map[string]error{"web": githubapi.ErrUpstream},
		stats:     map[string]githubapi.CommitStats{},
	}

	pipeline := New(gateway, Config{}, nil)
	_, err := pipeline.Aggregate(context.Background(), "acme", Window{}, "")
	if !errors.Is(err, githubapi.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestAggregateFailFastOnStatsError(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	gateway := &fakeGateway{
		repos: []githubapi.Repository{repoNamed("api")},
		commits: map[string][]githubapi.CommitRef{
			"api": {commitRef("a1", base), commitRef("a2", base.Add(-time.Hour))},
		},
		stats:    map[string]githubapi.CommitStats{"a1": {Additions: 1, Total: 1}},
		statsErr: map[string]error{"a2": githubapi.ErrUpstream},
	}

	pipeline := New(gateway, Config{}, nil)
	result, err := pipeline.Aggregate(context.Background(), "acme", Window{}, "")
	if !errors.Is(err, githubapi.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(result.Commits) != 0 {
		t.Fatalf("fail-fast must not return partial data, got %+v", result.Commits)
	}
}

func TestAggregateMissingAuthorDateSortsOldest(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	gateway := &fakeGateway{
		repos: []githubapi.Repository{repoNamed("api")},
		commits: map[string][]githubapi.CommitRef{
			"api": {commitRef("undated", time.Time{}), commitRef("a1", base), commitRef("a2", base.Add(-time.Hour))},
		},
		stats: map[string]githubapi.CommitStats{},
	}

	pipeline := New(gateway, Config{}, nil)
	result, err := pipeline.Aggregate(context.Background(), "acme", Window{}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{"a1", "a2", "undated"}
	if len(result.Commits) != len(wantOrder) {
		t.Fatalf("expected %d commits, got %d", len(wantOrder), len(result.Commits))
	}
	for i, sha := range wantOrder {
		if result.Commits[i].SHA != sha {
			t.Fatalf("position %d: expected %s, got %s", i, sha, result.Commits[i].SHA)
		}
	}
}

func TestAggregatePartialResultsCollectsFailures(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	gateway := &fakeGateway{
		repos: []githubapi.Repository{repoNamed("api"), repoNamed("web")},
		commits: map[string][]githubapi.CommitRef{
			"api": {commitRef("a1", base), commitRef("a2", base.Add(-time.Hour))},
		},
		commitErr: map[string]error{"web": githubapi.ErrUpstream},
		stats:     map[string]githubapi.CommitStats{"a1": {Additions: 1, Total: 1}},
		statsErr:  map[string]error{"a2": githubapi.ErrUpstream},
	}

	pipeline := New(gateway, Config{PartialResults: true}, nil)
	result, err := pipeline.Aggregate(context.Background(), "acme", Window{}, "")
	if err != nil {
		t.Fatalf("unexpected error in partial mode: %v", err)
	}
	if len(result.Commits) != 1 || result.Commits[0].SHA != "a1" {
		t.Fatalf("expected single surviving commit a1, got %+v", result.Commits)
	}
	if len(result.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", result.Failures)
	}
	if result.Failures[0].Repository != "web" || result.Failures[0].Reason != "list_commits_failed" {
		t.Fatalf("unexpected list failure record: %+v", result.Failures[0])
	}
	if result.Failures[1].SHA != "a2" || result.Failures[1].Reason != "commit_stats_failed" {
		t.Fatalf("unexpected stats failure record: %+v", result.Failures[1])
	}
}

func TestAggregateRepositoryListErrorFailsBothModes(t *testing.T) {
	t.Parallel()

	for _, partial := range []bool{false, true} {
		gateway := &fakeGateway{reposErr: githubapi.ErrUnauthorized}
		pipeline := New(gateway, Config{PartialResults: partial}, nil)
		_, err := pipeline.Aggregate(context.Background(), "acme", Window{}, "")
		if !errors.Is(err, githubapi.ErrUnauthorized) {
			t.Fatalf("partial=%v: expected unauthorized error, got %v", partial, err)
		}
	}
}

func TestAggregateEmptyOrganizationRejected(t *testing.T) {
	t.Parallel()

	pipeline := New(&fakeGateway{}, Config{}, nil)
	if _, err := pipeline.Aggregate(context.Background(), "  ", Window{}, ""); err == nil {
		t.Fatal("expected error for blank organization")
	}
}

func TestDayWindowCoversFullUTCDay(t *testing.T) {
	t.Parallel()

	window := DayWindow(time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC))
	if got := window.Since; !got.Equal(time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window start: %v", got)
	}
	if got := window.Until; !got.Equal(time.Date(2026, time.March, 10, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("unexpected window end: %v", got)
	}
}
