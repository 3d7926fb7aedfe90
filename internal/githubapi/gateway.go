package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultAPIBaseURL = "https://api.github.com/"

// Repository is one GitHub repository in an organization.
type Repository struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"fullName"`
	HTMLURL     string    `json:"htmlUrl"`
	Description string    `json:"description,omitempty"`
	Private     bool      `json:"private"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Member is one organization member.
type Member struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
	HTMLURL   string `json:"htmlUrl"`
}

// CommitRef is one commit summary from the commit list endpoint. It carries
// no diff statistics; those require a follow-up GetCommitStats call.
type CommitRef struct {
	SHA             string
	Message         string
	AuthorName      string
	AuthorLogin     string
	AuthorAvatarURL string
	AuthorDate      time.Time
}

// CommitStats holds per-commit diff statistics.
type CommitStats struct {
	Additions int
	Deletions int
	Total     int
}

// UserProfile is one GitHub user's public profile.
type UserProfile struct {
	ID        int64     `json:"id"`
	Login     string    `json:"login"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	AvatarURL string    `json:"avatarUrl"`
	HTMLURL   string    `json:"htmlUrl"`
	Company   string    `json:"company,omitempty"`
	Location  string    `json:"location,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListCommitsOptions filters the commit list endpoint.
type ListCommitsOptions struct {
	Since   time.Time
	Until   time.Time
	Author  string
	PerPage int
}

// Gateway is a typed REST client over the GitHub API, scoped to one user's
// access token. Every response shape is validated at this boundary; callers
// never see raw GitHub payloads.
type Gateway struct {
	baseURL       *url.URL
	token         string
	requestClient *Client
}

// NewGateway creates a token-scoped gateway over the shared request client.
func NewGateway(baseURL, token string, requestClient *Client) (*Gateway, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("access token is required: %w", ErrUnauthorized)
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		baseURL:       parsed,
		token:         token,
		requestClient: requestClient,
	}, nil
}

// ListOrgRepositories lists repositories in one organization, most recently
// updated first. A single page of up to 100 results is fetched; organizations
// beyond that size are outside this service's scope.
func (g *Gateway) ListOrgRepositories(ctx context.Context, org string) ([]Repository, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return nil, fmt.Errorf("organization is required")
	}

	reqURL := g.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "orgs", url.PathEscape(trimmedOrg), "repos")
	query := reqURL.Query()
	query.Set("type", "all")
	query.Set("sort", "updated")
	query.Set("per_page", "100")
	reqURL.RawQuery = query.Encode()

	var payload []repositoryPayload
	if err := g.getJSON(ctx, reqURL, "list org repositories", &payload); err != nil {
		return nil, err
	}

	repos := make([]Repository, 0, len(payload))
	for _, repo := range payload {
		repos = append(repos, Repository{
			ID:          repo.ID,
			Name:        repo.Name,
			FullName:    repo.FullName,
			HTMLURL:     repo.HTMLURL,
			Description: repo.Description,
			Private:     repo.Private,
			UpdatedAt:   parseRFC3339(repo.UpdatedAt),
		})
	}
	return repos, nil
}

// ListOrgMembers lists members of one organization, up to 100.
func (g *Gateway) ListOrgMembers(ctx context.Context, org string) ([]Member, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return nil, fmt.Errorf("organization is required")
	}

	reqURL := g.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "orgs", url.PathEscape(trimmedOrg), "members")
	query := reqURL.Query()
	query.Set("per_page", "100")
	reqURL.RawQuery = query.Encode()

	var payload []userPayload
	if err := g.getJSON(ctx, reqURL, "list org members", &payload); err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(payload))
	for _, member := range payload {
		members = append(members, Member{
			ID:        member.ID,
			Login:     member.Login,
			AvatarURL: member.AvatarURL,
			HTMLURL:   member.HTMLURL,
		})
	}
	return members, nil
}

// ListCommits lists commit references for one repository, optionally bounded
// to a time window or to a single author.
func (g *Gateway) ListCommits(ctx context.Context, org, repo string, opts ListCommitsOptions) ([]CommitRef, error) {
	trimmedOrg := strings.TrimSpace(org)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOrg == "" {
		return nil, fmt.Errorf("organization is required")
	}
	if trimmedRepo == "" {
		return nil, fmt.Errorf("repository is required")
	}
	if !opts.Until.IsZero() && !opts.Since.IsZero() && opts.Until.Before(opts.Since) {
		return nil, fmt.Errorf("until must not be before since")
	}

	reqURL := g.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "repos", url.PathEscape(trimmedOrg), url.PathEscape(trimmedRepo), "commits")
	query := reqURL.Query()
	perPage := opts.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}
	query.Set("per_page", strconv.Itoa(perPage))
	if !opts.Since.IsZero() {
		query.Set("since", opts.Since.UTC().Format(time.RFC3339))
	}
	if !opts.Until.IsZero() {
		query.Set("until", opts.Until.UTC().Format(time.RFC3339))
	}
	if author := strings.TrimSpace(opts.Author); author != "" {
		query.Set("author", author)
	}
	reqURL.RawQuery = query.Encode()

	var payload []commitListPayload
	if err := g.getJSON(ctx, reqURL, "list commits", &payload); err != nil {
		return nil, err
	}

	commits := make([]CommitRef, 0, len(payload))
	for _, commit := range payload {
		ref := CommitRef{
			SHA:        commit.SHA,
			Message:    commit.Commit.Message,
			AuthorName: commit.Commit.Author.Name,
			AuthorDate: parseRFC3339(commit.Commit.Author.Date),
		}
		if commit.Author != nil {
			ref.AuthorLogin = commit.Author.Login
			ref.AuthorAvatarURL = commit.Author.AvatarURL
		}
		commits = append(commits, ref)
	}
	return commits, nil
}

// GetCommitStats reads one commit's diff statistics. GitHub exposes no batch
// endpoint for this; each commit costs one round trip.
func (g *Gateway) GetCommitStats(ctx context.Context, org, repo, sha string) (CommitStats, error) {
	trimmedOrg := strings.TrimSpace(org)
	trimmedRepo := strings.TrimSpace(repo)
	trimmedSHA := strings.TrimSpace(sha)
	if trimmedOrg == "" {
		return CommitStats{}, fmt.Errorf("organization is required")
	}
	if trimmedRepo == "" {
		return CommitStats{}, fmt.Errorf("repository is required")
	}
	if trimmedSHA == "" {
		return CommitStats{}, fmt.Errorf("sha is required")
	}

	reqURL := g.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "repos", url.PathEscape(trimmedOrg), url.PathEscape(trimmedRepo), "commits", url.PathEscape(trimmedSHA))

	var payload commitDetailPayload
	if err := g.getJSON(ctx, reqURL, "get commit stats", &payload); err != nil {
		return CommitStats{}, err
	}

	return CommitStats{
		Additions: payload.Stats.Additions,
		Deletions: payload.Stats.Deletions,
		Total:     payload.Stats.Total,
	}, nil
}

// GetUser reads one user's public profile.
func (g *Gateway) GetUser(ctx context.Context, username string) (UserProfile, error) {
	trimmedUser := strings.TrimSpace(username)
	if trimmedUser == "" {
		return UserProfile{}, fmt.Errorf("username is required")
	}

	reqURL := g.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "users", url.PathEscape(trimmedUser))

	var payload profilePayload
	if err := g.getJSON(ctx, reqURL, "get user", &payload); err != nil {
		return UserProfile{}, err
	}

	return UserProfile{
		ID:        payload.ID,
		Login:     payload.Login,
		Name:      payload.Name,
		Email:     payload.Email,
		AvatarURL: payload.AvatarURL,
		HTMLURL:   payload.HTMLURL,
		Company:   payload.Company,
		Location:  payload.Location,
		Bio:       payload.Bio,
		CreatedAt: parseRFC3339(payload.CreatedAt),
	}, nil
}

func (g *Gateway) getJSON(ctx context.Context, reqURL *url.URL, operation string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.requestClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w: %w", operation, ErrUpstream, err)
	}
	if resp == nil {
		return fmt.Errorf("%s request failed: nil response: %w", operation, ErrUpstream)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drainAndClose(resp)
		return statusError(resp.StatusCode, operation)
	}

	if err := decodeJSONAndClose(resp, target); err != nil {
		return fmt.Errorf("decode %s response: %w: %w", operation, ErrUpstream, err)
	}
	return nil
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func (g *Gateway) cloneBaseURL() *url.URL {
	cloned := *g.baseURL
	return &cloned
}

func joinURLPath(base string, segments ...string) string {
	builder := strings.Builder{}
	builder.WriteString(strings.TrimSuffix(base, "/"))
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func decodeJSONAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

func parseRFC3339(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

type repositoryPayload struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	UpdatedAt   string `json:"updated_at"`
}

type commitListPayload struct {
	SHA    string          `json:"sha"`
	Author *userPayload    `json:"author"`
	Commit commitCoreBlock `json:"commit"`
}

type commitCoreBlock struct {
	Message string            `json:"message"`
	Author  commitAuthorBlock `json:"author"`
}

type commitAuthorBlock struct {
	Name string `json:"name"`
	Date string `json:"date"`
}

type commitDetailPayload struct {
	SHA   string `json:"sha"`
	Stats struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
		Total     int `json:"total"`
	} `json:"stats"`
}

type userPayload struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
}

type profilePayload struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url"`
	Company   string `json:"company"`
	Location  string `json:"location"`
	Bio       string `json:"bio"`
	CreatedAt string `json:"created_at"`
}
