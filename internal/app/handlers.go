package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/orgboard/orgboard/internal/activity"
	"github.com/orgboard/orgboard/internal/aggregate"
	"github.com/orgboard/orgboard/internal/githubapi"
	"github.com/orgboard/orgboard/internal/session"
	"github.com/orgboard/orgboard/internal/store"
	"go.uber.org/zap"
)

const stateCookieName = "orgboard_oauth_state"

// Request-classification errors. Bodies stay generic; detail is logged
// server-side only.
var (
	errNoSession  = errors.New("app: no session")
	errValidation = errors.New("app: invalid request")
	errForbidden  = errors.New("app: forbidden")
)

type repositoryResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"fullName"`
	HTMLURL     string `json:"htmlUrl"`
	Description string `json:"description,omitempty"`
	IsPrivate   bool   `json:"isPrivate"`
}

type memberResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl"`
	HTMLURL   string `json:"htmlUrl"`
}

type profileResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl"`
	HTMLURL   string `json:"htmlUrl"`
	Company   string `json:"company,omitempty"`
	Location  string `json:"location,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

type organizationResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type organizationUpdateRequest struct {
	OrganizationID uint `json:"organizationId"`
}

type organizationUpdateResponse struct {
	Success      bool   `json:"success"`
	Organization string `json:"organization"`
}

func (rt *Runtime) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, rt.identity.AuthorizeURL(state), http.StatusFound)
}

func (rt *Runtime) handleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		rt.writeError(w, r, fmt.Errorf("oauth state mismatch: %w", githubapi.ErrUnauthorized))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	accessToken, err := rt.identity.ExchangeCode(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	claims, err := rt.identity.LoadClaims(r.Context(), accessToken)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	user, err := rt.store.UpsertUserOnSignIn(r.Context(), claims.Login, claims.Name, claims.Email, claims.AvatarURL, claims.Organizations)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rt.cfg.Database.Seed {
		repo := "demo/dashboard"
		if len(claims.Organizations) > 0 {
			repo = claims.Organizations[0] + "/dashboard"
		}
		if err := rt.store.SeedDemoActivity(r.Context(), user.ID, repo); err != nil {
			rt.logger.Warn("demo activity seed failed", zap.Uint("user_id", user.ID), zap.Error(err))
		}
	}

	organization := ""
	if user.Organization != nil {
		organization = user.Organization.Name
	}
	token, err := rt.sessions.Issue(r.Context(), session.Session{
		UserID:       user.ID,
		Login:        user.Login,
		AccessToken:  accessToken,
		Organization: organization,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.setSessionCookie(w, token)

	rt.logger.Info("user signed in",
		zap.String("login", user.Login),
		zap.String("organization", organization),
	)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (rt *Runtime) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(rt.sessionCookieName()); err == nil {
		if err := rt.sessions.Revoke(r.Context(), cookie.Value); err != nil {
			rt.logger.Warn("session revoke failed", zap.Error(err))
		}
	}
	rt.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Runtime) handleRepositories(w http.ResponseWriter, r *http.Request) {
	sess, gateway, ok := rt.sessionGateway(w, r)
	if !ok {
		return
	}
	repos, err := gateway.ListOrgRepositories(r.Context(), sess.Organization)
	rt.noteGitHubOutcome(err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	response := make([]repositoryResponse, 0, len(repos))
	for _, repo := range repos {
		response = append(response, repositoryResponse{
			ID:          repo.ID,
			Name:        repo.Name,
			FullName:    repo.FullName,
			HTMLURL:     repo.HTMLURL,
			Description: repo.Description,
			IsPrivate:   repo.Private,
		})
	}
	rt.writeJSON(w, http.StatusOK, response)
}

func (rt *Runtime) handleMembers(w http.ResponseWriter, r *http.Request) {
	sess, gateway, ok := rt.sessionGateway(w, r)
	if !ok {
		return
	}
	members, err := gateway.ListOrgMembers(r.Context(), sess.Organization)
	rt.noteGitHubOutcome(err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	response := make([]memberResponse, 0, len(members))
	for _, member := range members {
		response = append(response, memberResponse{
			ID:        member.ID,
			Login:     member.Login,
			AvatarURL: member.AvatarURL,
			HTMLURL:   member.HTMLURL,
		})
	}
	rt.writeJSON(w, http.StatusOK, response)
}

func (rt *Runtime) handleMemberProfile(w http.ResponseWriter, r *http.Request) {
	_, gateway, ok := rt.sessionGateway(w, r)
	if !ok {
		return
	}
	profile, err := gateway.GetUser(r.Context(), chi.URLParam(r, "username"))
	rt.noteGitHubOutcome(err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, profileResponse{
		ID:        profile.ID,
		Login:     profile.Login,
		Name:      profile.Name,
		AvatarURL: profile.AvatarURL,
		HTMLURL:   profile.HTMLURL,
		Company:   profile.Company,
		Location:  profile.Location,
		Bio:       profile.Bio,
	})
}

// handleCommits serves both the org-wide commit feed and the per-member
// variant; the author filter is empty when the route carries no username.
func (rt *Runtime) handleCommits(w http.ResponseWriter, r *http.Request) {
	sess, gateway, ok := rt.sessionGateway(w, r)
	if !ok {
		return
	}

	window := aggregate.Window{}
	mode := "recent"
	if rawDate := r.URL.Query().Get("date"); rawDate != "" {
		day, err := time.Parse("2006-01-02", rawDate)
		if err != nil {
			rt.writeError(w, r, fmt.Errorf("invalid date %q: %w", rawDate, errValidation))
			return
		}
		window = aggregate.DayWindow(day)
		mode = "windowed"
	}

	pipeline := aggregate.New(gateway, aggregate.Config{
		CommitsPerRepo: rt.cfg.Aggregation.CommitsPerRepo,
		RecentLimit:    rt.cfg.Aggregation.RecentLimit,
		RepoWorkers:    rt.cfg.Aggregation.RepoWorkers,
		StatWorkers:    rt.cfg.Aggregation.StatWorkers,
		PartialResults: rt.cfg.Aggregation.PartialResults,
	}, rt.logger)

	started := rt.Now()
	result, err := pipeline.Aggregate(r.Context(), sess.Organization, window, chi.URLParam(r, "username"))
	if rt.metrics != nil {
		rt.metrics.ObserveAggregation(mode, rt.Now().Sub(started))
	}
	rt.noteGitHubOutcome(err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	// The partial-results join policy changes the contract from a bare
	// commit array to an envelope carrying the failure manifest.
	if rt.cfg.Aggregation.PartialResults {
		rt.writeJSON(w, http.StatusOK, result)
		return
	}
	rt.writeJSON(w, http.StatusOK, result.Commits)
}

func (rt *Runtime) handleActivity(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		rt.writeError(w, r, errNoSession)
		return
	}

	windowDays := rt.cfg.Activity.WindowDays
	if windowDays <= 0 {
		windowDays = 5
	}
	since := rt.Now().UTC().AddDate(0, 0, -windowDays)
	rows, err := rt.store.TimeEntriesSince(r.Context(), sess.UserID, since)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	entries := make([]activity.Entry, 0, len(rows))
	for _, row := range rows {
		entry := activity.Entry{Start: row.TimeIn, End: row.TimeOut}
		for _, commit := range row.Commits {
			entry.Commits = append(entry.Commits, activity.Commit{
				Hash:         commit.CommitHash,
				Message:      commit.Message,
				Repository:   commit.Repo,
				AuthoredAt:   commit.CreatedAt,
				LinesAdded:   commit.LinesAdded,
				LinesRemoved: commit.LinesRemoved,
			})
		}
		entries = append(entries, entry)
	}
	rt.writeJSON(w, http.StatusOK, activity.Bucket(entries))
}

func (rt *Runtime) handleUserOrganizations(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		rt.writeError(w, r, errNoSession)
		return
	}
	orgs, err := rt.store.ListUserOrganizations(r.Context(), sess.UserID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	response := make([]organizationResponse, 0, len(orgs))
	for _, org := range orgs {
		response = append(response, organizationResponse{ID: org.ID, Name: org.Name})
	}
	rt.writeJSON(w, http.StatusOK, response)
}

func (rt *Runtime) handleOrganizationUpdate(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		rt.writeError(w, r, errNoSession)
		return
	}

	var request organizationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.OrganizationID == 0 {
		rt.writeError(w, r, fmt.Errorf("organizationId is required: %w", errValidation))
		return
	}

	target, err := rt.store.GetOrganization(r.Context(), request.OrganizationID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	// The switch only succeeds for organizations the caller is verified to
	// belong to right now, per the identity provider.
	claims, err := rt.identity.LoadClaims(r.Context(), sess.AccessToken)
	rt.noteGitHubOutcome(err)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if !slices.Contains(claims.Organizations, target.Name) {
		rt.writeError(w, r, fmt.Errorf("not a member of %q: %w", target.Name, errForbidden))
		return
	}

	if _, err := rt.store.SetUserOrganization(r.Context(), sess.UserID, target.ID); err != nil {
		rt.writeError(w, r, err)
		return
	}

	sess.Organization = target.Name
	if err := rt.sessions.Update(r.Context(), tokenFromContext(r.Context()), sess); err != nil {
		rt.writeError(w, r, err)
		return
	}

	rt.logger.Info("active organization switched",
		zap.Uint("user_id", sess.UserID),
		zap.String("organization", target.Name),
	)
	rt.writeJSON(w, http.StatusOK, organizationUpdateResponse{Success: true, Organization: target.Name})
}

// sessionGateway loads the request session and builds a gateway bound to
// its access token. A session without an active organization cannot query
// the provider and is rejected as unauthorized, same as a missing session.
func (rt *Runtime) sessionGateway(w http.ResponseWriter, r *http.Request) (session.Session, Gateway, bool) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		rt.writeError(w, r, errNoSession)
		return session.Session{}, nil, false
	}
	if sess.Organization == "" {
		rt.writeError(w, r, fmt.Errorf("no active organization: %w", errNoSession))
		return session.Session{}, nil, false
	}
	gateway, err := rt.gatewayFor(sess.AccessToken)
	if err != nil {
		rt.writeError(w, r, err)
		return session.Session{}, nil, false
	}
	return sess, gateway, true
}

func (rt *Runtime) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		rt.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (rt *Runtime) writeError(w http.ResponseWriter, r *http.Request, err error) {
	statusCode := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, errNoSession),
		errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, githubapi.ErrUnauthorized):
		statusCode = http.StatusUnauthorized
		message = "unauthorized"
	case errors.Is(err, errValidation):
		statusCode = http.StatusBadRequest
		message = "invalid request"
	case errors.Is(err, errForbidden):
		statusCode = http.StatusForbidden
		message = "forbidden"
	case errors.Is(err, store.ErrNotFound), errors.Is(err, githubapi.ErrNotFound):
		statusCode = http.StatusNotFound
		message = "not found"
	}

	if statusCode >= http.StatusInternalServerError {
		rt.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	} else {
		rt.logger.Debug("request rejected",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", statusCode),
			zap.Error(err),
		)
	}
	rt.writeJSON(w, statusCode, map[string]string{"error": message})
}
