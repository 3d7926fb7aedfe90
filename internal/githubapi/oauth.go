package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
	oauth2github "golang.org/x/oauth2/github"
)

// OAuthConfig configures the GitHub OAuth web flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	APIBaseURL   string
	Timeout      time.Duration
}

// IdentityClaims is the profile loaded for a user at sign-in: who they are
// and which organizations they belong to.
type IdentityClaims struct {
	Login         string
	Name          string
	Email         string
	AvatarURL     string
	Organizations []string
}

// Identity exchanges OAuth authorization codes for access tokens and loads
// sign-in claims through the GitHub REST API.
type Identity struct {
	oauth      oauth2.Config
	apiBaseURL string
	timeout    time.Duration
}

// NewIdentity creates a GitHub identity provider adapter.
func NewIdentity(cfg OAuthConfig) (*Identity, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("oauth client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("oauth client secret is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Identity{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     oauth2github.Endpoint,
		},
		apiBaseURL: cfg.APIBaseURL,
		timeout:    timeout,
	}, nil
}

// AuthorizeURL builds the GitHub authorize redirect for one sign-in attempt.
func (i *Identity) AuthorizeURL(state string) string {
	return i.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for an access token.
func (i *Identity) ExchangeCode(ctx context.Context, code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("authorization code is required: %w", ErrUnauthorized)
	}

	token, err := i.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange authorization code: %w: %w", ErrUnauthorized, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("exchange returned empty access token: %w", ErrUnauthorized)
	}
	return token.AccessToken, nil
}

// LoadClaims reads the signed-in user's profile and organization list using
// the freshly issued access token.
func (i *Identity) LoadClaims(ctx context.Context, accessToken string) (IdentityClaims, error) {
	client, err := i.restClient(accessToken)
	if err != nil {
		return IdentityClaims{}, err
	}

	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("load user profile: %w: %w", classifyRESTError(resp), err)
	}

	claims := IdentityClaims{
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		Email:     user.GetEmail(),
		AvatarURL: user.GetAvatarURL(),
	}

	orgs, resp, err := client.Organizations.List(ctx, "", &github.ListOptions{PerPage: 100})
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("load user organizations: %w: %w", classifyRESTError(resp), err)
	}
	for _, org := range orgs {
		if login := org.GetLogin(); login != "" {
			claims.Organizations = append(claims.Organizations, login)
		}
	}

	return claims, nil
}

func (i *Identity) restClient(accessToken string) (*github.Client, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("access token is required: %w", ErrUnauthorized)
	}

	httpClient := &http.Client{Timeout: i.timeout}
	client := github.NewClient(httpClient).WithAuthToken(accessToken)

	trimmedBaseURL := strings.TrimSpace(i.apiBaseURL)
	if trimmedBaseURL == "" {
		return client, nil
	}

	parsedURL, err := url.Parse(trimmedBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path += "/"
	}
	client.BaseURL = parsedURL
	return client, nil
}

func classifyRESTError(resp *github.Response) error {
	if resp == nil {
		return ErrUpstream
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return ErrUpstream
	}
}
