package app

import (
	"context"
	"net/http"

	"github.com/orgboard/orgboard/internal/session"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	tokenContextKey   contextKey = "sessionToken"
)

// requireSession resolves the session cookie, rejects the request when it
// is absent or invalid, and slides the cookie's expiry on success.
func (rt *Runtime) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(rt.sessionCookieName())
		if err != nil {
			rt.writeError(w, r, errNoSession)
			return
		}
		sess, err := rt.sessions.Resolve(r.Context(), cookie.Value)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
		rt.setSessionCookie(w, cookie.Value)

		ctx := context.WithValue(r.Context(), sessionContextKey, sess)
		ctx = context.WithValue(ctx, tokenContextKey, cookie.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(session.Session)
	return sess, ok
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

func (rt *Runtime) sessionCookieName() string {
	if name := rt.cfg.Session.CookieName; name != "" {
		return name
	}
	return "orgboard_session"
}

func (rt *Runtime) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     rt.sessionCookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(rt.cfg.Session.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (rt *Runtime) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     rt.sessionCookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
