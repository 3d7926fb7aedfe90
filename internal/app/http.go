package app

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/orgboard/orgboard/internal/health"
	"github.com/orgboard/orgboard/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Router wires the dashboard API, auth flow, metrics, and health endpoints
// on a single mux.
func (rt *Runtime) Router() http.Handler {
	router := chi.NewRouter()
	if rt.metrics != nil {
		router.Use(rt.metrics.Middleware)
	}
	traceMode := telemetry.TraceMode()

	router.Get("/auth/login", wrapHTTPHandler(traceMode, "auth.login", http.HandlerFunc(rt.handleLogin)).ServeHTTP)
	router.Get("/auth/callback", wrapHTTPHandler(traceMode, "auth.callback", http.HandlerFunc(rt.handleCallback)).ServeHTTP)
	router.Post("/auth/logout", wrapHTTPHandler(traceMode, "auth.logout", http.HandlerFunc(rt.handleLogout)).ServeHTTP)

	router.Group(func(authed chi.Router) {
		authed.Use(rt.requireSession)
		authed.Get("/commits", wrapHTTPHandler(traceMode, "commits", http.HandlerFunc(rt.handleCommits)).ServeHTTP)
		authed.Get("/repositories", wrapHTTPHandler(traceMode, "repositories", http.HandlerFunc(rt.handleRepositories)).ServeHTTP)
		authed.Get("/users", wrapHTTPHandler(traceMode, "users", http.HandlerFunc(rt.handleMembers)).ServeHTTP)
		authed.Get("/users/{username}", wrapHTTPHandler(traceMode, "user_profile", http.HandlerFunc(rt.handleMemberProfile)).ServeHTTP)
		authed.Get("/users/{username}/commits", wrapHTTPHandler(traceMode, "user_commits", http.HandlerFunc(rt.handleCommits)).ServeHTTP)
		authed.Get("/activity", wrapHTTPHandler(traceMode, "activity", http.HandlerFunc(rt.handleActivity)).ServeHTTP)
		authed.Get("/user/organizations", wrapHTTPHandler(traceMode, "user_organizations", http.HandlerFunc(rt.handleUserOrganizations)).ServeHTTP)
		authed.Put("/user/organizations/update", wrapHTTPHandler(traceMode, "organization_update", http.HandlerFunc(rt.handleOrganizationUpdate)).ServeHTTP)
	})

	healthHandler := health.NewHandler(rt)
	router.Handle("/livez", wrapHTTPHandler(traceMode, "livez", healthHandler))
	router.Handle("/readyz", wrapHTTPHandler(traceMode, "readyz", healthHandler))
	router.Handle("/healthz", wrapHTTPHandler(traceMode, "healthz", healthHandler))
	if rt.metrics != nil {
		router.Handle("/metrics", wrapHTTPHandler(traceMode, "metrics", rt.metrics.Handler()))
	}
	return router
}

func wrapHTTPHandler(traceMode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if strings.EqualFold(strings.TrimSpace(traceMode), "off") {
		return handler
	}

	operation := strings.TrimSpace(route)
	if operation == "" {
		operation = "handler"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("orgboard/internal/app").Start(
			r.Context(),
			"http.server."+operation,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
