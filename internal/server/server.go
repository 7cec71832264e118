// ABOUTME: HTTP server gating content routes behind passphrase authorization
// ABOUTME: Serves rendered markdown pages, a token API and a health endpoint

package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/passgate/internal/auth"
	"github.com/2389/passgate/internal/routes"
	"github.com/2389/passgate/internal/store"
)

// UserHintHeader carries a previously known user label for cookie sessions.
const UserHintHeader = "X-Passgate-User"

// endpointNames are path segments taken by server endpoints. Route
// directories with these names can never be reached.
var endpointNames = map[string]bool{
	"api":    true,
	"health": true,
}

// ShadowedRoutes returns the routes, sorted and deduplicated, whose names
// collide with server endpoints.
func ShadowedRoutes(routeNames []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range routeNames {
		if endpointNames[r] && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Strings(out)
	return out
}

// PageSource returns the markdown source of a route's page.
type PageSource interface {
	Page(route, page string) ([]byte, error)
}

// Config holds server options.
type Config struct {
	Addr     string
	BasePath string
	// ShutdownTimeout bounds graceful shutdown. Defaults to 5s.
	ShutdownTimeout time.Duration
}

// Server serves protected content.
type Server struct {
	authz           *auth.Authorizer
	pages           PageSource
	audit           store.AuditStore
	markdown        goldmark.Markdown
	logger          *slog.Logger
	shutdownTimeout time.Duration
	httpServer      *http.Server
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Route}}</title></head>
<body>
<main>{{.Content}}</main>
{{if .Expires}}<footer>Access to {{.Route}} expires {{.Expires}}</footer>{{end}}
</body>
</html>
`))

// New creates a server. audit may be nil to disable the audit log.
func New(cfg Config, authz *auth.Authorizer, pages PageSource, audit store.AuditStore, logger *slog.Logger) *Server {
	if cfg.BasePath == "" {
		cfg.BasePath = "/"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		authz:           authz,
		pages:           pages,
		audit:           audit,
		markdown:        goldmark.New(),
		logger:          logger.With("component", "server"),
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	base := cfg.BasePath
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+base+"health", s.handleHealth)
	mux.HandleFunc(base+"api/{route}", s.handleAPI)
	mux.HandleFunc(base+"{route}", s.handleContent)
	mux.HandleFunc(base+"{route}/{page...}", s.handleContent)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run listens and serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	s.logger.Info("serving", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serverErr error
	select {
	case <-ctx.Done():
	case serverErr = <-errCh:
	}

	// The run context is already canceled here, so shut down on a fresh one.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	shutdownErr := s.httpServer.Shutdown(shutdownCtx)

	if serverErr != nil {
		return fmt.Errorf("serving HTTP: %w", serverErr)
	}
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleContent serves markdown pages. Reserved routes are public; every
// other route requires authorization.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	route := r.PathValue("route")

	if endpointNames[route] {
		http.NotFound(w, r)
		return
	}

	if !auth.IsReservedRoute(route) {
		res := s.authorize(r, auth.Target{Route: route})
		f, failed := res.(*auth.Failure)
		if failed {
			writeChallenge(w, f)
			http.Error(w, f.Message, f.HTTPStatus())
			return
		}

		v := res.(*auth.Verified)
		if v.SetCookie != "" {
			w.Header().Add("Set-Cookie", v.SetCookie)
		}
		r = r.WithContext(auth.WithVerified(r.Context(), v))
	}

	s.renderPage(w, r, route, r.PathValue("page"))
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, route, page string) {
	src, err := s.pages.Page(route, page)
	if errors.Is(err, routes.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("failed to read page", "route", route, "page", page, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var htmlBuf bytes.Buffer
	if err := s.markdown.Convert(src, &htmlBuf); err != nil {
		s.logger.Error("failed to convert markdown", "route", route, "page", page, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	data := struct {
		Route   string
		Content template.HTML
		Expires string
	}{
		Route:   route,
		Content: template.HTML(htmlBuf.String()),
	}
	if !auth.IsReservedRoute(route) {
		data.Expires = auth.MustVerifiedFromContext(r.Context()).ExpiresAt.UTC().Format(time.RFC1123)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to render page", "route", route, "error", err)
	}
}

// handleAPI exchanges credentials for a token, or checks one, for API clients.
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	route := r.PathValue("route")

	res := s.authorize(r, auth.Target{Route: route, API: true})
	switch v := res.(type) {
	case *auth.Failure:
		writeChallenge(w, v)
		writeJSON(w, v.HTTPStatus(), ErrorResponse{Error: v.Message, Kind: v.Kind.String()})
	case *auth.Verified:
		if v.SetCookie != "" {
			w.Header().Add("Set-Cookie", v.SetCookie)
		}
		writeJSON(w, http.StatusOK, TokenResponse{
			Route:   v.Route,
			Expires: v.ExpiresAt.UTC().Format(time.RFC3339),
			Token:   v.Token,
			User:    v.User,
		})
	}
}

// authorize runs the authorizer and records the decision.
func (s *Server) authorize(r *http.Request, t auth.Target) auth.Result {
	hint := auth.SanitizeUser(r.Header.Get(UserHintHeader))
	res := s.authz.GetAuth(r, t, hint)

	event := &store.AuthEvent{
		Route:      t.Route,
		RemoteAddr: r.RemoteAddr,
	}
	switch v := res.(type) {
	case *auth.Verified:
		event.Outcome = store.OutcomeVerified
		event.Scheme, event.User = string(v.Scheme), v.User
		s.logger.Info("access granted", "route", t.Route, "scheme", v.Scheme, "user", v.User, "issued", v.Token != "")
	case *auth.Failure:
		event.Outcome = store.OutcomeFailed
		event.Scheme, event.User = string(v.Scheme), v.User
		event.ErrorKind, event.Message = v.Kind.String(), v.Message
		s.logger.Warn("access denied", "route", t.Route, "scheme", v.Scheme, "kind", v.Kind, "reason", v.Message)
	}

	if s.audit != nil {
		if err := s.audit.AppendAuthEvent(r.Context(), event); err != nil {
			s.logger.Error("failed to record auth event", "route", t.Route, "error", err)
		}
	}
	return res
}

func writeChallenge(w http.ResponseWriter, f *auth.Failure) {
	for k, vs := range f.Challenge {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
}
