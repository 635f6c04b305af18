package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jrsteele09/vai-agent-server/audit"
	"github.com/jrsteele09/vai-agent-server/internal/config"
	"github.com/jrsteele09/vai-agent-server/sessions"
	"github.com/jrsteele09/vai-agent-server/token"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Services are the collaborators behind the HTTP routes. Audit is optional.
type Services struct {
	Sessions    sessions.Repo
	Verifier    CallVerifier
	Connections ConnectionService
	Calls       CallService
	Wallet      WalletService
	Audit       audit.Recorder
}

type Server struct {
	env        string // Environment (e.g., "DEV", "production")
	router     *chi.Mux
	routes     []string
	config     config.Config
	services   Services
	sessionTTL time.Duration

	signer       *token.HMACSigner // nil when JWT_SECRET is unset
	apiKeyHash   string
	oidcVerifier *oidc.IDTokenVerifier
}

func New(cfg config.Config, services Services) (*Server, error) {
	if services.Sessions == nil {
		return nil, fmt.Errorf("[Server New] a session store is required")
	}

	s := &Server{
		env:        cfg.GetEnv(),
		router:     chi.NewRouter(),
		config:     cfg,
		services:   services,
		sessionTTL: cfg.GetSessionTTL(),
		apiKeyHash: cfg.GetAPIKeyHash(),
	}
	if secret := cfg.GetJWTSecret(); secret != "" {
		s.signer = token.NewHMACSigner(secret, cfg.GetJWTIssuer())
	}

	if issuer := cfg.GetOIDCIssuer(); issuer != "" {
		// The key set is fetched lazily on the first verification.
		keySet := oidc.NewRemoteKeySet(context.Background(), cfg.GetOIDCJWKSURL())
		s.oidcVerifier = oidc.NewVerifier(issuer, keySet, &oidc.Config{
			ClientID:          cfg.GetOIDCAudience(),
			SkipClientIDCheck: cfg.GetOIDCAudience() == "",
		})
	}

	s.router.Use(
		adapt(s.LoggingMiddleware),
		chimw.Recoverer,
		adapt(s.FrameSecurityMiddleware),
		s.corsHandler(),
	)
	s.router.NotFound(s.NotFoundHandler())
	s.router.MethodNotAllowed(s.MethodNotAllowedHandler())

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RegisterRouteFunc registers handler for a "METHOD /path" pattern.
func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		s.router.HandleFunc(pattern, handler)
		return
	}
	s.router.MethodFunc(method, path, handler)
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	origins := s.config.GetAllowedOrigins()
	wildcard := origins.IsAllowedOrigin("*")
	return cors.New(cors.Options{
		AllowedOrigins: origins.List(),
		AllowedMethods: s.config.GetAllowedMethods(),
		AllowedHeaders: s.config.GetAllowedHeaders(),
		// Credentials are never allowed together with a wildcard origin
		AllowCredentials: !wildcard,
		MaxAge:           86400,
	}).Handler
}

func (s *Server) authEnabled() bool {
	return s.signer != nil || s.oidcVerifier != nil || s.apiKeyHash != ""
}

func (s *Server) logRoutes() {
	if s.env != config.EnvDev {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path, ok := strings.Cut(route, " ")
		if !ok {
			logRoute("", route)
			continue
		}
		logRoute(method, path)
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}
