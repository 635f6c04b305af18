package server

import "net/http"

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteStatus, s.StatusHandler())

	// Agent API routes (bearer token or API key when configured)
	s.RegisterRouteFunc("POST "+RouteAPICreateConnection, ChainMiddleware(s.CreateConnectionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPIConnection, ChainMiddleware(s.FindConnectionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAPIIssueCredential, ChainMiddleware(s.IssueCredentialHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAPIMakePhoneCall, ChainMiddleware(s.MakePhoneCallHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAPIUpdateCallSession, ChainMiddleware(s.UpdateCallSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteAPISendProofDuringCall, ChainMiddleware(s.SendProofDuringCallHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPICredentialInfo, ChainMiddleware(s.CredentialInfoHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPIVAIStatus, ChainMiddleware(s.VAIStatusHandler(), s.APIMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteAPIVerificationHistory, ChainMiddleware(s.VerificationHistoryHandler(), s.APIMiddleware()...))

	// Wallet routes carry their own encrypted wallet token
	s.RegisterRouteFunc("POST "+RouteWalletCreate, s.CreateWalletHandler())
	s.RegisterRouteFunc("GET "+RouteWalletConnections, s.WalletConnectionsHandler())
	s.RegisterRouteFunc("POST "+RouteWalletAcceptConnection, s.WalletAcceptConnectionHandler())
	s.RegisterRouteFunc("POST "+RouteWalletSendProofRequest, s.WalletSendProofRequestHandler())
	s.RegisterRouteFunc("GET "+RouteWalletProofStatus, s.WalletProofStatusHandler())
	s.RegisterRouteFunc("GET "+RouteWalletStatus, s.StatusHandler())
}

func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"status": true})
	}
}

func (s *Server) NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, "not_found", "route not found", http.StatusNotFound)
	}
}

func (s *Server) MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, "method_not_allowed", r.Method+" is not supported on "+r.URL.Path, http.StatusMethodNotAllowed)
	}
}
