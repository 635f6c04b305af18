package server

import (
	"net/http"

	"github.com/jrsteele09/vai-agent-server/internal/cryptoutil"
	"github.com/jrsteele09/vai-agent-server/internal/errors"
)

type createWalletRequest struct {
	Label  string `json:"label"`
	Secret string `json:"secret"`
}

type acceptConnectionRequest struct {
	WalletSecret  string `json:"walletSecret"`
	InvitationURL string `json:"invitationUrl"`
	Label         string `json:"label"`
}

type walletProofRequest struct {
	WalletSecret string `json:"walletSecret"`
	ConnectionID string `json:"connectionId"`
}

// walletToken recovers the wallet API token. Clients hold it encrypted with their
// wallet secret and send the ciphertext as the bearer token.
func walletToken(r *http.Request, walletSecret string) (string, error) {
	if walletSecret == "" {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "missing walletSecret")
	}
	encrypted, err := bearerToken(r)
	if err != nil {
		return "", err
	}
	token, err := cryptoutil.DecryptString(encrypted, walletSecret)
	if err != nil {
		return "", errors.Wrapf(errors.ErrUnauthorized, "wallet token cannot be decrypted")
	}
	return token, nil
}

func (s *Server) CreateWalletHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createWalletRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := requireFields(map[string]string{"label": req.Label, "secret": req.Secret}); err != nil {
			writeError(w, r, err)
			return
		}
		raw, err := s.services.Wallet.CreateWallet(r.Context(), req.Label, req.Secret)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeRaw(w, raw)
	}
}

func (s *Server) WalletConnectionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := walletToken(r, r.URL.Query().Get("walletSecret"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		raw, err := s.services.Wallet.ListConnections(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeRaw(w, raw)
	}
}

func (s *Server) WalletAcceptConnectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req acceptConnectionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := requireFields(map[string]string{"invitationUrl": req.InvitationURL}); err != nil {
			writeError(w, r, err)
			return
		}
		token, err := walletToken(r, req.WalletSecret)
		if err != nil {
			writeError(w, r, err)
			return
		}
		raw, err := s.services.Wallet.AcceptConnection(r.Context(), token, req.InvitationURL, req.Label)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeRaw(w, raw)
	}
}

func (s *Server) WalletSendProofRequestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req walletProofRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := requireFields(map[string]string{"connectionId": req.ConnectionID}); err != nil {
			writeError(w, r, err)
			return
		}
		token, err := walletToken(r, req.WalletSecret)
		if err != nil {
			writeError(w, r, err)
			return
		}
		raw, err := s.services.Wallet.SendProofRequest(r.Context(), token, req.ConnectionID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeRaw(w, raw)
	}
}

func (s *Server) WalletProofStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		proofRecordID := query.Get("proofRecordId")
		if err := requireFields(map[string]string{"proofRecordId": proofRecordID}); err != nil {
			writeError(w, r, err)
			return
		}
		token, err := walletToken(r, query.Get("walletSecret"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		raw, err := s.services.Wallet.GetProofStatus(r.Context(), token, proofRecordID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeRaw(w, raw)
	}
}
