package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jrsteele09/vai-agent-server/audit"
	"github.com/jrsteele09/vai-agent-server/bland"
	"github.com/jrsteele09/vai-agent-server/hovi"
	"github.com/jrsteele09/vai-agent-server/internal/errors"
	"github.com/jrsteele09/vai-agent-server/sessions"
	"github.com/jrsteele09/vai-agent-server/verification"
	"github.com/rs/zerolog"
)

type issueCredentialRequest struct {
	ConnectionID     string         `json:"connectionId"`
	CredentialValues map[string]any `json:"credentialValues"`
}

type phoneCallRequest struct {
	PhoneNumber  string `json:"phone_number"`
	ConnectionID string `json:"connection_id,omitempty"`
}

type phoneCallResponse struct {
	Call    *bland.CallResponse `json:"call"`
	Session *sessions.Record    `json:"session"`
}

type updateCallSessionRequest struct {
	PhoneNumber  string          `json:"phone_number"`
	ConnectionID string          `json:"connection_id"`
	Status       sessions.Status `json:"status,omitempty"`
}

type verifyDuringCallResponse struct {
	Verified        bool                `json:"verified"`
	Reason          verification.Reason `json:"reason"`
	ProofExchangeID string              `json:"proofExchangeId,omitempty"`
	CredentialData  map[string]string   `json:"credentialData"`
	Detail          string              `json:"detail,omitempty"`
}

type vaiStatusResponse struct {
	PhoneNumber  string          `json:"phone_number"`
	Status       sessions.Status `json:"status"`
	ConnectionID string          `json:"connection_id,omitempty"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

func phoneParam(r *http.Request) (string, error) {
	phoneNumber := strings.TrimSpace(chi.URLParam(r, "phone_number"))
	if phoneNumber == "" {
		return "", errors.Wrapf(errors.ErrInvalidRequest, "missing phone_number")
	}
	return phoneNumber, nil
}

func (s *Server) CreateConnectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := s.services.Connections.CreateConnection(r.Context(), hovi.DefaultConnectionRequest())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeRaw(w, raw)
	}
}

func (s *Server) FindConnectionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invitationID := chi.URLParam(r, "invitationId")
		raw, err := s.services.Connections.FindConnection(r.Context(), invitationID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeRaw(w, raw)
	}
}

func (s *Server) IssueCredentialHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req issueCredentialRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := requireFields(map[string]string{"connectionId": req.ConnectionID}); err != nil {
			writeError(w, r, err)
			return
		}
		if len(req.CredentialValues) == 0 {
			writeError(w, r, errors.Wrapf(errors.ErrInvalidRequest, "missing credentialValues"))
			return
		}

		raw, err := s.services.Connections.IssueAnonCredCredential(r.Context(), req.ConnectionID, req.CredentialValues)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeRaw(w, raw)
	}
}

// MakePhoneCallHandler places the outbound call and opens a pending session for it.
// The session is only written once the call has been accepted.
func (s *Server) MakePhoneCallHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req phoneCallRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
		if err := requireFields(map[string]string{"phone_number": req.PhoneNumber}); err != nil {
			writeError(w, r, err)
			return
		}

		call, err := s.services.Calls.MakeCall(r.Context(), req.PhoneNumber)
		if err != nil {
			writeError(w, r, err)
			return
		}

		record := &sessions.Record{
			PhoneNumber:  req.PhoneNumber,
			Status:       sessions.StatusPending,
			ConnectionID: strings.TrimSpace(req.ConnectionID),
			CallID:       call.CallID,
		}
		if err := s.services.Sessions.Set(r.Context(), record, s.sessionTTL); err != nil {
			writeError(w, r, err)
			return
		}

		zerolog.Ctx(r.Context()).Info().
			Str("phone_number", record.PhoneNumber).
			Str("call_id", record.CallID).
			Msg("Call placed, session pending")
		writeJSON(w, http.StatusOK, phoneCallResponse{Call: call, Session: record})
	}
}

// UpdateCallSessionHandler binds the holder's connection to the call. A call that
// arrived without going through make-phone-call gets its session created here.
func (s *Server) UpdateCallSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateCallSessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
		req.ConnectionID = strings.TrimSpace(req.ConnectionID)
		if err := requireFields(map[string]string{
			"phone_number":  req.PhoneNumber,
			"connection_id": req.ConnectionID,
		}); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Status == "" {
			req.Status = sessions.StatusActive
		}
		if !req.Status.Valid() {
			writeError(w, r, errors.Wrapf(errors.ErrInvalidRequest, "unknown status %q", req.Status))
			return
		}
		// proof_verified and rejected are only reachable through a proof exchange
		if req.Status != sessions.StatusPending && req.Status != sessions.StatusActive {
			writeError(w, r, errors.Wrapf(errors.ErrInvalidRequest, "status %q cannot be set by the caller", req.Status))
			return
		}

		record, err := s.bindSession(r, req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	}
}

func (s *Server) bindSession(r *http.Request, req updateCallSessionRequest) (*sessions.Record, error) {
	apply := func(record *sessions.Record) error {
		record.Status = req.Status
		record.ConnectionID = req.ConnectionID
		// Credential data belongs to a verified proof; a rebound call starts over.
		record.CredentialData = nil
		return nil
	}

	record, err := sessions.Mutate(r.Context(), s.services.Sessions, req.PhoneNumber, s.sessionTTL, apply)
	if !errors.Is(err, errors.ErrSessionNotFound) {
		return record, err
	}

	record = &sessions.Record{PhoneNumber: req.PhoneNumber}
	_ = apply(record)
	created, err := s.services.Sessions.SetIfAbsent(r.Context(), record, s.sessionTTL)
	if err != nil {
		return nil, err
	}
	if created {
		return record, nil
	}
	// Another request created the session first
	return sessions.Mutate(r.Context(), s.services.Sessions, req.PhoneNumber, s.sessionTTL, apply)
}

func (s *Server) SendProofDuringCallHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req phoneCallRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
		if err := requireFields(map[string]string{"phone_number": req.PhoneNumber}); err != nil {
			writeError(w, r, err)
			return
		}

		outcome, err := s.services.Verifier.VerifyDuringCall(r.Context(), req.PhoneNumber)
		if err != nil {
			writeError(w, r, err)
			return
		}

		credentialData := outcome.CredentialData
		if credentialData == nil {
			credentialData = map[string]string{}
		}
		writeJSON(w, http.StatusOK, verifyDuringCallResponse{
			Verified:        outcome.Verified(),
			Reason:          outcome.Reason,
			ProofExchangeID: outcome.ProofExchangeID,
			CredentialData:  credentialData,
			Detail:          outcome.Detail,
		})
	}
}

func (s *Server) CredentialInfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phoneNumber, err := phoneParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		record, err := s.services.Sessions.Get(r.Context(), phoneNumber)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if len(record.CredentialData) == 0 {
			writeError(w, r, errors.Wrapf(errors.ErrNotFound, "no credential data for %s", phoneNumber))
			return
		}
		writeJSON(w, http.StatusOK, record.CredentialData)
	}
}

func (s *Server) VAIStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phoneNumber, err := phoneParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		record, err := s.services.Sessions.Get(r.Context(), phoneNumber)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, vaiStatusResponse{
			PhoneNumber:  record.PhoneNumber,
			Status:       record.Status,
			ConnectionID: record.ConnectionID,
			ExpiresAt:    record.ExpiresAt,
		})
	}
}

func (s *Server) VerificationHistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phoneNumber, err := phoneParam(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if s.services.Audit == nil {
			writeJSON(w, http.StatusOK, []audit.Entry{})
			return
		}

		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			limit, err = strconv.Atoi(v)
			if err != nil || limit < 0 {
				writeError(w, r, errors.Wrapf(errors.ErrInvalidRequest, "invalid limit %q", v))
				return
			}
		}

		entries, err := s.services.Audit.ListByPhone(r.Context(), phoneNumber, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if entries == nil {
			entries = []audit.Entry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
