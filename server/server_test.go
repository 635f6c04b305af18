package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/vai-agent-server/audit"
	"github.com/jrsteele09/vai-agent-server/internal/cryptoutil"
	"github.com/jrsteele09/vai-agent-server/internal/errors"
	"github.com/jrsteele09/vai-agent-server/sessions"
	"github.com/jrsteele09/vai-agent-server/verification"
	"github.com/stretchr/testify/require"
)

const testPhone = "+15551234567"

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decodeBody[map[string]string](t, rec)
	require.Equal(t, code, body["code"])
	require.NotEmpty(t, body["error"])
}

func seed(t *testing.T, env *testEnv, record *sessions.Record) {
	t.Helper()
	require.NoError(t, env.sessions.Set(context.Background(), record, time.Minute))
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/status", "/wallet/status"} {
		rec := doRequest(t, env.server, http.MethodGet, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"status":true}`, rec.Body.String())
		require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	}

	rec := doRequest(t, env.server, http.MethodGet, "/nope", "", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "not_found")
}

func TestMakePhoneCall(t *testing.T) {
	t.Run("opens a pending session", func(t *testing.T) {
		env := newTestEnv(t)
		rec := doRequest(t, env.server, http.MethodPost, "/api/make-phone-call", `{"phone_number":"+15551234567","connection_id":"c1"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.Equal(t, []string{testPhone}, env.calls.calls)

		record, err := env.sessions.Get(context.Background(), testPhone)
		require.NoError(t, err)
		require.Equal(t, sessions.StatusPending, record.Status)
		require.Equal(t, "c1", record.ConnectionID)
		require.Equal(t, "call-1", record.CallID)
	})

	t.Run("missing phone number", func(t *testing.T) {
		env := newTestEnv(t)
		rec := doRequest(t, env.server, http.MethodPost, "/api/make-phone-call", `{}`, nil)
		requireErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
		require.Empty(t, env.calls.calls)
	})

	t.Run("call not placed", func(t *testing.T) {
		env := newTestEnv(t)
		env.calls.err = errors.MissingConfig("BLAND_AI_API_KEY")
		rec := doRequest(t, env.server, http.MethodPost, "/api/make-phone-call", `{"phone_number":"+15551234567"}`, nil)
		requireErrorCode(t, rec, http.StatusInternalServerError, "configuration_error")

		_, err := env.sessions.Get(context.Background(), testPhone)
		require.ErrorIs(t, err, errors.ErrSessionNotFound)
	})

	t.Run("store unavailable", func(t *testing.T) {
		env := newTestEnv(t)
		env.sessions.FailWith = errors.ErrInternal
		rec := doRequest(t, env.server, http.MethodPost, "/api/make-phone-call", `{"phone_number":"+15551234567"}`, nil)
		requireErrorCode(t, rec, http.StatusServiceUnavailable, "store_unavailable")
	})
}

func TestUpdateCallSession(t *testing.T) {
	t.Run("binds the connection to an existing session", func(t *testing.T) {
		env := newTestEnv(t)
		seed(t, env, &sessions.Record{PhoneNumber: testPhone, Status: sessions.StatusPending, CallID: "call-1"})

		rec := doRequest(t, env.server, http.MethodPost, "/api/update-call-session", `{"phone_number":"+15551234567","connection_id":"c1"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		record, err := env.sessions.Get(context.Background(), testPhone)
		require.NoError(t, err)
		require.Equal(t, sessions.StatusActive, record.Status)
		require.Equal(t, "c1", record.ConnectionID)
		require.Equal(t, "call-1", record.CallID)

		phone, err := env.sessions.FindPhoneByConnection(context.Background(), "c1")
		require.NoError(t, err)
		require.Equal(t, testPhone, phone)
	})

	t.Run("creates the session for an inbound call", func(t *testing.T) {
		env := newTestEnv(t)
		rec := doRequest(t, env.server, http.MethodPost, "/api/update-call-session", `{"phone_number":"+15551234567","connection_id":"c1"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		record, err := env.sessions.Get(context.Background(), testPhone)
		require.NoError(t, err)
		require.Equal(t, sessions.StatusActive, record.Status)
	})

	t.Run("rebinding a verified session drops its credential data", func(t *testing.T) {
		env := newTestEnv(t)
		seed(t, env, &sessions.Record{
			PhoneNumber:    testPhone,
			Status:         sessions.StatusProofVerified,
			ConnectionID:   "c-old",
			CredentialData: map[string]string{"Name": "Jane Doe"},
		})

		rec := doRequest(t, env.server, http.MethodPost, "/api/update-call-session", `{"phone_number":"+15551234567","connection_id":"c-new"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		record, err := env.sessions.Get(context.Background(), testPhone)
		require.NoError(t, err)
		require.Equal(t, sessions.StatusActive, record.Status)
		require.Equal(t, "c-new", record.ConnectionID)
		require.Empty(t, record.CredentialData)

		rec = doRequest(t, env.server, http.MethodGet, "/api/get-credential-info/+15551234567", "", nil)
		requireErrorCode(t, rec, http.StatusNotFound, "not_found")
	})

	t.Run("refuses statuses owned by the proof exchange", func(t *testing.T) {
		env := newTestEnv(t)
		for _, status := range []sessions.Status{sessions.StatusProofVerified, sessions.StatusRejected} {
			body := `{"phone_number":"+15551234567","connection_id":"c1","status":"` + string(status) + `"}`
			rec := doRequest(t, env.server, http.MethodPost, "/api/update-call-session", body, nil)
			requireErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
		}

		rec := doRequest(t, env.server, http.MethodGet, "/api/get-vai-status/+15551234567", "", nil)
		requireErrorCode(t, rec, http.StatusNotFound, "no_active_session")
	})

	t.Run("accepts pending", func(t *testing.T) {
		env := newTestEnv(t)
		rec := doRequest(t, env.server, http.MethodPost, "/api/update-call-session", `{"phone_number":"+15551234567","connection_id":"c1","status":"pending"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		record, err := env.sessions.Get(context.Background(), testPhone)
		require.NoError(t, err)
		require.Equal(t, sessions.StatusPending, record.Status)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		env := newTestEnv(t)
		rec := doRequest(t, env.server, http.MethodPost, "/api/update-call-session", `{"phone_number":"+15551234567"}`, nil)
		requireErrorCode(t, rec, http.StatusBadRequest, "invalid_request")

		rec = doRequest(t, env.server, http.MethodPost, "/api/update-call-session", `{"phone_number":"+15551234567","connection_id":"c1","status":"bogus"}`, nil)
		requireErrorCode(t, rec, http.StatusBadRequest, "invalid_request")

		rec = doRequest(t, env.server, http.MethodPost, "/api/update-call-session", `not json`, nil)
		requireErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
	})
}

func TestSendProofDuringCall(t *testing.T) {
	t.Run("verified", func(t *testing.T) {
		env := newTestEnv(t)
		env.verifier.outcome = verification.Outcome{
			Reason:          verification.ReasonVerified,
			ProofExchangeID: "pe-1",
			CredentialData:  map[string]string{"Name": "Jane Doe"},
		}
		rec := doRequest(t, env.server, http.MethodPost, "/api/send-proofreq-during-call", `{"phone_number":"+15551234567"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"verified":true,"reason":"verified","proofExchangeId":"pe-1","credentialData":{"Name":"Jane Doe"}}`, rec.Body.String())
		require.Equal(t, []string{testPhone}, env.verifier.phones)
	})

	t.Run("business outcome is not an error", func(t *testing.T) {
		env := newTestEnv(t)
		rec := doRequest(t, env.server, http.MethodPost, "/api/send-proofreq-during-call", `{"phone_number":"+15551234567"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"verified":false,"reason":"no_session","credentialData":{}}`, rec.Body.String())
	})

	t.Run("infrastructure error", func(t *testing.T) {
		env := newTestEnv(t)
		env.verifier.err = errors.Wrapf(errors.ErrStoreUnavailable, "redis down")
		rec := doRequest(t, env.server, http.MethodPost, "/api/send-proofreq-during-call", `{"phone_number":"+15551234567"}`, nil)
		requireErrorCode(t, rec, http.StatusServiceUnavailable, "store_unavailable")
	})
}

func TestSessionQueries(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(t, env.server, http.MethodGet, "/api/get-vai-status/+15551234567", "", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "no_active_session")
	rec = doRequest(t, env.server, http.MethodGet, "/api/get-credential-info/+15551234567", "", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "no_active_session")

	seed(t, env, &sessions.Record{PhoneNumber: testPhone, Status: sessions.StatusActive, ConnectionID: "c1"})

	rec = doRequest(t, env.server, http.MethodGet, "/api/get-vai-status/+15551234567", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decodeBody[map[string]any](t, rec)
	require.Equal(t, "active", status["status"])
	require.Equal(t, testPhone, status["phone_number"])

	rec = doRequest(t, env.server, http.MethodGet, "/api/get-credential-info/+15551234567", "", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "not_found")

	seed(t, env, &sessions.Record{
		PhoneNumber:    testPhone,
		Status:         sessions.StatusProofVerified,
		ConnectionID:   "c1",
		CredentialData: map[string]string{"Name": "Jane Doe"},
	})
	rec = doRequest(t, env.server, http.MethodGet, "/api/get-credential-info/+15551234567", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"Name":"Jane Doe"}`, rec.Body.String())
}

func TestVerificationHistory(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ledger.Record(context.Background(), audit.Entry{
		PhoneNumber: testPhone,
		Source:      audit.SourceCall,
		Outcome:     string(verification.ReasonVerified),
	}))

	rec := doRequest(t, env.server, http.MethodGet, "/api/verification-history/+15551234567", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody[[]audit.Entry](t, rec)
	require.Len(t, entries, 1)
	require.Equal(t, "verified", entries[0].Outcome)

	rec = doRequest(t, env.server, http.MethodGet, "/api/verification-history/+15550000000", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	rec = doRequest(t, env.server, http.MethodGet, "/api/verification-history/+15551234567?limit=x", "", nil)
	requireErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestConnectionRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := doRequest(t, env.server, http.MethodPost, "/api/create-connection", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "invitationUrl")

	rec = doRequest(t, env.server, http.MethodGet, "/api/connection/inv-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"invitationId":"inv-1","connectionId":"c1"}`, rec.Body.String())

	rec = doRequest(t, env.server, http.MethodPost, "/api/issue-credential", `{"connectionId":"c1","credentialValues":{"Name":"Jane Doe"}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]any{"Name": "Jane Doe"}, env.connections.issued)

	rec = doRequest(t, env.server, http.MethodPost, "/api/issue-credential", `{"connectionId":"c1"}`, nil)
	requireErrorCode(t, rec, http.StatusBadRequest, "invalid_request")
}

func TestRequireAuth(t *testing.T) {
	const secret = "test-jwt-secret"
	const apiKey = "pathway-webhook-key"

	hash, err := cryptoutil.HashString(apiKey)
	require.NoError(t, err)
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("API_KEY_HASH", hash)
	env := newTestEnv(t)

	sign := func(method jwt.SigningMethod, key any, exp time.Time) string {
		token := jwt.NewWithClaims(method, jwt.MapClaims{"sub": "agent", "exp": exp.Unix()})
		signed, err := token.SignedString(key)
		require.NoError(t, err)
		return signed
	}

	tests := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"no credentials", nil, http.StatusUnauthorized},
		{"malformed header", map[string]string{"Authorization": "Token abc"}, http.StatusUnauthorized},
		{"valid token", map[string]string{"Authorization": "Bearer " + sign(jwt.SigningMethodHS256, []byte(secret), time.Now().Add(time.Hour))}, http.StatusNotFound},
		{"expired token", map[string]string{"Authorization": "Bearer " + sign(jwt.SigningMethodHS256, []byte(secret), time.Now().Add(-time.Hour))}, http.StatusUnauthorized},
		{"wrong secret", map[string]string{"Authorization": "Bearer " + sign(jwt.SigningMethodHS256, []byte("other"), time.Now().Add(time.Hour))}, http.StatusUnauthorized},
		{"wrong algorithm", map[string]string{"Authorization": "Bearer " + sign(jwt.SigningMethodHS512, []byte(secret), time.Now().Add(time.Hour))}, http.StatusUnauthorized},
		{"valid API key", map[string]string{"X-API-Key": apiKey}, http.StatusNotFound},
		{"wrong API key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// An authorised request reaches the handler, which finds no session.
			rec := doRequest(t, env.server, http.MethodGet, "/api/get-vai-status/+15551234567", "", tt.headers)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	t.Run("public routes stay open", func(t *testing.T) {
		rec := doRequest(t, env.server, http.MethodGet, "/status", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestWalletRoutes(t *testing.T) {
	const walletSecret = "wallet-secret"
	encrypted, err := cryptoutil.EncryptString("wallet-api-token", walletSecret)
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + encrypted}

	env := newTestEnv(t)

	rec := doRequest(t, env.server, http.MethodGet, "/wallet/connections?walletSecret="+walletSecret, "", bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, env.server, http.MethodPost, "/wallet/connections/accept", `{"walletSecret":"wallet-secret","invitationUrl":"https://example.com/inv","label":"agent"}`, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, env.server, http.MethodPost, "/wallet/proof/send-request", `{"walletSecret":"wallet-secret","connectionId":"c1"}`, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, env.server, http.MethodGet, "/wallet/proof/status?walletSecret=wallet-secret&proofRecordId=pr-1", "", bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, []string{"wallet-api-token", "wallet-api-token", "wallet-api-token", "wallet-api-token"}, env.wallet.tokens)

	t.Run("wrong secret", func(t *testing.T) {
		rec := doRequest(t, env.server, http.MethodGet, "/wallet/connections?walletSecret=other", "", bearer)
		requireErrorCode(t, rec, http.StatusUnauthorized, "unauthorized")
	})

	t.Run("create wallet", func(t *testing.T) {
		rec := doRequest(t, env.server, http.MethodPost, "/wallet/create", `{"label":"agent","secret":"s"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"label":"agent"}`, rec.Body.String())
	})
}

func TestCORS(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")
	env := newTestEnv(t)

	rec := doRequest(t, env.server, http.MethodOptions, "/api/make-phone-call", "", map[string]string{
		"Origin":                        "https://app.example.com",
		"Access-Control-Request-Method": http.MethodPost,
	})
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doRequest(t, env.server, http.MethodGet, "/status", "", map[string]string{"Origin": "https://evil.example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
