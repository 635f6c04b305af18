package server_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/jrsteele09/vai-agent-server/audit"
	"github.com/jrsteele09/vai-agent-server/bland"
	"github.com/jrsteele09/vai-agent-server/hovi"
	"github.com/jrsteele09/vai-agent-server/internal/config"
	"github.com/jrsteele09/vai-agent-server/server"
	"github.com/jrsteele09/vai-agent-server/sessions/repofakes"
	"github.com/jrsteele09/vai-agent-server/verification"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	outcome verification.Outcome
	err     error
	phones  []string
}

func (f *fakeVerifier) VerifyDuringCall(_ context.Context, phoneNumber string) (verification.Outcome, error) {
	f.phones = append(f.phones, phoneNumber)
	if f.err != nil {
		return verification.Outcome{}, f.err
	}
	outcome := f.outcome
	outcome.PhoneNumber = phoneNumber
	return outcome, nil
}

type fakeConnections struct {
	issued map[string]any
}

func (f *fakeConnections) CreateConnection(_ context.Context, request hovi.ConnectionRequest) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"label": request.Label, "invitationUrl": "https://example.com/inv"})
}

func (f *fakeConnections) FindConnection(_ context.Context, invitationID string) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"invitationId": invitationID, "connectionId": "c1"})
}

func (f *fakeConnections) IssueAnonCredCredential(_ context.Context, connectionID string, values map[string]any) (json.RawMessage, error) {
	f.issued = values
	return json.Marshal(map[string]string{"connectionId": connectionID})
}

type fakeCalls struct {
	err   error
	calls []string
}

func (f *fakeCalls) MakeCall(_ context.Context, phoneNumber string) (*bland.CallResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, phoneNumber)
	return &bland.CallResponse{Status: "success", CallID: "call-1"}, nil
}

type fakeWallet struct {
	tokens []string
}

func (f *fakeWallet) record(token string) (json.RawMessage, error) {
	f.tokens = append(f.tokens, token)
	return json.RawMessage(`{"ok":true}`), nil
}

func (f *fakeWallet) CreateWallet(_ context.Context, label, _ string) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"label": label})
}

func (f *fakeWallet) ListConnections(_ context.Context, token string) (json.RawMessage, error) {
	return f.record(token)
}

func (f *fakeWallet) AcceptConnection(_ context.Context, token, _, _ string) (json.RawMessage, error) {
	return f.record(token)
}

func (f *fakeWallet) SendProofRequest(_ context.Context, token, _ string) (json.RawMessage, error) {
	return f.record(token)
}

func (f *fakeWallet) GetProofStatus(_ context.Context, token, _ string) (json.RawMessage, error) {
	return f.record(token)
}

type fakeLedger struct {
	lock    sync.Mutex
	entries []audit.Entry
}

func (f *fakeLedger) Record(_ context.Context, entry audit.Entry) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeLedger) ListByPhone(_ context.Context, phoneNumber string, _ int) ([]audit.Entry, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var out []audit.Entry
	for _, e := range f.entries {
		if e.PhoneNumber == phoneNumber {
			out = append(out, e)
		}
	}
	return out, nil
}

type testEnv struct {
	server      *server.Server
	sessions    *repofakes.FakeSessionRepo
	verifier    *fakeVerifier
	connections *fakeConnections
	calls       *fakeCalls
	wallet      *fakeWallet
	ledger      *fakeLedger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		sessions:    repofakes.NewFakeSessionRepo(),
		verifier:    &fakeVerifier{outcome: verification.Outcome{Reason: verification.ReasonNoSession}},
		connections: &fakeConnections{},
		calls:       &fakeCalls{},
		wallet:      &fakeWallet{},
		ledger:      &fakeLedger{},
	}
	srv, err := server.New(config.New(), server.Services{
		Sessions:    env.sessions,
		Verifier:    env.verifier,
		Connections: env.connections,
		Calls:       env.calls,
		Wallet:      env.wallet,
		Audit:       env.ledger,
	})
	require.NoError(t, err)
	env.server = srv
	return env
}
