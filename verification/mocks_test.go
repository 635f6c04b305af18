package verification_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/vai-agent-server/audit"
	"github.com/jrsteele09/vai-agent-server/hovi"
	"github.com/jrsteele09/vai-agent-server/internal/errors"
)

// fakeProofService replays a scripted sequence of proof states. Once the script is
// exhausted the last response repeats. Like the platform's find endpoint, the
// returned records do not carry the proof exchange id.
type fakeProofService struct {
	lock     sync.Mutex
	sendErr  error
	sent     []string
	script   []proofResponse
	findCall int
}

type proofResponse struct {
	proof *hovi.ProofRecord
	err   error
}

func (f *fakeProofService) SendProofRequest(_ context.Context, connectionID string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, connectionID)
	return fmt.Sprintf("pe-%d", len(f.sent)), nil
}

func (f *fakeProofService) FindProofRequest(_ context.Context, proofExchangeID string) (*hovi.ProofRecord, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.findCall++
	if len(f.script) == 0 {
		return &hovi.ProofRecord{State: hovi.ProofStatePending}, nil
	}
	i := f.findCall - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	response := f.script[i]
	if response.err != nil {
		return nil, response.err
	}
	proof := *response.proof
	return &proof, nil
}

func (f *fakeProofService) calls() (sent int, found int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.sent), f.findCall
}

type fakeTrustChain struct {
	lock    sync.Mutex
	err     error
	checked []string
}

func (f *fakeTrustChain) VerifyResource(_ context.Context, credDefID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.checked = append(f.checked, credDefID)
	return f.err
}

type fakePresentationService struct {
	lock      sync.Mutex
	pending   []hovi.ProofRecord
	listErr   error
	submitErr error
	submitted []string
	declined  []string
	lists     int
}

func (f *fakePresentationService) ListProofRequests(_ context.Context, state hovi.ProofState) ([]hovi.ProofRecord, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if state != hovi.ProofStatePending {
		return nil, nil
	}
	return append([]hovi.ProofRecord(nil), f.pending...), nil
}

func (f *fakePresentationService) SubmitPresentation(_ context.Context, proofExchangeID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, proofExchangeID)
	return nil
}

func (f *fakePresentationService) DeclineRequest(_ context.Context, proofExchangeID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.declined = append(f.declined, proofExchangeID)
	return nil
}

func (f *fakePresentationService) listCount() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.lists
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

func verifiedProof(attrs map[string]string, credDefIDs ...string) *hovi.ProofRecord {
	revealed := make(map[string]hovi.RevealedAttr, len(attrs))
	for name, raw := range attrs {
		revealed[name] = hovi.RevealedAttr{Raw: raw}
	}
	identifiers := make([]hovi.Identifier, 0, len(credDefIDs))
	for _, id := range credDefIDs {
		identifiers = append(identifiers, hovi.Identifier{CredDefID: id})
	}
	return &hovi.ProofRecord{
		ConnectionID: "c1",
		State:        hovi.ProofStateDone,
		IsVerified:   true,
		PresentationExchange: &hovi.PresentationExchange{
			Presentation: &hovi.Presentation{
				AnonCreds: &hovi.AnonCredsPresentation{
					RequestedProof: hovi.RequestedProof{RevealedAttrs: revealed},
					Identifiers:    identifiers,
				},
			},
		},
	}
}

var errPlatformDown = errors.Wrapf(errors.ErrUpstream, "platform down")
