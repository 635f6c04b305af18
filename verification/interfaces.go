package verification

import (
	"context"

	"github.com/jrsteele09/vai-agent-server/cheqd"
	"github.com/jrsteele09/vai-agent-server/hovi"
)

// ProofService is the verifier side of the platform: it asks holders for proofs.
type ProofService interface {
	SendProofRequest(ctx context.Context, connectionID string) (string, error)
	FindProofRequest(ctx context.Context, proofExchangeID string) (*hovi.ProofRecord, error)
}

// PresentationService is the holder side: the agent answering proof requests it received.
type PresentationService interface {
	ListProofRequests(ctx context.Context, state hovi.ProofState) ([]hovi.ProofRecord, error)
	SubmitPresentation(ctx context.Context, proofExchangeID string) error
	DeclineRequest(ctx context.Context, proofExchangeID string) error
}

// TrustChainVerifier confirms a credential definition is anchored to its issuer's DID.
// Errors wrapping errors.ErrTrustChain are a verdict; anything else means the answer
// is unknown.
type TrustChainVerifier interface {
	VerifyResource(ctx context.Context, credDefID string) error
}

var (
	_ ProofService        = (*hovi.Client)(nil)
	_ PresentationService = (*hovi.Client)(nil)
	_ TrustChainVerifier  = (*cheqd.Resolver)(nil)
)
