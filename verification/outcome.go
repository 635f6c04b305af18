// Package verification binds live phone calls to identity proofs. CallVerifier
// resolves one proof request within a call; Poller reconciles the proof requests
// received by the agent against the live sessions.
package verification

// Reason is the business result of a verification attempt. Infrastructure faults are
// reported as errors, never as a Reason.
type Reason string

const (
	ReasonVerified          Reason = "verified"
	ReasonNoSession         Reason = "no_session"
	ReasonTimeout           Reason = "timeout"
	ReasonAbandoned         Reason = "abandoned"
	ReasonTrustChainFailure Reason = "trust_chain_failure"
)

// Outcome is the tagged result of VerifyDuringCall.
type Outcome struct {
	Reason          Reason            `json:"reason"`
	PhoneNumber     string            `json:"phoneNumber"`
	ProofExchangeID string            `json:"proofExchangeId,omitempty"`
	CredentialData  map[string]string `json:"credentialData,omitempty"`
	Detail          string            `json:"detail,omitempty"`
}

// Verified reports whether the caller proved their identity.
func (o Outcome) Verified() bool {
	return o.Reason == ReasonVerified
}

// Decision is what the reconcile loop did with a pending proof request.
type Decision string

const (
	DecisionSubmitted Decision = "verified"
	DecisionDeclined  Decision = "rejected"
	DecisionSkipped   Decision = "skipped"
)
