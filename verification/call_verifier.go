package verification

import (
	"context"
	"time"

	"github.com/jrsteele09/vai-agent-server/audit"
	"github.com/jrsteele09/vai-agent-server/hovi"
	"github.com/jrsteele09/vai-agent-server/internal/errors"
	"github.com/jrsteele09/vai-agent-server/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 120 * time.Second
)

type CallVerifierOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
	SessionTTL   time.Duration
}

// CallVerifier sends a proof request over the connection bound to an active call and
// waits, within a bounded window, for the holder to answer it.
type CallVerifier struct {
	sessions sessions.Repo
	proofs   ProofService
	trust    TrustChainVerifier
	ledger   audit.Recorder // Optional
	opts     CallVerifierOptions
}

func NewCallVerifier(repo sessions.Repo, proofs ProofService, trust TrustChainVerifier, ledger audit.Recorder, opts CallVerifierOptions) *CallVerifier {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPollTimeout
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = sessions.DefaultTTL
	}
	return &CallVerifier{
		sessions: repo,
		proofs:   proofs,
		trust:    trust,
		ledger:   ledger,
		opts:     opts,
	}
}

// VerifyDuringCall requests a proof from the holder on the phone number's session
// connection and polls until it resolves, is abandoned, or the timeout elapses.
//
// Business results (no session, timeout, abandoned, trust chain failure, verified) are
// returned as an Outcome with a nil error. An error means the state is unknown: the
// store or the platform could not be reached, or ctx was cancelled.
func (v *CallVerifier) VerifyDuringCall(ctx context.Context, phoneNumber string) (Outcome, error) {
	logger := log.With().Str("phone_number", phoneNumber).Logger()

	record, err := v.sessions.Get(ctx, phoneNumber)
	if errors.Is(err, errors.ErrSessionNotFound) {
		logger.Info().Msg("No active call session, skipping proof request")
		return Outcome{Reason: ReasonNoSession, PhoneNumber: phoneNumber}, nil
	}
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "[CallVerifier VerifyDuringCall] session lookup")
	}
	if record.ConnectionID == "" {
		return Outcome{}, errors.Wrapf(errors.ErrInvalidRequest, "[CallVerifier VerifyDuringCall] session %s has no connection", phoneNumber)
	}

	proofExchangeID, err := v.proofs.SendProofRequest(ctx, record.ConnectionID)
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "[CallVerifier VerifyDuringCall] send proof request")
	}
	logger = logger.With().Str("proof_exchange_id", proofExchangeID).Str("connection_id", record.ConnectionID).Logger()
	logger.Info().Msg("Proof request sent, polling for presentation")

	outcome, err := v.poll(ctx, logger, phoneNumber, proofExchangeID)
	if err != nil {
		return Outcome{}, err
	}

	v.audit(ctx, audit.Entry{
		PhoneNumber:     phoneNumber,
		ProofExchangeID: proofExchangeID,
		ConnectionID:    record.ConnectionID,
		Source:          audit.SourceCall,
		Outcome:         string(outcome.Reason),
		Detail:          outcome.Detail,
	})
	logger.Info().Str("outcome", string(outcome.Reason)).Msg("Call verification finished")
	return outcome, nil
}

func (v *CallVerifier) poll(ctx context.Context, logger zerolog.Logger, phoneNumber, proofExchangeID string) (Outcome, error) {
	pollCtx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(v.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return Outcome{}, err
			}
			return Outcome{Reason: ReasonTimeout, PhoneNumber: phoneNumber, ProofExchangeID: proofExchangeID}, nil
		case <-ticker.C:
		}

		proof, err := v.proofs.FindProofRequest(pollCtx, proofExchangeID)
		if err != nil {
			if pollCtx.Err() == nil {
				logger.Warn().Err(err).Msg("Proof status check failed, retrying")
			}
			continue
		}

		switch {
		case proof.State == hovi.ProofStateAbandoned:
			return Outcome{Reason: ReasonAbandoned, PhoneNumber: phoneNumber, ProofExchangeID: proofExchangeID}, nil
		case proof.Resolved():
			return v.resolve(ctx, logger, phoneNumber, proofExchangeID, proof)
		}
	}
}

// resolve runs the trust chain check on a verified proof and records the result on
// the session. Only a definitive trust chain failure rejects the session; a resolver
// that cannot be reached leaves it untouched.
func (v *CallVerifier) resolve(ctx context.Context, logger zerolog.Logger, phoneNumber, proofExchangeID string, proof *hovi.ProofRecord) (Outcome, error) {
	outcome := Outcome{PhoneNumber: phoneNumber, ProofExchangeID: proofExchangeID}

	if err := v.checkTrustChain(ctx, proofExchangeID, proof); err != nil {
		if !errors.Is(err, errors.ErrTrustChain) {
			return Outcome{}, errors.Wrapf(err, "[CallVerifier resolve] trust chain lookup for %s", proofExchangeID)
		}
		logger.Warn().Err(err).Msg("Proof verified but trust chain check failed")
		outcome.Reason = ReasonTrustChainFailure
		outcome.Detail = err.Error()
		if err := v.transition(ctx, phoneNumber, sessions.StatusRejected, nil); err != nil {
			return Outcome{}, err
		}
		return outcome, nil
	}

	credentialData := proof.RevealedAttributes()
	if err := v.transition(ctx, phoneNumber, sessions.StatusProofVerified, credentialData); err != nil {
		return Outcome{}, err
	}
	outcome.Reason = ReasonVerified
	outcome.CredentialData = credentialData
	return outcome, nil
}

func (v *CallVerifier) checkTrustChain(ctx context.Context, proofExchangeID string, proof *hovi.ProofRecord) error {
	credDefIDs := proof.CredentialDefinitionIDs()
	if len(credDefIDs) == 0 {
		return errors.Wrapf(errors.ErrTrustChain, "proof %s references no credential definition", proofExchangeID)
	}
	for _, credDefID := range credDefIDs {
		if err := v.trust.VerifyResource(ctx, credDefID); err != nil {
			return err
		}
	}
	return nil
}

// transition moves the session to status. A session that expired while the proof was
// in flight is not an error; the outcome still stands.
func (v *CallVerifier) transition(ctx context.Context, phoneNumber string, status sessions.Status, credentialData map[string]string) error {
	_, err := sessions.Mutate(ctx, v.sessions, phoneNumber, v.opts.SessionTTL, func(r *sessions.Record) error {
		r.Status = status
		if credentialData != nil {
			r.CredentialData = credentialData
		}
		return nil
	})
	if errors.Is(err, errors.ErrSessionNotFound) {
		log.Warn().Str("phone_number", phoneNumber).Str("status", string(status)).Msg("Session expired before status update")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "[CallVerifier transition] %s -> %s", phoneNumber, status)
	}
	return nil
}

func (v *CallVerifier) audit(ctx context.Context, entry audit.Entry) {
	if v.ledger == nil {
		return
	}
	if err := v.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn().Err(err).Str("phone_number", entry.PhoneNumber).Msg("Failed to record verification outcome")
	}
}
