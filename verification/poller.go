package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/vai-agent-server/audit"
	"github.com/jrsteele09/vai-agent-server/hovi"
	"github.com/jrsteele09/vai-agent-server/internal/errors"
	"github.com/jrsteele09/vai-agent-server/sessions"
	"github.com/rs/zerolog/log"
)

const DefaultReconcileInterval = 5 * time.Second

// TickResult counts what a single reconcile pass did.
type TickResult struct {
	Pending   int `json:"pending"`
	Submitted int `json:"submitted"`
	Declined  int `json:"declined"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Poller answers the proof requests the agent has received. A request whose
// connection is bound to a live call session gets a presentation; any other request
// is declined. The poller never changes session status.
type Poller struct {
	sessions sessions.Repo
	agent    PresentationService
	ledger   audit.Recorder // Optional
	interval time.Duration
}

func NewPoller(repo sessions.Repo, agent PresentationService, ledger audit.Recorder, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	return &Poller{
		sessions: repo,
		agent:    agent,
		ledger:   ledger,
		interval: interval,
	}
}

// Run ticks immediately and then every interval until ctx is cancelled, returning
// ctx.Err(). A failing tick is logged and does not stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().Dur("interval", p.interval).Msg("Proof poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.safeTick(ctx)

		select {
		case <-ctx.Done():
			log.Info().Msg("Proof poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic in proof poller tick")
		}
	}()

	result, err := p.Tick(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Proof poller tick failed")
		}
		return
	}
	if result.Pending > 0 {
		log.Info().
			Int("pending", result.Pending).
			Int("submitted", result.Submitted).
			Int("declined", result.Declined).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Msg("Proof poller tick")
	}
}

// Tick processes every pending proof request once. It only returns an error when the
// pending list itself could not be fetched; failures on individual requests are
// counted in the result.
func (p *Poller) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult

	pending, err := p.agent.ListProofRequests(ctx, hovi.ProofStatePending)
	if err != nil {
		return result, errors.Wrapf(err, "[Poller Tick] list pending proof requests")
	}

	for _, proof := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if proof.State != hovi.ProofStatePending {
			continue
		}
		result.Pending++

		decision, phoneNumber, err := p.reconcile(ctx, proof)
		switch {
		case err != nil:
			result.Failed++
			log.Warn().Err(err).Str("proof_exchange_id", proof.ProofExchangeID).Msg("Failed to answer proof request")
			continue
		case decision == DecisionSubmitted:
			result.Submitted++
		case decision == DecisionDeclined:
			result.Declined++
		case decision == DecisionSkipped:
			result.Skipped++
			continue
		}

		p.audit(ctx, audit.Entry{
			PhoneNumber:     phoneNumber,
			ProofExchangeID: proof.ProofExchangeID,
			ConnectionID:    proof.ConnectionID,
			Source:          audit.SourceReconcile,
			Outcome:         string(decision),
		})
	}
	return result, nil
}

func (p *Poller) reconcile(ctx context.Context, proof hovi.ProofRecord) (Decision, string, error) {
	if proof.ProofExchangeID == "" {
		return DecisionSkipped, "", nil
	}

	if proof.ConnectionID == "" {
		return DecisionDeclined, "", p.decline(ctx, proof)
	}

	phoneNumber, err := p.sessions.FindPhoneByConnection(ctx, proof.ConnectionID)
	switch {
	case errors.Is(err, errors.ErrSessionNotFound):
		return DecisionDeclined, "", p.decline(ctx, proof)
	case err != nil:
		// The store is unreachable, so whether a call is live is unknown. Leave the
		// request pending for the next tick rather than declining a real caller.
		log.Warn().Err(err).Str("connection_id", proof.ConnectionID).Msg("Session lookup failed, leaving proof request pending")
		return DecisionSkipped, "", nil
	}

	if err := p.agent.SubmitPresentation(ctx, proof.ProofExchangeID); err != nil {
		return "", phoneNumber, fmt.Errorf("[Poller reconcile] submit %s: %w", proof.ProofExchangeID, err)
	}
	log.Info().
		Str("proof_exchange_id", proof.ProofExchangeID).
		Str("phone_number", phoneNumber).
		Msg("Presentation submitted for active call")
	return DecisionSubmitted, phoneNumber, nil
}

func (p *Poller) decline(ctx context.Context, proof hovi.ProofRecord) error {
	if err := p.agent.DeclineRequest(ctx, proof.ProofExchangeID); err != nil {
		return fmt.Errorf("[Poller decline] %s: %w", proof.ProofExchangeID, err)
	}
	log.Info().
		Str("proof_exchange_id", proof.ProofExchangeID).
		Str("connection_id", proof.ConnectionID).
		Msg("Proof request declined, no active call session")
	return nil
}

func (p *Poller) audit(ctx context.Context, entry audit.Entry) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn().Err(err).Str("proof_exchange_id", entry.ProofExchangeID).Msg("Failed to record reconcile decision")
	}
}
