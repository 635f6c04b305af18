package server

import (
	"context"
	"encoding/json"

	"github.com/jrsteele09/vai-agent-server/bland"
	"github.com/jrsteele09/vai-agent-server/hovi"
	"github.com/jrsteele09/vai-agent-server/verification"
	"github.com/jrsteele09/vai-agent-server/wallet"
)

type CallVerifier interface {
	VerifyDuringCall(ctx context.Context, phoneNumber string) (verification.Outcome, error)
}

// ConnectionService covers the issuer side of the verification platform.
type ConnectionService interface {
	CreateConnection(ctx context.Context, request hovi.ConnectionRequest) (json.RawMessage, error)
	FindConnection(ctx context.Context, invitationID string) (json.RawMessage, error)
	IssueAnonCredCredential(ctx context.Context, connectionID string, values map[string]any) (json.RawMessage, error)
}

type CallService interface {
	MakeCall(ctx context.Context, phoneNumber string) (*bland.CallResponse, error)
}

type WalletService interface {
	CreateWallet(ctx context.Context, label, secret string) (json.RawMessage, error)
	ListConnections(ctx context.Context, token string) (json.RawMessage, error)
	AcceptConnection(ctx context.Context, token, invitationURL, label string) (json.RawMessage, error)
	SendProofRequest(ctx context.Context, token, connectionID string) (json.RawMessage, error)
	GetProofStatus(ctx context.Context, token, proofRecordID string) (json.RawMessage, error)
}

var (
	_ CallVerifier      = (*verification.CallVerifier)(nil)
	_ ConnectionService = (*hovi.Client)(nil)
	_ CallService       = (*bland.Client)(nil)
	_ WalletService     = (*wallet.Client)(nil)
)
