// Package wallet is a client for the cloud wallet API used by the AI agent to hold
// its own credentials.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/vai-agent-server/internal/errors"
)

const (
	defaultTimeout    = 30 * time.Second
	protocolDIDComm   = "didcomm"
	proofRequestLabel = "AI Agent Verification"
	proofRequestVer   = "1.0.0"
	maxErrorBodyBytes = 4096
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type RequestedAttribute struct {
	Name string `json:"name"`
}

type proofRequest struct {
	Protocol                   string                        `json:"protocol"`
	ConnectionID               string                        `json:"connectionId"`
	PresentationRequestLabel   string                        `json:"presentationRequestLabel"`
	PresentationRequestVersion string                        `json:"presentationRequestVersion"`
	RequestedAttributes        map[string]RequestedAttribute `json:"requestedAttributes"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("[wallet %s %s] encode request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("[wallet %s %s] build request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[wallet %s %s] %w: %w", method, path, errors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("[wallet %s %s] %w: read response: %w", method, path, errors.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBodyBytes {
			data = data[:maxErrorBodyBytes]
		}
		return nil, fmt.Errorf("[wallet %s %s] %w: status %d: %s", method, path, errors.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("[wallet %s %s] %w: response is not JSON", method, path, errors.ErrUpstream)
	}
	return data, nil
}

// CreateWallet provisions a wallet protected by secret.
func (c *Client) CreateWallet(ctx context.Context, label, secret string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/wallet/create", "", map[string]string{
		"label":  label,
		"secret": secret,
	})
}

func (c *Client) ListConnections(ctx context.Context, token string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/connection", token, nil)
}

// AcceptConnection accepts an out-of-band invitation on behalf of the wallet.
func (c *Client) AcceptConnection(ctx context.Context, token, invitationURL, label string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/connection/accept-invitation", token, map[string]string{
		"invitation": invitationURL,
		"protocol":   protocolDIDComm,
		"label":      label,
	})
}

// SendProofRequest asks the peer on connectionID to prove their name.
func (c *Client) SendProofRequest(ctx context.Context, token, connectionID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/proof/send-request", token, proofRequest{
		Protocol:                   protocolDIDComm,
		ConnectionID:               connectionID,
		PresentationRequestLabel:   proofRequestLabel,
		PresentationRequestVersion: proofRequestVer,
		RequestedAttributes: map[string]RequestedAttribute{
			"0_name": {Name: "name"},
		},
	})
}

func (c *Client) GetProofStatus(ctx context.Context, token, proofRecordID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/proof/"+url.PathEscape(proofRecordID), token, nil)
}
