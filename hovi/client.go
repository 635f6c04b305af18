// Package hovi is a client for the credential issuance and verification platform:
// DIDComm connections, AnonCreds credential offers and proof exchanges.
package hovi

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
	"golang.org/x/oauth2"
)

const (
	defaultTimeout        = 30 * time.Second
	tenantHeader          = "x-tenant-id"
	credentialComment     = "vAI Demo Credential"
	proofRequestComment   = "vAI call verification"
	maxErrorBodyBytes     = 4096
	contentTypeJSON       = "application/json"
	defaultConnectionName = "Acme Financial Group"
)

// Options configures a Client for one tenant.
type Options struct {
	BaseURL                string
	APIKey                 string
	TenantID               string
	CredentialTemplateID   string
	VerificationTemplateID string
	// HTTPClient is the base client wrapped with bearer authentication. Optional.
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the platform on behalf of a single tenant.
type Client struct {
	baseURL                string
	tenantID               string
	apiKey                 string
	credentialTemplateID   string
	verificationTemplateID string
	http                   *http.Client
}

// ConnectionRequest is the body of POST /connection/create.
type ConnectionRequest struct {
	Label                string `json:"label"`
	Alias                string `json:"alias,omitempty"`
	AutoAcceptConnection bool   `json:"autoAcceptConnection"`
	MultiUseInvitation   bool   `json:"multiUseInvitation"`
	Domain               string `json:"domain,omitempty"`
	ImageURL             string `json:"imageUrl,omitempty"`
}

// DefaultConnectionRequest is the invitation the demo agent hands out.
func DefaultConnectionRequest() ConnectionRequest {
	return ConnectionRequest{
		Label:                defaultConnectionName,
		Alias:                "fg",
		AutoAcceptConnection: true,
		MultiUseInvitation:   false,
		Domain:               "acme-financial-group.com",
		ImageURL:             "https://hovi-assets.s3.eu-central-1.amazonaws.com/studio-assets/tenants/images/acme-financial-group-image-1744552187457.jpeg",
	}
}

type envelope[T any] struct {
	Response T `json:"response"`
}

// New builds a Client. Missing credentials are reported when a call is made.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	ctx := context.Background()
	if opts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, opts.HTTPClient)
	}
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey}))
	httpClient.Timeout = timeout

	return &Client{
		baseURL:                strings.TrimRight(opts.BaseURL, "/"),
		tenantID:               opts.TenantID,
		apiKey:                 opts.APIKey,
		credentialTemplateID:   opts.CredentialTemplateID,
		verificationTemplateID: opts.VerificationTemplateID,
		http:                   httpClient,
	}
}

func (c *Client) checkConfig(extra ...string) error {
	var missing []string
	if c.baseURL == "" {
		missing = append(missing, "API_ENDPOINT")
	}
	if c.apiKey == "" {
		missing = append(missing, "HOVI_API_KEY")
	}
	if c.tenantID == "" {
		missing = append(missing, "TENANT_ID")
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if extra[i+1] == "" {
			missing = append(missing, extra[i])
		}
	}
	if len(missing) > 0 {
		return errors.MissingConfig(missing...)
	}
	return nil
}

// do sends a JSON request and decodes a 2xx response into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("[hovi %s %s] encode request: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("[hovi %s %s] build request: %w", method, path, err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set(tenantHeader, c.tenantID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("[hovi %s %s] %w: %w", method, path, errors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("[hovi %s %s] %w: status %d: %s", method, path, errors.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("[hovi %s %s] %w: decode response: %w", method, path, errors.ErrUpstream, err)
	}
	return nil
}

// CreateConnection creates an out-of-band invitation and returns the platform's response.
func (c *Client) CreateConnection(ctx context.Context, request ConnectionRequest) (json.RawMessage, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/connection/create", request, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindConnection looks up a connection by the invitation that created it.
func (c *Client) FindConnection(ctx context.Context, invitationID string) (json.RawMessage, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	var out json.RawMessage
	path := "/connection/find?invitationId=" + url.QueryEscape(invitationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IssueAnonCredCredential offers an AnonCreds credential built from the configured template.
func (c *Client) IssueAnonCredCredential(ctx context.Context, connectionID string, values map[string]any) (json.RawMessage, error) {
	if err := c.checkConfig("CREDENTIAL_TEMPLATE_ID", c.credentialTemplateID); err != nil {
		return nil, err
	}
	body := map[string]any{
		"connectionId":         connectionID,
		"credentialTemplateId": c.credentialTemplateID,
		"credentialValues":     values,
		"comment":              credentialComment,
	}
	var out json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/credential/anoncred/offer", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendProofRequest asks the holder on connectionID for a presentation and returns the
// proof exchange id.
func (c *Client) SendProofRequest(ctx context.Context, connectionID string) (string, error) {
	if err := c.checkConfig("VERIFICATION_TEMPLATE_ID", c.verificationTemplateID); err != nil {
		return "", err
	}
	body := map[string]string{
		"verificationTemplateId": c.verificationTemplateID,
		"connectionId":           connectionID,
		"comment":                proofRequestComment,
	}
	var out envelope[struct {
		ProofExchangeID string `json:"proofExchangeId"`
	}]
	if err := c.do(ctx, http.MethodPost, "/verification/send-proof-request", body, &out); err != nil {
		return "", err
	}
	if out.Response.ProofExchangeID == "" {
		return "", fmt.Errorf("[hovi SendProofRequest] %w: response has no proofExchangeId", errors.ErrUpstream)
	}
	return out.Response.ProofExchangeID, nil
}

// FindProofRequest fetches the current state of a proof exchange.
func (c *Client) FindProofRequest(ctx context.Context, proofExchangeID string) (*ProofRecord, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	var out envelope[*ProofRecord]
	path := "/verification/proof-request/find?proofExchangeId=" + url.QueryEscape(proofExchangeID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Response == nil {
		return nil, fmt.Errorf("[hovi FindProofRequest] %w: empty response for %s", errors.ErrUpstream, proofExchangeID)
	}
	return out.Response, nil
}

// ListProofRequests returns the proof exchanges in the given state.
func (c *Client) ListProofRequests(ctx context.Context, state ProofState) ([]ProofRecord, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	var out envelope[[]ProofRecord]
	path := "/verification/proof-request?state=" + url.QueryEscape(string(state))
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Response, nil
}

// SubmitPresentation answers a received proof request with the agent's credentials.
func (c *Client) SubmitPresentation(ctx context.Context, proofExchangeID string) error {
	if err := c.checkConfig(); err != nil {
		return err
	}
	body := map[string]string{"proofRecordId": proofExchangeID}
	return c.do(ctx, http.MethodPost, "/verification/submit-presentation", body, nil)
}

// DeclineRequest rejects a received proof request.
func (c *Client) DeclineRequest(ctx context.Context, proofExchangeID string) error {
	if err := c.checkConfig(); err != nil {
		return err
	}
	body := map[string]string{"proofExchangeId": proofExchangeID}
	return c.do(ctx, http.MethodPost, "/verification/decline-request", body, nil)
}
