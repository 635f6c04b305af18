// Package cheqd checks that AnonCreds credential definitions are published as
// DID-linked resources of their issuer on the cheqd network.
package cheqd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/vai-agent-server/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	resourceSeparator = "/resources/"
	defaultTimeout    = 15 * time.Second
	apiKeyHeader      = "x-api-key"
)

// ResourceRef is a DID-linked resource identifier split into its parts.
type ResourceRef struct {
	IssuerDID  string
	ResourceID string
}

// ParseResourceID splits "did:cheqd:<network>:<id>/resources/<resourceId>".
func ParseResourceID(id string) (ResourceRef, error) {
	did, resourceID, ok := strings.Cut(strings.TrimSpace(id), resourceSeparator)
	if !ok || !strings.HasPrefix(did, "did:cheqd:") || resourceID == "" || strings.Contains(resourceID, "/") {
		return ResourceRef{}, fmt.Errorf("%w: %q is not a cheqd DID-linked resource", errors.ErrTrustChain, id)
	}
	return ResourceRef{IssuerDID: did, ResourceID: resourceID}, nil
}

// Resolver queries the resource search API.
type Resolver struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewResolver(baseURL, apiKey string, httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Resolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

// VerifyResource returns nil only when the issuer's DID resolves the referenced
// resource with HTTP 200. A 4xx answer is a trust chain failure; transport failures
// and 5xx answers are reported as upstream errors so callers can tell them apart.
func (r *Resolver) VerifyResource(ctx context.Context, credDefID string) error {
	ref, err := ParseResourceID(credDefID)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/resource/search/%s?resourceId=%s", r.baseURL, ref.IssuerDID, url.QueryEscape(ref.ResourceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("[cheqd VerifyResource] build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set(apiKeyHeader, r.apiKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("issuer_did", ref.IssuerDID).Msg("Resource resolver unreachable")
		return fmt.Errorf("[cheqd VerifyResource] %w: %w", errors.ErrUpstream, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		log.Warn().Int("status", resp.StatusCode).Str("issuer_did", ref.IssuerDID).Msg("Resource resolver failed")
		return fmt.Errorf("[cheqd VerifyResource] %w: status %d", errors.ErrUpstream, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		log.Info().
			Int("status", resp.StatusCode).
			Str("issuer_did", ref.IssuerDID).
			Str("resource_id", ref.ResourceID).
			Msg("Credential definition not published by issuer")
		return fmt.Errorf("[cheqd VerifyResource] %w: %s resource %s returned status %d",
			errors.ErrTrustChain, ref.IssuerDID, ref.ResourceID, resp.StatusCode)
	}
	return nil
}
