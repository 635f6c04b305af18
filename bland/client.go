// Package bland starts outbound AI agent phone calls.
package bland

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/vai-agent-server/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout         = 15 * time.Second
	defaultBackgroundTrack = "office"
	defaultMaxDuration     = 2 // minutes
	maxErrorBodyBytes      = 4096
)

type Options struct {
	BaseURL    string
	APIKey     string
	PathwayID  string
	FromNumber string
	Voice      string
	HTTPClient *http.Client
}

// CallRequest is the body of POST /v1/calls.
type CallRequest struct {
	PhoneNumber     string `json:"phone_number"`
	PathwayID       string `json:"pathway_id"`
	Voice           string `json:"voice,omitempty"`
	BackgroundTrack string `json:"background_track,omitempty"`
	MaxDuration     int    `json:"max_duration,omitempty"`
	From            string `json:"from,omitempty"`
}

// CallResponse is the part of the call creation response we keep.
type CallResponse struct {
	Status  string `json:"status"`
	CallID  string `json:"call_id"`
	Message string `json:"message,omitempty"`
}

type Client struct {
	opts Options
	http *http.Client
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{opts: opts, http: httpClient}
}

// MakeCall dials phoneNumber and hands the call to the configured conversation pathway.
func (c *Client) MakeCall(ctx context.Context, phoneNumber string) (*CallResponse, error) {
	var missing []string
	if c.opts.APIKey == "" {
		missing = append(missing, "BLAND_AI_API_KEY")
	}
	if c.opts.PathwayID == "" {
		missing = append(missing, "BLAND_AI_PATHWAY")
	}
	if len(missing) > 0 {
		return nil, errors.MissingConfig(missing...)
	}

	payload, err := json.Marshal(CallRequest{
		PhoneNumber:     phoneNumber,
		PathwayID:       c.opts.PathwayID,
		Voice:           c.opts.Voice,
		BackgroundTrack: defaultBackgroundTrack,
		MaxDuration:     defaultMaxDuration,
		From:            c.opts.FromNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("[bland MakeCall] encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/calls", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("[bland MakeCall] build request: %w", err)
	}
	req.Header.Set("authorization", c.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Error().Err(err).Str("phone_number", phoneNumber).Msg("Call API unreachable")
		return nil, fmt.Errorf("[bland MakeCall] %w: %w", errors.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		log.Error().Int("status", resp.StatusCode).Str("phone_number", phoneNumber).Msg("Call API rejected the call")
		return nil, fmt.Errorf("[bland MakeCall] %w: status %d: %s", errors.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out CallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("[bland MakeCall] %w: decode response: %w", errors.ErrUpstream, err)
	}
	log.Debug().Str("phone_number", phoneNumber).Str("call_id", out.CallID).Str("status", out.Status).Msg("Call API accepted the call")
	return &out, nil
}
