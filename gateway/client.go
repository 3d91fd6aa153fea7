// SPDX-License-Identifier: GPL-3.0-only

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"accfleet-server/commons"
	"accfleet-server/models"

	"github.com/labstack/gommon/log"
)

// Client talks to the wire-protocol sidecar over its HTTP API. The sidecar
// keeps the live session handles keyed by phone; this client only moves
// outcomes back and forth.
type Client struct {
	BaseURL    *url.URL
	HTTPClient *http.Client
	logger     *log.Logger
}

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

func NewClient(c ClientConfig, logger *log.Logger) (*Client, error) {
	if c.BaseURL == "" {
		c.BaseURL = commons.GetEnv("GATEWAY_API_URL", "http://localhost:8771")
	}
	if c.Timeout == 0 {
		c.Timeout = time.Duration(commons.GetEnvInt("GATEWAY_TIMEOUT_SECONDS", 30)) * time.Second
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		logger.Error("Failed to parse gateway API base URL:", err)
		return nil, err
	}
	logger.Debugf("Session gateway client initialized for %s", c.BaseURL)
	return &Client{
		BaseURL:    parsedURL,
		HTTPClient: &http.Client{Timeout: c.Timeout},
		logger:     logger,
	}, nil
}

type sessionRequest struct {
	APIID   int                 `json:"api_id,omitempty"`
	APIHash string              `json:"api_hash,omitempty"`
	Proxy   *models.ProxyConfig `json:"proxy,omitempty"`
	Code    string              `json:"code,omitempty"`
	Secret  string              `json:"secret,omitempty"`
}

type sessionResponse struct {
	Outcome     string `json:"outcome"`
	Username    string `json:"username,omitempty"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

func (c *Client) Authenticate(ctx context.Context, phone string, creds Credentials, proxy *models.ProxyConfig) (AuthResult, error) {
	resp, err := c.post(ctx, phone, "authenticate", sessionRequest{
		APIID:   creds.APIID,
		APIHash: creds.APIHash,
		Proxy:   proxy,
	})
	if err != nil {
		return 0, err
	}
	switch resp.Outcome {
	case "already_authorized":
		return AuthAlreadyAuthorized, nil
	case "challenge_issued":
		return AuthChallengeIssued, nil
	default:
		return 0, fmt.Errorf("unexpected authenticate outcome %q", resp.Outcome)
	}
}

func (c *Client) Verify(ctx context.Context, phone, code string) (VerifyResult, error) {
	resp, err := c.post(ctx, phone, "verify", sessionRequest{Code: code})
	if err != nil {
		return VerifyResult{}, err
	}
	return mapVerify(resp)
}

func (c *Client) SupplySecondFactor(ctx context.Context, phone, secret string) (VerifyResult, error) {
	resp, err := c.post(ctx, phone, "second-factor", sessionRequest{Secret: secret})
	if err != nil {
		return VerifyResult{}, err
	}
	return mapVerify(resp)
}

func (c *Client) Probe(ctx context.Context, phone string, creds Credentials, proxy *models.ProxyConfig) (ProbeOutcome, error) {
	resp, err := c.post(ctx, phone, "probe", sessionRequest{
		APIID:   creds.APIID,
		APIHash: creds.APIHash,
		Proxy:   proxy,
	})
	if err != nil {
		return 0, err
	}
	switch resp.Outcome {
	case "authorized":
		return ProbeAuthorized, nil
	case "unauthorized":
		return ProbeUnauthorized, nil
	case "banned":
		return ProbeBanned, nil
	case "expired":
		return ProbeExpired, nil
	default:
		return 0, fmt.Errorf("unexpected probe outcome %q", resp.Outcome)
	}
}

func mapVerify(resp *sessionResponse) (VerifyResult, error) {
	switch resp.Outcome {
	case "authorized":
		return VerifyResult{Outcome: VerifyAuthorized, Username: resp.Username}, nil
	case "second_factor_required":
		return VerifyResult{Outcome: VerifySecondFactorRequired}, nil
	case "invalid_code":
		return VerifyResult{Outcome: VerifyInvalidCode}, nil
	default:
		return VerifyResult{}, fmt.Errorf("unexpected verify outcome %q", resp.Outcome)
	}
}

func (c *Client) post(ctx context.Context, phone, action string, body sessionRequest) (*sessionResponse, error) {
	rel := &url.URL{Path: fmt.Sprintf("/v1/sessions/%s/%s", url.PathEscape(phone), action)}
	u := c.BaseURL.ResolveReference(rel)

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway %s for %s failed: %w", action, phone, err)
	}
	defer resp.Body.Close()

	var parsed sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gateway %s for %s returned malformed response: %w", action, phone, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &parsed, nil
	case http.StatusTooManyRequests:
		c.logger.Warnf("Gateway rate limited %s on %s: wait %d seconds", phone, action, parsed.WaitSeconds)
		return nil, &RateLimitedError{WaitSeconds: parsed.WaitSeconds}
	case http.StatusForbidden:
		return nil, &BannedError{Detail: parsed.Detail}
	default:
		return nil, fmt.Errorf("gateway %s for %s failed: %s %s", action, phone, resp.Status, parsed.Detail)
	}
}
