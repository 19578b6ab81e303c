package pairing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/quickbars-hub/internal/device"
)

// TV pairing API paths.
const (
	pathPing        = "/api/ping"
	pathPairCode    = "/api/pair/code"
	pathPairConfirm = "/api/pair/confirm"
	pathCredentials = "/api/credentials"

	maxResponseBytes = 64 << 10
)

// ErrPairingRejected is returned when the TV refuses a pairing request,
// usually because the code was wrong or expired.
var ErrPairingRejected = fmt.Errorf("%w: pairing rejected by device", device.ErrInvalidConfiguration)

// Challenge is the TV's answer to a pairing code request.
type Challenge struct {
	// Code is only present when the TV chooses to return it; normally the
	// user reads it off the screen.
	Code string `json:"code,omitempty"`
	SID  string `json:"sid"`
	TTL  int    `json:"ttl"`
}

// ConfirmRequest is the body of a pairing confirmation.
type ConfirmRequest struct {
	Code    string `json:"code"`
	SID     string `json:"sid"`
	HubID   string `json:"ha_instance,omitempty"`
	HubName string `json:"ha_name,omitempty"`
	HubURL  string `json:"ha_url,omitempty"`
}

// ConfirmResponse identifies the TV after a successful confirmation.
type ConfirmResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Port     int    `json:"port"`
	HasToken bool   `json:"has_token"`
}

type credentialsRequest struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type credentialsResponse struct {
	OK bool `json:"ok"`
}

// Client talks to the TV's local HTTP pairing API.
type Client struct {
	http *http.Client
}

// NewClient creates a client whose requests are bounded by timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// Ping checks that the TV's API answers at address ("host:port").
func (c *Client) Ping(ctx context.Context, address string) error {
	if err := c.do(ctx, http.MethodGet, address, pathPing, nil, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", device.ErrUnreachable, address, err)
	}
	return nil
}

// RequestCode asks the TV to display a pairing code.
func (c *Client) RequestCode(ctx context.Context, address string) (*Challenge, error) {
	var ch Challenge
	if err := c.do(ctx, http.MethodGet, address, pathPairCode, nil, &ch); err != nil {
		return nil, classify("requesting pairing code", err)
	}
	if ch.SID == "" {
		return nil, fmt.Errorf("requesting pairing code: %w: response has no sid", ErrPairingRejected)
	}
	return &ch, nil
}

// Confirm submits the code the user entered.
func (c *Client) Confirm(ctx context.Context, address string, req ConfirmRequest) (*ConfirmResponse, error) {
	var resp ConfirmResponse
	if err := c.do(ctx, http.MethodPost, address, pathPairConfirm, req, &resp); err != nil {
		return nil, classify("confirming pairing", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("confirming pairing: %w: response has no device id", ErrPairingRejected)
	}
	return &resp, nil
}

// SetCredentials gives the TV the hub URL and the token it must present.
func (c *Client) SetCredentials(ctx context.Context, address, hubURL, token string) error {
	var resp credentialsResponse
	if err := c.do(ctx, http.MethodPost, address, pathCredentials, credentialsRequest{URL: hubURL, Token: token}, &resp); err != nil {
		return classify("sending credentials", err)
	}
	if !resp.OK {
		return fmt.Errorf("sending credentials: %w", ErrPairingRejected)
	}
	return nil
}

// statusError is a non-2xx answer from the TV.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.code, e.body)
}

// classify maps HTTP 4xx answers to ErrPairingRejected and everything
// else (transport failures, 5xx) to ErrUnreachable.
func classify(op string, err error) error {
	var se *statusError
	if errors.As(err, &se) && se.code >= 400 && se.code < 500 {
		return fmt.Errorf("%s: %w: %v", op, ErrPairingRejected, err)
	}
	return fmt.Errorf("%s: %w: %v", op, device.ErrUnreachable, err)
}

func (c *Client) do(ctx context.Context, method, address, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+address+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode, body: string(bytes.TrimSpace(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
