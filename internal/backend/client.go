// Package backend is the HTTP client for the Wealthyfy REST backend.
// All responses share the envelope {data, message}; errors surface as
// {data: {detail?, message?}, status}.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Jitendersingh2001/Wealthyfy/internal/logging"
)

// RequestTimeout is the blanket timeout for backend calls.
const RequestTimeout = 12 * time.Second

// TokenSource supplies a bearer token for a user's requests.
type TokenSource interface {
	ValidToken(ctx context.Context, userID string) (string, error)
}

// APIError is a normalized backend error.
type APIError struct {
	Status  int    `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("backend: %s (status %d)", msg, e.Status)
}

// UserMessage returns the server-supplied message, or fallback when the
// server gave none. Used to fill operation-specific default messages.
func (e *APIError) UserMessage(fallback string) string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// Client calls the REST backend on behalf of an authenticated user.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  logging.Logger
}

// NewClient creates a backend client.
func NewClient(baseURL string, tokens TokenSource, logger logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: RequestTimeout},
		tokens:  tokens,
		logger:  logger,
	}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message *string         `json:"message"`
}

func (c *Client) do(ctx context.Context, userID, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.tokens.ValidToken(ctx, userID)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Data struct {
				Detail  string `json:"detail"`
				Message string `json:"message"`
			} `json:"data"`
		}
		if json.Unmarshal(raw, &errBody) == nil {
			apiErr.Detail = errBody.Data.Detail
			apiErr.Message = errBody.Data.Message
		}
		c.logger.Warn("backend error",
			logging.String("path", path),
			logging.Int("status", resp.StatusCode))
		return apiErr
	}

	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding envelope: %w", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

// GetUser fetches a user by identity-provider id.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	if err := c.do(ctx, userID, http.MethodGet, "/users/get_user/"+url.PathEscape(userID), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// VerifyPancard verifies a PAN against the external verification service.
func (c *Client) VerifyPancard(ctx context.Context, userID, pan, consent string) (*PancardVerification, error) {
	body := map[string]string{"pancard": pan, "consent": consent}
	var v PancardVerification
	if err := c.do(ctx, userID, http.MethodPost, "/users/verify_pancard", body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// CreatePanAndPhone stores the verified PAN and mobile number.
func (c *Client) CreatePanAndPhone(ctx context.Context, userID, pan, mobile string) (*PancardVerification, error) {
	body := map[string]string{"pancard": pan, "phone_number": mobile}
	var v PancardVerification
	if err := c.do(ctx, userID, http.MethodPost, "/users/create_pan_and_phone_no", body, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SendOTP triggers an OTP to the user's mobile number.
func (c *Client) SendOTP(ctx context.Context, userID, mobile string) error {
	return c.do(ctx, userID, http.MethodPost, "/users/send-otp", map[string]string{"phone_number": mobile}, nil)
}

// VerifyOTP checks an OTP for the user's mobile number.
func (c *Client) VerifyOTP(ctx context.Context, userID, mobile, otp string) (bool, error) {
	var out struct {
		Verified bool `json:"verified"`
	}
	body := map[string]string{"phone_number": mobile, "otp": otp}
	if err := c.do(ctx, userID, http.MethodPost, "/users/verify-otp", body, &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

// LinkBank initiates the consent flow and returns the hosted redirect URL.
func (c *Client) LinkBank(ctx context.Context, userID string, params map[string]any) (*ConsentLink, error) {
	var link ConsentLink
	if err := c.do(ctx, userID, http.MethodPost, "/users/link-bank", params, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// SessionStatus looks up the data-session state for a consent id.
func (c *Client) SessionStatus(ctx context.Context, userID, consentID string) (*SessionStatus, error) {
	var s SessionStatus
	path := "/users/session-status?consent_id=" + url.QueryEscape(consentID)
	if err := c.do(ctx, userID, http.MethodGet, path, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// MarkSetupComplete records that the wizard finished.
func (c *Client) MarkSetupComplete(ctx context.Context, userID string) error {
	return c.do(ctx, userID, http.MethodPost, "/users/mark-setup-complete", nil, nil)
}

// Transactions fetches a page of bank transactions.
func (c *Client) Transactions(ctx context.Context, userID string, page, pageSize int) (*TransactionPage, error) {
	var tp TransactionPage
	path := "/transactions?page=" + strconv.Itoa(page) + "&page_size=" + strconv.Itoa(pageSize)
	if err := c.do(ctx, userID, http.MethodGet, path, nil, &tp); err != nil {
		return nil, err
	}
	return &tp, nil
}

// AccountMetrics fetches the dashboard aggregates.
func (c *Client) AccountMetrics(ctx context.Context, userID string) (*AccountMetrics, error) {
	var m AccountMetrics
	if err := c.do(ctx, userID, http.MethodGet, "/accounts/metrics", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
