// Package auth implements the web login flow that produces the session
// token the sync engine consumes. The flow is: submit phone number and PIN,
// receive a process id, complete the process with a 2FA code (optionally
// resent over SMS), and read the session token from the tr_session cookie.
//
// The sync engine never sees any of this; it receives a token string once
// per run and assumes it valid for the run's duration.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/trsync/errors"
)

const (
	loginPath = "/api/v1/auth/web/login"
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

	// sessionCookie carries the token on a successful 2FA completion
	sessionCookie = "tr_session"
)

// Client talks to the brokerage's REST login endpoints
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a login client for the given REST base URL
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "auth"),
	}
}

// Process identifies an in-flight login awaiting 2FA completion
type Process struct {
	ProcessID        string `json:"processId"`
	CountdownSeconds int    `json:"countdownInSeconds"`
}

// Login submits credentials and starts the 2FA process
func (c *Client) Login(ctx context.Context, phoneNumber, pin string) (*Process, error) {
	body, err := json.Marshal(map[string]string{
		"phoneNumber": phoneNumber,
		"pin":         pin,
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "Login", "encode credentials")
	}

	resp, err := c.post(ctx, c.baseURL+loginPath, body)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Login", "submit credentials")
	}
	defer resp.Body.Close()

	var process Process
	if err := json.NewDecoder(resp.Body).Decode(&process); err != nil {
		return nil, errors.WrapInvalid(err, "Client", "Login", "decode response")
	}
	if process.ProcessID == "" {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: no process id returned, check phone number and PIN", errors.ErrLoginFailed),
			"Client", "Login", "validate response")
	}

	c.logger.Debug("login process started", "countdown_seconds", process.CountdownSeconds)
	return &process, nil
}

// ResendCode requests the 2FA code again, over SMS
func (c *Client) ResendCode(ctx context.Context, processID string) error {
	url := fmt.Sprintf("%s%s/%s/resend", c.baseURL, loginPath, processID)
	resp, err := c.post(ctx, url, nil)
	if err != nil {
		return errors.WrapTransient(err, "Client", "ResendCode", "request resend")
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Complete verifies the 2FA code and returns the session token
func (c *Client) Complete(ctx context.Context, processID, code string) (string, error) {
	url := fmt.Sprintf("%s%s/%s/%s", c.baseURL, loginPath, processID, code)
	resp, err := c.post(ctx, url, nil)
	if err != nil {
		return "", errors.WrapTransient(err, "Client", "Complete", "verify code")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", errors.WrapFatal(
			fmt.Errorf("%w: device verification returned status %d", errors.ErrLoginFailed, resp.StatusCode),
			"Client", "Complete", "verify code")
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == sessionCookie && cookie.Value != "" {
			return cookie.Value, nil
		}
	}

	return "", errors.WrapFatal(
		fmt.Errorf("%w: session cookie missing from response", errors.ErrLoginFailed),
		"Client", "Complete", "extract token")
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(req)
}
