package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go-passport-capture/models"
)

// API is the slice of the booking server the workflow needs. It exists
// so tests can drive the state machine without a network.
type API interface {
	// NotifyScanning tells the server a chip read is starting. It is
	// advisory; callers log failures and proceed regardless.
	NotifyScanning(ctx context.Context, token string) error

	// Submit posts the captured record. A nil return means the server
	// acknowledged with success=true; a *ServerError carries a
	// server-reported failure, anything else is a transport problem.
	Submit(ctx context.Context, token string, record models.PassportRecord) error
}

// ServerError is a well-formed failure response from the session API,
// as opposed to a transport error. The message is surfaced to the user
// verbatim.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Client talks to the booking server's NFC session endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) NotifyScanning(ctx context.Context, token string) error {
	endpoint := fmt.Sprintf("%s/api/passport/nfc/scanning/%s", c.baseURL, url.PathEscape(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create scanning notification: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute scanning notification: %w", err)
	}
	defer resp.Body.Close()

	var ack models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Errorf("failed to decode scanning notification response: %w", err)
	}
	if !ack.Success {
		return &ServerError{Message: serverMessage(ack)}
	}

	slog.Debug("scanning notification acknowledged")
	return nil
}

func (c *Client) Submit(ctx context.Context, token string, record models.PassportRecord) error {
	endpoint := fmt.Sprintf("%s/api/passport/nfc/submit", c.baseURL)

	body, err := json.Marshal(models.SubmitRequest{Token: token, Data: record})
	if err != nil {
		return fmt.Errorf("failed to marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute submit request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read submit response: %w", err)
	}

	// Absence of a transport error is not success: the body must carry
	// an explicit success indicator. Anything unparsable is a failure
	// with a generic message.
	var ack models.APIResponse
	if err := json.Unmarshal(respBody, &ack); err != nil {
		slog.Warn("malformed submit response", "status_code", resp.StatusCode, "error", err)
		return &ServerError{Message: "unexpected response from server"}
	}
	if !ack.Success {
		return &ServerError{Message: serverMessage(ack)}
	}

	slog.Info("passport data submitted", "status_code", resp.StatusCode)
	return nil
}

func serverMessage(ack models.APIResponse) string {
	if ack.Error != "" {
		return ack.Error
	}
	if ack.Message != "" {
		return ack.Message
	}
	return "unknown error"
}
