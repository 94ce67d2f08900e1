// Package notifier wraps outbound calls to the external delivery engine.
//
// The engine is an n8n-style workflow system reached over webhooks: one
// endpoint accepts schedule-ahead requests (fire later, then call us
// back), the other sends a notification immediately. Both calls are
// single-attempt; the lifecycle engine decides what a failure means.
package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tesnim01/remindd/internal/domain"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of an engine rejection body is kept for logging.
const maxErrorBody = 512

// Breaker short-circuits calls to an endpoint that keeps failing.
// Optional; the zero configuration never trips.
type Breaker interface {
	Allow(endpoint string) error
	RecordSuccess(endpoint string)
	RecordFailure(endpoint string)
}

type Config struct {
	// ScheduleURL receives schedule-ahead requests.
	ScheduleURL string
	// ImmediateURL receives send-now requests.
	ImmediateURL string
	// Secret, when set, is used to HMAC-sign request bodies.
	Secret  string
	Timeout time.Duration
}

// EngineClient is the HTTP client for the delivery engine.
type EngineClient struct {
	config  Config
	client  *http.Client
	breaker Breaker // optional, nil = disabled
}

func New(config Config) *EngineClient {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &EngineClient{
		config: config,
		client: &http.Client{},
	}
}

// WithBreaker attaches a circuit breaker keyed by endpoint URL.
func (c *EngineClient) WithBreaker(b Breaker) *EngineClient {
	c.breaker = b
	return c
}

// SchedulePayload is the schedule-ahead request body. WebhookURL is the
// callback address the engine must invoke when the reminder fires.
type SchedulePayload struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Email        string `json:"email"`
	ReminderTime string `json:"reminder_time"`
	WebhookURL   string `json:"webhook_url"`
}

// ImmediatePayload is the send-now request body.
type ImmediatePayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Email       string `json:"email"`
	Type        string `json:"type"`
}

// SendResult is the outcome of one call to the delivery engine.
type SendResult struct {
	StatusCode int
	// Body holds a truncated response body for non-success responses,
	// so structured engine rejections surface in logs.
	Body     string
	Error    error
	Duration time.Duration
}

func (r SendResult) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Failure returns a non-nil error describing the result, or nil on success.
func (r SendResult) Failure() error {
	if r.IsSuccess() {
		return nil
	}
	if r.Error != nil {
		return r.Error
	}
	if r.Body != "" {
		return fmt.Errorf("delivery engine status %d: %s", r.StatusCode, r.Body)
	}
	return fmt.Errorf("delivery engine status %d", r.StatusCode)
}

// ScheduleAhead asks the engine to fire the reminder at its due time and
// call back at callbackURL to confirm.
func (c *EngineClient) ScheduleAhead(ctx context.Context, r domain.Reminder, callbackURL string) SendResult {
	payload := SchedulePayload{
		ID:           r.ID.String(),
		Title:        r.Title,
		Description:  r.Description,
		Email:        r.Email,
		ReminderTime: r.RemindAt.UTC().Format(time.RFC3339),
		WebhookURL:   callbackURL,
	}
	return c.post(ctx, c.config.ScheduleURL, r.ID.String(), payload)
}

// SendNow asks the engine to deliver the notification immediately.
func (c *EngineClient) SendNow(ctx context.Context, r domain.Reminder) SendResult {
	payload := ImmediatePayload{
		ID:          r.ID.String(),
		Title:       r.Title,
		Description: r.Description,
		Email:       r.Email,
		Type:        "immediate",
	}
	return c.post(ctx, c.config.ImmediateURL, r.ID.String(), payload)
}

func (c *EngineClient) post(ctx context.Context, url, reminderID string, payload any) SendResult {
	start := time.Now()

	if c.breaker != nil {
		if err := c.breaker.Allow(url); err != nil {
			return SendResult{Error: err, Duration: time.Since(start)}
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SendResult{Error: fmt.Errorf("marshal: %w", err), Duration: time.Since(start)}
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SendResult{Error: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Remindd-Reminder-ID", reminderID)
	if c.config.Secret != "" {
		req.Header.Set("X-Remindd-Signature", computeSignature(c.config.Secret, body))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if c.breaker != nil {
			c.breaker.RecordFailure(url)
		}
		return SendResult{Error: fmt.Errorf("send: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	result := SendResult{StatusCode: resp.StatusCode, Duration: time.Since(start)}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		result.Body = string(respBody)
	}

	if c.breaker != nil {
		if result.IsSuccess() {
			c.breaker.RecordSuccess(url)
		} else {
			c.breaker.RecordFailure(url)
		}
	}

	return result
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature lets the engine side verify a signed request body.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
