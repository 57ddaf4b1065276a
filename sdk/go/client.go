package focusaurasdk

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
)

// Client is a minimal FocusAura HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	// RequestID, when set, is sent as X-Request-Id for log correlation.
	RequestID string
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// FocusEvent is the payload sent when the user drifts off task.
type FocusEvent struct {
	Goal              string `json:"goal"`
	ContextTitle      string `json:"context_title,omitempty"`
	ContextApp        string `json:"context_app,omitempty"`
	TimeOnTaskMinutes int    `json:"time_on_task_minutes,omitempty"`
	Event             string `json:"event,omitempty"`
	SessionID         string `json:"session_id,omitempty"`
}

// Intervention is the composed nudge.
type Intervention struct {
	ActionNow    string `json:"action_now"`
	WhyItWorks   string `json:"why_it_works"`
	GoalReminder string `json:"goal_reminder"`
	Citation     string `json:"citation"`
}

// Health mirrors GET /health.
type Health struct {
	Status               string            `json:"status"`
	Service              string            `json:"service"`
	Mode                 string            `json:"mode"`
	ModeDescription      string            `json:"mode_description"`
	CredentialConfigured bool              `json:"credential_configured"`
	ReadyForLiveMode     bool              `json:"ready_for_live_mode"`
	CacheEnabled         bool              `json:"cache_enabled"`
	Warnings             []string          `json:"warnings"`
	Providers            map[string]string `json:"providers"`
}

// Session summarizes one tracked session.
type Session struct {
	SessionID         string `json:"session_id"`
	DistractionCount  int    `json:"distraction_count"`
	InterventionCount int    `json:"intervention_count"`
	LastCategory      string `json:"last_category,omitempty"`
	CreatedAt         string `json:"created_at"`
	LastActivity      string `json:"last_activity"`
}

// FieldError is one entry of a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError wraps non-2xx responses. Code, Message and Fields are filled when
// the body carries the standard error envelope.
type APIError struct {
	StatusCode int
	Body       string
	Code       string
	Message    string
	Fields     []FieldError
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Intervention posts a focus event and returns the composed intervention.
func (c *Client) Intervention(ctx context.Context, ev FocusEvent) (Intervention, error) {
	var resp Intervention
	err := c.do(ctx, http.MethodPost, "intervention", ev, &resp)
	return resp, err
}

// Health fetches the service health report.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "health", nil, &resp)
	return resp, err
}

// Sessions lists the active sessions.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	err := c.do(ctx, http.MethodGet, "sessions", nil, &resp)
	return resp.Sessions, err
}

// DeleteSession forgets a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "sessions/"+url.PathEscape(id), nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.RequestID != "" {
		req.Header.Set("X-Request-Id", c.RequestID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Details struct {
				Errors []FieldError `json:"errors"`
			} `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Fields = env.Error.Details.Errors
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
