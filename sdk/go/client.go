package reviewlinesdk

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

// Client is a minimal Reviewline HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://localhost:8080/api/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ReviewDocument represents the API review document model.
type ReviewDocument struct {
	ID                  string          `json:"id"`
	SystemCode          string          `json:"systemCode"`
	State               string          `json:"state"`
	Version             string          `json:"version,omitempty"`
	Revision            int64           `json:"revision"`
	Payload             json.RawMessage `json:"payload,omitempty"`
	CreatedBy           string          `json:"createdBy,omitempty"`
	CreatedAt           string          `json:"createdAt"`
	LastModifiedBy      string          `json:"lastModifiedBy,omitempty"`
	LastModifiedAt      string          `json:"lastModifiedAt"`
	AvailableOperations []string        `json:"availableOperations"`
}

// Operations lists what may be executed on a document in its current state.
type Operations struct {
	DocumentID string   `json:"documentId"`
	State      string   `json:"state"`
	Operations []string `json:"operations"`
}

// TrailNode is one entry of a system's audit trail.
type TrailNode struct {
	ID                string `json:"id"`
	ReviewDocumentID  string `json:"reviewDocumentId"`
	VersionLabel      string `json:"versionLabel"`
	Next              string `json:"next,omitempty"`
	Timestamp         string `json:"timestamp"`
	ChangeDescription string `json:"changeDescription,omitempty"`
}

// Trail is a system's audit trail, newest node first.
type Trail struct {
	SystemCode   string      `json:"systemCode"`
	Head         string      `json:"head,omitempty"`
	Tail         string      `json:"tail,omitempty"`
	NodeCount    int         `json:"nodeCount"`
	CreatedAt    string      `json:"createdAt"`
	LastModified string      `json:"lastModified"`
	Nodes        []TrailNode `json:"nodes"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	SystemCode string         `json:"systemCode,omitempty"`
	EntityKind string         `json:"entityKind"`
	EntityID   string         `json:"entityId,omitempty"`
	ActorID    string         `json:"actorId"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses. Message, Path and Timestamp are filled
// from the server's error body when it could be decoded.
type APIError struct {
	StatusCode int
	Message    string
	Path       string
	Timestamp  string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d message=%s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Transition executes a lifecycle operation on a document.
func (c *Client) Transition(ctx context.Context, documentID, operation, modifiedBy, comment string) error {
	body := map[string]any{
		"documentId": documentID,
		"operation":  operation,
		"modifiedBy": modifiedBy,
	}
	if comment != "" {
		body["comment"] = comment
	}
	return c.do(ctx, http.MethodPost, "lifecycle/transition", body, nil)
}

// Operations returns the operations available on a document.
func (c *Client) Operations(ctx context.Context, documentID string) (Operations, error) {
	var resp Operations
	err := c.do(ctx, http.MethodGet, "lifecycle/operations/"+url.PathEscape(documentID), nil, &resp)
	return resp, err
}

// Trail returns a system's audit trail.
func (c *Client) Trail(ctx context.Context, systemCode string) (Trail, error) {
	var resp Trail
	err := c.do(ctx, http.MethodGet, "lifecycle/trail/"+url.PathEscape(systemCode), nil, &resp)
	return resp, err
}

// CreateDraft creates a DRAFT review. id may be empty to let the server pick one.
func (c *Client) CreateDraft(ctx context.Context, id, systemCode, createdBy string, payload map[string]any) (ReviewDocument, error) {
	body := map[string]any{
		"systemCode": systemCode,
		"createdBy":  createdBy,
	}
	if id != "" {
		body["id"] = id
	}
	if payload != nil {
		body["payload"] = payload
	}
	var resp ReviewDocument
	err := c.do(ctx, http.MethodPost, "solution-review", body, &resp)
	return resp, err
}

// CreateFromActive copies the system's ACTIVE review into a new DRAFT.
func (c *Client) CreateFromActive(ctx context.Context, systemCode, createdBy string) (ReviewDocument, error) {
	var resp ReviewDocument
	endpoint := fmt.Sprintf("solution-review/%s/from-active", url.PathEscape(systemCode))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"createdBy": createdBy}, &resp)
	return resp, err
}

// GetDocument fetches a review by id.
func (c *Client) GetDocument(ctx context.Context, id string) (ReviewDocument, error) {
	var resp ReviewDocument
	err := c.do(ctx, http.MethodGet, "solution-review/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListBySystem returns a system's reviews, optionally filtered by state.
func (c *Client) ListBySystem(ctx context.Context, systemCode, state string) ([]ReviewDocument, error) {
	endpoint := "solution-review/system/" + url.PathEscape(systemCode)
	if state != "" {
		endpoint += "?state=" + url.QueryEscape(state)
	}
	var resp []ReviewDocument
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateDraft replaces the payload of a DRAFT review.
func (c *Client) UpdateDraft(ctx context.Context, id, modifiedBy string, payload map[string]any) (ReviewDocument, error) {
	body := map[string]any{
		"modifiedBy": modifiedBy,
		"payload":    payload,
	}
	var resp ReviewDocument
	err := c.do(ctx, http.MethodPut, "solution-review/"+url.PathEscape(id), body, &resp)
	return resp, err
}

// DeleteDraft removes a DRAFT review.
func (c *Client) DeleteDraft(ctx context.Context, id, modifiedBy string) error {
	endpoint := fmt.Sprintf("solution-review/%s?modifiedBy=%s", url.PathEscape(id), url.QueryEscape(modifiedBy))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Events returns recent events, newest first. systemCode and eventType may be empty.
func (c *Client) Events(ctx context.Context, systemCode, eventType string, limit int) ([]Event, error) {
	q := url.Values{}
	if systemCode != "" {
		q.Set("systemCode", systemCode)
	}
	if eventType != "" {
		q.Set("type", eventType)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
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
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Timestamp string `json:"timestamp"`
			Message   string `json:"message"`
			Path      string `json:"path"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Message = env.Message
			apiErr.Path = env.Path
			apiErr.Timestamp = env.Timestamp
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
