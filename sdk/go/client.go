package boardlinesdk

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

// Client is a minimal Boardline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Board represents the API board model.
type Board struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Task represents the API task model (partial).
type Task struct {
	ID          string  `json:"id"`
	BoardID     string  `json:"board_id"`
	ParentID    *string `json:"parent_id,omitempty"`
	Title       string  `json:"title"`
	StatusID    string  `json:"status_id"`
	SectionID   *string `json:"section_id,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	Position    int     `json:"position"`
	SeriesID    *string `json:"series_id,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// MoveResult is a moved task plus the next occurrence, when the move
// completed a recurring task.
type MoveResult struct {
	Task    Task  `json:"task"`
	Spawned *Task `json:"spawned,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id,omitempty"`
	BoardID    string         `json:"board_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Notification represents an inbox entry for the authenticated actor.
type Notification struct {
	ID        string  `json:"id"`
	ActorID   string  `json:"actor_id"`
	BoardID   string  `json:"board_id"`
	TaskID    *string `json:"task_id,omitempty"`
	Kind      string  `json:"kind"`
	Message   string  `json:"message"`
	ReadAt    *string `json:"read_at,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedTasks wraps task listings with cursors.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateBoard creates a board in an organization.
func (c *Client) CreateBoard(ctx context.Context, orgID, name string) (Board, error) {
	body := map[string]any{
		"org_id": orgID,
		"name":   name,
	}
	var resp Board
	err := c.do(ctx, http.MethodPost, "v0/boards", body, &resp)
	return resp, err
}

// CreateTask creates a task on a board. opts may carry any of the
// create-task body fields (parent_id, status_id, due_date, recurring, ...).
func (c *Client) CreateTask(ctx context.Context, boardID, title string, opts map[string]any) (Task, error) {
	body := map[string]any{"title": title}
	for k, v := range opts {
		body[k] = v
	}
	var resp Task
	endpoint := fmt.Sprintf("v0/boards/%s/tasks", url.PathEscape(boardID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Tasks returns one page of a board's tasks.
func (c *Client) Tasks(ctx context.Context, boardID string, limit int, cursor string) (PaginatedTasks, error) {
	endpoint := fmt.Sprintf("v0/boards/%s/tasks", url.PathEscape(boardID))
	endpoint = withPage(endpoint, limit, cursor)
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MoveTask moves a task into a status column.
func (c *Client) MoveTask(ctx context.Context, taskID, statusID string, confirmSubtasks bool) (MoveResult, error) {
	body := map[string]any{
		"status_id":        statusID,
		"confirm_subtasks": confirmSubtasks,
	}
	var resp MoveResult
	endpoint := fmt.Sprintf("v0/tasks/%s/move", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CompleteTask moves a task to the board's first terminal column.
func (c *Client) CompleteTask(ctx context.Context, taskID string, confirmSubtasks bool) (MoveResult, error) {
	body := map[string]any{"confirm_subtasks": confirmSubtasks}
	var resp MoveResult
	endpoint := fmt.Sprintf("v0/tasks/%s/complete", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Series lists the recurrence series a task belongs to.
func (c *Client) Series(ctx context.Context, taskID string) ([]Task, error) {
	var resp []Task
	endpoint := fmt.Sprintf("v0/tasks/%s/series", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events for an organization.
func (c *Client) Events(ctx context.Context, orgID string, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, orgID, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, orgID string, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := fmt.Sprintf("v0/orgs/%s/events", url.PathEscape(orgID))
	endpoint = withPage(endpoint, limit, cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Notifications returns the authenticated actor's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	var resp []Notification
	endpoint := "v0/notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("v0/notifications/%s/read", url.PathEscape(id))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

// AddFavorite pins a board or task for the authenticated actor.
func (c *Client) AddFavorite(ctx context.Context, entityKind, entityID string) error {
	endpoint := fmt.Sprintf("v0/favorites/%s/%s", url.PathEscape(entityKind), url.PathEscape(entityID))
	return c.do(ctx, http.MethodPut, endpoint, nil, nil)
}

// RemoveFavorite unpins a board or task.
func (c *Client) RemoveFavorite(ctx context.Context, entityKind, entityID string) error {
	endpoint := fmt.Sprintf("v0/favorites/%s/%s", url.PathEscape(entityKind), url.PathEscape(entityID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

func withPage(endpoint string, limit int, cursor string) string {
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	return endpoint
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
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
