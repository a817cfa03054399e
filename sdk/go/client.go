package stratlinesdk

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

// Client is a minimal Stratline HTTP API client.
type Client struct {
	BaseURL     string
	PlanID      string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, planID string) *Client {
	return &Client{
		BaseURL: baseURL,
		PlanID:  planID,
		Timeout: 10 * time.Second,
	}
}

// Plan represents the API plan model (partial).
type Plan struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// Activity represents the API activity model (partial).
type Activity struct {
	ID             string  `json:"id"`
	PlanID         string  `json:"plan_id"`
	InitiativeID   *string `json:"initiative_id,omitempty"`
	Title          string  `json:"title"`
	Weight         float64 `json:"weight"`
	Progress       float64 `json:"progress"`
	Status         string  `json:"status"`
	ApprovalStatus string  `json:"approval_status"`
	DeclineReason  *string `json:"decline_reason,omitempty"`
}

// ActivityUpdate represents one history row.
type ActivityUpdate struct {
	ID            string  `json:"id"`
	ActivityID    string  `json:"activity_id"`
	UserID        string  `json:"user_id"`
	Progress      float64 `json:"progress"`
	Comment       string  `json:"comment"`
	Status        string  `json:"status"`
	ApprovalState string  `json:"approval_state"`
	DeclineReason *string `json:"decline_reason,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// Rule represents a status classification rule.
type Rule struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Unbounded bool    `json:"unbounded"`
	Condition string  `json:"condition,omitempty"`
	IsSystem  bool    `json:"is_system"`
	Position  int     `json:"position"`
}

// ReportNode is one row of the rolled-up report.
type ReportNode struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Code     string  `json:"code,omitempty"`
	Title    string  `json:"title"`
	Depth    int     `json:"depth"`
	Weight   float64 `json:"weight"`
	Progress int     `json:"progress"`
	Status   string  `json:"status,omitempty"`
}

// Report is the rolled-up plan snapshot.
type Report struct {
	Plan        Plan         `json:"plan"`
	GeneratedAt string       `json:"generated_at"`
	Progress    int          `json:"progress"`
	Nodes       []ReportNode `json:"nodes"`
}

// Event represents a ledger entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	PlanID     string `json:"plan_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreatePlan creates a plan and makes it the client's active plan.
func (c *Client) CreatePlan(ctx context.Context, title string) (Plan, error) {
	body := map[string]any{"title": title}
	var resp Plan
	err := c.do(ctx, http.MethodPost, "v0/plans", body, &resp)
	if err == nil && c.PlanID == "" {
		c.PlanID = resp.ID
	}
	return resp, err
}

// CreateActivity creates an activity. initiativeID may be empty for a
// standalone activity.
func (c *Client) CreateActivity(ctx context.Context, title string, weight float64, initiativeID string) (Activity, error) {
	body := map[string]any{
		"title":  title,
		"weight": weight,
	}
	if initiativeID != "" {
		body["initiative_id"] = initiativeID
	}
	var resp Activity
	err := c.do(ctx, http.MethodPost, c.planPath("activities"), body, &resp)
	return resp, err
}

// SubmitUpdate proposes a new progress figure for an activity.
func (c *Client) SubmitUpdate(ctx context.Context, activityID string, progress float64, comment string) (ActivityUpdate, error) {
	body := map[string]any{
		"progress": progress,
		"comment":  comment,
	}
	var resp ActivityUpdate
	endpoint := fmt.Sprintf("v0/activities/%s/updates", url.PathEscape(activityID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Approve accepts the activity's pending update.
func (c *Client) Approve(ctx context.Context, activityID string) (Activity, error) {
	var resp Activity
	endpoint := fmt.Sprintf("v0/activities/%s/approve", url.PathEscape(activityID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Decline rejects the activity's pending update with a reason.
func (c *Client) Decline(ctx context.Context, activityID, reason string) (Activity, error) {
	body := map[string]any{"reason": reason}
	var resp Activity
	endpoint := fmt.Sprintf("v0/activities/%s/decline", url.PathEscape(activityID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// History returns the activity's update trail, newest first.
func (c *Client) History(ctx context.Context, activityID string) ([]ActivityUpdate, error) {
	var resp []ActivityUpdate
	endpoint := fmt.Sprintf("v0/activities/%s/history", url.PathEscape(activityID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Report returns the rolled-up plan snapshot.
func (c *Client) Report(ctx context.Context) (Report, error) {
	var resp Report
	err := c.do(ctx, http.MethodGet, c.planPath("report"), nil, &resp)
	return resp, err
}

// Rules returns the plan's rule set in evaluation order.
func (c *Client) Rules(ctx context.Context) ([]Rule, error) {
	var resp []Rule
	err := c.do(ctx, http.MethodGet, c.planPath("rules"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.planPath("events")
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
	var resp PaginatedEvents
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

func (c *Client) planPath(p string) string {
	plan := url.PathEscape(c.PlanID)
	return fmt.Sprintf("v0/plans/%s/%s", plan, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
