/*
Package clockify implements timebank.Provider against the Clockify REST API.

PURPOSE:
  Read-only client for the two endpoints the reconciler needs: workspace
  users and per-user time entries. Authenticates with the X-Api-Key header.

RETRY POLICY:
  Requests are retried on network errors, 429 and 5xx responses, honoring
  Retry-After when present and otherwise backing off exponentially from
  baseDelay up to maxDelay. Anything else fails immediately with an
  HTTPError carrying the status code.

PAGINATION:
  Both list endpoints page with page/page-size (200 per page) until a short
  page is returned.

SEE ALSO:
  - timebank/sync.go: the Provider consumer
*/
package clockify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/warp/timebank/timebank"
)

const (
	// BaseURL is the public Clockify API root.
	BaseURL = "https://api.clockify.me/api/v1"

	pageSize    = 200
	maxAttempts = 3

	retryBaseDelay = 750 * time.Millisecond
	retryMaxDelay  = 6 * time.Second
)

var isoDurationRE = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// HTTPError is a non-2xx Clockify response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("clockify status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("clockify status %d", e.StatusCode)
}

// Client talks to the Clockify API. It implements timebank.Provider.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

var _ timebank.Provider = (*Client)(nil)

// New returns a client for the given API key.
func New(apiKey string) *Client {
	return &Client{
		baseURL: BaseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxAttempts: maxAttempts,
		baseDelay:   retryBaseDelay,
		maxDelay:    retryMaxDelay,
	}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type apiUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type apiTimeInterval struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Duration string `json:"duration"`
}

type apiTimeEntry struct {
	ID           string          `json:"id"`
	Description  string          `json:"description"`
	ProjectID    string          `json:"projectId"`
	TaskID       string          `json:"taskId"`
	UserID       string          `json:"userId"`
	Billable     bool            `json:"billable"`
	TimeInterval apiTimeInterval `json:"timeInterval"`
}

// =============================================================================
// PROVIDER IMPLEMENTATION
// =============================================================================

// ListUsers returns all users of a workspace.
func (c *Client) ListUsers(ctx context.Context, workspaceID string) ([]timebank.ProviderUser, error) {
	users := make([]timebank.ProviderUser, 0, 256)
	page := 1

	for {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("page-size", strconv.Itoa(pageSize))

		var batch []apiUser
		if err := c.getJSON(ctx, "/workspaces/"+workspaceID+"/users", q, &batch); err != nil {
			return nil, err
		}
		for _, u := range batch {
			users = append(users, timebank.ProviderUser{
				ID:    strings.TrimSpace(u.ID),
				Name:  strings.TrimSpace(u.Name),
				Email: strings.TrimSpace(u.Email),
			})
		}
		if len(batch) < pageSize {
			break
		}
		page++
	}
	return users, nil
}

// ListTimeEntries returns one user's entries within [from, to).
func (c *Client) ListTimeEntries(ctx context.Context, workspaceID, userID string, from, to time.Time) ([]timebank.ProviderEntry, error) {
	entries := make([]timebank.ProviderEntry, 0, 512)
	page := 1

	for {
		q := url.Values{}
		q.Set("start", from.UTC().Format(time.RFC3339))
		q.Set("end", to.UTC().Format(time.RFC3339))
		q.Set("page", strconv.Itoa(page))
		q.Set("page-size", strconv.Itoa(pageSize))
		q.Set("hydrated", "false")

		var batch []apiTimeEntry
		path := "/workspaces/" + workspaceID + "/user/" + userID + "/time-entries"
		if err := c.getJSON(ctx, path, q, &batch); err != nil {
			return nil, err
		}
		for _, e := range batch {
			entry, ok := convertEntry(e)
			if !ok {
				continue
			}
			entries = append(entries, entry)
		}
		if len(batch) < pageSize {
			break
		}
		page++
	}
	return entries, nil
}

// convertEntry maps a wire entry to the domain shape. Entries with no ID or
// an unparseable start are dropped.
func convertEntry(e apiTimeEntry) (timebank.ProviderEntry, bool) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return timebank.ProviderEntry{}, false
	}
	startAt, err := time.Parse(time.RFC3339, strings.TrimSpace(e.TimeInterval.Start))
	if err != nil {
		return timebank.ProviderEntry{}, false
	}
	startAt = startAt.UTC()

	entry := timebank.ProviderEntry{
		ID:          id,
		UserID:      strings.TrimSpace(e.UserID),
		Description: strings.TrimSpace(e.Description),
		ProjectRef:  strings.TrimSpace(e.ProjectID),
		TaskRef:     strings.TrimSpace(e.TaskID),
		Billable:    e.Billable,
		StartAt:     startAt,
	}

	if raw := strings.TrimSpace(e.TimeInterval.End); raw != "" {
		endAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return timebank.ProviderEntry{}, false
		}
		end := endAt.UTC()
		entry.EndAt = &end
	} else if secs := ParseISODurationSeconds(e.TimeInterval.Duration); secs > 0 {
		// Some exports carry a duration without an end timestamp.
		end := startAt.Add(time.Duration(secs) * time.Second)
		entry.EndAt = &end
	}
	return entry, true
}

// ParseISODurationSeconds parses the PT#H#M#S subset Clockify emits. Returns
// 0 for anything it does not recognize.
func ParseISODurationSeconds(raw string) int64 {
	match := isoDurationRE.FindStringSubmatch(strings.TrimSpace(raw))
	if len(match) == 0 {
		return 0
	}
	var total int64
	if match[1] != "" {
		hours, _ := strconv.ParseInt(match[1], 10, 64)
		total += hours * 3600
	}
	if match[2] != "" {
		minutes, _ := strconv.ParseInt(match[2], 10, 64)
		total += minutes * 60
	}
	if match[3] != "" {
		seconds, _ := strconv.ParseInt(match[3], 10, 64)
		total += seconds
	}
	return total
}

// =============================================================================
// TRANSPORT
// =============================================================================

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return err
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	attempts := c.maxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		req.Header.Set("X-Api-Key", c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if c.shouldRetry(0, err, attempt) {
				if sleepErr := sleepWithContext(ctx, c.retryDelay(attempt, "")); sleepErr != nil {
					return sleepErr
				}
				continue
			}
			return err
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg := strings.TrimSpace(string(body))
			if msg == "" {
				msg = http.StatusText(resp.StatusCode)
			}
			lastErr = &HTTPError{StatusCode: resp.StatusCode, Message: msg}
			if c.shouldRetry(resp.StatusCode, nil, attempt) {
				if sleepErr := sleepWithContext(ctx, c.retryDelay(attempt, resp.Header.Get("Retry-After"))); sleepErr != nil {
					return sleepErr
				}
				continue
			}
			return lastErr
		}

		if len(body) == 0 {
			return nil
		}
		return json.Unmarshal(body, dst)
	}

	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("clockify request failed")
}

func (c *Client) shouldRetry(statusCode int, err error, attempt int) bool {
	if attempt >= c.maxAttempts {
		return false
	}
	if err != nil {
		return true
	}
	return statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError
}

func (c *Client) retryDelay(attempt int, retryAfter string) time.Duration {
	if d := parseRetryAfter(retryAfter); d > 0 {
		if c.maxDelay > 0 && d > c.maxDelay {
			return c.maxDelay
		}
		return d
	}

	delay := c.baseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	if attempt > 1 {
		delay = delay * time.Duration(1<<(attempt-1))
	}
	if c.maxDelay > 0 && delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

// parseRetryAfter handles both the delta-seconds and HTTP-date forms.
func parseRetryAfter(raw string) time.Duration {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MaskKey hides the middle of an API key for display.
func MaskKey(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
