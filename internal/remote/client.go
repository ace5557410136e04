package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client implements [Calendar] against the calendar service's REST API.
// Revisions travel as ETag headers; conditional writes send If-Match.
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
	log     *slog.Logger
}

// NewClient returns a Client for the service at baseURL authenticating with
// the given bearer token.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: 30 * time.Second},
		log:     logger,
	}
}

// Ping validates connectivity and the token with retry.
func (c *Client) Ping(ctx context.Context) error {
	err := Retry(ctx, defaultMaxAttempts, func() error {
		resp, err := c.do(ctx, http.MethodGet, "/v1/ping", nil, "")
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		return statusError(resp)
	})
	if err != nil {
		return fmt.Errorf("ping calendar: %w", err)
	}
	return nil
}

// ListEvents fetches all remote events starting within [from, to).
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	var events []Event
	err := Retry(ctx, defaultMaxAttempts, func() error {
		resp, err := c.do(ctx, http.MethodGet, "/v1/events?"+q.Encode(), nil, "")
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if err := statusError(resp); err != nil {
			return err
		}

		var body struct {
			Events []Event `json:"events"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("parse events response: %w", err)
		}
		events = body.Events
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// CreateEvent creates the event remotely and returns the assigned ref and
// initial revision.
func (c *Client) CreateEvent(ctx context.Context, ev Event) (string, string, error) {
	ev.Ref, ev.Revision = "", "" // the remote assigns both

	var ref, revision string
	err := Retry(ctx, defaultMaxAttempts, func() error {
		resp, err := c.do(ctx, http.MethodPost, "/v1/events", &ev, "")
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if err := statusError(resp); err != nil {
			return err
		}

		var created Event
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return fmt.Errorf("parse create response: %w", err)
		}
		ref = created.Ref
		revision = revisionOf(resp, created)
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("create event %q: %w", ev.Title, err)
	}
	if ref == "" {
		return "", "", fmt.Errorf("create event %q: remote returned no ref", ev.Title)
	}
	return ref, revision, nil
}

// UpdateEvent overwrites the remote event, conditional on expectedRevision.
func (c *Client) UpdateEvent(ctx context.Context, ref string, ev Event, expectedRevision string) (string, error) {
	ev.Ref, ev.Revision = "", ""

	var revision string
	err := Retry(ctx, defaultMaxAttempts, func() error {
		resp, err := c.do(ctx, http.MethodPut, "/v1/events/"+url.PathEscape(ref), &ev, expectedRevision)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if err := statusError(resp); err != nil {
			return err
		}

		var updated Event
		if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
			return fmt.Errorf("parse update response: %w", err)
		}
		revision = revisionOf(resp, updated)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("update event %s: %w", ref, err)
	}
	return revision, nil
}

// DeleteEvent removes the remote event, conditional on expectedRevision.
func (c *Client) DeleteEvent(ctx context.Context, ref, expectedRevision string) error {
	err := Retry(ctx, defaultMaxAttempts, func() error {
		resp, err := c.do(ctx, http.MethodDelete, "/v1/events/"+url.PathEscape(ref), nil, expectedRevision)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		return statusError(resp)
	})
	if err != nil {
		return fmt.Errorf("delete event %s: %w", ref, err)
	}
	return nil
}

// do builds and executes one request. body is JSON-encoded when non-nil;
// ifMatch is sent as an If-Match header when non-empty.
func (c *Client) do(ctx context.Context, method, path string, body any, ifMatch string) (*http.Response, error) {
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// statusError maps non-2xx responses to errors, including the revision
// sentinels for conditional writes.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusPreconditionFailed:
		return ErrStaleRevision
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return errUnauthorized
	default:
		var br struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&br)
		if br.Message != "" {
			return fmt.Errorf("calendar returned status %d: %s", resp.StatusCode, br.Message)
		}
		return fmt.Errorf("calendar returned unexpected status %d", resp.StatusCode)
	}
}

// revisionOf prefers the ETag header, falling back to the body field.
func revisionOf(resp *http.Response, ev Event) string {
	if etag := strings.Trim(resp.Header.Get("ETag"), `"`); etag != "" {
		return etag
	}
	return ev.Revision
}
