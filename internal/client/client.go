// Package client talks to the scouting server over HTTP and WebSocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/DoyleJ11/scouting-backend/internal/dashboard"
	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/models"
	"github.com/DoyleJ11/scouting-backend/internal/pitscout"
	"github.com/DoyleJ11/scouting-backend/internal/scanner"
	"github.com/DoyleJ11/scouting-backend/internal/types"
)

const (
	csrfCookie = "csrftoken"
	csrfHeader = "X-CSRFToken"
)

// HTTPError is a non-2xx response. Message is the server's {error} text
// when there is one.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}

type Client struct {
	base *url.URL
	http *http.Client
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base: u,
		http: &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) url(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) csrfToken(ctx context.Context) (string, error) {
	find := func() string {
		for _, ck := range c.http.Jar.Cookies(c.base) {
			if ck.Name == csrfCookie {
				return ck.Value
			}
		}
		return ""
	}
	if tok := find(); tok != "" {
		return tok, nil
	}
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil); err != nil {
		var he *HTTPError
		if !errors.As(err, &he) {
			return "", fmt.Errorf("prime csrf cookie: %w", err)
		}
	}
	return find(), nil
}

// do sends body as JSON and decodes a 2xx response into out. 304 leaves out
// untouched.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path, q), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && method != http.MethodHead {
		tok, err := c.csrfToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set(csrfHeader, tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body types.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return &HTTPError{Status: resp.StatusCode, Message: body.Error}
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &HTTPError{Status: resp.StatusCode, Message: msg}
}

// GetPicklist fetches comp's picklist. A since of -1 omits the timestamp so
// the status is always "updated".
func (c *Client) GetPicklist(ctx context.Context, comp string, since int64) (types.PicklistResponse, error) {
	q := url.Values{"comp": {comp}}
	if since >= 0 {
		q.Set("timestamp", strconv.FormatInt(since, 10))
	}
	var out types.PicklistResponse
	err := c.do(ctx, http.MethodGet, "/strategy/picklist/submit/", q, nil, &out)
	return out, err
}

// SubmitPicklist replaces comp's picklist. durable also stores it.
func (c *Client) SubmitPicklist(ctx context.Context, comp string, state engine.State, base int64, durable bool) (types.PicklistResponse, error) {
	q := url.Values{"comp": {comp}}
	if durable {
		q.Set("save_to_db", "true")
	}
	var out types.PicklistResponse
	err := c.do(ctx, http.MethodPost, "/strategy/picklist/submit/", q, types.SubmitRequest{Base: base, HasBase: true, Data: state}, &out)
	return out, err
}

// PostScans uploads scans and returns the server's confirmation.
func (c *Client) PostScans(ctx context.Context, scans []scanner.Raw) (string, error) {
	var body any = scans
	if len(scans) == 1 {
		body = scans[0]
	}
	var out types.ScanResponse
	if err := c.do(ctx, http.MethodPost, "/scanner/", nil, body, &out); err != nil {
		return "", err
	}
	return out.Confirmation, nil
}

func (c *Client) Dashboard(ctx context.Context, comp string, q dashboard.Query) (dashboard.Response, error) {
	var out dashboard.Response
	err := c.do(ctx, http.MethodPost, "/strategy/dashboard/", url.Values{"comp": {comp}}, q, &out)
	return out, err
}

func (c *Client) Rankings(ctx context.Context, comp string) (types.RankingsResponse, error) {
	var out types.RankingsResponse
	err := c.do(ctx, http.MethodGet, "/strategy/rankings/", url.Values{"comp": {comp}}, nil, &out)
	return out, err
}

// Path returns the stored autonomous path, comma-joined.
func (c *Client) Path(ctx context.Context, comp string, team, match int) (string, error) {
	q := url.Values{"comp": {comp}, "match": {strconv.Itoa(match)}}
	var out types.PathResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/get_path_data/%d/", team), q, nil, &out)
	return out.Path, err
}

// Teams lists comp's teams and the pit-scouted ones. An empty comp lists
// the training event.
func (c *Client) Teams(ctx context.Context, comp string) (types.TeamListResponse, error) {
	var q url.Values
	if comp != "" {
		q = url.Values{"comp": {comp}}
	}
	var out types.TeamListResponse
	err := c.do(ctx, http.MethodGet, "/teams/", q, nil, &out)
	return out, err
}

// Events maps event keys to display names.
func (c *Client) Events(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.do(ctx, http.MethodGet, "/teams/events/", nil, nil, &out)
	return out, err
}

func (c *Client) SubmitPitReport(ctx context.Context, comp string, team int, r pitscout.Report) (types.PitReportResponse, error) {
	var out types.PitReportResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/teams/%d/pit/", team), url.Values{"comp": {comp}}, r, &out)
	return out, err
}

func (c *Client) PitReport(ctx context.Context, comp string, team int) (types.PitReportResponse, error) {
	var out types.PitReportResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/teams/%d/pit/", team), url.Values{"comp": {comp}}, nil, &out)
	return out, err
}

// AddHumanPlayerNote stores n and returns all of the team's notes.
func (c *Client) AddHumanPlayerNote(ctx context.Context, comp string, team int, n pitscout.Note) ([]models.HumanPlayerNote, error) {
	var out types.HumanPlayerNotesResponse
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/teams/%d/human_player/", team), url.Values{"comp": {comp}}, n, &out)
	return out.Notes, err
}

// DialPicklist opens the picklist WebSocket for comp.
func (c *Client) DialPicklist(ctx context.Context, comp string) (*websocket.Conn, error) {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.base.Path + "/ws/picklist/" + url.PathEscape(comp) + "/"

	hc := *c.http
	hc.Timeout = 0
	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPClient: &hc})
	return conn, err
}
