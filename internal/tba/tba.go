package tba

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

var ErrNotFound = errors.New("tba: not found")

// Match holds the alliances of one match as team numbers.
type Match struct {
	Red  []int `json:"red"`
	Blue []int `json:"blue"`
}

type Client struct {
	baseURL string
	authKey string
	http    *http.Client
}

func New(baseURL, authKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		authKey: authKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type simpleMatch struct {
	Alliances struct {
		Red  alliance `json:"red"`
		Blue alliance `json:"blue"`
	} `json:"alliances"`
}

type alliance struct {
	TeamKeys []string `json:"team_keys"`
}

type simpleTeam struct {
	TeamNumber int `json:"team_number"`
}

// Match fetches event_matchID, e.g. Match(ctx, "2025cave", "qm12").
func (c *Client) Match(ctx context.Context, event, matchID string) (Match, error) {
	var raw simpleMatch
	if err := c.get(ctx, "/match/"+url.PathEscape(event+"_"+matchID)+"/simple", &raw); err != nil {
		return Match{}, err
	}

	red, err := teamNumbers(raw.Alliances.Red.TeamKeys)
	if err != nil {
		return Match{}, err
	}
	blue, err := teamNumbers(raw.Alliances.Blue.TeamKeys)
	if err != nil {
		return Match{}, err
	}
	return Match{Red: red, Blue: blue}, nil
}

// EventTeams returns the team numbers attending event, in TBA's order.
func (c *Client) EventTeams(ctx context.Context, event string) ([]int, error) {
	var raw []simpleTeam
	if err := c.get(ctx, "/event/"+url.PathEscape(event)+"/teams/simple", &raw); err != nil {
		return nil, err
	}
	teams := make([]int, 0, len(raw))
	for _, t := range raw {
		teams = append(teams, t.TeamNumber)
	}
	return teams, nil
}

// Event is one entry of a team's season schedule.
type Event struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// TeamEvents lists the events team is registered for in year, ordered by key.
func (c *Client) TeamEvents(ctx context.Context, team, year int) ([]Event, error) {
	var events []Event
	path := fmt.Sprintf("/team/frc%d/events/%d/simple", team, year)
	if err := c.get(ctx, path, &events); err != nil {
		return nil, err
	}
	slices.SortFunc(events, func(a, b Event) int { return strings.Compare(a.Key, b.Key) })
	return events, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-TBA-Auth-Key", c.authKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tba: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("tba: %s returned %d", path, resp.StatusCode)
	}

	// TBA answers unknown keys with 200 and a null body.
	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("tba: decode %s: %w", path, err)
	}
	if string(body) == "null" {
		return ErrNotFound
	}
	return json.Unmarshal(body, out)
}

func teamNumbers(keys []string) ([]int, error) {
	out := make([]int, 0, len(keys))
	for _, key := range keys {
		n, err := strconv.Atoi(strings.TrimPrefix(key, "frc"))
		if err != nil {
			return nil, fmt.Errorf("tba: bad team key %q", key)
		}
		out = append(out, n)
	}
	return out, nil
}
