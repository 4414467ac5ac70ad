package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/DoyleJ11/scouting-backend/internal/models"
	"github.com/DoyleJ11/scouting-backend/internal/tba"
)

var ErrNoSchedule = errors.New("practice matches have no schedule")
var ErrUnknownQuantifier = errors.New("unknown match quantifier")
var ErrBadMatchNumber = errors.New("match number must be positive")

// Only matches below this number count towards averages.
const maxCountedMatch = 100

type Averages struct {
	Auto        float64 `json:"auto"`
	TeleopTotal float64 `json:"teleop-total"`
	TeleopCoral float64 `json:"teleop-coral"`
	TeleopAlgae float64 `json:"teleop-algae"`
	Climb       float64 `json:"climb"`
	Total       float64 `json:"total"`
	Defense     float64 `json:"defense"`
}

type Response struct {
	Red       map[int]Averages `json:"red"`
	Blue      map[int]Averages `json:"blue"`
	RedTeams  []int            `json:"red_teams"`
	BlueTeams []int            `json:"blue_teams"`
}

type Query struct {
	MatchNumber int    `json:"match_number"`
	Quantifier  string `json:"quantifier"`
}

// MatchKey turns a query into TBA's match id, e.g. qm12, sf3m1 or f1m2.
func MatchKey(q Query) (string, error) {
	if q.MatchNumber <= 0 {
		return "", ErrBadMatchNumber
	}
	quant := strings.ToLower(strings.TrimSpace(q.Quantifier))
	switch {
	case quant == "", quant == "qm", strings.HasPrefix(quant, "qual"):
		return fmt.Sprintf("qm%d", q.MatchNumber), nil
	case quant == "sf", strings.HasPrefix(quant, "semi"):
		return fmt.Sprintf("sf%dm1", q.MatchNumber), nil
	case quant == "f", strings.HasPrefix(quant, "final"):
		return fmt.Sprintf("f1m%d", q.MatchNumber), nil
	case strings.HasPrefix(quant, "prac"):
		return "", ErrNoSchedule
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownQuantifier, q.Quantifier)
	}
}

type MatchSource interface {
	Match(ctx context.Context, event, matchID string) (tba.Match, error)
}

type DataSource interface {
	MatchData(ctx context.Context, event string, team int) ([]models.MatchData, error)
	Teams(ctx context.Context, event string) ([]int, error)
}

type Service struct {
	matches MatchSource
	data    DataSource
}

func NewService(matches MatchSource, data DataSource) *Service {
	return &Service{matches: matches, data: data}
}

// Match builds the dashboard for one scheduled match.
func (s *Service) Match(ctx context.Context, event string, q Query) (Response, error) {
	key, err := MatchKey(q)
	if err != nil {
		return Response{}, err
	}
	m, err := s.matches.Match(ctx, event, key)
	if err != nil {
		return Response{}, err
	}

	resp := Response{
		Red:       make(map[int]Averages, len(m.Red)),
		Blue:      make(map[int]Averages, len(m.Blue)),
		RedTeams:  m.Red,
		BlueTeams: m.Blue,
	}
	for _, team := range m.Red {
		if resp.Red[team], err = s.TeamAverages(ctx, event, team); err != nil {
			return Response{}, err
		}
	}
	for _, team := range m.Blue {
		if resp.Blue[team], err = s.TeamAverages(ctx, event, team); err != nil {
			return Response{}, err
		}
	}
	return resp, nil
}

// Rankings returns averages for every team with data at event, plus the
// team numbers in ascending order.
func (s *Service) Rankings(ctx context.Context, event string) (map[int]Averages, []int, error) {
	teams, err := s.data.Teams(ctx, event)
	if err != nil {
		return nil, nil, err
	}
	out := make(map[int]Averages, len(teams))
	for _, team := range teams {
		if out[team], err = s.TeamAverages(ctx, event, team); err != nil {
			return nil, nil, err
		}
	}
	return out, teams, nil
}

func (s *Service) TeamAverages(ctx context.Context, event string, team int) (Averages, error) {
	rows, err := s.data.MatchData(ctx, event, team)
	if err != nil {
		return Averages{}, err
	}
	return Average(rows), nil
}

// Average computes the per-match means, ignoring matches numbered 100 and up.
// No rows gives all zeros.
func Average(rows []models.MatchData) Averages {
	var sum Averages
	n := 0
	for _, r := range rows {
		if r.MatchNumber >= maxCountedMatch {
			continue
		}
		n++
		auto := float64(r.AutoPoints())
		coral := float64(r.TeleCoral())
		algae := float64(r.TeleAlgae())

		sum.Auto += auto
		sum.TeleopCoral += coral
		sum.TeleopAlgae += algae
		sum.TeleopTotal += coral + algae
		sum.Climb += float64(r.Climb)
		sum.Total += auto + coral + algae
		sum.Defense += float64(r.DefenseRanking)
	}
	if n == 0 {
		return Averages{}
	}

	mean := func(v float64) float64 { return round3(v / float64(n)) }
	return Averages{
		Auto:        mean(sum.Auto),
		TeleopTotal: mean(sum.TeleopTotal),
		TeleopCoral: mean(sum.TeleopCoral),
		TeleopAlgae: mean(sum.TeleopAlgae),
		Climb:       mean(sum.Climb),
		Total:       mean(sum.Total),
		Defense:     mean(sum.Defense),
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
