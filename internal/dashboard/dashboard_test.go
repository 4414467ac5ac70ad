package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/scouting-backend/internal/models"
	"github.com/DoyleJ11/scouting-backend/internal/store"
	"github.com/DoyleJ11/scouting-backend/internal/tba"
)

type fakeMatches map[string]tba.Match

func (f fakeMatches) Match(_ context.Context, event, id string) (tba.Match, error) {
	m, ok := f[event+"_"+id]
	if !ok {
		return tba.Match{}, tba.ErrNotFound
	}
	return m, nil
}

func TestMatchKey(t *testing.T) {
	cases := []struct {
		q    Query
		want string
		err  error
	}{
		{Query{MatchNumber: 12}, "qm12", nil},
		{Query{MatchNumber: 12, Quantifier: "Qual"}, "qm12", nil},
		{Query{MatchNumber: 3, Quantifier: "Semi"}, "sf3m1", nil},
		{Query{MatchNumber: 2, Quantifier: "final"}, "f1m2", nil},
		{Query{MatchNumber: 2, Quantifier: "Prac"}, "", ErrNoSchedule},
		{Query{MatchNumber: 2, Quantifier: "Scrimmage"}, "", ErrUnknownQuantifier},
		{Query{MatchNumber: 0}, "", ErrBadMatchNumber},
	}
	for _, tc := range cases {
		got, err := MatchKey(tc.q)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, "%+v", tc.q)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestAverage(t *testing.T) {
	rows := []models.MatchData{
		{MatchNumber: 1, AutoL4: 2, AutoNet: 1, TeleL1: 3, TeleNet: 1, Climb: 3, DefenseRanking: 2},
		{MatchNumber: 2, AutoL1: 1, TeleL2: 2, TeleProcessor: 1, Climb: 2, DefenseRanking: 3},
		{MatchNumber: 3, TeleL3: 1, Climb: 0, DefenseRanking: 1},
		{MatchNumber: 150, AutoL4: 99, TeleL4: 99},
	}
	got := Average(rows)

	assert.Equal(t, 1.333, got.Auto)
	assert.Equal(t, 2.0, got.TeleopCoral)
	assert.Equal(t, 0.667, got.TeleopAlgae)
	assert.Equal(t, 2.667, got.TeleopTotal)
	assert.Equal(t, 1.667, got.Climb)
	assert.Equal(t, 4.0, got.Total)
	assert.Equal(t, 2.0, got.Defense)

	assert.Equal(t, Averages{}, Average(nil))
}

func TestServiceMatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveMatchData(ctx, []models.MatchData{
		{TeamNumber: 254, Event: "2025cave", MatchNumber: 1, AutoL4: 3, Climb: 3},
		{TeamNumber: 118, Event: "2025cave", MatchNumber: 1, TeleNet: 2},
	}))

	svc := NewService(fakeMatches{
		"2025cave_qm12": {Red: []int{254, 1678, 1234}, Blue: []int{118, 971, 2073}},
	}, st)

	resp, err := svc.Match(ctx, "2025cave", Query{MatchNumber: 12})
	require.NoError(t, err)
	assert.Equal(t, []int{254, 1678, 1234}, resp.RedTeams)
	assert.Equal(t, 3.0, resp.Red[254].Auto)
	assert.Equal(t, Averages{}, resp.Red[1678])
	assert.Equal(t, 2.0, resp.Blue[118].TeleopAlgae)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"red":{"1234":`)
	assert.Contains(t, string(raw), `"teleop-total"`)

	_, err = svc.Match(ctx, "2025cave", Query{MatchNumber: 13})
	assert.ErrorIs(t, err, tba.ErrNotFound)
}

func TestServiceRankings(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveMatchData(ctx, []models.MatchData{
		{TeamNumber: 1678, Event: "2025cave", MatchNumber: 1, Climb: 2},
		{TeamNumber: 254, Event: "2025cave", MatchNumber: 1, Climb: 4},
	}))

	avgs, teams, err := NewService(fakeMatches{}, st).Rankings(ctx, "2025cave")
	require.NoError(t, err)
	assert.Equal(t, []int{254, 1678}, teams)
	assert.Equal(t, 4.0, avgs[254].Climb)
}

func TestRender(t *testing.T) {
	resp := Response{
		Red:       map[int]Averages{254: {Auto: 1.5, Total: 10}},
		Blue:      map[int]Averages{118: {Defense: 2.333}},
		RedTeams:  []int{254},
		BlueTeams: []int{118},
	}
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, resp))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Auto")
	assert.True(t, strings.HasPrefix(lines[1], "Red 1"))
	assert.Contains(t, lines[1], "254")
	assert.Contains(t, lines[1], "1.5")
	assert.True(t, strings.HasPrefix(lines[2], "Blue 1"))
	assert.Contains(t, lines[2], "2.333")
}
