package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/models"
)

type storedPicklist struct {
	state   engine.State
	version int64
}

// MemoryStore keeps everything in process. Used for development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	picklists map[string]storedPicklist
	matches   []models.MatchData
	teams     map[string]map[int]bool
	pits      map[string]map[int]models.Team
	notes     []models.HumanPlayerNote
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		picklists: make(map[string]storedPicklist),
		teams:     make(map[string]map[int]bool),
		pits:      make(map[string]map[int]models.Team),
	}
}

func (m *MemoryStore) LoadPicklist(_ context.Context, event string) (engine.State, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.picklists[event]
	if !ok {
		return engine.State{}, 0, ErrNotFound
	}
	return p.state.Clone(), p.version, nil
}

func (m *MemoryStore) SavePicklist(_ context.Context, event string, state engine.State, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.picklists[event]; ok && p.version > version {
		return ErrStale
	}
	m.picklists[event] = storedPicklist{state: state.Clone(), version: version}
	return nil
}

func (m *MemoryStore) SaveMatchData(_ context.Context, rows []models.MatchData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.AutoPath = slices.Clone(row.AutoPath)
		m.matches = append(m.matches, row)
		m.addTeam(row.Event, row.TeamNumber)
	}
	return nil
}

// addTeam needs m.mu held.
func (m *MemoryStore) addTeam(event string, team int) {
	if m.teams[event] == nil {
		m.teams[event] = make(map[int]bool)
	}
	m.teams[event][team] = true
}

func (m *MemoryStore) MatchData(_ context.Context, event string, team int) ([]models.MatchData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.MatchData
	for _, row := range m.matches {
		if row.Event == event && row.TeamNumber == team {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MemoryStore) Teams(_ context.Context, event string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]int, 0, len(m.teams[event]))
	for team := range m.teams[event] {
		out = append(out, team)
	}
	slices.Sort(out)
	return out, nil
}

// AutoPath returns the most recently stored path for the match.
func (m *MemoryStore) AutoPath(_ context.Context, event string, team, match int) (models.Path, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.matches) - 1; i >= 0; i-- {
		row := m.matches[i]
		if row.Event == event && row.TeamNumber == team && row.MatchNumber == match {
			return slices.Clone(row.AutoPath), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) SavePitReport(_ context.Context, team models.Team) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	team.PitScouted = true
	if m.pits[team.Event] == nil {
		m.pits[team.Event] = make(map[int]models.Team)
	}
	m.pits[team.Event][team.TeamNumber] = team
	m.addTeam(team.Event, team.TeamNumber)
	return nil
}

func (m *MemoryStore) PitReport(_ context.Context, event string, team int) (models.Team, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.pits[event][team]
	if !ok {
		return models.Team{}, ErrNotFound
	}
	return t, nil
}

func (m *MemoryStore) PitScouted(_ context.Context, event string) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]int, 0, len(m.pits[event]))
	for team := range m.pits[event] {
		out = append(out, team)
	}
	slices.Sort(out)
	return out, nil
}

func (m *MemoryStore) SaveHumanPlayerNote(_ context.Context, note models.HumanPlayerNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	m.notes = append(m.notes, note)
	m.addTeam(note.Event, note.TeamNumber)
	return nil
}

// HumanPlayerNotes returns the team's notes ordered by match, oldest first
// within a match.
func (m *MemoryStore) HumanPlayerNotes(_ context.Context, event string, team int) ([]models.HumanPlayerNote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.HumanPlayerNote
	for _, n := range m.notes {
		if n.Event == event && n.TeamNumber == team {
			out = append(out, n)
		}
	}
	slices.SortStableFunc(out, func(a, b models.HumanPlayerNote) int { return a.MatchNumber - b.MatchNumber })
	return out, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
