package store

import (
	"context"
	"errors"

	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/models"
)

var ErrNotFound = errors.New("not found")

// ErrStale is returned when a newer picklist version is already stored.
var ErrStale = errors.New("stored picklist is newer")

// Store is the durable side of the server: picklists, scouting data and
// the team roster per event with its pit reports.
type Store interface {
	LoadPicklist(ctx context.Context, event string) (engine.State, int64, error)
	SavePicklist(ctx context.Context, event string, state engine.State, version int64) error

	// SaveMatchData inserts rows and their (team, event) entries atomically.
	SaveMatchData(ctx context.Context, rows []models.MatchData) error
	MatchData(ctx context.Context, event string, team int) ([]models.MatchData, error)
	Teams(ctx context.Context, event string) ([]int, error)
	AutoPath(ctx context.Context, event string, team, match int) (models.Path, error)

	// SavePitReport replaces the team's pit report and marks it scouted.
	SavePitReport(ctx context.Context, team models.Team) error
	PitReport(ctx context.Context, event string, team int) (models.Team, error)
	PitScouted(ctx context.Context, event string) ([]int, error)

	SaveHumanPlayerNote(ctx context.Context, note models.HumanPlayerNote) error
	HumanPlayerNotes(ctx context.Context, event string, team int) ([]models.HumanPlayerNote, error)

	Ping(ctx context.Context) error
	Close() error
}
