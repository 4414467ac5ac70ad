package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/models"
)

// picklistRow is the persisted picklist, one row per event.
type picklistRow struct {
	Event      string `gorm:"primaryKey;size:16"`
	NoPick     []int  `gorm:"serializer:json"`
	FirstPick  []int  `gorm:"serializer:json"`
	SecondPick []int  `gorm:"serializer:json"`
	ThirdPick  []int  `gorm:"serializer:json"`
	DnPick     []int  `gorm:"serializer:json"`
	Version    int64  `gorm:"not null;default:0"`
	UpdatedAt  time.Time
}

func (picklistRow) TableName() string { return "picklists" }

func (r picklistRow) state() engine.State {
	return engine.FromBuckets(r.NoPick, r.FirstPick, r.SecondPick, r.ThirdPick, r.DnPick)
}

// GormStore persists to postgres or sqlite through gorm.
type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func OpenPostgres(dsn string, log *zap.Logger) (*GormStore, error) {
	return Open(postgres.Open(dsn), log)
}

func OpenSQLite(path string, log *zap.Logger) (*GormStore, error) {
	return Open(sqlite.Open(path), log)
}

func Open(dialector gorm.Dialector, log *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&picklistRow{}, &models.Team{}, &models.MatchData{}, &models.HumanPlayerNote{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GormStore{db: db, log: log}, nil
}

func (s *GormStore) LoadPicklist(ctx context.Context, event string) (engine.State, int64, error) {
	var row picklistRow
	err := s.db.WithContext(ctx).Where("event = ?", event).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.State{}, 0, ErrNotFound
	}
	if err != nil {
		return engine.State{}, 0, err
	}
	return row.state(), row.Version, nil
}

// SavePicklist upserts the picklist unless the stored version is newer.
func (s *GormStore) SavePicklist(ctx context.Context, event string, state engine.State, version int64) error {
	row := picklistRow{
		Event:      event,
		NoPick:     state.Bucket(engine.NoPick),
		FirstPick:  state.Bucket(engine.FirstPick),
		SecondPick: state.Bucket(engine.SecondPick),
		ThirdPick:  state.Bucket(engine.ThirdPick),
		DnPick:     state.Bucket(engine.DoNotPick),
		Version:    version,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event"}},
		DoUpdates: clause.AssignmentColumns([]string{"no_pick", "first_pick", "second_pick", "third_pick", "dn_pick", "version", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "picklists.version <= excluded.version"},
		}},
	}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	s.log.Debug("picklist saved", zap.String("event", event), zap.Int64("version", version))
	return nil
}

func (s *GormStore) SaveMatchData(ctx context.Context, rows []models.MatchData) error {
	if len(rows) == 0 {
		return nil
	}

	type teamKey struct {
		team  int
		event string
	}
	seen := make(map[teamKey]bool)
	var teams []models.Team
	for i := range rows {
		if rows[i].ID == "" {
			rows[i].ID = uuid.NewString()
		}
		k := teamKey{rows[i].TeamNumber, rows[i].Event}
		if !seen[k] {
			seen[k] = true
			teams = append(teams, models.Team{TeamNumber: k.team, Event: k.event})
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&teams).Error; err != nil {
			return fmt.Errorf("insert teams: %w", err)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert match data: %w", err)
		}
		return nil
	})
}

func (s *GormStore) MatchData(ctx context.Context, event string, team int) ([]models.MatchData, error) {
	var rows []models.MatchData
	err := s.db.WithContext(ctx).
		Where("event = ? AND team_number = ?", event, team).
		Order("match_number, created_at").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) Teams(ctx context.Context, event string) ([]int, error) {
	var teams []int
	err := s.db.WithContext(ctx).Model(&models.Team{}).
		Where("event = ?", event).
		Order("team_number").
		Pluck("team_number", &teams).Error
	return teams, err
}

func (s *GormStore) AutoPath(ctx context.Context, event string, team, match int) (models.Path, error) {
	var row models.MatchData
	err := s.db.WithContext(ctx).
		Select("auto_path").
		Where("event = ? AND team_number = ? AND match_number = ?", event, team, match).
		Order("created_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.AutoPath, nil
}

func (s *GormStore) SavePitReport(ctx context.Context, team models.Team) error {
	team.PitScouted = true
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "team_number"}, {Name: "event"}},
		UpdateAll: true,
	}).Create(&team).Error
	if err != nil {
		return fmt.Errorf("save pit report: %w", err)
	}
	s.log.Debug("pit report saved", zap.String("event", team.Event), zap.Int("team", team.TeamNumber))
	return nil
}

func (s *GormStore) PitReport(ctx context.Context, event string, team int) (models.Team, error) {
	var row models.Team
	err := s.db.WithContext(ctx).
		Where("event = ? AND team_number = ? AND pit_scouted = ?", event, team, true).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Team{}, ErrNotFound
	}
	return row, err
}

func (s *GormStore) PitScouted(ctx context.Context, event string) ([]int, error) {
	var teams []int
	err := s.db.WithContext(ctx).Model(&models.Team{}).
		Where("event = ? AND pit_scouted = ?", event, true).
		Order("team_number").
		Pluck("team_number", &teams).Error
	return teams, err
}

// SaveHumanPlayerNote also records the team as attending the event.
func (s *GormStore) SaveHumanPlayerNote(ctx context.Context, note models.HumanPlayerNote) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		team := models.Team{TeamNumber: note.TeamNumber, Event: note.Event}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&team).Error; err != nil {
			return fmt.Errorf("insert team: %w", err)
		}
		if err := tx.Create(&note).Error; err != nil {
			return fmt.Errorf("insert human player note: %w", err)
		}
		return nil
	})
}

func (s *GormStore) HumanPlayerNotes(ctx context.Context, event string, team int) ([]models.HumanPlayerNote, error) {
	var notes []models.HumanPlayerNote
	err := s.db.WithContext(ctx).
		Where("event = ? AND team_number = ?", event, team).
		Order("match_number, created_at").
		Find(&notes).Error
	return notes, err
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
