package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// MatchData is one scout's report of one team in one match.
type MatchData struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	TeamNumber  int    `json:"teamNumber" gorm:"not null;index:idx_match_team_event"`
	Event       string `json:"comp_code" gorm:"size:16;not null;index:idx_match_team_event"`
	MatchNumber int    `json:"matchNumber" gorm:"not null"`
	ScoutName   string `json:"name" gorm:"size:32"`
	Quantifier  string `json:"quantifier" gorm:"size:10"`

	StartPos      int  `json:"startPos"`
	MissedAuto    int  `json:"missed_auto"`
	AutoLeave     int  `json:"autoLeave"`
	AutoNet       int  `json:"autoNet"`
	AutoProcessor int  `json:"autoProcessor"`
	AutoRemoved   int  `json:"autoRemoved"`
	AutoPath      Path `json:"autoPath" gorm:"type:text"`
	AutoL1        int  `json:"autoL1"`
	AutoL2        int  `json:"autoL2"`
	AutoL3        int  `json:"autoL3"`
	AutoL4        int  `json:"autoL4"`

	TeleNet       int `json:"telenet"`
	TeleProcessor int `json:"teleProcessor"`
	TeleRemoved   int `json:"teleRemoved"`
	TeleL1        int `json:"teleL1"`
	TeleL2        int `json:"teleL2"`
	TeleL3        int `json:"teleL3"`
	TeleL4        int `json:"teleL4"`

	Climb          int    `json:"endClimb"`
	DriverRanking  int    `json:"driverRanking"`
	DefenseRanking int    `json:"defenseRanking"`
	Comment        string `json:"comment" gorm:"size:256"`
	IsBroken       int    `json:"isBroken"`
	IsDisabled     int    `json:"isDisabled"`
	IsTipped       int    `json:"isTipped"`

	CreatedAt time.Time `json:"-"`
}

func (MatchData) TableName() string { return "team_match_data" }

func (m MatchData) AutoPoints() int {
	return m.AutoL1 + m.AutoL2 + m.AutoL3 + m.AutoL4 + m.AutoNet + m.AutoProcessor
}

func (m MatchData) TeleCoral() int {
	return m.TeleL1 + m.TeleL2 + m.TeleL3 + m.TeleL4
}

func (m MatchData) TeleAlgae() int {
	return m.TeleNet + m.TeleProcessor
}

// Team marks that a team attended an event. The remaining fields hold its
// pit-scouting report once PitScouted is set.
type Team struct {
	TeamNumber int    `json:"team_number" gorm:"primaryKey;autoIncrement:false"`
	Event      string `json:"comp_code" gorm:"primaryKey;size:16"`

	RobotPicture     string `json:"robot_picture,omitempty" gorm:"size:512"`
	Drivetrain       string `json:"drivetrain" gorm:"size:32"`
	Weight           int    `json:"weight"`
	Length           int    `json:"length"`
	Width            int    `json:"width"`
	IntakeDesign     string `json:"intake_design" gorm:"size:50"`
	IntakeLocations  string `json:"intake_locations" gorm:"size:50"`
	ScoringLocations string `json:"scoring_locations" gorm:"size:50"`
	CagePositions    string `json:"cage_positions" gorm:"size:50"`
	AutoPositions    string `json:"auto_positions" gorm:"size:50"`
	UnderShallow     bool   `json:"under_shallow"`
	AlgaePicker      bool   `json:"algae_picker"`
	AutoLeave        bool   `json:"auto_leave"`
	AutoAlgaeMax     int    `json:"auto_algae_max"`
	AutoCoralMax     int    `json:"auto_coral_max"`
	AdditionalInfo   string `json:"additional_info" gorm:"size:256"`
	PitScouted       bool   `json:"pit_scouted" gorm:"not null;default:false"`
}

// HumanPlayerNote is a free-text note on a team's human player in one match.
type HumanPlayerNote struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	TeamNumber  int       `json:"team_number" gorm:"not null;index:idx_hp_team_event"`
	Event       string    `json:"comp_code" gorm:"size:16;not null;index:idx_hp_team_event"`
	MatchNumber int       `json:"match_number"`
	Comment     string    `json:"human_player_comment" gorm:"size:1000"`
	CreatedAt   time.Time `json:"created_at"`
}

func (HumanPlayerNote) TableName() string { return "human_player_match" }

// Path is an ordered list of field position names, stored comma-joined.
type Path []string

func ParsePath(s string) Path {
	var p Path
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			p = append(p, trimmed)
		}
	}
	return p
}

func (p Path) String() string { return strings.Join(p, ",") }

func (p Path) Value() (driver.Value, error) {
	return p.String(), nil
}

func (p *Path) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case string:
		*p = ParsePath(v)
	case []byte:
		*p = ParsePath(string(v))
	default:
		return fmt.Errorf("path: cannot scan %T", src)
	}
	return nil
}
