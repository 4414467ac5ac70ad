// Package pitscout checks pit-scouting reports and human-player notes
// before they are stored.
package pitscout

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/DoyleJ11/scouting-backend/internal/models"
	"github.com/DoyleJ11/scouting-backend/internal/scanner"
)

var (
	Drivetrains   = []string{"Swerve", "WestCoast", "Mechanum", "Omni", "Tank"}
	IntakeDesigns = []string{"Over Bumper", "Under Bumper", "Other"}
)

// DefaultNote is stored when a human-player note is left blank.
const DefaultNote = "None"

const (
	maxDimension  = 999
	maxAutoPieces = 99
	maxListLen    = 50
	maxPictureLen = 512
	maxInfoLen    = 256
	maxNoteLen    = 1000
	maxMatch      = 999
	listSep       = ", "
)

// Report is the pit-scouting form for one team at one event.
type Report struct {
	Drivetrain       string   `json:"drivetrain"`
	Weight           int      `json:"weight"`
	Length           int      `json:"length"`
	Width            int      `json:"width"`
	IntakeDesign     string   `json:"intake_design"`
	IntakeLocations  []string `json:"intake_locations"`
	ScoringLocations []string `json:"scoring_locations"`
	CagePositions    []string `json:"cage_positions"`
	AutoPositions    []string `json:"auto_positions"`
	UnderShallow     bool     `json:"under_shallow"`
	AlgaePicker      bool     `json:"algae_picker"`
	AutoLeave        bool     `json:"auto_leave"`
	AutoAlgaeMax     int      `json:"auto_algae_max"`
	AutoCoralMax     int      `json:"auto_coral_max"`
	RobotPicture     string   `json:"robot_picture,omitempty"`
	AdditionalInfo   string   `json:"additional_info"`
}

func (r Report) Validate() []scanner.FieldError {
	var errs []scanner.FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, scanner.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !slices.Contains(Drivetrains, r.Drivetrain) {
		add("drivetrain", "Drivetrain must be one of %s", strings.Join(Drivetrains, ", "))
	}
	if !slices.Contains(IntakeDesigns, r.IntakeDesign) {
		add("intake_design", "Intake design must be one of %s", strings.Join(IntakeDesigns, ", "))
	}

	for _, d := range []struct {
		field string
		n     int
	}{{"weight", r.Weight}, {"length", r.Length}, {"width", r.Width}} {
		if d.n <= 0 || d.n > maxDimension {
			add(d.field, "%s must be between 1 and %d", d.field, maxDimension)
		}
	}
	for _, p := range []struct {
		field string
		n     int
	}{{"auto_algae_max", r.AutoAlgaeMax}, {"auto_coral_max", r.AutoCoralMax}} {
		if p.n < 0 || p.n > maxAutoPieces {
			add(p.field, "%s must be between 0 and %d", p.field, maxAutoPieces)
		}
	}

	for _, l := range []struct {
		field string
		items []string
	}{
		{"intake_locations", r.IntakeLocations},
		{"scoring_locations", r.ScoringLocations},
		{"cage_positions", r.CagePositions},
		{"auto_positions", r.AutoPositions},
	} {
		switch {
		case slices.ContainsFunc(l.items, func(s string) bool { return strings.TrimSpace(s) == "" }):
			add(l.field, "%s cannot contain blank entries", l.field)
		case utf8.RuneCountInString(joinList(l.items)) > maxListLen:
			add(l.field, "%s cannot exceed %d characters", l.field, maxListLen)
		}
	}

	if pic := strings.TrimSpace(r.RobotPicture); pic != "" {
		u, err := url.Parse(pic)
		switch {
		case err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "":
			add("robot_picture", "Robot picture must be an http or https URL")
		case len(pic) > maxPictureLen:
			add("robot_picture", "Robot picture URL cannot exceed %d characters", maxPictureLen)
		}
	}
	if utf8.RuneCountInString(strings.TrimSpace(r.AdditionalInfo)) > maxInfoLen {
		add("additional_info", "Additional info cannot exceed %d characters", maxInfoLen)
	}
	return errs
}

// Team turns a validated report into the stored row for team at event.
func (r Report) Team(event string, team int) models.Team {
	return models.Team{
		TeamNumber:       team,
		Event:            event,
		RobotPicture:     strings.TrimSpace(r.RobotPicture),
		Drivetrain:       r.Drivetrain,
		Weight:           r.Weight,
		Length:           r.Length,
		Width:            r.Width,
		IntakeDesign:     r.IntakeDesign,
		IntakeLocations:  joinList(r.IntakeLocations),
		ScoringLocations: joinList(r.ScoringLocations),
		CagePositions:    joinList(r.CagePositions),
		AutoPositions:    joinList(r.AutoPositions),
		UnderShallow:     r.UnderShallow,
		AlgaePicker:      r.AlgaePicker,
		AutoLeave:        r.AutoLeave,
		AutoAlgaeMax:     r.AutoAlgaeMax,
		AutoCoralMax:     r.AutoCoralMax,
		AdditionalInfo:   strings.TrimSpace(r.AdditionalInfo),
		PitScouted:       true,
	}
}

func FromTeam(t models.Team) Report {
	return Report{
		Drivetrain:       t.Drivetrain,
		Weight:           t.Weight,
		Length:           t.Length,
		Width:            t.Width,
		IntakeDesign:     t.IntakeDesign,
		IntakeLocations:  splitList(t.IntakeLocations),
		ScoringLocations: splitList(t.ScoringLocations),
		CagePositions:    splitList(t.CagePositions),
		AutoPositions:    splitList(t.AutoPositions),
		UnderShallow:     t.UnderShallow,
		AlgaePicker:      t.AlgaePicker,
		AutoLeave:        t.AutoLeave,
		AutoAlgaeMax:     t.AutoAlgaeMax,
		AutoCoralMax:     t.AutoCoralMax,
		RobotPicture:     t.RobotPicture,
		AdditionalInfo:   t.AdditionalInfo,
	}
}

func joinList(items []string) string {
	trimmed := make([]string, 0, len(items))
	for _, s := range items {
		trimmed = append(trimmed, strings.TrimSpace(s))
	}
	return strings.Join(trimmed, listSep)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSep)
}

// Note is a human-player comment for one match.
type Note struct {
	MatchNumber int    `json:"match_number"`
	Comment     string `json:"human_player_comment"`
}

func (n Note) Validate() []scanner.FieldError {
	var errs []scanner.FieldError
	if n.MatchNumber < 0 || n.MatchNumber > maxMatch {
		errs = append(errs, scanner.FieldError{
			Field:   "match_number",
			Message: fmt.Sprintf("Match number must be between 0 and %d", maxMatch),
		})
	}
	if utf8.RuneCountInString(strings.TrimSpace(n.Comment)) > maxNoteLen {
		errs = append(errs, scanner.FieldError{
			Field:   "human_player_comment",
			Message: fmt.Sprintf("Comment cannot exceed %d characters", maxNoteLen),
		})
	}
	return errs
}

func (n Note) Model(event string, team int) models.HumanPlayerNote {
	comment := strings.TrimSpace(n.Comment)
	if comment == "" {
		comment = DefaultNote
	}
	return models.HumanPlayerNote{
		TeamNumber:  team,
		Event:       event,
		MatchNumber: n.MatchNumber,
		Comment:     comment,
	}
}
