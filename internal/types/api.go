package types

import (
	"bytes"
	"encoding/json"

	"github.com/DoyleJ11/scouting-backend/internal/dashboard"
	"github.com/DoyleJ11/scouting-backend/internal/models"
	"github.com/DoyleJ11/scouting-backend/internal/pitscout"
	"github.com/DoyleJ11/scouting-backend/internal/scanner"
)

type ErrorResponse struct {
	Error  string               `json:"error"`
	Fields []scanner.FieldError `json:"fields,omitempty"`
}

type ScanResponse struct {
	Confirmation string `json:"confirmation"`
}

type PathResponse struct {
	Path string `json:"path"`
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type RankingsResponse struct {
	Teams    []int                      `json:"teams"`
	Averages map[int]dashboard.Averages `json:"averages"`
}

// TeamListResponse lists every team at an event and the ones already pit
// scouted, both ascending.
type TeamListResponse struct {
	Teams      []int `json:"all_teams"`
	PitScouted []int `json:"pit_scouted"`
}

type PitReportResponse struct {
	TeamNumber int    `json:"team_number"`
	Comp       string `json:"comp_code"`
	pitscout.Report
}

type HumanPlayerNotesResponse struct {
	Notes []models.HumanPlayerNote `json:"notes"`
}

// DashboardRequest accepts {"match_number": n, "quantifier": q} or a bare
// match number.
type DashboardRequest dashboard.Query

func (d *DashboardRequest) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] != '{' {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			var s string
			if err := json.Unmarshal(b, &s); err != nil {
				return err
			}
			n = json.Number(s)
		}
		v, err := n.Int64()
		if err != nil {
			return err
		}
		*d = DashboardRequest{MatchNumber: int(v)}
		return nil
	}
	var q dashboard.Query
	if err := json.Unmarshal(b, &q); err != nil {
		return err
	}
	*d = DashboardRequest(q)
	return nil
}
