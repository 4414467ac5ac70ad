package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/scouting-backend/internal/dashboard"
	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/hub"
	"github.com/DoyleJ11/scouting-backend/internal/models"
	"github.com/DoyleJ11/scouting-backend/internal/pitscout"
	"github.com/DoyleJ11/scouting-backend/internal/room"
	"github.com/DoyleJ11/scouting-backend/internal/scanner"
	"github.com/DoyleJ11/scouting-backend/internal/store"
	"github.com/DoyleJ11/scouting-backend/internal/tba"
	"github.com/DoyleJ11/scouting-backend/internal/types"
)

// TeamSource lists the teams attending an event. It seeds new picklists.
type TeamSource interface {
	EventTeams(ctx context.Context, event string) ([]int, error)
}

// EventSource lists the events a team is registered for in a season.
type EventSource interface {
	TeamEvents(ctx context.Context, team, year int) ([]tba.Event, error)
}

// trainingEvent is always offered and never looked up on TBA.
const trainingEvent = "testing"

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Hub       *hub.Hub
	Store     store.Store
	Teams     TeamSource
	Events    EventSource
	Dashboard *dashboard.Service
	Dedupe    scanner.Deduper
	Checks    map[string]HealthCheck
	Log       *zap.Logger

	// HomeTeam and Season select the events listed by /teams/events/.
	HomeTeam int
	Season   int

	CSRF           bool
	AllowedOrigins []string
}

type Server struct {
	hub    *hub.Hub
	store  store.Store
	teams  TeamSource
	events EventSource
	dash   *dashboard.Service
	dedupe scanner.Deduper
	checks map[string]HealthCheck
	load   hub.Loader
	log    *zap.Logger

	homeTeam, season int
}

func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	dedupe := d.Dedupe
	if dedupe == nil {
		dedupe = scanner.NewMemoryDeduper(10 * time.Minute)
	}
	return &Server{
		hub:    d.Hub,
		store:  d.Store,
		teams:  d.Teams,
		events: d.Events,
		dash:   d.Dashboard,
		dedupe: dedupe,
		checks: d.Checks,
		load:   PicklistLoader(d.Store, d.Teams, log),
		log:    log,

		homeTeam: d.HomeTeam,
		season:   d.Season,
	}
}

// PicklistLoader loads a stored picklist, falling back to every event team
// in no_pick and then to an empty list.
func PicklistLoader(st store.Store, teams TeamSource, log *zap.Logger) hub.Loader {
	return func(ctx context.Context, code string) (engine.State, int64, error) {
		state, version, err := st.LoadPicklist(ctx, code)
		if err == nil {
			return state, version, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return engine.State{}, 0, err
		}

		if teams != nil {
			list, err := teams.EventTeams(ctx, code)
			if err == nil {
				return engine.NewSeededState(list), 0, nil
			}
			log.Warn("could not seed picklist from event teams", zap.String("comp", code), zap.Error(err))
		}
		return engine.NewEmptyState(), 0, nil
	}
}

func (s *Server) room(ctx context.Context, code string) (*room.Room, error) {
	return s.hub.Room(ctx, code, s.load)
}

func compParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("comp"))
}

func teamParam(r *http.Request) (int, bool) {
	team, err := strconv.Atoi(chi.URLParam(r, "team"))
	return team, err == nil && team > 0 && team <= 99999
}

func etag(version int64) string {
	return fmt.Sprintf(`"v%d"`, version)
}

func (s *Server) GetPicklist(w http.ResponseWriter, r *http.Request) {
	comp := compParam(r)
	if comp == "" {
		writeError(w, http.StatusBadRequest, "Competition code is required")
		return
	}

	rm, err := s.room(r.Context(), comp)
	if err != nil {
		s.internalError(w, r, "failed to load picklist", err)
		return
	}
	view, err := rm.View(r.Context())
	if err != nil {
		s.internalError(w, r, "failed to read picklist", err)
		return
	}

	tag := etag(view.Version)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == tag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	status := types.StatusUpdated
	if ts := r.URL.Query().Get("timestamp"); ts != "" {
		if seen, err := strconv.ParseInt(ts, 10, 64); err == nil && seen == view.Version {
			status = types.StatusNoChange
		}
	}

	writeJSON(w, http.StatusOK, types.PicklistResponse{
		Status:    status,
		Version:   view.Version,
		Timestamp: view.Version,
		Data:      view.State,
	})
}

func (s *Server) SubmitPicklist(w http.ResponseWriter, r *http.Request) {
	comp := compParam(r)
	if comp == "" {
		writeError(w, http.StatusBadRequest, "Competition code is required")
		return
	}

	var req types.SubmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid picklist: "+err.Error())
		return
	}

	rm, err := s.room(r.Context(), comp)
	if err != nil {
		s.internalError(w, r, "failed to load picklist", err)
		return
	}
	res, err := rm.Do(r.Context(), engine.Command{Type: engine.CmdReplace, State: req.Data})
	if err != nil {
		s.internalError(w, r, "failed to apply picklist", err)
		return
	}
	if res.Err != nil {
		writeError(w, http.StatusBadRequest, res.Err.Error())
		return
	}
	if req.HasBase && res.Changed && req.Base < res.Snapshot.Version-1 {
		s.log.Info("picklist submitted over newer version",
			zap.String("comp", comp), zap.Int64("base", req.Base), zap.Int64("version", res.Snapshot.Version))
	}

	saved := false
	if save, _ := strconv.ParseBool(r.URL.Query().Get("save_to_db")); save {
		err := s.store.SavePicklist(r.Context(), comp, res.Snapshot.State, res.Snapshot.Version)
		switch {
		case err == nil:
			saved = true
		case errors.Is(err, store.ErrStale):
			s.log.Warn("newer picklist already stored", zap.String("comp", comp), zap.Int64("version", res.Snapshot.Version))
		default:
			s.internalError(w, r, "failed to save picklist", err)
			return
		}
	}

	writeJSON(w, http.StatusOK, types.PicklistResponse{
		Status:    types.StatusSaved,
		Version:   res.Snapshot.Version,
		Timestamp: res.Snapshot.Version,
		Data:      res.Snapshot.State,
		SavedToDB: &saved,
	})
}

func (s *Server) Scanner(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}
	raws, err := scanner.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if len(raws) == 0 {
		writeError(w, http.StatusBadRequest, "No scans in request")
		return
	}

	var fields []scanner.FieldError
	var msgs []string
	for i, raw := range raws {
		for _, fe := range scanner.Validate(raw) {
			fields = append(fields, fe)
			msgs = append(msgs, fmt.Sprintf("record %d: %s", i+1, fe.Message))
		}
	}
	if len(fields) > 0 {
		writeFieldErrors(w, strings.Join(msgs, "; "), fields)
		return
	}

	var fresh []scanner.Record
	var claimed []string
	for _, raw := range raws {
		rec := scanner.Sanitize(raw)
		fp := scanner.Fingerprint(rec)
		ok, err := s.dedupe.Claim(r.Context(), fp)
		if err != nil {
			s.log.Warn("dedupe unavailable, storing scan", zap.Error(err))
			ok = true
		}
		if !ok {
			s.log.Info("duplicate scan acknowledged", zap.Int("team", rec.TeamNumber), zap.Int("match", rec.MatchNumber))
			continue
		}
		claimed = append(claimed, fp)
		fresh = append(fresh, rec)
	}

	if err := s.store.SaveMatchData(r.Context(), fresh); err != nil {
		for _, fp := range claimed {
			_ = s.dedupe.Release(context.WithoutCancel(r.Context()), fp)
		}
		s.internalError(w, r, "failed to store scans", err)
		return
	}

	s.log.Info("scans stored", zap.Int("received", len(raws)), zap.Int("stored", len(fresh)))
	writeJSON(w, http.StatusOK, types.ScanResponse{
		Confirmation: fmt.Sprintf("Successfully Sent %d records.", len(raws)),
	})
}

func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	comp := compParam(r)
	if comp == "" {
		writeError(w, http.StatusBadRequest, "Competition code is required")
		return
	}
	var req types.DashboardRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid match number")
		return
	}

	resp, err := s.dash.Match(r.Context(), comp, dashboard.Query(req))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, dashboard.ErrNoSchedule),
		errors.Is(err, dashboard.ErrUnknownQuantifier),
		errors.Is(err, dashboard.ErrBadMatchNumber):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tba.ErrNotFound):
		writeError(w, http.StatusNotFound, "Match not found")
	default:
		s.log.Error("dashboard lookup failed", zap.String("comp", comp), zap.Error(err))
		writeError(w, http.StatusBadGateway, "Could not load match schedule")
	}
}

func (s *Server) Rankings(w http.ResponseWriter, r *http.Request) {
	comp := compParam(r)
	if comp == "" {
		writeError(w, http.StatusBadRequest, "Competition code is required")
		return
	}
	avgs, teams, err := s.dash.Rankings(r.Context(), comp)
	if err != nil {
		s.internalError(w, r, "failed to compute rankings", err)
		return
	}
	writeJSON(w, http.StatusOK, types.RankingsResponse{Teams: teams, Averages: avgs})
}

func (s *Server) PathData(w http.ResponseWriter, r *http.Request) {
	team, ok := teamParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid team number")
		return
	}
	comp := compParam(r)
	if comp == "" {
		writeError(w, http.StatusBadRequest, "Competition code is required")
		return
	}
	match, err := strconv.Atoi(r.URL.Query().Get("match"))
	if err != nil || match <= 0 {
		writeError(w, http.StatusBadRequest, "Match number is required")
		return
	}

	path, err := s.store.AutoPath(r.Context(), comp, team, match)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No path data found")
		return
	}
	if err != nil {
		s.internalError(w, r, "failed to load path", err)
		return
	}
	writeJSON(w, http.StatusOK, types.PathResponse{Path: path.String()})
}

// ListTeams answers with every team at comp and the pit-scouted subset.
// Without comp the training event is listed.
func (s *Server) ListTeams(w http.ResponseWriter, r *http.Request) {
	comp := compParam(r)
	if comp == "" {
		comp = trainingEvent
	}
	all, err := s.eventTeams(r.Context(), comp)
	if err != nil {
		s.internalError(w, r, "failed to list teams", err)
		return
	}
	scouted, err := s.store.PitScouted(r.Context(), comp)
	if err != nil {
		s.internalError(w, r, "failed to list pit-scouted teams", err)
		return
	}
	if all == nil {
		all = []int{}
	}
	if scouted == nil {
		scouted = []int{}
	}
	writeJSON(w, http.StatusOK, types.TeamListResponse{Teams: all, PitScouted: scouted})
}

// eventTeams asks TBA about real events and falls back to the teams seen
// in stored data.
func (s *Server) eventTeams(ctx context.Context, comp string) ([]int, error) {
	if s.teams != nil && comp != trainingEvent {
		list, err := s.teams.EventTeams(ctx, comp)
		if err == nil {
			list = slices.Clone(list)
			slices.Sort(list)
			return list, nil
		}
		s.log.Warn("could not list event teams", zap.String("comp", comp), zap.Error(err))
	}
	return s.store.Teams(ctx, comp)
}

// Events maps event keys to names for the home team's season, plus the
// training event.
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	events := make(map[string]string)
	if s.events != nil {
		list, err := s.events.TeamEvents(r.Context(), s.homeTeam, s.season)
		if err != nil {
			s.log.Error("event lookup failed", zap.Int("team", s.homeTeam), zap.Int("season", s.season), zap.Error(err))
			writeError(w, http.StatusBadGateway, "Could not load events")
			return
		}
		for _, e := range list {
			events[e.Key] = e.Name
		}
	}
	events[trainingEvent] = "Training"
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) SubmitPitReport(w http.ResponseWriter, r *http.Request) {
	team, ok := teamParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid team number")
		return
	}
	comp := compParam(r)
	if comp == "" {
		writeError(w, http.StatusBadRequest, "Competition code is required")
		return
	}

	var report pitscout.Report
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if errs := report.Validate(); len(errs) > 0 {
		writeFieldErrors(w, joinMessages(errs), errs)
		return
	}

	row := report.Team(comp, team)
	if err := s.store.SavePitReport(r.Context(), row); err != nil {
		s.internalError(w, r, "failed to store pit report", err)
		return
	}
	s.log.Info("pit report stored", zap.String("comp", comp), zap.Int("team", team))
	writeJSON(w, http.StatusOK, types.PitReportResponse{TeamNumber: team, Comp: comp, Report: pitscout.FromTeam(row)})
}

func (s *Server) PitReport(w http.ResponseWriter, r *http.Request) {
	team, ok := teamParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid team number")
		return
	}
	comp := compParam(r)
	if comp == "" {
		writeError(w, http.StatusBadRequest, "Competition code is required")
		return
	}

	row, err := s.store.PitReport(r.Context(), comp, team)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Team has not been pit scouted")
		return
	}
	if err != nil {
		s.internalError(w, r, "failed to load pit report", err)
		return
	}
	writeJSON(w, http.StatusOK, types.PitReportResponse{TeamNumber: team, Comp: comp, Report: pitscout.FromTeam(row)})
}

func (s *Server) SubmitHumanPlayerNote(w http.ResponseWriter, r *http.Request) {
	team, ok := teamParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid team number")
		return
	}
	comp := compParam(r)
	if comp == "" {
		writeError(w, http.StatusBadRequest, "Competition code is required")
		return
	}

	var note pitscout.Note
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&note); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if errs := note.Validate(); len(errs) > 0 {
		writeFieldErrors(w, joinMessages(errs), errs)
		return
	}

	if err := s.store.SaveHumanPlayerNote(r.Context(), note.Model(comp, team)); err != nil {
		s.internalError(w, r, "failed to store human player note", err)
		return
	}
	notes, err := s.store.HumanPlayerNotes(r.Context(), comp, team)
	if err != nil {
		s.internalError(w, r, "failed to load human player notes", err)
		return
	}
	writeJSON(w, http.StatusOK, types.HumanPlayerNotesResponse{Notes: notes})
}

func (s *Server) HumanPlayerNotes(w http.ResponseWriter, r *http.Request) {
	team, ok := teamParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid team number")
		return
	}
	comp := compParam(r)
	if comp == "" {
		writeError(w, http.StatusBadRequest, "Competition code is required")
		return
	}

	notes, err := s.store.HumanPlayerNotes(r.Context(), comp, team)
	if err != nil {
		s.internalError(w, r, "failed to load human player notes", err)
		return
	}
	if notes == nil {
		notes = []models.HumanPlayerNote{}
	}
	writeJSON(w, http.StatusOK, types.HumanPlayerNotesResponse{Notes: notes})
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := types.HealthResponse{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}
