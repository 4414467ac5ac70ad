package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DoyleJ11/scouting-backend/internal/engine"
)

const defaultServer = "http://localhost:8000"

var errUsage = errors.New("usage: scout [-server url] [-log-level level] <scan|picklist|dashboard|replay|teams|pit> [flags]")

type globals struct {
	Server   string
	LogLevel string
	Command  string
	Args     []string
}

// parseGlobals reads the flags before the subcommand. SCOUT_SERVER and
// LOG_LEVEL fill in what the flags leave empty.
func parseGlobals(args []string, stderr io.Writer) (globals, error) {
	var g globals
	fs := flag.NewFlagSet("scout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.Server, "server", "", "Server base URL (or SCOUT_SERVER)")
	fs.StringVar(&g.LogLevel, "log-level", "", "Log level (or LOG_LEVEL)")
	if err := fs.Parse(args); err != nil {
		return globals{}, err
	}

	if g.Server == "" {
		g.Server = os.Getenv("SCOUT_SERVER")
	}
	if g.Server == "" {
		g.Server = defaultServer
	}
	if g.LogLevel == "" {
		g.LogLevel = os.Getenv("LOG_LEVEL")
	}
	if g.LogLevel == "" {
		g.LogLevel = "warn"
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return globals{}, errUsage
	}
	g.Command, g.Args = rest[0], rest[1:]
	return g, nil
}

type scanOptions struct {
	Image     string
	Buffer    string
	Threshold int
	Fix       bool
}

func parseScan(args []string, stderr io.Writer) (scanOptions, error) {
	var o scanOptions
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.Image, "image", "", "Decode one QR code from a PNG or JPEG file instead of reading stdin")
	fs.StringVar(&o.Buffer, "buffer", "", "Keep scans in this file and upload them in batches")
	fs.IntVar(&o.Threshold, "threshold", 5, "Batch size when -buffer is set")
	fs.BoolVar(&o.Fix, "fix", false, "Prompt to correct invalid fields")
	if err := fs.Parse(args); err != nil {
		return scanOptions{}, err
	}
	if o.Threshold < 1 {
		return scanOptions{}, errors.New("-threshold must be at least 1")
	}
	return o, nil
}

// moveArg is team:bucket[:index].
type moveArg struct {
	Team   int
	Bucket engine.Bucket
	Index  int
}

func parseMove(s string) (moveArg, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return moveArg{}, fmt.Errorf("move %q: want team:bucket[:index]", s)
	}
	team, err := strconv.Atoi(parts[0])
	if err != nil || team <= 0 {
		return moveArg{}, fmt.Errorf("move %q: bad team number", s)
	}
	b := engine.Bucket(parts[1])
	if !engine.ValidBucket(b) {
		return moveArg{}, fmt.Errorf("move %q: %w", s, engine.ErrUnknownBucket)
	}
	m := moveArg{Team: team, Bucket: b, Index: -1}
	if len(parts) == 3 {
		if m.Index, err = strconv.Atoi(parts[2]); err != nil {
			return moveArg{}, fmt.Errorf("move %q: bad index", s)
		}
	}
	return m, nil
}

type picklistOptions struct {
	Comp   string
	Watch  bool
	Moves  []moveArg
	Chosen []int
	Commit bool
}

func parsePicklist(args []string, stderr io.Writer) (picklistOptions, error) {
	var o picklistOptions
	fs := flag.NewFlagSet("picklist", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.Comp, "comp", os.Getenv("SCOUT_COMP"), "Competition code (or SCOUT_COMP)")
	fs.BoolVar(&o.Watch, "watch", false, "Follow live updates until interrupted")
	fs.BoolVar(&o.Commit, "commit", false, "Store the result durably")
	fs.Func("move", "Move team:bucket[:index]; repeatable", func(s string) error {
		m, err := parseMove(s)
		if err == nil {
			o.Moves = append(o.Moves, m)
		}
		return err
	})
	fs.Func("chosen", "Mark a team as picked by another alliance; repeatable", func(s string) error {
		team, err := strconv.Atoi(s)
		if err != nil || team <= 0 {
			return fmt.Errorf("bad team number %q", s)
		}
		o.Chosen = append(o.Chosen, team)
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return picklistOptions{}, err
	}
	if o.Comp == "" {
		return picklistOptions{}, errors.New("competition code required (use -comp or SCOUT_COMP)")
	}
	return o, nil
}

type dashboardOptions struct {
	Comp       string
	Match      int
	Quantifier string
	Rankings   bool
}

func parseDashboard(args []string, stderr io.Writer) (dashboardOptions, error) {
	var o dashboardOptions
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.Comp, "comp", os.Getenv("SCOUT_COMP"), "Competition code (or SCOUT_COMP)")
	fs.IntVar(&o.Match, "match", 0, "Match number")
	fs.StringVar(&o.Quantifier, "quant", "Qualification", "Qualification, Semifinal or Final")
	fs.BoolVar(&o.Rankings, "rankings", false, "Show every team instead of one match")
	if err := fs.Parse(args); err != nil {
		return dashboardOptions{}, err
	}
	if o.Comp == "" {
		return dashboardOptions{}, errors.New("competition code required (use -comp or SCOUT_COMP)")
	}
	if !o.Rankings && o.Match <= 0 {
		return dashboardOptions{}, errors.New("-match is required")
	}
	return o, nil
}

type replayOptions struct {
	Comp  string
	Team  int
	Match int
	Step  time.Duration
}

func parseReplay(args []string, stderr io.Writer) (replayOptions, error) {
	var o replayOptions
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.Comp, "comp", os.Getenv("SCOUT_COMP"), "Competition code (or SCOUT_COMP)")
	fs.IntVar(&o.Team, "team", 0, "Team number")
	fs.IntVar(&o.Match, "match", 0, "Match number")
	fs.DurationVar(&o.Step, "step", time.Second, "Time between path points")
	if err := fs.Parse(args); err != nil {
		return replayOptions{}, err
	}
	switch {
	case o.Comp == "":
		return replayOptions{}, errors.New("competition code required (use -comp or SCOUT_COMP)")
	case o.Team <= 0:
		return replayOptions{}, errors.New("-team is required")
	case o.Match <= 0:
		return replayOptions{}, errors.New("-match is required")
	}
	return o, nil
}

type teamsOptions struct {
	Comp   string
	Events bool
}

// parseTeams leaves Comp empty when neither -comp nor SCOUT_COMP is set; the
// server then lists the training event.
func parseTeams(args []string, stderr io.Writer) (teamsOptions, error) {
	var o teamsOptions
	fs := flag.NewFlagSet("teams", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.Comp, "comp", os.Getenv("SCOUT_COMP"), "Competition code (or SCOUT_COMP)")
	fs.BoolVar(&o.Events, "events", false, "List events instead of teams")
	if err := fs.Parse(args); err != nil {
		return teamsOptions{}, err
	}
	return o, nil
}

type pitOptions struct {
	Comp  string
	Team  int
	Show  bool
	Note  string
	Match int
}

func parsePit(args []string, stderr io.Writer) (pitOptions, error) {
	var o pitOptions
	fs := flag.NewFlagSet("pit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.Comp, "comp", os.Getenv("SCOUT_COMP"), "Competition code (or SCOUT_COMP)")
	fs.IntVar(&o.Team, "team", 0, "Team number")
	fs.BoolVar(&o.Show, "show", false, "Print the stored pit report")
	fs.StringVar(&o.Note, "note", "", "Add a human-player note instead of a pit report")
	fs.IntVar(&o.Match, "match", 0, "Match number for -note")
	if err := fs.Parse(args); err != nil {
		return pitOptions{}, err
	}
	switch {
	case o.Comp == "":
		return pitOptions{}, errors.New("competition code required (use -comp or SCOUT_COMP)")
	case o.Team <= 0:
		return pitOptions{}, errors.New("-team is required")
	case o.Show && o.Note != "":
		return pitOptions{}, errors.New("-show and -note cannot be combined")
	}
	return o, nil
}
