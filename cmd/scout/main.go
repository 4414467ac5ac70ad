package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/scouting-backend/internal/client"
	"github.com/DoyleJ11/scouting-backend/internal/dashboard"
	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/logging"
	"github.com/DoyleJ11/scouting-backend/internal/pitscout"
	"github.com/DoyleJ11/scouting-backend/internal/replay"
	"github.com/DoyleJ11/scouting-backend/internal/scanner"
	"github.com/DoyleJ11/scouting-backend/internal/syncer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "scout:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	g, err := parseGlobals(args, stderr)
	if err != nil {
		return err
	}
	log := logging.NewWithWriter(g.LogLevel, stderr)
	defer log.Sync()

	c, err := client.New(g.Server)
	if err != nil {
		return err
	}

	switch g.Command {
	case "scan":
		o, err := parseScan(g.Args, stderr)
		if err != nil {
			return err
		}
		return runScan(ctx, c, o, stdin, stdout, log)
	case "picklist":
		o, err := parsePicklist(g.Args, stderr)
		if err != nil {
			return err
		}
		return runPicklist(ctx, c, o, stdout, log)
	case "dashboard":
		o, err := parseDashboard(g.Args, stderr)
		if err != nil {
			return err
		}
		return runDashboard(ctx, c, o, stdout)
	case "replay":
		o, err := parseReplay(g.Args, stderr)
		if err != nil {
			return err
		}
		return runReplay(ctx, c, o, stdout)
	case "teams":
		o, err := parseTeams(g.Args, stderr)
		if err != nil {
			return err
		}
		return runTeams(ctx, c, o, stdout)
	case "pit":
		o, err := parsePit(g.Args, stderr)
		if err != nil {
			return err
		}
		return runPit(ctx, c, o, stdin, stdout)
	default:
		return errUsage
	}
}

// runScan uploads one payload per stdin line, or the QR code in -image.
func runScan(ctx context.Context, c *client.Client, o scanOptions, stdin io.Reader, stdout io.Writer, log *zap.Logger) error {
	opts := []scanner.UploaderOption{scanner.WithLogger(log)}
	var buf *scanner.Buffer
	if o.Buffer != "" {
		var err error
		buf, err = scanner.OpenBuffer(o.Buffer, o.Threshold, c, log)
		if err != nil {
			return err
		}
		opts = append(opts, scanner.WithBuffer(buf))
	}

	in := bufio.NewScanner(stdin)
	if o.Fix {
		opts = append(opts, scanner.WithCorrector(scanner.NewLinePromptCorrector(in, stdout)))
	}
	up := scanner.NewUploader(c, opts...)

	submit := func(payload string) {
		conf, err := up.Submit(ctx, payload)
		var verr *scanner.ValidationError
		switch {
		case err == nil:
			fmt.Fprintln(stdout, conf)
		case errors.Is(err, scanner.ErrDuplicate):
			fmt.Fprintln(stdout, "duplicate scan ignored")
		case errors.As(err, &verr):
			for _, fe := range verr.Fields {
				fmt.Fprintf(stdout, "invalid %s: %s\n", fe.Field, fe.Message)
			}
		default:
			fmt.Fprintln(stdout, "scan not sent:", err)
		}
	}

	if o.Image != "" {
		f, err := os.Open(o.Image)
		if err != nil {
			return err
		}
		payload, err := scanner.DecodeImage(f)
		f.Close()
		if err != nil {
			return err
		}
		submit(payload)
	} else {
		for in.Scan() && ctx.Err() == nil {
			if line := strings.TrimSpace(in.Text()); line != "" {
				submit(line)
			}
		}
		if err := in.Err(); err != nil {
			return err
		}
	}

	if buf != nil {
		if err := buf.Close(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("flush buffered scans: %w", err)
		}
	}
	return nil
}

func runPicklist(ctx context.Context, c *client.Client, o picklistOptions, stdout io.Writer, log *zap.Logger) error {
	w := syncer.New(ctx, o.Comp, c, syncer.WithLogger(log), syncer.WithOnChange(func(s engine.State, v int64) {
		if o.Watch {
			printPicklist(stdout, s, v)
		}
	}))
	defer w.Close()

	if err := w.Load(ctx); err != nil {
		return err
	}
	for _, m := range o.Moves {
		if err := w.BeginDrag(m.Team); err != nil {
			return fmt.Errorf("move %d: %w", m.Team, err)
		}
		if err := w.Drop(m.Bucket, m.Index); err != nil {
			return fmt.Errorf("move %d: %w", m.Team, err)
		}
	}
	for _, team := range o.Chosen {
		if err := w.MarkChosen(team); err != nil {
			return fmt.Errorf("mark %d: %w", team, err)
		}
	}
	if w.Pending() > 0 || o.Commit {
		if err := w.Save(ctx, o.Commit); err != nil {
			return err
		}
	}

	if !o.Watch {
		state, version := w.State()
		printPicklist(stdout, state, version)
		return nil
	}

	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			log.Warn("poll loop stopped", zap.Error(err))
		}
	}()
	for ctx.Err() == nil {
		if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn("live updates lost, polling until reconnect", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(syncer.DefaultPollInterval):
			}
		}
	}
	return nil
}

func printPicklist(w io.Writer, s engine.State, version int64) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "version %d\n", version)
	for _, b := range engine.Order {
		teams := s.Bucket(b)
		parts := make([]string, len(teams))
		for i, t := range teams {
			parts[i] = fmt.Sprint(t)
		}
		fmt.Fprintf(tw, "%s\t%s\n", b, strings.Join(parts, " "))
	}
	tw.Flush()
}

func runDashboard(ctx context.Context, c *client.Client, o dashboardOptions, stdout io.Writer) error {
	if o.Rankings {
		rk, err := c.Rankings(ctx, o.Comp)
		if err != nil {
			return err
		}
		return dashboard.RenderRankings(stdout, rk.Averages, rk.Teams)
	}
	resp, err := c.Dashboard(ctx, o.Comp, dashboard.Query{MatchNumber: o.Match, Quantifier: o.Quantifier})
	if err != nil {
		return err
	}
	return dashboard.Render(stdout, resp)
}

func runReplay(ctx context.Context, c *client.Client, o replayOptions, stdout io.Writer) error {
	raw, err := c.Path(ctx, o.Comp, o.Team, o.Match)
	if client.IsNotFound(err) {
		fmt.Fprintf(stdout, "no path recorded for team %d in match %d\n", o.Team, o.Match)
		return nil
	}
	if err != nil {
		return err
	}

	p := replay.NewPlayer(replay.WithStep(o.Step))
	if dropped := p.Load(replay.ParsePath(raw)); len(dropped) > 0 {
		fmt.Fprintf(stdout, "skipping unknown positions: %s\n", strings.Join(dropped, ", "))
	}
	return p.Play(ctx, func(f replay.Frame) {
		fmt.Fprintf(stdout, "%2d  %-10s (%3.0f, %3.0f)\n", f.Index+1, f.Name, f.Point.X, f.Point.Y)
	})
}

func runTeams(ctx context.Context, c *client.Client, o teamsOptions, stdout io.Writer) error {
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if o.Events {
		events, err := c.Events(ctx)
		if err != nil {
			return err
		}
		keys := slices.Sorted(maps.Keys(events))
		for _, k := range keys {
			fmt.Fprintf(tw, "%s\t%s\n", k, events[k])
		}
		return nil
	}

	list, err := c.Teams(ctx, o.Comp)
	if err != nil {
		return err
	}
	for _, team := range list.Teams {
		status := "-"
		if slices.Contains(list.PitScouted, team) {
			status = "pit scouted"
		}
		fmt.Fprintf(tw, "%d\t%s\n", team, status)
	}
	return nil
}

// runPit submits the JSON pit report on stdin, or shows the stored one, or
// adds a human-player note.
func runPit(ctx context.Context, c *client.Client, o pitOptions, stdin io.Reader, stdout io.Writer) error {
	switch {
	case o.Show:
		report, err := c.PitReport(ctx, o.Comp, o.Team)
		if client.IsNotFound(err) {
			fmt.Fprintf(stdout, "team %d has not been pit scouted\n", o.Team)
			return nil
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)

	case o.Note != "":
		notes, err := c.AddHumanPlayerNote(ctx, o.Comp, o.Team, pitscout.Note{MatchNumber: o.Match, Comment: o.Note})
		if err != nil {
			return err
		}
		for _, n := range notes {
			fmt.Fprintf(stdout, "match %d: %s\n", n.MatchNumber, n.Comment)
		}
		return nil
	}

	var report pitscout.Report
	if err := json.NewDecoder(stdin).Decode(&report); err != nil {
		return fmt.Errorf("read pit report: %w", err)
	}
	if errs := report.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return fmt.Errorf("invalid pit report: %s", strings.Join(msgs, "; "))
	}
	if _, err := c.SubmitPitReport(ctx, o.Comp, o.Team, report); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "pit report saved for team %d\n", o.Team)
	return nil
}
