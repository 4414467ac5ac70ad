// Package syncer keeps a local picklist in step with the server while the
// user edits it.
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/types"
)

var ErrNotDragging = errors.New("no drag in progress")
var ErrPollInFlight = errors.New("poll already in flight")

const (
	DefaultDebounce     = 300 * time.Millisecond
	DefaultInactivity   = 3 * time.Second
	DefaultPollInterval = 5 * time.Second
)

type Backend interface {
	GetPicklist(ctx context.Context, comp string, since int64) (types.PicklistResponse, error)
	SubmitPicklist(ctx context.Context, comp string, state engine.State, base int64, durable bool) (types.PicklistResponse, error)
	DialPicklist(ctx context.Context, comp string) (*websocket.Conn, error)
}

type Option func(*Widget)

func WithDebounce(d time.Duration) Option     { return func(w *Widget) { w.debounce = d } }
func WithInactivity(d time.Duration) Option   { return func(w *Widget) { w.inactivity = d } }
func WithPollInterval(d time.Duration) Option { return func(w *Widget) { w.pollEvery = d } }
func WithLogger(log *zap.Logger) Option       { return func(w *Widget) { w.log = log } }

// WithOnChange registers fn to run after every local or remote change, with
// the widget lock released.
func WithOnChange(fn func(engine.State, int64)) Option {
	return func(w *Widget) { w.onChange = fn }
}

// pendingCmd is a local edit not yet confirmed by a save. seq grows with
// every edit.
type pendingCmd struct {
	seq uint64
	cmd engine.Command
}

type remoteUpdate struct {
	state   engine.State
	version int64
}

// Widget is one user's picklist editor. Local edits apply immediately and
// are saved after a short debounce; a longer quiet period commits them
// durably. Remote updates arriving mid-drag wait until the drop.
type Widget struct {
	comp string
	be   Backend
	log  *zap.Logger

	debounce   time.Duration
	inactivity time.Duration
	pollEvery  time.Duration
	onChange   func(engine.State, int64)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	state    engine.State
	version  int64
	pending  []pendingCmd
	seq      uint64
	dragging bool
	dragTeam int
	queued   *remoteUpdate

	saveTimer   *time.Timer
	commitTimer *time.Timer

	saveMu sync.Mutex
	busy   atomic.Bool
}

func New(parent context.Context, comp string, be Backend, opts ...Option) *Widget {
	ctx, cancel := context.WithCancel(parent)
	w := &Widget{
		comp:       comp,
		be:         be,
		log:        zap.NewNop(),
		debounce:   DefaultDebounce,
		inactivity: DefaultInactivity,
		pollEvery:  DefaultPollInterval,
		ctx:        ctx,
		cancel:     cancel,
		state:      engine.NewEmptyState(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(zap.String("comp", comp))
	return w
}

// Load replaces local state with the server's.
func (w *Widget) Load(ctx context.Context) error {
	resp, err := w.be.GetPicklist(ctx, w.comp, -1)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.state = resp.Data.Clone()
	w.version = resp.Version
	w.pending = nil
	w.queued = nil
	state, version := w.state.Clone(), w.version
	w.mu.Unlock()

	w.notify(state, version)
	return nil
}

func (w *Widget) State() (engine.State, int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.Clone(), w.version
}

func (w *Widget) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *Widget) Dragging() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dragging
}

func (w *Widget) BeginDrag(team int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.state.Locate(team); !ok {
		return engine.ErrTeamNotFound
	}
	w.dragging = true
	w.dragTeam = team
	return nil
}

// Drop moves the dragged team to index in bucket to, then applies any
// remote update that arrived during the drag.
func (w *Widget) Drop(to engine.Bucket, index int) error {
	w.mu.Lock()
	if !w.dragging {
		w.mu.Unlock()
		return ErrNotDragging
	}
	w.dragging = false
	err := w.applyLocal(engine.Command{Type: engine.CmdMove, Team: w.dragTeam, To: to, Index: index})
	w.flushQueued()
	state, version := w.state.Clone(), w.version
	w.mu.Unlock()

	w.notify(state, version)
	return err
}

func (w *Widget) CancelDrag() {
	w.mu.Lock()
	w.dragging = false
	applied := w.flushQueued()
	state, version := w.state.Clone(), w.version
	w.mu.Unlock()

	if applied {
		w.notify(state, version)
	}
}

func (w *Widget) MarkChosen(team int) error {
	w.mu.Lock()
	err := w.applyLocal(engine.Command{Type: engine.CmdMarkChosen, Team: team})
	state, version := w.state.Clone(), w.version
	w.mu.Unlock()

	if err == nil {
		w.notify(state, version)
	}
	return err
}

// applyLocal needs w.mu held.
func (w *Widget) applyLocal(cmd engine.Command) error {
	_, next, err := engine.Apply(w.state, cmd)
	if err != nil {
		return err
	}
	if next.Equal(w.state) {
		return nil
	}
	w.state = next
	w.seq++
	w.pending = append(w.pending, pendingCmd{seq: w.seq, cmd: cmd})
	w.schedule()
	return nil
}

// schedule needs w.mu held.
func (w *Widget) schedule() {
	if w.saveTimer == nil {
		w.saveTimer = time.AfterFunc(w.debounce, func() { w.timedSave(false) })
	} else {
		w.saveTimer.Reset(w.debounce)
	}
	if w.commitTimer == nil {
		w.commitTimer = time.AfterFunc(w.inactivity, func() { w.timedSave(true) })
	} else {
		w.commitTimer.Reset(w.inactivity)
	}
}

func (w *Widget) timedSave(durable bool) {
	if w.ctx.Err() != nil {
		return
	}
	if err := w.Save(w.ctx, durable); err != nil {
		w.log.Warn("picklist save failed", zap.Bool("durable", durable), zap.Error(err))
	}
}

// Save posts the local state with the last seen version as base. A durable
// save always posts, so a quiet period commits even when nothing is pending.
func (w *Widget) Save(ctx context.Context, durable bool) error {
	w.saveMu.Lock()
	defer w.saveMu.Unlock()

	w.mu.Lock()
	if len(w.pending) == 0 && !durable {
		w.mu.Unlock()
		return nil
	}
	state, base, upTo := w.state.Clone(), w.version, w.seq
	w.mu.Unlock()

	resp, err := w.be.SubmitPicklist(ctx, w.comp, state, base, durable)
	if err != nil {
		return err
	}

	w.mu.Lock()
	// Only edits made before the snapshot were sent. Later ones stay pending
	// even if a rebase dropped some of the earlier ones meanwhile.
	kept := w.pending[:0]
	for _, p := range w.pending {
		if p.seq > upTo {
			kept = append(kept, p)
		}
	}
	w.pending = kept

	changed := false
	if resp.Version >= w.version {
		w.version = resp.Version
		if len(w.pending) == 0 && !w.dragging && !resp.Data.Equal(w.state) {
			w.state = resp.Data.Clone()
			changed = true
		}
	}
	state, version := w.state.Clone(), w.version
	w.mu.Unlock()

	if changed {
		w.notify(state, version)
	}
	return nil
}

// Poll fetches the server picklist once. Only one poll runs at a time.
func (w *Widget) Poll(ctx context.Context) error {
	if !w.busy.CompareAndSwap(false, true) {
		return ErrPollInFlight
	}
	defer w.busy.Store(false)

	w.mu.Lock()
	since := w.version
	w.mu.Unlock()

	resp, err := w.be.GetPicklist(ctx, w.comp, since)
	if err != nil {
		return err
	}
	if resp.Status == types.StatusNoChange {
		return nil
	}
	w.applyRemote(resp.Data, resp.Version)
	return nil
}

// Run polls at the configured interval until ctx ends or Close is called.
// Unsaved edits are retried on each tick.
func (w *Widget) Run(ctx context.Context) error {
	t := time.NewTicker(w.pollEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.ctx.Done():
			return nil
		case <-t.C:
			if w.Pending() > 0 {
				if err := w.Save(ctx, false); err != nil {
					w.log.Warn("picklist save retry failed", zap.Error(err))
				}
			}
			if err := w.Poll(ctx); err != nil && !errors.Is(err, ErrPollInFlight) {
				w.log.Warn("picklist poll failed", zap.Error(err))
			}
		}
	}
}

// Watch follows server pushes over the WebSocket until ctx ends or the
// connection drops.
func (w *Widget) Watch(ctx context.Context) error {
	conn, err := w.be.DialPicklist(ctx, w.comp)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	for {
		var msg types.ServerMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if ctx.Err() != nil {
				conn.Close(websocket.StatusNormalClosure, "")
				return ctx.Err()
			}
			return err
		}
		switch msg.Type {
		case types.MsgPicklistUpdate:
			if msg.Picklist != nil {
				w.applyRemote(*msg.Picklist, msg.Version)
			}
		case types.MsgError:
			w.log.Warn("server rejected picklist message", zap.String("error", msg.Error))
		}
	}
}

func (w *Widget) applyRemote(state engine.State, version int64) {
	w.mu.Lock()
	if version <= w.version {
		w.mu.Unlock()
		return
	}
	if w.dragging {
		if w.queued == nil || version > w.queued.version {
			w.queued = &remoteUpdate{state: state.Clone(), version: version}
		}
		w.mu.Unlock()
		return
	}
	w.rebase(remoteUpdate{state: state, version: version})
	cur, v := w.state.Clone(), w.version
	w.mu.Unlock()

	w.notify(cur, v)
}

// flushQueued applies a remote update held back by a drag. Needs w.mu held.
func (w *Widget) flushQueued() bool {
	if w.queued == nil {
		return false
	}
	q := *w.queued
	w.queued = nil
	if q.version <= w.version {
		return false
	}
	w.rebase(q)
	return true
}

// rebase adopts u and replays pending local commands on top of it. Commands
// that no longer apply are dropped. Needs w.mu held.
func (w *Widget) rebase(u remoteUpdate) {
	state := u.state.Clone()
	kept := w.pending[:0]
	for _, p := range w.pending {
		_, next, err := engine.Apply(state, p.cmd)
		if err != nil {
			w.log.Info("dropping local edit after remote update", zap.Int("team", p.cmd.Team), zap.Error(err))
			continue
		}
		state = next
		kept = append(kept, p)
	}
	w.pending = kept
	w.state = state
	w.version = u.version
}

func (w *Widget) notify(state engine.State, version int64) {
	if w.onChange != nil {
		w.onChange(state, version)
	}
}

// Close stops pending timers and any Run loop. Unsaved edits are lost.
func (w *Widget) Close() {
	w.cancel()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.saveTimer != nil {
		w.saveTimer.Stop()
	}
	if w.commitTimer != nil {
		w.commitTimer.Stop()
	}
}
