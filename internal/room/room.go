package room

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/scouting-backend/internal/engine"
)

type Msg interface{ isRoomMsg() }

// FromClient applies Cmd. Reply, when set, receives the outcome.
// Remote marks an update relayed from another instance, stamped with the
// Version and Origin it was made under. It is applied only when
// (Version, Origin) orders after the room's own stamp.
type FromClient struct {
	Cmd     engine.Command
	Remote  bool
	Version int64
	Origin  string
	Reply   chan Result
}

func (FromClient) isRoomMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Snapshot struct {
	Version int64
	State   engine.State
}

type View struct {
	Code       string
	Version    int64
	NumClients int
	State      engine.State
}

type Result struct {
	Snapshot Snapshot
	Events   []engine.Event
	Changed  bool
	Err      error
}

// Change is emitted after every state change, for the relay. Origin is the
// instance that made Version. Remote changes came in over the relay.
type Change struct {
	Code    string
	Version int64
	Origin  string
	State   engine.State
	Remote  bool
}

type Option func(*Room)

func WithLogger(log *zap.Logger) Option {
	return func(r *Room) { r.log = log }
}

// WithOrigin names the instance the room runs on. Local changes are
// stamped with it.
func WithOrigin(origin string) Option {
	return func(r *Room) { r.self = origin }
}

// WithChanges makes the room emit a Change on ch after every state change.
// Sends never block; a full channel drops the change.
func WithChanges(ch chan<- Change) Option {
	return func(r *Room) { r.changes = ch }
}

type Room struct {
	code    string
	inbox   chan Msg
	state   engine.State
	version int64
	origin  string // who made version; empty for a loaded state
	self    string
	clients map[string]chan Snapshot
	changes chan<- Change
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRoom(parent context.Context, code string, initial engine.State, version int64, opts ...Option) *Room {
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		code:    code,
		inbox:   make(chan Msg, 64),
		state:   initial.Clone(),
		version: version,
		clients: make(map[string]chan Snapshot),
		log:     zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With(zap.String("comp", code))

	go r.loop()
	return r
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- r.snapshot()

			case Leave:
				if ch, ok := r.clients[msg.ClientID]; ok {
					close(ch)
					delete(r.clients, msg.ClientID)
				}

			case FromClient:
				res := r.apply(msg)
				if msg.Reply != nil {
					msg.Reply <- res
				}

			case GetState:
				msg.Reply <- View{
					Code:       r.code,
					Version:    r.version,
					NumClients: len(r.clients),
					State:      r.state.Clone(),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) apply(msg FromClient) Result {
	if msg.Remote {
		return r.applyRemote(msg)
	}

	events, newState, err := engine.Apply(r.state, msg.Cmd)
	if err != nil {
		r.log.Debug("command rejected", zap.String("cmd", string(msg.Cmd.Type)), zap.Error(err))
		return Result{Snapshot: r.snapshot(), Err: err}
	}
	r.logDropped(events)

	if newState.Equal(r.state) {
		return Result{Snapshot: r.snapshot(), Events: events}
	}

	r.state = newState
	r.version++
	r.origin = r.self
	snap := r.snapshot()
	r.broadcast(snap)
	r.emit(Change{Code: r.code, Version: snap.Version, Origin: r.origin, State: snap.State})
	return Result{Snapshot: snap, Events: events, Changed: true}
}

// applyRemote keeps every instance on the same (version, origin) winner. A
// losing update is answered by republishing the room's own state.
func (r *Room) applyRemote(msg FromClient) Result {
	if !after(msg.Version, msg.Origin, r.version, r.origin) {
		snap := r.snapshot()
		if msg.Version != r.version || msg.Origin != r.origin {
			r.log.Debug("stale relay update", zap.Int64("version", msg.Version), zap.String("origin", msg.Origin))
			r.emit(Change{Code: r.code, Version: snap.Version, Origin: r.origin, State: snap.State})
		}
		return Result{Snapshot: snap}
	}

	events, newState, err := engine.Apply(r.state, msg.Cmd)
	if err != nil {
		r.log.Warn("relay update rejected", zap.Int64("version", msg.Version), zap.Error(err))
		return Result{Snapshot: r.snapshot(), Err: err}
	}
	r.logDropped(events)

	changed := !newState.Equal(r.state)
	r.state = newState
	r.version = msg.Version
	r.origin = msg.Origin
	snap := r.snapshot()
	r.broadcast(snap)
	r.emit(Change{Code: r.code, Version: snap.Version, Origin: r.origin, State: snap.State, Remote: true})
	return Result{Snapshot: snap, Events: events, Changed: changed}
}

// after reports whether stamp (v1, o1) orders after (v2, o2).
func after(v1 int64, o1 string, v2 int64, o2 string) bool {
	if v1 != v2 {
		return v1 > v2
	}
	return o1 > o2
}

func (r *Room) logDropped(events []engine.Event) {
	for _, e := range events {
		if e.Type == engine.EvtDuplicateDropped {
			r.log.Warn("duplicate team dropped", zap.Int("team", e.Team), zap.String("bucket", string(e.From)))
		}
	}
}

func (r *Room) snapshot() Snapshot {
	return Snapshot{Version: r.version, State: r.state.Clone()}
}

func (r *Room) emit(c Change) {
	if r.changes == nil {
		return
	}
	select {
	case r.changes <- c:
	default:
		r.log.Warn("change channel full, dropping", zap.Int64("version", c.Version))
	}
}

func (r *Room) shutdown() {
	for id, ch := range r.clients {
		close(ch) // no more snapshots
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) broadcast(snap Snapshot) {
	for id, ch := range r.clients {
		select {
		case ch <- snap:
		default:
			// slow client
			close(ch)
			delete(r.clients, id)
			r.log.Info("dropped slow client", zap.String("client", id))
		}
	}
}

func (r *Room) Code() string { return r.code }

// Close stops the room without going through its inbox. Joined clients'
// outboxes are closed by the loop on its way out.
func (r *Room) Close() { r.cancel() }

// Inbox exposes the room's inbox to handlers and tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Do sends cmd and waits for the result.
func (r *Room) Do(ctx context.Context, cmd engine.Command) (Result, error) {
	reply := make(chan Result, 1)
	select {
	case r.inbox <- FromClient{Cmd: cmd, Reply: reply}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-r.ctx.Done():
		return Result{}, ErrClosed
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-r.ctx.Done():
		return Result{}, ErrClosed
	}
}

// View returns the current state without racing the loop.
func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case r.inbox <- GetState{Reply: reply}:
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-r.ctx.Done():
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-r.ctx.Done():
		return View{}, ErrClosed
	}
}

// Send delivers m without waiting for a reply.
func (r *Room) Send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrClosed
	}
}
