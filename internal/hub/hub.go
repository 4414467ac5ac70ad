package hub

import (
	"context"

	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/room"
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Code    string
	State   engine.State
	Version int64
	Reply   chan *room.Room
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// EnsureRoom returns the existing room for Code or creates one from State.
type EnsureRoom struct {
	Code    string
	State   engine.State
	Version int64
	Reply   chan *room.Room
}

type RemoveRoom struct {
	Code string
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct {
	Done chan struct{}
}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

// Loader produces the initial picklist and version for a comp code.
type Loader func(ctx context.Context, code string) (engine.State, int64, error)

type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*room.Room
	roomOpts []room.Option
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, opts ...room.Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Room),
		roomOpts: opts,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.create(msg.Code, msg.State, msg.Version)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // may be nil

			case EnsureRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.create(msg.Code, msg.State, msg.Version)

			case RemoveRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					rm.Close()
					delete(h.rooms, msg.Code)
				}

			case ListRooms:
				codes := make([]string, 0, len(h.rooms))
				for code := range h.rooms {
					codes = append(codes, code)
				}
				msg.Reply <- codes

			case ShutdownHub:
				h.shutdown()
				if msg.Done != nil {
					close(msg.Done)
				}
				return
			}
		}
	}
}

func (h *Hub) create(code string, state engine.State, version int64) *room.Room {
	rm := room.NewRoom(h.ctx, code, state, version, h.roomOpts...)
	h.rooms[code] = rm
	return rm
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Close()
	}
	clear(h.rooms)
	h.cancel()
}

// Lookup returns the room for code, or nil.
func (h *Hub) Lookup(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, GetRoom{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

// Room returns the room for code, creating it with load when missing.
// load runs on the caller's goroutine, never inside the hub loop.
func (h *Hub) Room(ctx context.Context, code string, load Loader) (*room.Room, error) {
	rm, err := h.Lookup(ctx, code)
	if err != nil || rm != nil {
		return rm, err
	}

	state, version, err := load(ctx, code)
	if err != nil {
		return nil, err
	}

	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, EnsureRoom{Code: code, State: state, Version: version, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

// Shutdown stops every room and the hub loop.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	if err := h.send(ctx, ShutdownHub{Done: done}); err != nil {
		if err == ErrClosed {
			return nil
		}
		return err
	}
	select {
	case <-done:
		return nil
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) await(ctx context.Context, reply chan *room.Room) (*room.Room, error) {
	select {
	case rm := <-reply:
		return rm, nil
	case <-h.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
