package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/hub"
	"github.com/DoyleJ11/scouting-backend/internal/room"
	"github.com/DoyleJ11/scouting-backend/internal/store"
	"github.com/DoyleJ11/scouting-backend/internal/types"
)

const writeTimeout = 3 * time.Second

var errUnknownType = errors.New("unknown message type")

// PicklistSaver persists a committed picklist.
type PicklistSaver interface {
	SavePicklist(ctx context.Context, event string, state engine.State, version int64) error
}

// Handler streams one competition's picklist. Every state change is pushed
// as picklist_update; clients send move, mark_chosen, replace and commit.
func Handler(h *hub.Hub, load hub.Loader, saver PicklistSaver, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		comp := chi.URLParam(r, "comp")
		if comp == "" {
			http.Error(w, "missing comp", http.StatusBadRequest)
			return
		}

		rm, err := h.Room(r.Context(), comp, load)
		if err != nil {
			log.Error("could not open picklist room", zap.String("comp", comp), zap.Error(err))
			http.Error(w, "picklist unavailable", http.StatusInternalServerError)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		clientID := uuid.NewString()
		clog := log.With(zap.String("comp", comp), zap.String("client", clientID))

		out := make(chan room.Snapshot, 8)
		if err := rm.Send(r.Context(), room.Join{ClientID: clientID, Outbox: out}); err != nil {
			conn.Close(websocket.StatusGoingAway, "picklist closed")
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = rm.Send(ctx, room.Leave{ClientID: clientID})
		}()
		clog.Debug("client joined")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer: the outbox closes on Leave, on room shutdown or when the
		// room drops us for being slow.
		go func() {
			defer cancel()
			for snap := range out {
				msg := types.ServerMessage{Type: types.MsgPicklistUpdate, Version: snap.Version, Picklist: &snap.State}
				if err := write(ctx, conn, msg); err != nil {
					return
				}
			}
			conn.Close(websocket.StatusGoingAway, "picklist closed")
		}()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						clog.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				if write(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: "bad json"}) != nil {
					return
				}
				continue
			}

			reply, err := handle(ctx, rm, saver, comp, cm)
			if err != nil {
				if errors.Is(err, room.ErrClosed) {
					return
				}
				clog.Debug("message rejected", zap.String("type", cm.Type), zap.Error(err))
				reply = types.ServerMessage{Type: types.MsgError, Error: err.Error()}
			}
			if reply.Type == "" {
				continue
			}
			if err := write(ctx, conn, reply); err != nil {
				return
			}
		}
	}
}

// handle applies one client message. An empty reply means the change is
// acknowledged by the picklist_update broadcast.
func handle(ctx context.Context, rm *room.Room, saver PicklistSaver, comp string, cm types.ClientMessage) (types.ServerMessage, error) {
	if cm.Type == types.MsgCommit {
		view, err := rm.View(ctx)
		if err != nil {
			return types.ServerMessage{}, err
		}
		err = saver.SavePicklist(ctx, comp, view.State, view.Version)
		if err != nil && !errors.Is(err, store.ErrStale) {
			return types.ServerMessage{}, err
		}
		return types.ServerMessage{Type: types.MsgCommitted, Version: view.Version}, nil
	}

	cmd, err := toEngineCommand(cm)
	if err != nil {
		return types.ServerMessage{}, err
	}
	res, err := rm.Do(ctx, cmd)
	if err != nil {
		return types.ServerMessage{}, err
	}
	if res.Err != nil {
		return types.ServerMessage{}, res.Err
	}
	if !res.Changed {
		// Nobody else gets a broadcast, so confirm the unchanged state.
		return types.ServerMessage{Type: types.MsgPicklistUpdate, Version: res.Snapshot.Version, Picklist: &res.Snapshot.State}, nil
	}
	return types.ServerMessage{}, nil
}

func toEngineCommand(m types.ClientMessage) (engine.Command, error) {
	switch m.Type {
	case types.MsgMove:
		index := -1
		if m.Index != nil {
			index = *m.Index
		}
		return engine.Command{Type: engine.CmdMove, Team: m.Team, To: engine.Bucket(m.To), Index: index}, nil
	case types.MsgMarkChosen:
		return engine.Command{Type: engine.CmdMarkChosen, Team: m.Team}, nil
	case types.MsgReplace:
		if m.Picklist == nil {
			return engine.Command{}, engine.ErrBadShape
		}
		return engine.Command{Type: engine.CmdReplace, State: *m.Picklist}, nil
	default:
		return engine.Command{}, errUnknownType
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
