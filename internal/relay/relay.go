package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/hub"
	"github.com/DoyleJ11/scouting-backend/internal/room"
)

// Update is a picklist change as it travels between server instances.
// Origin is the instance that made Version; together they order updates.
type Update struct {
	Origin  string       `json:"origin"`
	Comp    string       `json:"comp"`
	Version int64        `json:"version"`
	State   engine.State `json:"picklist"`
}

type Subscription interface {
	Close() error
}

// Relay fans picklist updates out to every server instance. The subscription
// is active when Subscribe returns.
type Relay interface {
	Publish(ctx context.Context, u Update) error
	Subscribe(fn func(Update)) (Subscription, error)
	Close() error
}

// Bridge connects a hub to a relay: local changes go out, remote ones are
// applied to the matching room.
type Bridge struct {
	relay  Relay
	hub    *hub.Hub
	origin string
	log    *zap.Logger
}

// NewBridge links h to r. origin must match the room.WithOrigin given to
// h's rooms; an empty origin gets a fresh one.
func NewBridge(r Relay, h *hub.Hub, origin string, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	if origin == "" {
		origin = uuid.NewString()
	}
	return &Bridge{relay: r, hub: h, origin: origin, log: log.With(zap.String("origin", origin))}
}

func (b *Bridge) Origin() string { return b.origin }

// Run publishes every local change read from changes until ctx ends. Rooms
// also emit a local change to answer a stale update, so the winner is
// republished.
func (b *Bridge) Run(ctx context.Context, changes <-chan room.Change) error {
	sub, err := b.relay.Subscribe(b.apply)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			if c.Remote {
				continue
			}
			origin := c.Origin
			if origin == "" {
				origin = b.origin
			}
			u := Update{Origin: origin, Comp: c.Code, Version: c.Version, State: c.State}
			if err := b.relay.Publish(ctx, u); err != nil {
				b.log.Warn("relay publish failed", zap.String("comp", c.Code), zap.Error(err))
			}
		}
	}
}

func (b *Bridge) apply(u Update) {
	if u.Origin == b.origin {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rm, err := b.hub.Room(ctx, u.Comp, func(context.Context, string) (engine.State, int64, error) {
		return u.State, u.Version, nil
	})
	if err != nil {
		b.log.Warn("relay update dropped", zap.String("comp", u.Comp), zap.Error(err))
		return
	}

	msg := room.FromClient{
		Cmd:     engine.Command{Type: engine.CmdReplace, State: u.State},
		Remote:  true,
		Version: u.Version,
		Origin:  u.Origin,
	}
	if err := rm.Send(ctx, msg); err != nil {
		b.log.Warn("relay update dropped", zap.String("comp", u.Comp), zap.Error(err))
	}
}
