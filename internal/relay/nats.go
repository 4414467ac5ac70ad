package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NATS struct {
	nc      *nats.Conn
	subject string
	log     *zap.Logger
}

func DialNATS(url, subject string, log *zap.Logger) (*NATS, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("scouting-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{nc: nc, subject: subject, log: log}, nil
}

func (n *NATS) Publish(_ context.Context, u Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return n.nc.Publish(n.subject, data)
}

func (n *NATS) Subscribe(fn func(Update)) (Subscription, error) {
	sub, err := n.nc.Subscribe(n.subject, func(msg *nats.Msg) {
		var u Update
		if err := json.Unmarshal(msg.Data, &u); err != nil {
			n.log.Warn("bad relay message", zap.Error(err))
			return
		}
		fn(u)
	})
	if err != nil {
		return nil, err
	}
	if err := n.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	return natsSub{sub}, nil
}

func (n *NATS) Close() error {
	return n.nc.Drain()
}

type natsSub struct{ *nats.Subscription }

func (s natsSub) Close() error { return s.Unsubscribe() }
