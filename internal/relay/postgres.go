package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Postgres relays updates with NOTIFY on channel. Each subscription holds its
// own connection for LISTEN.
type Postgres struct {
	pool    *pgxpool.Pool
	dsn     string
	channel string
	log     *zap.Logger
}

func NewPostgres(ctx context.Context, dsn, channel string, log *zap.Logger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool, dsn: dsn, channel: channel, log: log}, nil
}

func (p *Postgres) Publish(ctx context.Context, u Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, "SELECT pg_notify($1, $2)", p.channel, string(data))
	return err
}

func (p *Postgres) Subscribe(fn func(Update)) (Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())

	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.channel}.Sanitize()); err != nil {
		cancel()
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &pgSub{cancel: cancel}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Close(context.Background())
		for {
			n, err := conn.WaitForNotification(ctx)
			if err != nil {
				if !errors.Is(ctx.Err(), context.Canceled) {
					p.log.Error("listen stopped", zap.Error(err))
				}
				return
			}
			var u Update
			if err := json.Unmarshal([]byte(n.Payload), &u); err != nil {
				p.log.Warn("bad relay message", zap.Error(err))
				continue
			}
			fn(u)
		}
	}()
	return s, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type pgSub struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *pgSub) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
