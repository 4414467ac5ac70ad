package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Buffer holds scans in a JSON file until Threshold of them are pending, then
// posts them in one request. Pending scans survive restarts.
type Buffer struct {
	path      string
	threshold int
	poster    Poster
	log       *zap.Logger

	mu      sync.Mutex
	pending []Raw
}

func OpenBuffer(path string, threshold int, p Poster, log *zap.Logger) (*Buffer, error) {
	if threshold < 1 {
		threshold = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	b := &Buffer{path: path, threshold: threshold, poster: p, log: log}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read buffer: %w", err)
	case len(data) > 0:
		if err := unmarshal(data, &b.pending); err != nil {
			return nil, fmt.Errorf("read buffer %s: %w", path, err)
		}
	}
	return b, nil
}

// Add queues r and flushes once the threshold is reached. A failed flush
// keeps everything queued.
func (b *Buffer) Add(ctx context.Context, r Raw) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, r)
	if err := b.persist(); err != nil {
		return err
	}
	if len(b.pending) < b.threshold {
		return nil
	}
	if _, err := b.flush(ctx); err != nil {
		b.log.Warn("buffer flush failed, keeping scans", zap.Int("pending", len(b.pending)), zap.Error(err))
	}
	return nil
}

func (b *Buffer) Flush(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flush(ctx)
}

func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close flushes whatever is left.
func (b *Buffer) Close(ctx context.Context) error {
	_, err := b.Flush(ctx)
	return err
}

func (b *Buffer) flush(ctx context.Context) (string, error) {
	if len(b.pending) == 0 {
		return "", nil
	}
	confirmation, err := b.poster.PostScans(ctx, b.pending)
	if err != nil {
		return "", err
	}
	b.log.Info("buffer flushed", zap.Int("records", len(b.pending)))
	b.pending = nil
	return confirmation, b.persist()
}

func (b *Buffer) persist() error {
	data, err := json.Marshal(b.pending)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".scanbuf-*")
	if err != nil {
		return fmt.Errorf("write buffer: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write buffer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write buffer: %w", err)
	}
	return os.Rename(tmp.Name(), b.path)
}
