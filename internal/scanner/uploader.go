package scanner

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Poster delivers validated scans to the server and returns its confirmation.
type Poster interface {
	PostScans(ctx context.Context, scans []Raw) (string, error)
}

// Corrector gets a chance to fix a scan that failed validation. It returns
// false to give up.
type Corrector interface {
	Correct(ctx context.Context, r Raw, errs []FieldError) (Raw, bool)
}

type UploaderOption func(*Uploader)

func WithCorrector(c Corrector) UploaderOption {
	return func(u *Uploader) { u.corrector = c }
}

// WithBuffer queues scans in b instead of posting each one.
func WithBuffer(b *Buffer) UploaderOption {
	return func(u *Uploader) { u.buffer = b }
}

func WithLogger(log *zap.Logger) UploaderOption {
	return func(u *Uploader) { u.log = log }
}

// Uploader is the scanning station's send path.
type Uploader struct {
	poster    Poster
	corrector Corrector
	buffer    *Buffer
	log       *zap.Logger

	mu       sync.Mutex
	prev     string
	inFlight map[string]bool
}

func NewUploader(p Poster, opts ...UploaderOption) *Uploader {
	u := &Uploader{
		poster:   p,
		log:      zap.NewNop(),
		inFlight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Submit decodes, validates and sends one scanned payload. A payload equal to
// the last one sent, or one still in flight, returns ErrDuplicate.
func (u *Uploader) Submit(ctx context.Context, payload string) (string, error) {
	payload = strings.TrimSpace(payload)

	u.mu.Lock()
	if payload == u.prev || u.inFlight[payload] {
		u.mu.Unlock()
		return "", ErrDuplicate
	}
	u.inFlight[payload] = true
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		delete(u.inFlight, payload)
		u.mu.Unlock()
	}()

	scans, err := Decode([]byte(payload))
	if err != nil {
		u.log.Warn("discarding unreadable scan", zap.Error(err))
		return "", err
	}

	for i, scan := range scans {
		fixed, err := u.check(ctx, scan)
		if err != nil {
			return "", err
		}
		scans[i] = fixed
	}

	confirmation, err := u.deliver(ctx, scans)
	if err != nil {
		return "", err
	}

	u.mu.Lock()
	u.prev = payload
	u.mu.Unlock()
	return confirmation, nil
}

func (u *Uploader) check(ctx context.Context, scan Raw) (Raw, error) {
	errs := Validate(scan)
	if len(errs) == 0 {
		return scan, nil
	}
	if u.corrector != nil {
		if fixed, ok := u.corrector.Correct(ctx, scan, errs); ok {
			if errs = Validate(fixed); len(errs) == 0 {
				return fixed, nil
			}
		}
	}
	return nil, &ValidationError{Fields: errs}
}

func (u *Uploader) deliver(ctx context.Context, scans []Raw) (string, error) {
	if u.buffer != nil {
		for _, scan := range scans {
			if err := u.buffer.Add(ctx, scan); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("Buffered %d records (%d pending).", len(scans), u.buffer.Pending()), nil
	}

	confirmation, err := u.poster.PostScans(ctx, scans)
	if err != nil {
		u.log.Error("scan upload failed", zap.Error(err))
		return "", err
	}
	u.log.Info("scan uploaded", zap.Int("records", len(scans)), zap.String("confirmation", confirmation))
	return confirmation, nil
}
