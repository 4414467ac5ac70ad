package replay

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/DoyleJ11/scouting-backend/internal/models"
)

const DefaultStep = time.Second

// Frame is what a viewer draws: the robot at Point, heading to Next.
type Frame struct {
	Index int
	Name  string
	Point Point
	Next  *Point
}

type Option func(*Player)

// WithStep sets how long the robot takes between two positions.
func WithStep(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.step = d
		}
	}
}

// Player steps a robot through an autonomous path. The current index always
// stays within the loaded path.
type Player struct {
	step time.Duration

	mu      sync.Mutex
	path    []string
	index   int
	playing bool
	gen     int
	cancel  context.CancelFunc
}

func NewPlayer(opts ...Option) *Player {
	p := &Player{step: DefaultStep}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParsePath accepts a JSON array of names or a comma-joined string.
func ParsePath(raw string) []string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var names []any
		if err := json.Unmarshal([]byte(raw), &names); err == nil {
			out := make([]string, 0, len(names))
			for _, n := range names {
				if s, ok := n.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return models.ParsePath(raw)
}

// Load replaces the path and resets playback. Blank and unknown names are
// dropped and returned.
func (p *Player) Load(path []string) (dropped []string) {
	kept := make([]string, 0, len(path))
	for _, name := range path {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := FieldPositions[name]; !ok {
			dropped = append(dropped, name)
			continue
		}
		kept = append(kept, name)
	}

	p.mu.Lock()
	p.stopLocked()
	p.path = kept
	p.index = 0
	p.mu.Unlock()
	return dropped
}

func (p *Player) Path() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.path...)
}

func (p *Player) Index() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Current returns the frame at the current index; ok is false for an empty
// path.
func (p *Player) Current() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameLocked()
}

func (p *Player) frameLocked() (Frame, bool) {
	if len(p.path) == 0 {
		return Frame{}, false
	}
	name := p.path[p.index]
	f := Frame{Index: p.index, Name: name, Point: FieldPositions[name]}
	if p.index < len(p.path)-1 {
		next := FieldPositions[p.path[p.index+1]]
		f.Next = &next
	}
	return f, true
}

// Play calls onFrame for the current position and then once per step until
// the end of the path, Pause, Reset, or ctx is done. Play on an empty path,
// or while already playing, returns at once.
func (p *Player) Play(ctx context.Context, onFrame func(Frame)) error {
	p.mu.Lock()
	if p.playing || len(p.path) == 0 {
		p.mu.Unlock()
		return nil
	}
	playCtx, cancel := context.WithCancel(ctx)
	p.playing = true
	p.cancel = cancel
	p.gen++
	gen := p.gen
	first, _ := p.frameLocked()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.gen == gen {
			p.playing = false
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()
	}()

	onFrame(first)

	ticker := time.NewTicker(p.step)
	defer ticker.Stop()
	for {
		select {
		case <-playCtx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.mu.Lock()
			if p.gen != gen || p.index >= len(p.path)-1 {
				p.mu.Unlock()
				return nil
			}
			p.index++
			f, _ := p.frameLocked()
			last := p.index == len(p.path)-1
			p.mu.Unlock()

			onFrame(f)
			if last {
				return nil
			}
		}
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.index = 0
}

func (p *Player) StepForward() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index < len(p.path)-1 {
		p.index++
	}
	return p.frameLocked()
}

func (p *Player) StepBack() (Frame, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index > 0 {
		p.index--
	}
	return p.frameLocked()
}

// PositionAt interpolates the robot's position elapsed after the start of the
// path, one step per segment. It clamps to the first and last points.
func (p *Player) PositionAt(elapsed time.Duration) (Point, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.path)
	if n == 0 {
		return Point{}, false
	}
	if elapsed <= 0 || n == 1 {
		return FieldPositions[p.path[0]], true
	}

	seg := int(elapsed / p.step)
	if seg >= n-1 {
		return FieldPositions[p.path[n-1]], true
	}
	frac := float64(elapsed-time.Duration(seg)*p.step) / float64(p.step)
	a, b := FieldPositions[p.path[seg]], FieldPositions[p.path[seg+1]]
	return Point{X: a.X + (b.X-a.X)*frac, Y: a.Y + (b.Y-a.Y)*frac}, true
}

func (p *Player) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.playing = false
	p.gen++
}
