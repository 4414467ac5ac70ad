package replay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldPositionsScaled(t *testing.T) {
	a := FieldPositions["A"]
	assert.InDelta(t, 177.92, a.X, 1e-9)
	assert.InDelta(t, 82.8, a.Y, 1e-9)

	src := FieldPositions["sourceB"]
	assert.InDelta(t, 56.32, src.X, 1e-9)
	assert.InDelta(t, 167.04, src.Y, 1e-9)
	assert.Len(t, FieldPositions, 18)
}

func TestParsePath(t *testing.T) {
	assert.Equal(t, []string{"A", " B"}, ParsePath(`["A"," B"]`))
	assert.Equal(t, []string{"sourceA", "B", "C"}, ParsePath("sourceA, B,,C"))
	assert.Empty(t, ParsePath(""))
}

func TestLoadDropsUnknownNames(t *testing.T) {
	p := NewPlayer()
	dropped := p.Load([]string{" A ", "", "Z", "processor", "moon"})
	assert.Equal(t, []string{"Z", "moon"}, dropped)
	assert.Equal(t, []string{"A", "processor"}, p.Path())
}

func TestStepsStayInRange(t *testing.T) {
	p := NewPlayer()
	p.Load([]string{"A", "B", "C"})

	for i := 0; i < 5; i++ {
		f, ok := p.StepForward()
		require.True(t, ok)
		assert.LessOrEqual(t, f.Index, 2)
	}
	assert.Equal(t, 2, p.Index())
	f, _ := p.Current()
	assert.Nil(t, f.Next, "last frame has no heading")

	for i := 0; i < 5; i++ {
		f, _ := p.StepBack()
		assert.GreaterOrEqual(t, f.Index, 0)
	}
	assert.Equal(t, 0, p.Index())
	f, _ = p.Current()
	require.NotNil(t, f.Next)
	assert.Equal(t, FieldPositions["B"], *f.Next)

	empty := NewPlayer()
	_, ok := empty.StepForward()
	assert.False(t, ok)
	assert.Equal(t, 0, empty.Index())
}

func TestPositionAt(t *testing.T) {
	p := NewPlayer(WithStep(time.Second))
	p.Load([]string{"A", "B", "C"})

	start, _ := p.PositionAt(0)
	assert.Equal(t, FieldPositions["A"], start)

	mid, _ := p.PositionAt(500 * time.Millisecond)
	a, b := FieldPositions["A"], FieldPositions["B"]
	assert.InDelta(t, (a.X+b.X)/2, mid.X, 1e-9)
	assert.InDelta(t, (a.Y+b.Y)/2, mid.Y, 1e-9)

	atB, _ := p.PositionAt(time.Second)
	assert.Equal(t, b, atB)

	end, _ := p.PositionAt(time.Minute)
	assert.Equal(t, FieldPositions["C"], end)

	_, ok := NewPlayer().PositionAt(time.Second)
	assert.False(t, ok)
}

func TestPlayRunsToEnd(t *testing.T) {
	p := NewPlayer(WithStep(5 * time.Millisecond))
	p.Load([]string{"A", "B", "C", "D"})

	var frames []int
	require.NoError(t, p.Play(context.Background(), func(f Frame) { frames = append(frames, f.Index) }))

	assert.Equal(t, []int{0, 1, 2, 3}, frames)
	assert.False(t, p.Playing())
	assert.Equal(t, 3, p.Index())
}

func TestPauseAndReset(t *testing.T) {
	p := NewPlayer(WithStep(20 * time.Millisecond))
	p.Load([]string{"A", "B", "C", "D", "E", "F"})

	var mu sync.Mutex
	count := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Play(context.Background(), func(Frame) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}()

	assert.Eventually(t, func() bool { return p.Index() >= 1 }, time.Second, 2*time.Millisecond)
	p.Pause()
	require.NoError(t, <-done)
	assert.False(t, p.Playing())

	paused := p.Index()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, paused, p.Index(), "index moved while paused")

	p.Reset()
	assert.Equal(t, 0, p.Index())
}

func TestPlayEmptyPathReturns(t *testing.T) {
	called := false
	require.NoError(t, NewPlayer().Play(context.Background(), func(Frame) { called = true }))
	assert.False(t, called)
}
