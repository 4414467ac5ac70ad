package syncer

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/scouting-backend/internal/client"
	"github.com/DoyleJ11/scouting-backend/internal/dashboard"
	"github.com/DoyleJ11/scouting-backend/internal/engine"
	"github.com/DoyleJ11/scouting-backend/internal/httpapi"
	"github.com/DoyleJ11/scouting-backend/internal/hub"
	"github.com/DoyleJ11/scouting-backend/internal/store"
	"github.com/DoyleJ11/scouting-backend/internal/types"
)

// fakeBackend behaves like the picklist endpoints of one server.
type fakeBackend struct {
	mu        sync.Mutex
	state     engine.State
	version   int64
	gets      int
	submits   int
	durable   int
	failSave  bool
	getGate   chan struct{}
	saveGate  chan struct{}
	inSave    atomic.Bool
	lastBases []int64
}

func newFake(teams ...int) *fakeBackend {
	return &fakeBackend{state: engine.NewSeededState(teams)}
}

func (f *fakeBackend) GetPicklist(ctx context.Context, _ string, since int64) (types.PicklistResponse, error) {
	if f.getGate != nil {
		select {
		case <-f.getGate:
		case <-ctx.Done():
			return types.PicklistResponse{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	status := types.StatusUpdated
	if since == f.version {
		status = types.StatusNoChange
	}
	return types.PicklistResponse{Status: status, Version: f.version, Timestamp: f.version, Data: f.state.Clone()}, nil
}

func (f *fakeBackend) SubmitPicklist(ctx context.Context, _ string, state engine.State, base int64, durable bool) (types.PicklistResponse, error) {
	if f.saveGate != nil {
		f.inSave.Store(true)
		select {
		case <-f.saveGate:
		case <-ctx.Done():
			return types.PicklistResponse{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return types.PicklistResponse{}, errors.New("server down")
	}
	f.submits++
	f.lastBases = append(f.lastBases, base)
	if durable {
		f.durable++
	}
	if !state.Equal(f.state) {
		f.state = state.Clone()
		f.version++
	}
	saved := durable
	return types.PicklistResponse{Status: types.StatusSaved, Version: f.version, Data: f.state.Clone(), SavedToDB: &saved}, nil
}

func (f *fakeBackend) DialPicklist(context.Context, string) (*websocket.Conn, error) {
	return nil, errors.New("not supported")
}

// remoteEdit simulates another user changing the server list.
func (f *fakeBackend) remoteEdit(t *testing.T, cmd engine.Command) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	_, next, err := engine.Apply(f.state, cmd)
	require.NoError(t, err)
	f.state = next
	f.version++
}

func (f *fakeBackend) counts() (submits, durable int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits, f.durable
}

func newWidget(t *testing.T, be Backend, opts ...Option) *Widget {
	t.Helper()
	w := New(context.Background(), "2025cave", be, opts...)
	t.Cleanup(w.Close)
	require.NoError(t, w.Load(context.Background()))
	return w
}

func slow() []Option {
	return []Option{WithDebounce(time.Hour), WithInactivity(time.Hour)}
}

func TestPollUnchangedVersionKeepsLocalOrder(t *testing.T) {
	be := newFake(254, 971, 1678)
	w := newWidget(t, be, slow()...)

	require.NoError(t, w.MarkChosen(254))
	local, _ := w.State()

	require.NoError(t, w.Poll(context.Background()))
	after, version := w.State()
	assert.EqualValues(t, 0, version)
	assert.True(t, after.Equal(local))
	assert.Equal(t, []int{971, 1678, 254}, after.Bucket(engine.NoPick))
}

func TestDebouncedSaveThenCommit(t *testing.T) {
	be := newFake(254, 971, 1678)
	w := newWidget(t, be, WithDebounce(20*time.Millisecond), WithInactivity(150*time.Millisecond))

	require.NoError(t, w.BeginDrag(1678))
	require.NoError(t, w.Drop(engine.FirstPick, 0))
	require.NoError(t, w.MarkChosen(254))

	assert.Eventually(t, func() bool {
		submits, _ := be.counts()
		return submits == 1
	}, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		_, durable := be.counts()
		return durable == 1
	}, time.Second, 5*time.Millisecond)

	state, version := w.State()
	assert.EqualValues(t, 1, version)
	assert.Zero(t, w.Pending())
	assert.Equal(t, []int{1678}, state.Bucket(engine.FirstPick))
	assert.Equal(t, []int{971, 254}, state.Bucket(engine.NoPick))
}

func TestFailedSaveKeepsPending(t *testing.T) {
	be := newFake(254, 971)
	w := newWidget(t, be, slow()...)
	require.NoError(t, w.MarkChosen(254))

	be.failSave = true
	assert.Error(t, w.Save(context.Background(), false))
	assert.Equal(t, 1, w.Pending())

	be.mu.Lock()
	be.failSave = false
	be.mu.Unlock()
	require.NoError(t, w.Save(context.Background(), false))
	assert.Zero(t, w.Pending())
}

// An edit made while a save is in flight survives the save even when a
// remote update dropped an earlier edit meanwhile.
func TestEditDuringSaveIsKept(t *testing.T) {
	be := newFake(254, 971, 1678)
	w := newWidget(t, be, slow()...)

	require.NoError(t, w.MarkChosen(254))
	require.NoError(t, w.BeginDrag(971))
	require.NoError(t, w.Drop(engine.FirstPick, 0))
	require.Equal(t, 2, w.Pending())

	be.saveGate = make(chan struct{})
	saved := make(chan error, 1)
	go func() { saved <- w.Save(context.Background(), false) }()
	require.Eventually(t, be.inSave.Load, time.Second, time.Millisecond)

	// Someone else removed 254, so the MarkChosen no longer applies.
	w.applyRemote(engine.FromBuckets([]int{971, 1678}, nil, nil, nil, nil), 5)
	require.Equal(t, 1, w.Pending())

	require.NoError(t, w.BeginDrag(1678))
	require.NoError(t, w.Drop(engine.DoNotPick, -1))

	close(be.saveGate)
	require.NoError(t, <-saved)

	state, version := w.State()
	assert.EqualValues(t, 5, version)
	assert.Equal(t, 1, w.Pending(), "the move made during the save is still unsent")
	assert.Equal(t, []int{1678}, state.Bucket(engine.DoNotPick))
	assert.Equal(t, []int{971}, state.Bucket(engine.FirstPick))
	assert.Empty(t, state.Bucket(engine.NoPick))
}

func TestRemoteUpdateQueuedDuringDrag(t *testing.T) {
	be := newFake(254, 971, 1678)
	w := newWidget(t, be, slow()...)

	require.NoError(t, w.BeginDrag(254))
	be.remoteEdit(t, engine.Command{Type: engine.CmdMove, Team: 971, To: engine.DoNotPick, Index: -1})

	require.NoError(t, w.Poll(context.Background()))
	state, version := w.State()
	assert.EqualValues(t, 0, version, "update must wait for the drop")
	assert.Empty(t, state.Bucket(engine.DoNotPick))

	require.NoError(t, w.Drop(engine.FirstPick, 0))
	state, version = w.State()
	assert.EqualValues(t, 1, version)
	assert.Equal(t, []int{254}, state.Bucket(engine.FirstPick))
	assert.Equal(t, []int{971}, state.Bucket(engine.DoNotPick))
	assert.Equal(t, []int{1678}, state.Bucket(engine.NoPick))
	assert.Equal(t, 1, w.Pending())
}

func TestCancelDragAppliesQueuedUpdate(t *testing.T) {
	be := newFake(254, 971)
	w := newWidget(t, be, slow()...)

	require.NoError(t, w.BeginDrag(254))
	be.remoteEdit(t, engine.Command{Type: engine.CmdMarkChosen, Team: 254})
	require.NoError(t, w.Poll(context.Background()))

	w.CancelDrag()
	state, version := w.State()
	assert.False(t, w.Dragging())
	assert.EqualValues(t, 1, version)
	assert.Equal(t, []int{971, 254}, state.Bucket(engine.NoPick))
}

func TestRebaseDropsEditsThatNoLongerApply(t *testing.T) {
	be := newFake(254, 971)
	w := newWidget(t, be, slow()...)
	require.NoError(t, w.MarkChosen(254))

	be.mu.Lock()
	be.state = engine.FromBuckets([]int{971}, nil, nil, nil, nil)
	be.version = 4
	be.mu.Unlock()

	require.NoError(t, w.Poll(context.Background()))
	state, version := w.State()
	assert.EqualValues(t, 4, version)
	assert.Equal(t, []int{971}, state.Bucket(engine.NoPick))
	assert.Zero(t, w.Pending())
}

func TestDropWithoutDrag(t *testing.T) {
	w := newWidget(t, newFake(254), slow()...)
	assert.ErrorIs(t, w.Drop(engine.FirstPick, 0), ErrNotDragging)
	assert.ErrorIs(t, w.BeginDrag(9999), engine.ErrTeamNotFound)
}

func TestPollDoesNotOverlap(t *testing.T) {
	be := newFake(254)
	w := newWidget(t, be, slow()...)
	be.getGate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- w.Poll(context.Background()) }()

	assert.Eventually(t, func() bool { return w.busy.Load() }, time.Second, time.Millisecond)
	assert.ErrorIs(t, w.Poll(context.Background()), ErrPollInFlight)

	close(be.getGate)
	require.NoError(t, <-done)
}

func TestWatchAppliesPushedUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemoryStore()
	srv := httptest.NewServer(httpapi.SetupRoutes(httpapi.Deps{
		Hub:       hub.NewHub(ctx),
		Store:     st,
		Dashboard: dashboard.NewService(nil, st),
		CSRF:      true,
	}))
	defer srv.Close()

	mine, err := client.New(srv.URL)
	require.NoError(t, err)
	other, err := client.New(srv.URL)
	require.NoError(t, err)

	w := newWidget(t, mine, slow()...)
	go func() { _ = w.Watch(ctx) }()

	next := engine.FromBuckets([]int{1234}, []int{5678}, nil, nil, nil)
	assert.Eventually(t, func() bool {
		// Keep submitting until the watcher is connected and sees it.
		_, _ = other.SubmitPicklist(ctx, "2025cave", next, 0, false)
		state, version := w.State()
		return version >= 1 && state.Equal(next)
	}, 2*time.Second, 20*time.Millisecond)
}
