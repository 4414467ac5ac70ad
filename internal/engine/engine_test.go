package engine

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestMoveBetweenBuckets(t *testing.T) {
	cases := []struct {
		name  string
		setup State
		cmd   Command
		want  State
	}{
		{
			name:  "no_pick to 1st_pick appends",
			setup: FromBuckets([]int{254, 1234, 1678}, []int{118}, nil, nil, nil),
			cmd:   Command{Type: CmdMove, Team: 1234, To: FirstPick, Index: -1},
			want:  FromBuckets([]int{254, 1678}, []int{118, 1234}, nil, nil, nil),
		},
		{
			name:  "insert at front",
			setup: FromBuckets([]int{254, 1234}, []int{118}, nil, nil, nil),
			cmd:   Command{Type: CmdMove, Team: 254, To: FirstPick, Index: 0},
			want:  FromBuckets([]int{1234}, []int{254, 118}, nil, nil, nil),
		},
		{
			name:  "reorder inside a bucket",
			setup: FromBuckets(nil, []int{1, 2, 3}, nil, nil, nil),
			cmd:   Command{Type: CmdMove, Team: 3, To: FirstPick, Index: 0},
			want:  FromBuckets(nil, []int{3, 1, 2}, nil, nil, nil),
		},
		{
			name:  "index past end appends",
			setup: FromBuckets([]int{10}, nil, nil, nil, []int{20}),
			cmd:   Command{Type: CmdMove, Team: 10, To: DoNotPick, Index: 99},
			want:  FromBuckets(nil, nil, nil, nil, []int{20, 10}),
		},
		{
			name:  "mark chosen goes to end of no_pick",
			setup: FromBuckets([]int{5}, nil, []int{7, 8}, nil, nil),
			cmd:   Command{Type: CmdMarkChosen, Team: 7},
			want:  FromBuckets([]int{5, 7}, nil, []int{8}, nil, nil),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, got, err := Apply(tc.setup, tc.cmd)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("got %v, want %v", got.Lists, tc.want.Lists)
			}
			if !ContainsEvent(events, EvtTeamMoved) {
				t.Fatalf("expected EvtTeamMoved, got %+v", events)
			}
		})
	}
}

func TestMoveLeavesTeamInExactlyOneBucket(t *testing.T) {
	s := FromBuckets([]int{1234, 254}, nil, nil, nil, nil)
	_, got, err := Apply(s, Command{Type: CmdMove, Team: 1234, To: FirstPick, Index: -1})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	count := 0
	for _, list := range got.Lists {
		for _, team := range list {
			if team == 1234 {
				count++
			}
		}
	}
	if count != 1 {
		t.Fatalf("want 1234 exactly once, found %d times in %v", count, got.Lists)
	}
	if b, _ := got.Locate(1234); b != FirstPick {
		t.Fatalf("want 1234 in %s, got %s", FirstPick, b)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	s := FromBuckets([]int{1, 2, 3}, []int{4}, nil, nil, nil)
	before := s.Clone()

	_, _, err := Apply(s, Command{Type: CmdMove, Team: 2, To: FirstPick, Index: 0})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !s.Equal(before) {
		t.Fatalf("input state changed: %v", s.Lists)
	}
}

func TestApplyErrors(t *testing.T) {
	s := FromBuckets([]int{1, 2}, nil, nil, nil, nil)
	cases := []struct {
		name string
		cmd  Command
		want error
	}{
		{"unknown bucket", Command{Type: CmdMove, Team: 1, To: "4th_pick"}, ErrUnknownBucket},
		{"team not found", Command{Type: CmdMove, Team: 99, To: FirstPick}, ErrTeamNotFound},
		{"mark chosen missing team", Command{Type: CmdMarkChosen, Team: 99}, ErrTeamNotFound},
		{"zero team", Command{Type: CmdMove, Team: 0, To: FirstPick}, ErrInvalidTeam},
		{"negative team in replace", Command{Type: CmdReplace, State: FromBuckets([]int{-4}, nil, nil, nil, nil)}, ErrInvalidTeam},
		{"unsupported", Command{Type: "Shuffle"}, ErrUnsupportedCommand},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, got, err := Apply(s, tc.cmd)
			if err == nil || !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			if !got.Equal(s) {
				t.Fatalf("state changed on error: %v", got.Lists)
			}
		})
	}
}

func TestReplaceDropsDuplicates(t *testing.T) {
	next := FromBuckets([]int{1, 2}, []int{2, 3}, nil, nil, []int{1})
	events, got, err := Apply(NewEmptyState(), Command{Type: CmdReplace, State: next})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	want := FromBuckets([]int{1, 2}, []int{3}, nil, nil, nil)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got.Lists, want.Lists)
	}
	if !ContainsEvent(events, EvtListReplaced) {
		t.Fatalf("expected EvtListReplaced")
	}

	dropped := 0
	for _, e := range events {
		if e.Type == EvtDuplicateDropped {
			dropped++
		}
	}
	if dropped != 2 {
		t.Fatalf("want 2 duplicates dropped, got %d", dropped)
	}
}

func TestSeededStateIsSorted(t *testing.T) {
	s := NewSeededState([]int{1678, 254, 118, 254, 0})
	want := FromBuckets([]int{118, 254, 1678}, nil, nil, nil, nil)
	if !s.Equal(want) {
		t.Fatalf("got %v, want %v", s.Lists, want.Lists)
	}
}

func TestStateJSON(t *testing.T) {
	raw, err := json.Marshal(NewEmptyState())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != "[[],[],[],[],[]]" {
		t.Fatalf("empty state encoded as %s", raw)
	}

	var s State
	if err := json.Unmarshal([]byte(`[[1,2],[3],[],[4],[]]`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := s.Bucket(ThirdPick); len(got) != 1 || got[0] != 4 {
		t.Fatalf("3rd_pick: got %v", got)
	}

	err = json.Unmarshal([]byte(`[[1],[2]]`), &s)
	if err == nil || !errors.Is(err, ErrBadShape) {
		t.Fatalf("want ErrBadShape, got %v", err)
	}
}
