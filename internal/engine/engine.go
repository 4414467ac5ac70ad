package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var ErrUnknownBucket = errors.New("unknown bucket")
var ErrTeamNotFound = errors.New("team not in picklist")
var ErrInvalidTeam = errors.New("invalid team number")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrBadShape = errors.New("picklist must have exactly 5 buckets")

type Bucket string

const (
	NoPick     Bucket = "no_pick"
	FirstPick  Bucket = "1st_pick"
	SecondPick Bucket = "2nd_pick"
	ThirdPick  Bucket = "3rd_pick"
	DoNotPick  Bucket = "dnp"
)

const NumBuckets = 5

// State is one competition's picklist. Lists[i] belongs to Order[i].
type State struct {
	Lists [NumBuckets][]int
}

type CommandType string

const (
	CmdReplace    CommandType = "Replace"
	CmdMove       CommandType = "Move"
	CmdMarkChosen CommandType = "MarkChosen"
)

/*
	CmdReplace    -> EvtListReplaced (+ EvtDuplicateDropped for every repeated team)
	CmdMove       -> EvtTeamMoved
	CmdMarkChosen -> EvtTeamMoved (destination is always no_pick)

	Index < 0 or past the end of the destination list means append.
*/

type Command struct {
	Type  CommandType
	Team  int
	To    Bucket
	Index int
	State State
}

type EventType string

const (
	EvtTeamMoved        EventType = "TeamMoved"
	EvtListReplaced     EventType = "ListReplaced"
	EvtDuplicateDropped EventType = "DuplicateDropped"
)

type Event struct {
	Type  EventType
	Team  int
	From  Bucket
	To    Bucket
	Index int
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdReplace:
		for _, list := range cmd.State.Lists {
			for _, team := range list {
				if team <= 0 {
					return nil, s, fmt.Errorf("%w: %d", ErrInvalidTeam, team)
				}
			}
		}

		newState, dropped := normalize(cmd.State)
		events := []Event{{Type: EvtListReplaced}}
		for _, d := range dropped {
			events = append(events, Event{Type: EvtDuplicateDropped, Team: d.team, From: d.bucket})
		}
		return events, newState, nil

	case CmdMove:
		to, ok := BucketIndex(cmd.To)
		if !ok {
			return nil, s, fmt.Errorf("%w: %q", ErrUnknownBucket, cmd.To)
		}
		return move(s, cmd.Team, to, cmd.Index)

	case CmdMarkChosen:
		return move(s, cmd.Team, 0, -1)

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func move(s State, team, to, index int) ([]Event, State, error) {
	if team <= 0 {
		return nil, s, fmt.Errorf("%w: %d", ErrInvalidTeam, team)
	}
	from, pos, ok := locate(s, team)
	if !ok {
		return nil, s, fmt.Errorf("%w: %d", ErrTeamNotFound, team)
	}

	newState := s.Clone()
	newState.Lists[from] = slices.Delete(newState.Lists[from], pos, pos+1)

	dest := newState.Lists[to]
	if index < 0 || index > len(dest) {
		index = len(dest)
	}
	newState.Lists[to] = slices.Insert(dest, index, team)

	events := []Event{
		{Type: EvtTeamMoved, Team: team, From: Order[from], To: Order[to], Index: index},
	}
	return events, newState, nil
}

type droppedTeam struct {
	team   int
	bucket Bucket
}

// normalize keeps the first occurrence of every team, scanning buckets in
// Order and each bucket front to back.
func normalize(s State) (State, []droppedTeam) {
	seen := make(map[int]bool)
	var dropped []droppedTeam
	var out State
	for i, list := range s.Lists {
		out.Lists[i] = make([]int, 0, len(list))
		for _, team := range list {
			if seen[team] {
				dropped = append(dropped, droppedTeam{team: team, bucket: Order[i]})
				continue
			}
			seen[team] = true
			out.Lists[i] = append(out.Lists[i], team)
		}
	}
	return out, dropped
}

func locate(s State, team int) (bucket, pos int, ok bool) {
	for i, list := range s.Lists {
		if p := slices.Index(list, team); p >= 0 {
			return i, p, true
		}
	}
	return 0, 0, false
}

func (s State) Clone() State {
	var c State
	for i, list := range s.Lists {
		c.Lists[i] = slices.Clone(list)
		if c.Lists[i] == nil {
			c.Lists[i] = []int{}
		}
	}
	return c
}

func (s State) Equal(o State) bool {
	for i := range s.Lists {
		if !slices.Equal(s.Lists[i], o.Lists[i]) {
			return false
		}
	}
	return true
}

// Bucket returns the teams of b in order, or nil for an unknown bucket.
func (s State) Bucket(b Bucket) []int {
	i, ok := BucketIndex(b)
	if !ok {
		return nil
	}
	return s.Lists[i]
}

// Locate reports which bucket holds team.
func (s State) Locate(team int) (Bucket, bool) {
	i, _, ok := locate(s, team)
	if !ok {
		return "", false
	}
	return Order[i], true
}

func (s State) MarshalJSON() ([]byte, error) {
	lists := make([][]int, NumBuckets)
	for i, list := range s.Lists {
		if list == nil {
			list = []int{}
		}
		lists[i] = list
	}
	return json.Marshal(lists)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var lists [][]int
	if err := json.Unmarshal(data, &lists); err != nil {
		return err
	}
	if len(lists) != NumBuckets {
		return fmt.Errorf("%w: got %d", ErrBadShape, len(lists))
	}
	for i, list := range lists {
		if list == nil {
			list = []int{}
		}
		s.Lists[i] = list
	}
	return nil
}
