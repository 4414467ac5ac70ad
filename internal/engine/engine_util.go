package engine

import "slices"

func NewEmptyState() State {
	return FromBuckets(nil, nil, nil, nil, nil)
}

// NewSeededState puts every team into no_pick, sorted ascending.
func NewSeededState(teams []int) State {
	seed := slices.Clone(teams)
	slices.Sort(seed)
	seed = slices.Compact(seed)
	seed = slices.DeleteFunc(seed, func(team int) bool { return team <= 0 })
	return FromBuckets(seed, nil, nil, nil, nil)
}

func FromBuckets(noPick, first, second, third, dnp []int) State {
	s := State{Lists: [NumBuckets][]int{noPick, first, second, third, dnp}}
	return s.Clone()
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func BucketIndex(b Bucket) (int, bool) {
	for i, o := range Order {
		if o == b {
			return i, true
		}
	}
	return 0, false
}

func ValidBucket(b Bucket) bool {
	_, ok := BucketIndex(b)
	return ok
}
