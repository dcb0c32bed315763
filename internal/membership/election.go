package membership

import "fmt"

// ElectionPolicy picks the next host among the remaining members after the
// host departed. It must be deterministic for a given input and must return
// one of the remaining members; ok is false only when remaining is empty.
type ElectionPolicy func(remaining []Member, departed Member) (next Member, ok bool)

// Election policy names accepted by PolicyByName.
const (
	PolicyEarliestJoined = "earliest"
	PolicyLowestID       = "lowest-id"
)

// ElectEarliestJoined promotes the member that has been in the group longest.
func ElectEarliestJoined(remaining []Member, _ Member) (Member, bool) {
	if len(remaining) == 0 {
		return Member{}, false
	}
	next := remaining[0]
	for _, m := range remaining[1:] {
		if m.JoinSeq < next.JoinSeq {
			next = m
		}
	}
	return next, true
}

// ElectLowestID promotes the member whose id sorts first.
func ElectLowestID(remaining []Member, _ Member) (Member, bool) {
	if len(remaining) == 0 {
		return Member{}, false
	}
	next := remaining[0]
	for _, m := range remaining[1:] {
		if m.ID < next.ID {
			next = m
		}
	}
	return next, true
}

// PolicyByName resolves a configured policy name. An empty name selects
// ElectEarliestJoined.
func PolicyByName(name string) (ElectionPolicy, error) {
	switch name {
	case "", PolicyEarliestJoined:
		return ElectEarliestJoined, nil
	case PolicyLowestID:
		return ElectLowestID, nil
	default:
		return nil, fmt.Errorf("membership: unknown election policy %q", name)
	}
}
