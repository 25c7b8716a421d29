package hoodie

import "sort"

// InstantState is the lifecycle state of a commit instant on the timeline.
type InstantState string

const (
	StateRequested InstantState = "REQUESTED"
	StateInflight  InstantState = "INFLIGHT"
	StateCompleted InstantState = "COMPLETED"
)

// Instant is one action on the table's commit timeline, identified by its
// timestamp string. Timestamps order lexicographically.
type Instant struct {
	Timestamp string
	State     InstantState
}

// Timeline exposes the table's commit history. The index only ever reads it.
type Timeline interface {
	// Instants returns all known instants, oldest first.
	Instants() []Instant

	// LatestCompletedInstant returns the newest completed instant, if any.
	// An empty timeline (or one with only inflight work) is a valid state:
	// the table simply has no visible files yet.
	LatestCompletedInstant() (Instant, bool)
}

// InMemoryTimeline is a Timeline over a fixed set of instants, used by
// embedded tables and tests.
type InMemoryTimeline struct {
	instants []Instant
}

func NewInMemoryTimeline(instants ...Instant) *InMemoryTimeline {
	sorted := make([]Instant, len(instants))
	copy(sorted, instants)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})
	return &InMemoryTimeline{instants: sorted}
}

// AddInstant appends an instant, keeping timestamp order.
func (t *InMemoryTimeline) AddInstant(instant Instant) {
	t.instants = append(t.instants, instant)
	sort.Slice(t.instants, func(i, j int) bool {
		return t.instants[i].Timestamp < t.instants[j].Timestamp
	})
}

func (t *InMemoryTimeline) Instants() []Instant {
	out := make([]Instant, len(t.instants))
	copy(out, t.instants)
	return out
}

func (t *InMemoryTimeline) LatestCompletedInstant() (Instant, bool) {
	for i := len(t.instants) - 1; i >= 0; i-- {
		if t.instants[i].State == StateCompleted {
			return t.instants[i], true
		}
	}
	return Instant{}, false
}

func init() {
	var _ Timeline = &InMemoryTimeline{}
}
