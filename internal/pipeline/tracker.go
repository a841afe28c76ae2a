package pipeline

import "time"

// Decision tells a fetch loop what to do with an inspected item.
type Decision int

const (
	Emit Decision = iota
	Skip
	Stop
)

func (d Decision) String() string {
	switch d {
	case Emit:
		return "emit"
	case Skip:
		return "skip"
	default:
		return "stop"
	}
}

// Tracker implements the incremental fetch bookkeeping shared by every
// connector: the lower bound, the high-water mark over inspected items, the
// first-seen id and in-pass deduplication. One Tracker covers one stream.
type Tracker struct {
	prev    Cursor
	lower   time.Time
	maxSeen time.Time
	firstID string
	seen    map[string]struct{}
	emitted int
}

// NewTracker derives the lower bound from the previous cursor, falling back to
// the lookup period (or DefaultLookback) when there is none.
func NewTracker(prev Cursor, lookupPeriod string, now time.Time) (*Tracker, error) {
	lower := prev.SinceTime
	if lower.IsZero() {
		var err error
		lower, err = ParseLookback(lookupPeriod, now)
		if err != nil {
			return nil, err
		}
	}
	return &Tracker{
		prev:  prev,
		lower: lower,
		seen:  make(map[string]struct{}),
	}, nil
}

func (t *Tracker) LowerBound() time.Time { return t.lower }

func (t *Tracker) Emitted() int { return t.emitted }

// Observe inspects one upstream item. Every inspected item counts toward the
// high-water mark, including the one that ends the pass.
func (t *Tracker) Observe(id string, ts time.Time) Decision {
	ts = ts.UTC()
	if t.firstID == "" && id != "" {
		t.firstID = id
	}
	if ts.After(t.maxSeen) {
		t.maxSeen = ts
	}

	if !ts.After(t.lower) {
		return Stop
	}
	if id != "" {
		if _, dup := t.seen[id]; dup {
			return Skip
		}
		t.seen[id] = struct{}{}
	}
	t.emitted++
	return Emit
}

// Cursor returns the cursor to persist after the pass. since_time never moves
// backward; since_id keeps its first recorded value.
func (t *Tracker) Cursor() Cursor {
	next := t.prev
	if t.maxSeen.After(next.SinceTime) {
		next.SinceTime = t.maxSeen
	}
	if next.SinceID == "" {
		next.SinceID = t.firstID
	}
	return next
}
