// Package schedule turns the clinic's working hours into discrete bookable
// slots and overlays existing bookings onto them. Everything here is pure;
// storage is never consulted.
package schedule

import "time"

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. Touching edges
// (one ending exactly when the other starts) do not overlap. This is the
// single overlap predicate used throughout the scheduling engine.
func (iv Interval) Overlaps(o Interval) bool {
	return iv.Start.Before(o.End) && o.Start.Before(iv.End)
}

// TimeSlot is a generated, ephemeral unit of bookable time. Slots are
// computed fresh per query and never persisted.
type TimeSlot struct {
	Start     time.Time
	End       time.Time
	Available bool
}

// Workday is the clinic-wide working window. Open and Close are offsets from
// midnight; SlotLen is the base slot granularity.
type Workday struct {
	Open    time.Duration
	Close   time.Duration
	SlotLen time.Duration
}

// DefaultWorkday is the clinic schedule: 08:00-18:00 in 20-minute slots.
var DefaultWorkday = Workday{
	Open:    8 * time.Hour,
	Close:   18 * time.Hour,
	SlotLen: 20 * time.Minute,
}

// Grid generates the ordered sequence of candidate slots for the given day
// (midnight UTC). A slot that would extend past closing time is omitted, not
// truncated. All slots start available.
func (w Workday) Grid(day time.Time) []TimeSlot {
	if w.SlotLen <= 0 || w.Close <= w.Open {
		return nil
	}
	closeAt := day.Add(w.Close)

	var slots []TimeSlot
	for start := day.Add(w.Open); !start.Add(w.SlotLen).After(closeAt); start = start.Add(w.SlotLen) {
		slots = append(slots, TimeSlot{
			Start:     start,
			End:       start.Add(w.SlotLen),
			Available: true,
		})
	}
	return slots
}

// MarkBusy flips Available off for every slot that overlaps a busy interval.
func MarkBusy(slots []TimeSlot, busy []Interval) {
	for i := range slots {
		slot := Interval{Start: slots[i].Start, End: slots[i].End}
		for _, b := range busy {
			if slot.Overlaps(b) {
				slots[i].Available = false
				break
			}
		}
	}
}
