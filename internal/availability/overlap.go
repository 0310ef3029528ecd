package availability

import (
	"errors"
	"fmt"
	"sort"

	"slotkeeper/internal/models"
)

var ErrInvalidDuration = errors.New("duration must be at least one minute")

// Interval is a half-open [Start, End) range in minutes since midnight.
type Interval struct {
	Start int
	End   int
}

func NewInterval(clock string, durationMinutes int) (Interval, error) {
	start, err := models.ParseClock(clock)
	if err != nil {
		return Interval{}, err
	}
	if durationMinutes < 1 {
		return Interval{}, fmt.Errorf("%w: %d", ErrInvalidDuration, durationMinutes)
	}
	return Interval{Start: start, End: start + durationMinutes}, nil
}

// Conflicts pads the end of both intervals with buffer minutes of turnaround
// and reports whether they intersect. Touching intervals never conflict when
// buffer is zero.
func Conflicts(a, b Interval, buffer int) bool {
	return a.Start < b.End+buffer && a.End+buffer > b.Start
}

// Candidate is the part of a booking request the engine looks at.
type Candidate struct {
	Time            string
	DurationMinutes int
	ResourceID      string
}

// Verdict is the outcome of evaluating one candidate.
type Verdict struct {
	Available  bool
	Reason     string
	Capacity   int
	Booked     int
	Remaining  int
	ResourceID string
}

// Engine evaluates candidates against existing bookings of the same day.
type Engine struct {
	policy *CapacityPolicy
	buffer int
}

func NewEngine(settings *models.BookingSettings) *Engine {
	return &Engine{
		policy: NewCapacityPolicy(settings),
		buffer: settings.BufferMinutes,
	}
}

func (e *Engine) Policy() *CapacityPolicy {
	return e.policy
}

// Evaluate decides whether the candidate fits. existing must hold bookings of
// the candidate's date; inactive ones are ignored. resources is only consulted
// in exclusive mode.
func (e *Engine) Evaluate(c Candidate, existing []*models.Booking, resources []*models.Resource) (Verdict, error) {
	cand, err := NewInterval(c.Time, c.DurationMinutes)
	if err != nil {
		return Verdict{}, err
	}
	active := ActiveOnly(existing)
	resourceID := models.NormalizeResourceID(c.ResourceID)

	if !e.policy.IsExclusive() {
		return e.evaluatePool(cand, resourceID, active), nil
	}
	if resourceID != models.AutoResource {
		return e.evaluateResource(cand, resourceID, active, resources), nil
	}
	return e.evaluateAuto(cand, active, resources), nil
}

// Pool mode counts bookings that start at the same minute.
func (e *Engine) evaluatePool(cand Interval, resourceID string, active []*models.Booking) Verdict {
	capacity := e.policy.MaxCapacityFor(models.FormatClock(cand.Start))
	booked := 0
	for _, b := range active {
		start, err := models.ParseClock(b.Time)
		if err != nil {
			continue
		}
		if start == cand.Start {
			booked++
		}
	}
	v := Verdict{
		Capacity:   capacity,
		Booked:     booked,
		Remaining:  max(capacity-booked, 0),
		ResourceID: resourceID,
	}
	v.Available = booked < capacity
	if !v.Available {
		v.Reason = models.ReasonSlotFull
	}
	return v
}

func (e *Engine) evaluateResource(cand Interval, resourceID string, active []*models.Booking, resources []*models.Resource) Verdict {
	v := Verdict{Capacity: 1, ResourceID: resourceID}
	if !isEligible(resourceID, resources) {
		v.Booked = 1
		v.Reason = models.ReasonResourceUnavailable
		return v
	}
	v.Booked = e.countOverlaps(cand, active, func(b *models.Booking) bool {
		return b.ResourceID == resourceID
	})
	if v.Booked > 0 {
		v.Reason = models.ReasonResourceUnavailable
		return v
	}
	v.Available = true
	v.Remaining = 1
	return v
}

// evaluateAuto assigns the first eligible resource without overlaps. Active
// bookings that never got a named resource each take one anonymous resource
// for their interval.
func (e *Engine) evaluateAuto(cand Interval, active []*models.Booking, resources []*models.Resource) Verdict {
	eligible := EligibleResources(resources)
	var free []string
	for _, r := range eligible {
		id := r.ID
		n := e.countOverlaps(cand, active, func(b *models.Booking) bool {
			return b.ResourceID == id
		})
		if n == 0 {
			free = append(free, id)
		}
	}
	anonymous := e.countOverlaps(cand, active, func(b *models.Booking) bool {
		return !b.IsAssigned()
	})

	remaining := max(len(free)-anonymous, 0)
	v := Verdict{
		Capacity:   len(eligible),
		Booked:     len(eligible) - remaining,
		Remaining:  remaining,
		ResourceID: models.AutoResource,
	}
	if remaining == 0 {
		v.Reason = models.ReasonResourceUnavailable
		return v
	}
	v.Available = true
	v.ResourceID = free[0]
	return v
}

// FreeResources is what the day grid shows in exclusive mode: resources
// without overlaps, capped by the time's general quota minus bookings that
// start at that time.
func (e *Engine) FreeResources(c Candidate, existing []*models.Booking, resources []*models.Resource) (int, error) {
	cand, err := NewInterval(c.Time, c.DurationMinutes)
	if err != nil {
		return 0, err
	}
	active := ActiveOnly(existing)
	free := e.evaluateAuto(cand, active, resources).Remaining

	startingNow := 0
	for _, b := range active {
		if start, err := models.ParseClock(b.Time); err == nil && start == cand.Start {
			startingNow++
		}
	}
	quotaLeft := max(e.policy.MaxCapacityFor(c.Time)-startingNow, 0)
	return min(free, quotaLeft), nil
}

func (e *Engine) countOverlaps(cand Interval, active []*models.Booking, match func(*models.Booking) bool) int {
	n := 0
	for _, b := range active {
		if !match(b) {
			continue
		}
		other, ok := bookingInterval(b)
		if !ok {
			continue
		}
		if Conflicts(cand, other, e.buffer) {
			n++
		}
	}
	return n
}

// bookingInterval tolerates stored bookings without a duration: they still
// hold their start minute.
func bookingInterval(b *models.Booking) (Interval, bool) {
	start, err := models.ParseClock(b.Time)
	if err != nil {
		return Interval{}, false
	}
	return Interval{Start: start, End: start + max(b.DurationMinutes, 1)}, true
}

// ActiveOnly drops bookings that do not occupy capacity.
func ActiveOnly(bookings []*models.Booking) []*models.Booking {
	out := make([]*models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b != nil && b.IsActive() {
			out = append(out, b)
		}
	}
	return out
}

// EligibleResources returns active resources ordered by sort order, then id.
func EligibleResources(resources []*models.Resource) []*models.Resource {
	out := make([]*models.Resource, 0, len(resources))
	for _, r := range resources {
		if r != nil && r.Active {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder == out[j].SortOrder {
			return out[i].ID < out[j].ID
		}
		return out[i].SortOrder < out[j].SortOrder
	})
	return out
}

func isEligible(id string, resources []*models.Resource) bool {
	for _, r := range resources {
		if r != nil && r.ID == id && r.Active {
			return true
		}
	}
	return false
}
