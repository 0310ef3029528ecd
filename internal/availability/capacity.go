package availability

import (
	"sort"

	"slotkeeper/internal/models"
)

// CapacityPolicy resolves quotas and the booking mode.
type CapacityPolicy struct {
	quotas    map[int]int
	total     int
	exclusive bool
}

func NewCapacityPolicy(settings *models.BookingSettings) *CapacityPolicy {
	p := &CapacityPolicy{
		quotas:    make(map[int]int, len(settings.TimeQueues)),
		total:     settings.TotalBeauticians,
		exclusive: settings.UseBeautician,
	}
	for _, q := range settings.TimeQueues {
		m, err := models.ParseClock(q.Time)
		if err != nil {
			continue
		}
		p.quotas[m] = q.Count
	}
	return p
}

// MaxCapacityFor returns the queue quota for clock, or the total beautician
// count when the time has no queue entry.
func (p *CapacityPolicy) MaxCapacityFor(clock string) int {
	m, err := models.ParseClock(clock)
	if err != nil {
		return p.total
	}
	if n, ok := p.quotas[m]; ok {
		return n
	}
	return p.total
}

func (p *CapacityPolicy) IsExclusive() bool {
	return p.exclusive
}

// CapacityFor is 1 for a named resource in exclusive mode.
func (p *CapacityPolicy) CapacityFor(clock, resourceID string) int {
	if p.exclusive && resourceID != "" && resourceID != models.AutoResource {
		return 1
	}
	return p.MaxCapacityFor(clock)
}

// QueueTimes returns the configured start times in minutes, ascending.
func (p *CapacityPolicy) QueueTimes() []int {
	out := make([]int, 0, len(p.quotas))
	for m := range p.quotas {
		out = append(out, m)
	}
	sort.Ints(out)
	return out
}
