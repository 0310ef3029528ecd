package availability

import (
	"testing"

	"slotkeeper/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCapacityPolicy(t *testing.T) {
	p := NewCapacityPolicy(&models.BookingSettings{
		TimeQueues:       []models.TimeQueue{{Time: "10:00", Count: 2}, {Time: "09:30", Count: 3}},
		TotalBeauticians: 1,
	})

	assert.Equal(t, 2, p.MaxCapacityFor("10:00"))
	assert.Equal(t, 3, p.MaxCapacityFor("9:30"), "lookup is by minute, not by string")
	assert.Equal(t, 1, p.MaxCapacityFor("11:00"), "fallback to total beauticians")
	assert.Equal(t, 1, p.MaxCapacityFor("bad"))
	assert.False(t, p.IsExclusive())
	assert.Equal(t, 2, p.CapacityFor("10:00", "anna"), "pool mode ignores the resource")
	assert.Equal(t, []int{570, 600}, p.QueueTimes())
}

func TestCapacityPolicy_Exclusive(t *testing.T) {
	p := NewCapacityPolicy(&models.BookingSettings{
		TimeQueues:       []models.TimeQueue{{Time: "10:00", Count: 4}},
		TotalBeauticians: 3,
		UseBeautician:    true,
	})

	assert.True(t, p.IsExclusive())
	assert.Equal(t, 1, p.CapacityFor("10:00", "anna"))
	assert.Equal(t, 4, p.CapacityFor("10:00", models.AutoResource))
	assert.Equal(t, 3, p.CapacityFor("12:00", ""))
}
