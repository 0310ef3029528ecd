package service

import (
	"context"
	"testing"

	"slotkeeper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t, poolSettings())
	ctx := context.Background()

	_, err := f.svc.Allocate(ctx, request(monday, "10:00", "", 60))
	require.NoError(t, err)
	single, err := f.svc.Allocate(ctx, request(monday, "11:00", "", 60))
	require.NoError(t, err)

	t.Run("remaining places", func(t *testing.T) {
		got, err := f.svc.CheckAvailability(ctx, request(monday, "10:00", "", 60))
		require.NoError(t, err)
		assert.True(t, got.Available)
		assert.Equal(t, 3, got.Capacity)
		assert.Equal(t, 1, got.Booked)
		assert.Equal(t, 2, got.Remaining)
	})

	t.Run("full", func(t *testing.T) {
		got, err := f.svc.CheckAvailability(ctx, request(monday, "11:00", "", 60))
		require.NoError(t, err)
		assert.False(t, got.Available)
		assert.Equal(t, models.ReasonSlotFull, got.Reason)
	})

	t.Run("excluding the booking being moved", func(t *testing.T) {
		req := request(monday, "11:00", "", 60)
		req.ExcludeBookingID = single.ID
		got, err := f.svc.CheckAvailability(ctx, req)
		require.NoError(t, err)
		assert.True(t, got.Available)
	})

	t.Run("holiday", func(t *testing.T) {
		got, err := f.svc.CheckAvailability(ctx, request(holiday, "10:00", "", 60))
		require.NoError(t, err)
		assert.False(t, got.Available)
		assert.Equal(t, models.ReasonDayClosed, got.Reason)
		assert.Equal(t, "Праздник", got.Note)
	})

	t.Run("outside hours", func(t *testing.T) {
		got, err := f.svc.CheckAvailability(ctx, request(monday, "07:00", "", 60))
		require.NoError(t, err)
		assert.Equal(t, models.ReasonOutsideHours, got.Reason)
	})

	t.Run("invalid request is an error", func(t *testing.T) {
		_, err := f.svc.CheckAvailability(ctx, request(monday, "ten", "", 60))
		requireReason(t, err, models.ReasonInvalidRequest)
	})

	t.Run("nothing was written", func(t *testing.T) {
		list, err := f.svc.ListBookings(ctx, monday)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})
}

func TestDayAvailabilityPool(t *testing.T) {
	settings := poolSettings()
	settings.TimeQueues = append(settings.TimeQueues, models.TimeQueue{Time: "08:00", Count: 1})
	f := newFixture(t, settings)
	ctx := context.Background()

	_, err := f.svc.Allocate(ctx, request(monday, "11:00", "", 60))
	require.NoError(t, err)

	day, err := f.svc.DayAvailability(ctx, monday, 0)
	require.NoError(t, err)
	assert.True(t, day.Open)
	require.Len(t, day.Slots, 3)

	assert.Equal(t, "08:00", day.Slots[0].Time)
	assert.False(t, day.Slots[0].Available)
	assert.Equal(t, models.ReasonOutsideHours, day.Slots[0].Reason)

	assert.Equal(t, "10:00", day.Slots[1].Time)
	assert.True(t, day.Slots[1].Available)
	assert.Equal(t, 3, day.Slots[1].Remaining)

	assert.Equal(t, "11:00", day.Slots[2].Time)
	assert.False(t, day.Slots[2].Available)
	assert.Equal(t, models.ReasonSlotFull, day.Slots[2].Reason)

	t.Run("closed days", func(t *testing.T) {
		day, err := f.svc.DayAvailability(ctx, holiday, 60)
		require.NoError(t, err)
		assert.False(t, day.Open)
		assert.Equal(t, "Праздник", day.Note)
		assert.Empty(t, day.Slots)

		day, err = f.svc.DayAvailability(ctx, sunday, 60)
		require.NoError(t, err)
		assert.False(t, day.Open)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := f.svc.DayAvailability(ctx, "tomorrow", 60)
		requireReason(t, err, models.ReasonInvalidRequest)
		_, err = f.svc.DayAvailability(ctx, monday, 2000)
		requireReason(t, err, models.ReasonInvalidRequest)
	})
}

func TestDayAvailabilityGrid(t *testing.T) {
	f := newFixture(t, models.DefaultBookingSettings())

	day, err := f.svc.DayAvailability(context.Background(), monday, 30)
	require.NoError(t, err)
	// 09:00..18:00 every 30 minutes, both ends included
	require.Len(t, day.Slots, 19)
	assert.Equal(t, "09:00", day.Slots[0].Time)
	assert.Equal(t, "18:00", day.Slots[18].Time)
	for _, s := range day.Slots {
		assert.True(t, s.Available, s.Time)
		assert.Equal(t, 1, s.Capacity, s.Time)
	}
}

func TestDayAvailabilityExclusive(t *testing.T) {
	f := newFixture(t, exclusiveSettings(), resource("anna", 1), resource("olga", 2))
	ctx := context.Background()

	_, err := f.svc.Allocate(ctx, request(monday, "10:00", "anna", 60))
	require.NoError(t, err)

	slots := func() map[string]models.SlotAvailability {
		day, err := f.svc.DayAvailability(ctx, monday, 60)
		require.NoError(t, err)
		out := make(map[string]models.SlotAvailability, len(day.Slots))
		for _, s := range day.Slots {
			out[s.Time] = s
		}
		return out
	}

	got := slots()
	assert.Equal(t, 1, got["09:00"].Remaining, "buffer reaches into 10:00")
	assert.Equal(t, 1, got["10:00"].Remaining)
	assert.Equal(t, 1, got["10:00"].Booked)
	assert.Equal(t, 1, got["10:30"].Remaining)
	assert.Equal(t, 2, got["12:00"].Remaining)
	assert.True(t, got["12:00"].Available)

	_, err = f.svc.Allocate(ctx, request(monday, "10:00", "olga", 60))
	require.NoError(t, err)

	got = slots()
	assert.False(t, got["10:00"].Available)
	assert.Equal(t, models.ReasonResourceUnavailable, got["10:00"].Reason)
	assert.Equal(t, 0, got["10:00"].Remaining)
	assert.Equal(t, 2, got["12:00"].Remaining)
}
