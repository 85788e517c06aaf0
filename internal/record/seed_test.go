package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDefaults(t *testing.T) {
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	sunday := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("fills hourly slots on a weekday", func(t *testing.T) {
		day := NewDay()
		seeded := SeedDefaults(monday, day)

		require.True(t, seeded)
		require.Len(t, day.Slots, 10)
		assert.Equal(t, TimeSlot{Order: 0}, day.Slots["08:00-09:00"])
		assert.Equal(t, TimeSlot{Order: 9}, day.Slots["17:00-18:00"])
		assert.Equal(t, []string{
			"08:00-09:00", "09:00-10:00", "10:00-11:00", "11:00-12:00",
			"12:00-13:00", "13:00-14:00", "14:00-15:00", "15:00-16:00",
			"16:00-17:00", "17:00-18:00",
		}, day.SortedSlotKeys())
	})

	t.Run("skips sundays", func(t *testing.T) {
		day := NewDay()
		assert.False(t, SeedDefaults(sunday, day))
		assert.Empty(t, day.Slots)
	})

	t.Run("skips days with existing slots", func(t *testing.T) {
		day := NewDay()
		day.Slots["06:00"] = TimeSlot{Text: "run"}

		assert.False(t, SeedDefaults(monday, day))
		assert.Len(t, day.Slots, 1)
	})

	t.Run("skips cleared days", func(t *testing.T) {
		day := NewDay()
		day.UserCleared = true

		assert.False(t, SeedDefaults(monday, day))
		assert.Empty(t, day.Slots)
	})

	t.Run("note or leave alone does not block seeding", func(t *testing.T) {
		day := NewDay()
		day.Note = "WFH"
		day.Leave = &LeaveEntry{TypeID: "annual", DayType: DayTypeHalf}

		assert.True(t, SeedDefaults(monday, day))
		assert.Len(t, day.Slots, 10)
	})
}
