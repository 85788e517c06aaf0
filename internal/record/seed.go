package record

import (
	"fmt"
	"time"
)

// Default working-hours window for seeded slots.
const (
	seedStartHour = 8
	seedEndHour   = 18
)

// SeedDefaults fills a day with the baseline hourly slots (08:00 through
// 18:00, orders 0..9) when it has no persisted slots, has not been explicitly
// cleared, and the date is not a Sunday. Applied by the pipeline before any
// action-specific transform so edits land on the same rows the user saw.
func SeedDefaults(date time.Time, day *Day) bool {
	if day.HasSlots() || day.UserCleared {
		return false
	}
	if date.Weekday() == time.Sunday {
		return false
	}

	for h := seedStartHour; h < seedEndHour; h++ {
		key := fmt.Sprintf("%02d:00-%02d:00", h, h+1)
		day.Slots[key] = TimeSlot{Order: h - seedStartHour}
	}
	return true
}
