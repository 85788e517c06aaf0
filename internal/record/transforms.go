package record

import (
	"fmt"
	"strings"
)

// ValidationError reports bad user input. Transforms that return it leave the
// day untouched and the caller must not attempt persistence.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Every transform below operates on a caller-owned copy of the day, never on
// live state. On success it returns a human-readable result message.

// ApplySaveNote sets the day note, or deletes it when the trimmed text is
// empty.
func ApplySaveNote(day *Day, text string) string {
	trimmed := strings.TrimSpace(text)
	day.Note = trimmed
	if trimmed == "" {
		return "Note removed"
	}
	return "Note saved"
}

// ApplyAddSlot synthesizes a new empty slot. The key starts at "00:00" and is
// disambiguated with -1, -2, ... suffixes on collision; the order continues
// after the current maximum. Returns the new slot key.
func ApplyAddSlot(day *Day) (string, string) {
	key := "00:00"
	for i := 1; ; i++ {
		if _, exists := day.Slots[key]; !exists {
			break
		}
		key = fmt.Sprintf("00:00-%d", i)
	}

	day.Slots[key] = TimeSlot{Order: day.MaxOrder() + 1}
	day.UserCleared = false
	return key, "Activity slot added"
}

// ApplyUpdateActivityText overwrites a slot's text, creating the slot when it
// does not exist yet.
func ApplyUpdateActivityText(day *Day, timeKey, text string) string {
	if slot, ok := day.Slots[timeKey]; ok {
		slot.Text = text
		day.Slots[timeKey] = slot
	} else {
		day.Slots[timeKey] = TimeSlot{Text: text, Order: len(day.Slots)}
	}
	day.UserCleared = false
	return "Activity saved"
}

// ApplyUpdateTime renames a slot, preserving its text and order. Renaming to
// an existing different key is rejected rather than merged.
func ApplyUpdateTime(day *Day, oldKey, newKey string) (string, error) {
	newKey = strings.TrimSpace(newKey)
	if newKey == "" {
		return "", Validationf("time cannot be empty")
	}
	if newKey == oldKey {
		return "Time unchanged", nil
	}
	if _, exists := day.Slots[newKey]; exists {
		return "", Validationf("an activity at %s already exists", newKey)
	}

	slot, ok := day.Slots[oldKey]
	if !ok {
		return "", Validationf("no activity at %s", oldKey)
	}
	delete(day.Slots, oldKey)
	day.Slots[newKey] = slot
	return "Time updated", nil
}

// ApplyDeleteSlot removes a slot. When the deletion empties the day's slots,
// the UserCleared tombstone is set so seeding does not resurrect defaults.
func ApplyDeleteSlot(day *Day, timeKey string) (string, error) {
	if _, ok := day.Slots[timeKey]; !ok {
		return "", Validationf("no activity at %s", timeKey)
	}
	delete(day.Slots, timeKey)
	if len(day.Slots) == 0 {
		day.UserCleared = true
	}
	return "Activity deleted", nil
}

// ApplyClearDay empties the day's slots and leaves the tombstone.
func ApplyClearDay(day *Day) string {
	day.Slots = make(map[string]TimeSlot)
	day.UserCleared = true
	return "Day cleared"
}

// ReorderSlots rebuilds the slot map assigning each listed key its position
// as the order. Note, leave and the tombstone are untouched. Keys absent from
// the list keep their relative order after the listed ones.
func ReorderSlots(day *Day, orderedKeys []string) (string, error) {
	seen := make(map[string]bool, len(orderedKeys))
	for _, key := range orderedKeys {
		if _, ok := day.Slots[key]; !ok {
			return "", Validationf("no activity at %s", key)
		}
		if seen[key] {
			return "", Validationf("duplicate key %s in reorder", key)
		}
		seen[key] = true
	}

	rebuilt := make(map[string]TimeSlot, len(day.Slots))
	for i, key := range orderedKeys {
		slot := day.Slots[key]
		slot.Order = i
		rebuilt[key] = slot
	}

	next := len(orderedKeys)
	for _, key := range day.SortedSlotKeys() {
		if seen[key] {
			continue
		}
		slot := day.Slots[key]
		slot.Order = next
		next++
		rebuilt[key] = slot
	}

	day.Slots = rebuilt
	return "Order updated", nil
}
