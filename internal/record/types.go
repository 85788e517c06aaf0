package record

import (
	"sort"
	"time"
)

// DayType is the portion of a day a leave entry covers.
type DayType string

const (
	DayTypeFull DayType = "full"
	DayTypeHalf DayType = "half"
)

// Cost returns the leave cost of the day type in days.
func (t DayType) Cost() float64 {
	if t == DayTypeHalf {
		return 0.5
	}
	return 1.0
}

// LeaveEntry marks a day as leave of a given type.
type LeaveEntry struct {
	TypeID  string  `json:"typeId"`
	DayType DayType `json:"dayType"`
}

// TimeSlot is a labeled time range with free text and a display order.
type TimeSlot struct {
	Text  string `json:"text"`
	Order int    `json:"order"`
}

// LeaveType is a global catalog entry. TotalDays is the default yearly
// entitlement; per-year adjustments live in LeaveOverride.
type LeaveType struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	TotalDays float64 `json:"totalDays"`
	Color     string  `json:"color"`
}

// LeaveOverride adjusts a leave type for one year without touching the
// global catalog entry.
type LeaveOverride struct {
	TotalDays *float64 `json:"totalDays,omitempty"`
	Hidden    bool     `json:"hidden,omitempty"`
}

// Day holds one date's note, leave entry and time slots. UserCleared is the
// tombstone left behind when the user explicitly empties a day, so default
// slot seeding does not reintroduce stale rows.
//
// The persisted wire shape is a flat object mixing reserved keys with slot
// keys; the translation happens only in the JSON codec (wire.go), so nothing
// else special-cases reserved key names.
type Day struct {
	Note        string
	Leave       *LeaveEntry
	UserCleared bool
	Slots       map[string]TimeSlot
}

// NewDay returns an empty day.
func NewDay() *Day {
	return &Day{Slots: make(map[string]TimeSlot)}
}

// IsEmpty reports whether the day carries no meaningful data at all,
// tombstone included.
func (d *Day) IsEmpty() bool {
	return d.Note == "" && d.Leave == nil && !d.UserCleared && len(d.Slots) == 0
}

// HasSlots reports whether the day has any persisted time slots.
func (d *Day) HasSlots() bool {
	return len(d.Slots) > 0
}

// Clone returns a deep copy of the day.
func (d *Day) Clone() *Day {
	out := &Day{
		Note:        d.Note,
		UserCleared: d.UserCleared,
		Slots:       make(map[string]TimeSlot, len(d.Slots)),
	}
	if d.Leave != nil {
		leave := *d.Leave
		out.Leave = &leave
	}
	for k, v := range d.Slots {
		out.Slots[k] = v
	}
	return out
}

// SortedSlotKeys returns the slot keys in display order. Order is
// authoritative; equal orders fall back to the key string so the result is
// deterministic.
func (d *Day) SortedSlotKeys() []string {
	keys := make([]string, 0, len(d.Slots))
	for k := range d.Slots {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := d.Slots[keys[i]], d.Slots[keys[j]]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return keys[i] < keys[j]
	})
	return keys
}

// MaxOrder returns the highest slot order, or -1 when the day has no slots.
func (d *Day) MaxOrder() int {
	max := -1
	for _, s := range d.Slots {
		if s.Order > max {
			max = s.Order
		}
	}
	return max
}

// YearRecord holds one calendar year's activities and leave overrides.
type YearRecord struct {
	Activities     map[string]*Day          `json:"activities"`
	LeaveOverrides map[string]LeaveOverride `json:"leaveOverrides"`
}

// NewYearRecord returns an empty year record.
func NewYearRecord() *YearRecord {
	return &YearRecord{
		Activities:     make(map[string]*Day),
		LeaveOverrides: make(map[string]LeaveOverride),
	}
}

// Clone returns a deep copy of the year record.
func (y *YearRecord) Clone() *YearRecord {
	out := &YearRecord{
		Activities:     make(map[string]*Day, len(y.Activities)),
		LeaveOverrides: make(map[string]LeaveOverride, len(y.LeaveOverrides)),
	}
	for k, d := range y.Activities {
		out.Activities[k] = d.Clone()
	}
	for k, o := range y.LeaveOverrides {
		if o.TotalDays != nil {
			total := *o.TotalDays
			o.TotalDays = &total
		}
		out.LeaveOverrides[k] = o
	}
	return out
}

// Day returns the day record for the date key, creating it when absent.
func (y *YearRecord) Day(dateKey string) *Day {
	if d, ok := y.Activities[dateKey]; ok {
		return d
	}
	d := NewDay()
	y.Activities[dateKey] = d
	return d
}

// DateKey formats a time as the YYYY-MM-DD key used throughout the store.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// YearOf extracts the 4-digit year from a date key.
func YearOf(dateKey string) string {
	if len(dateKey) < 4 {
		return ""
	}
	return dateKey[:4]
}
