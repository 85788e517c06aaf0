package pipeline

import (
	"time"

	"github.com/trackmate/server/internal/record"
)

// dayFor resolves the working day for a date-bearing action, seeding the
// default hourly slots first so the transform edits the rows the user saw.
func dayFor(doc *record.UserDocument, dateKey string) (*record.Day, error) {
	date, err := time.Parse("2006-01-02", dateKey)
	if err != nil {
		return nil, record.Validationf("invalid date %q", dateKey)
	}
	day := doc.Year(record.YearOf(dateKey)).Day(dateKey)
	record.SeedDefaults(date, day)
	return day, nil
}

// SaveNote sets or clears the note on a day.
type SaveNote struct {
	DateKey string
	Text    string
}

func (SaveNote) Name() string { return "save-note" }

func (a SaveNote) Apply(doc *record.UserDocument) (string, error) {
	day, err := dayFor(doc, a.DateKey)
	if err != nil {
		return "", err
	}
	return record.ApplySaveNote(day, a.Text), nil
}

// AddSlot appends a fresh empty slot to a day.
type AddSlot struct {
	DateKey string
}

func (AddSlot) Name() string { return "add-slot" }

func (a AddSlot) Apply(doc *record.UserDocument) (string, error) {
	day, err := dayFor(doc, a.DateKey)
	if err != nil {
		return "", err
	}
	_, msg := record.ApplyAddSlot(day)
	return msg, nil
}

// UpdateActivityText sets a slot's text, creating the slot when missing.
type UpdateActivityText struct {
	DateKey string
	TimeKey string
	Text    string
}

func (UpdateActivityText) Name() string { return "update-activity-text" }

func (a UpdateActivityText) Apply(doc *record.UserDocument) (string, error) {
	day, err := dayFor(doc, a.DateKey)
	if err != nil {
		return "", err
	}
	return record.ApplyUpdateActivityText(day, a.TimeKey, a.Text), nil
}

// UpdateTime renames a slot's time range.
type UpdateTime struct {
	DateKey string
	OldKey  string
	NewKey  string
}

func (UpdateTime) Name() string { return "update-time" }

func (a UpdateTime) Apply(doc *record.UserDocument) (string, error) {
	day, err := dayFor(doc, a.DateKey)
	if err != nil {
		return "", err
	}
	return record.ApplyUpdateTime(day, a.OldKey, a.NewKey)
}

// DeleteSlot removes one slot from a day.
type DeleteSlot struct {
	DateKey string
	TimeKey string
}

func (DeleteSlot) Name() string { return "delete-slot" }

func (a DeleteSlot) Apply(doc *record.UserDocument) (string, error) {
	day, err := dayFor(doc, a.DateKey)
	if err != nil {
		return "", err
	}
	return record.ApplyDeleteSlot(day, a.TimeKey)
}

// ReorderDay rewrites a day's slot ordering.
type ReorderDay struct {
	DateKey     string
	OrderedKeys []string
}

func (ReorderDay) Name() string { return "reorder-day" }

func (a ReorderDay) Apply(doc *record.UserDocument) (string, error) {
	day, err := dayFor(doc, a.DateKey)
	if err != nil {
		return "", err
	}
	return record.ReorderSlots(day, a.OrderedKeys)
}

// ClearDay empties a day's slots and leaves the tombstone.
type ClearDay struct {
	DateKey string
}

func (ClearDay) Name() string { return "clear-day" }

func (a ClearDay) Apply(doc *record.UserDocument) (string, error) {
	day, err := dayFor(doc, a.DateKey)
	if err != nil {
		return "", err
	}
	return record.ApplyClearDay(day), nil
}

// LogLeave records a leave entry on a day. The type must exist in the
// catalog.
type LogLeave struct {
	DateKey string
	TypeID  string
	DayType record.DayType
}

func (LogLeave) Name() string { return "log-leave" }

func (a LogLeave) Apply(doc *record.UserDocument) (string, error) {
	if _, ok := doc.LeaveTypeByID(a.TypeID); !ok {
		return "", record.Validationf("unknown leave type %q", a.TypeID)
	}
	day, err := dayFor(doc, a.DateKey)
	if err != nil {
		return "", err
	}
	return record.ApplyLeave(day, a.TypeID, a.DayType)
}

// RemoveLeave deletes a day's leave entry.
type RemoveLeave struct {
	DateKey string
}

func (RemoveLeave) Name() string { return "remove-leave" }

func (a RemoveLeave) Apply(doc *record.UserDocument) (string, error) {
	day, err := dayFor(doc, a.DateKey)
	if err != nil {
		return "", err
	}
	return record.RemoveLeave(day)
}

// UpsertLeaveType adds or replaces a catalog entry.
type UpsertLeaveType struct {
	LeaveType record.LeaveType
}

func (UpsertLeaveType) Name() string { return "upsert-leave-type" }

func (a UpsertLeaveType) Apply(doc *record.UserDocument) (string, error) {
	if a.LeaveType.ID == "" || a.LeaveType.Name == "" {
		return "", record.Validationf("leave type needs an id and a name")
	}
	if a.LeaveType.TotalDays < 0 {
		return "", record.Validationf("total days cannot be negative")
	}
	for i, lt := range doc.LeaveTypes {
		if lt.ID == a.LeaveType.ID {
			doc.LeaveTypes[i] = a.LeaveType
			return "Leave type updated", nil
		}
	}
	doc.LeaveTypes = append(doc.LeaveTypes, a.LeaveType)
	return "Leave type added", nil
}

// HideLeaveType soft-hides a catalog entry for one year and strips its
// logged entries from that year. The catalog entry itself survives so other
// years keep rendering.
type HideLeaveType struct {
	Year   string
	TypeID string
}

func (HideLeaveType) Name() string { return "hide-leave-type" }

func (a HideLeaveType) Apply(doc *record.UserDocument) (string, error) {
	if _, ok := doc.LeaveTypeByID(a.TypeID); !ok {
		return "", record.Validationf("unknown leave type %q", a.TypeID)
	}
	year := doc.Year(a.Year)
	override := year.LeaveOverrides[a.TypeID]
	override.Hidden = true
	year.LeaveOverrides[a.TypeID] = override
	record.StripLeaveType(year, a.TypeID)
	return "Leave type hidden for " + a.Year, nil
}

// SetLeaveOverride adjusts a leave type's entitlement for one year. A nil
// TotalDays clears the adjustment back to the catalog default.
type SetLeaveOverride struct {
	Year      string
	TypeID    string
	TotalDays *float64
}

func (SetLeaveOverride) Name() string { return "set-leave-override" }

func (a SetLeaveOverride) Apply(doc *record.UserDocument) (string, error) {
	if _, ok := doc.LeaveTypeByID(a.TypeID); !ok {
		return "", record.Validationf("unknown leave type %q", a.TypeID)
	}
	if a.TotalDays != nil && *a.TotalDays < 0 {
		return "", record.Validationf("total days cannot be negative")
	}

	year := doc.Year(a.Year)
	override := year.LeaveOverrides[a.TypeID]
	override.TotalDays = a.TotalDays
	if override.TotalDays == nil && !override.Hidden {
		delete(year.LeaveOverrides, a.TypeID)
		return "Override cleared", nil
	}
	year.LeaveOverrides[a.TypeID] = override
	return "Override saved", nil
}
