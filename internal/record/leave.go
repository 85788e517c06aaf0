package record

// ApplyLeave logs a leave entry on the day, replacing any existing one.
func ApplyLeave(day *Day, typeID string, dayType DayType) (string, error) {
	if typeID == "" {
		return "", Validationf("leave type is required")
	}
	if dayType != DayTypeFull && dayType != DayTypeHalf {
		return "", Validationf("invalid day type %q", dayType)
	}
	day.Leave = &LeaveEntry{TypeID: typeID, DayType: dayType}
	return "Leave logged", nil
}

// RemoveLeave deletes the day's leave entry.
func RemoveLeave(day *Day) (string, error) {
	if day.Leave == nil {
		return "", Validationf("no leave logged on this day")
	}
	day.Leave = nil
	return "Leave removed", nil
}

// StripLeaveType removes all logged entries of the given type from a year.
// Used by the soft-hide path; the global catalog entry stays so history in
// other years remains interpretable. Returns the number of stripped entries.
func StripLeaveType(year *YearRecord, typeID string) int {
	stripped := 0
	for _, day := range year.Activities {
		if day.Leave != nil && day.Leave.TypeID == typeID {
			day.Leave = nil
			stripped++
		}
	}
	return stripped
}

// EffectiveTotal resolves a leave type's entitlement for a year, honoring a
// per-year override when present.
func EffectiveTotal(lt LeaveType, overrides map[string]LeaveOverride) float64 {
	if o, ok := overrides[lt.ID]; ok && o.TotalDays != nil {
		return *o.TotalDays
	}
	return lt.TotalDays
}

// VisibleLeaveTypes filters the catalog by a year's hidden overrides.
func VisibleLeaveTypes(catalog []LeaveType, overrides map[string]LeaveOverride) []LeaveType {
	out := make([]LeaveType, 0, len(catalog))
	for _, lt := range catalog {
		if o, ok := overrides[lt.ID]; ok && o.Hidden {
			continue
		}
		out = append(out, lt)
	}
	return out
}
