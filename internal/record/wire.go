package record

import "encoding/json"

// Reserved keys of the flat per-day wire object. Everything else in the
// object is a slot key.
const (
	wireKeyNote        = "note"
	wireKeyLeave       = "leave"
	wireKeyUserCleared = "_userCleared"
)

// MarshalJSON writes the day in its flat wire shape: reserved keys plus one
// entry per slot, keyed by the time-range string.
func (d *Day) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(d.Slots)+3)
	if d.Note != "" {
		obj[wireKeyNote] = d.Note
	}
	if d.Leave != nil {
		obj[wireKeyLeave] = d.Leave
	}
	if d.UserCleared {
		obj[wireKeyUserCleared] = true
	}
	for key, slot := range d.Slots {
		obj[key] = slot
	}
	return json.Marshal(obj)
}

// UnmarshalJSON reads the flat wire shape back into the tagged structure.
func (d *Day) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	*d = Day{Slots: make(map[string]TimeSlot, len(obj))}

	for key, raw := range obj {
		switch key {
		case wireKeyNote:
			if err := json.Unmarshal(raw, &d.Note); err != nil {
				return err
			}
		case wireKeyLeave:
			leave := &LeaveEntry{}
			if err := json.Unmarshal(raw, leave); err != nil {
				return err
			}
			d.Leave = leave
		case wireKeyUserCleared:
			if err := json.Unmarshal(raw, &d.UserCleared); err != nil {
				return err
			}
		default:
			var slot TimeSlot
			if err := json.Unmarshal(raw, &slot); err != nil {
				return err
			}
			d.Slots[key] = slot
		}
	}
	return nil
}
