package record

import "encoding/json"

// TeamRole is a user's role within their team.
type TeamRole string

const (
	TeamRoleOwner  TeamRole = "owner"
	TeamRoleMember TeamRole = "member"
)

// UserDocument is the root persisted shape for one user. Unknown top-level
// keys are preserved in Extra across decode/encode so writes performed by
// this core never clobber fields owned by other features.
type UserDocument struct {
	YearlyData  map[string]*YearRecord
	LeaveTypes  []LeaveType
	TeamID      string
	TeamRole    TeamRole
	LastUpdated int64

	Extra map[string]json.RawMessage
}

// NewUserDocument returns an empty document.
func NewUserDocument() *UserDocument {
	return &UserDocument{
		YearlyData: make(map[string]*YearRecord),
		LeaveTypes: []LeaveType{},
	}
}

// Year returns the year record, creating it lazily on first write.
func (d *UserDocument) Year(year string) *YearRecord {
	if y, ok := d.YearlyData[year]; ok {
		return y
	}
	y := NewYearRecord()
	if d.YearlyData == nil {
		d.YearlyData = make(map[string]*YearRecord)
	}
	d.YearlyData[year] = y
	return y
}

// LeaveTypeByID looks up a catalog entry.
func (d *UserDocument) LeaveTypeByID(id string) (LeaveType, bool) {
	for _, lt := range d.LeaveTypes {
		if lt.ID == id {
			return lt, true
		}
	}
	return LeaveType{}, false
}

// Clone returns a deep copy of the document.
func (d *UserDocument) Clone() *UserDocument {
	out := &UserDocument{
		YearlyData:  CloneYearlyData(d.YearlyData),
		LeaveTypes:  make([]LeaveType, len(d.LeaveTypes)),
		TeamID:      d.TeamID,
		TeamRole:    d.TeamRole,
		LastUpdated: d.LastUpdated,
	}
	copy(out.LeaveTypes, d.LeaveTypes)
	if d.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(d.Extra))
		for k, v := range d.Extra {
			raw := make(json.RawMessage, len(v))
			copy(raw, v)
			out.Extra[k] = raw
		}
	}
	return out
}

// CloneYearlyData deep-copies a yearly-data map.
func CloneYearlyData(in map[string]*YearRecord) map[string]*YearRecord {
	out := make(map[string]*YearRecord, len(in))
	for year, rec := range in {
		out[year] = rec.Clone()
	}
	return out
}

// MarshalJSON writes the document including preserved unknown keys.
func (d *UserDocument) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(d.Extra)+5)
	for k, v := range d.Extra {
		obj[k] = v
	}
	obj["yearlyData"] = d.YearlyData
	obj["leaveTypes"] = d.LeaveTypes
	if d.TeamID != "" {
		obj["teamId"] = d.TeamID
	}
	if d.TeamRole != "" {
		obj["teamRole"] = d.TeamRole
	}
	if d.LastUpdated != 0 {
		obj["lastUpdated"] = d.LastUpdated
	}
	return json.Marshal(obj)
}

// UnmarshalJSON reads the document, stashing unknown top-level keys in Extra.
func (d *UserDocument) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	*d = UserDocument{
		YearlyData: make(map[string]*YearRecord),
		LeaveTypes: []LeaveType{},
	}

	for key, raw := range obj {
		switch key {
		case "yearlyData":
			if err := json.Unmarshal(raw, &d.YearlyData); err != nil {
				return err
			}
		case "leaveTypes":
			if err := json.Unmarshal(raw, &d.LeaveTypes); err != nil {
				return err
			}
		case "teamId":
			if err := unmarshalNullable(raw, &d.TeamID); err != nil {
				return err
			}
		case "teamRole":
			var role string
			if err := unmarshalNullable(raw, &role); err != nil {
				return err
			}
			d.TeamRole = TeamRole(role)
		case "lastUpdated":
			if err := json.Unmarshal(raw, &d.LastUpdated); err != nil {
				return err
			}
		default:
			if d.Extra == nil {
				d.Extra = make(map[string]json.RawMessage)
			}
			d.Extra[key] = raw
		}
	}
	return nil
}

// unmarshalNullable treats JSON null as the zero value; team fields are
// written as null when a user leaves a team.
func unmarshalNullable(raw json.RawMessage, dst *string) error {
	if string(raw) == "null" {
		*dst = ""
		return nil
	}
	return json.Unmarshal(raw, dst)
}
