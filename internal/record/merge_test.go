package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeUserDocuments(t *testing.T) {
	cloud := NewUserDocument()
	cloud.LeaveTypes = []LeaveType{{ID: "annual", Name: "Annual", TotalDays: 20}}
	cloud.Year("2025").Day("2025-02-01").Note = "cloud note"
	cloud.Year("2025").Day("2025-02-02").Note = "cloud only"

	guest := NewUserDocument()
	guest.LeaveTypes = []LeaveType{
		{ID: "annual", Name: "Annual (guest)", TotalDays: 15},
		{ID: "comp", Name: "Comp Time", TotalDays: 5},
	}
	guest.Year("2025").Day("2025-02-01").Note = "guest note"
	guest.Year("2025").Day("2025-02-03").Note = "guest only"
	guest.Year("2024").Day("2024-12-31").Note = "old year"

	merged := MergeUserDocuments(cloud, guest)

	t.Run("cloud wins on conflicting days", func(t *testing.T) {
		assert.Equal(t, "cloud note", merged.Year("2025").Day("2025-02-01").Note)
	})

	t.Run("union of days and years", func(t *testing.T) {
		assert.Equal(t, "cloud only", merged.Year("2025").Day("2025-02-02").Note)
		assert.Equal(t, "guest only", merged.Year("2025").Day("2025-02-03").Note)
		assert.Equal(t, "old year", merged.Year("2024").Day("2024-12-31").Note)
	})

	t.Run("cloud wins on catalog conflicts, guest additions kept", func(t *testing.T) {
		require.Len(t, merged.LeaveTypes, 2)
		annual, ok := merged.LeaveTypeByID("annual")
		require.True(t, ok)
		assert.Equal(t, "Annual", annual.Name)
		assert.Equal(t, 20.0, annual.TotalDays)
		_, ok = merged.LeaveTypeByID("comp")
		assert.True(t, ok)
	})

	t.Run("inputs untouched", func(t *testing.T) {
		assert.NotContains(t, cloud.YearlyData, "2024")
		assert.Len(t, guest.LeaveTypes, 2)

		merged.Year("2025").Day("2025-02-01").Note = "mutated"
		assert.Equal(t, "cloud note", cloud.Year("2025").Day("2025-02-01").Note)
		assert.Equal(t, "guest note", guest.Year("2025").Day("2025-02-01").Note)
	})
}

func TestMergeUserDocuments_Overrides(t *testing.T) {
	ten, twelve := 10.0, 12.0

	cloud := NewUserDocument()
	cloud.Year("2025").LeaveOverrides["annual"] = LeaveOverride{TotalDays: &ten}

	guest := NewUserDocument()
	guest.Year("2025").LeaveOverrides["annual"] = LeaveOverride{Hidden: true}
	guest.Year("2025").LeaveOverrides["sick"] = LeaveOverride{TotalDays: &twelve}

	merged := MergeUserDocuments(cloud, guest)

	assert.Equal(t, 10.0, *merged.Year("2025").LeaveOverrides["annual"].TotalDays)
	assert.False(t, merged.Year("2025").LeaveOverrides["annual"].Hidden)
	assert.Equal(t, 12.0, *merged.Year("2025").LeaveOverrides["sick"].TotalDays)

	// The merged copy must not share the guest's pointer.
	*guest.Year("2025").LeaveOverrides["sick"].TotalDays = 0
	assert.Equal(t, 12.0, *merged.Year("2025").LeaveOverrides["sick"].TotalDays)
}

func TestMergeUserDocuments_EmptyGuest(t *testing.T) {
	cloud := NewUserDocument()
	cloud.Year("2025").Day("2025-01-01").Note = "only"

	merged := MergeUserDocuments(cloud, NewUserDocument())

	assert.Equal(t, cloud.YearlyData, merged.YearlyData)
}
