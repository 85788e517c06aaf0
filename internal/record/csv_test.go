package record

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *UserDocument {
	doc := NewUserDocument()
	doc.LeaveTypes = []LeaveType{
		{ID: "annual", Name: "Annual Leave", TotalDays: 20, Color: "#4caf50"},
		{ID: "sick", Name: "Sick Leave", TotalDays: 10, Color: "#f44336"},
	}

	y := doc.Year("2025")
	eighteen := 18.0
	y.LeaveOverrides["annual"] = LeaveOverride{TotalDays: &eighteen}
	y.LeaveOverrides["sick"] = LeaveOverride{Hidden: true}

	d := y.Day("2025-03-10")
	d.Note = "Meeting notes, important"
	d.Slots["09:00-10:00"] = TimeSlot{Text: "standup", Order: 0}
	d.Slots["10:00-11:00"] = TimeSlot{Text: "design \"review\"", Order: 1}

	y.Day("2025-03-11").Leave = &LeaveEntry{TypeID: "annual", DayType: DayTypeHalf}
	y.Day("2025-03-12").UserCleared = true

	return doc
}

func TestExportImportRoundTrip(t *testing.T) {
	doc := sampleDocument()

	data, err := ExportCSV(doc)
	require.NoError(t, err)

	back, processed, err := ImportCSV(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, 9, processed)
	assert.Equal(t, doc.LeaveTypes, back.LeaveTypes)
	assert.Equal(t, doc.YearlyData, back.YearlyData)
}

func TestExportCSV_Deterministic(t *testing.T) {
	doc := sampleDocument()

	first, err := ExportCSV(doc)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ExportCSV(doc)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	lines := strings.Split(strings.TrimSpace(string(first)), "\n")
	assert.Equal(t, "Type,Detail1,Detail2,Detail3,Detail4", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "LEAVE_TYPE,annual,"))
	// Commas inside fields survive via quoting.
	assert.Contains(t, string(first), `"Meeting notes, important"`)
}

func TestImportCSV_SkipsMalformedRows(t *testing.T) {
	input := strings.Join([]string{
		"Type,Detail1,Detail2,Detail3,Detail4",
		"NOTE,2025-03-10,valid note,,",
		"NOTE,not-a-date,bad key,,",
		"LEAVE,2025-03-11,annual,quarter,",
		"LEAVE,2025-03-11,annual,full,",
		"ACTIVITY,2025-03-12,09:00,desk,not-a-number",
		"ACTIVITY,2025-03-12,09:00,desk,3",
		"LEAVE_TYPE,,Nameless,5,#fff",
		"BOGUS,a,b,c,d",
		"TRUNCATED,row",
	}, "\n")

	doc, processed, err := ImportCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 3, processed)
	assert.Equal(t, "valid note", doc.Year("2025").Day("2025-03-10").Note)
	assert.Equal(t, &LeaveEntry{TypeID: "annual", DayType: DayTypeFull}, doc.Year("2025").Day("2025-03-11").Leave)
	assert.Equal(t, TimeSlot{Text: "desk", Order: 3}, doc.Year("2025").Day("2025-03-12").Slots["09:00"])
	assert.Empty(t, doc.LeaveTypes)
	assert.NotContains(t, doc.YearlyData, "not-")
}

func TestImportCSV_HeaderOptional(t *testing.T) {
	input := "NOTE,2025-01-01,happy new year,,\n"

	doc, processed, err := ImportCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 1, processed)
	assert.Equal(t, "happy new year", doc.Year("2025").Day("2025-01-01").Note)
}

func TestImportCSV_OverrideWithoutTotal(t *testing.T) {
	input := "LEAVE_OVERRIDE,2025,annual,,true\n"

	doc, processed, err := ImportCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, 1, processed)

	override := doc.Year("2025").LeaveOverrides["annual"]
	assert.Nil(t, override.TotalDays)
	assert.True(t, override.Hidden)
}
