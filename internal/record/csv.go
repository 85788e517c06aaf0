package record

import (
	"bytes"
	"encoding/csv"
	"io"
	"regexp"
	"sort"
	"strconv"
)

// CSV interchange row kinds.
const (
	csvRowLeaveType     = "LEAVE_TYPE"
	csvRowLeaveOverride = "LEAVE_OVERRIDE"
	csvRowNote          = "NOTE"
	csvRowLeave         = "LEAVE"
	csvRowActivity      = "ACTIVITY"
	csvRowUserCleared   = "USER_CLEARED"
)

var csvHeader = []string{"Type", "Detail1", "Detail2", "Detail3", "Detail4"}

var dateKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ExportCSV renders the document in the CSV interchange format. Rows are
// emitted in a deterministic order: catalog, overrides, then per-date data.
func ExportCSV(doc *UserDocument) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, lt := range doc.LeaveTypes {
		row := []string{csvRowLeaveType, lt.ID, lt.Name, formatFloat(lt.TotalDays), lt.Color}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	years := make([]string, 0, len(doc.YearlyData))
	for year := range doc.YearlyData {
		years = append(years, year)
	}
	sort.Strings(years)

	for _, year := range years {
		rec := doc.YearlyData[year]

		typeIDs := make([]string, 0, len(rec.LeaveOverrides))
		for id := range rec.LeaveOverrides {
			typeIDs = append(typeIDs, id)
		}
		sort.Strings(typeIDs)
		for _, id := range typeIDs {
			o := rec.LeaveOverrides[id]
			total := ""
			if o.TotalDays != nil {
				total = formatFloat(*o.TotalDays)
			}
			row := []string{csvRowLeaveOverride, year, id, total, strconv.FormatBool(o.Hidden)}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}

		dateKeys := make([]string, 0, len(rec.Activities))
		for key := range rec.Activities {
			dateKeys = append(dateKeys, key)
		}
		sort.Strings(dateKeys)

		for _, dateKey := range dateKeys {
			day := rec.Activities[dateKey]
			if day.Note != "" {
				if err := w.Write([]string{csvRowNote, dateKey, day.Note, "", ""}); err != nil {
					return nil, err
				}
			}
			if day.Leave != nil {
				row := []string{csvRowLeave, dateKey, day.Leave.TypeID, string(day.Leave.DayType), ""}
				if err := w.Write(row); err != nil {
					return nil, err
				}
			}
			for _, timeKey := range day.SortedSlotKeys() {
				slot := day.Slots[timeKey]
				row := []string{csvRowActivity, dateKey, timeKey, slot.Text, strconv.Itoa(slot.Order)}
				if err := w.Write(row); err != nil {
					return nil, err
				}
			}
			if day.UserCleared {
				if err := w.Write([]string{csvRowUserCleared, dateKey, "", "", ""}); err != nil {
					return nil, err
				}
			}
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// ImportCSV parses the interchange format into a document. Malformed rows
// are skipped, not fatal; the returned count is the number of rows that were
// successfully processed.
func ImportCSV(r io.Reader) (*UserDocument, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	doc := NewUserDocument()
	processed := 0
	first := true

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken line; skip it like any other bad row.
			if _, ok := err.(*csv.ParseError); ok {
				continue
			}
			return nil, processed, err
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == csvHeader[0] {
				continue
			}
		}
		if importRow(doc, row) {
			processed++
		}
	}

	return doc, processed, nil
}

func importRow(doc *UserDocument, row []string) bool {
	if len(row) < 5 {
		return false
	}

	switch row[0] {
	case csvRowLeaveType:
		total, err := strconv.ParseFloat(row[3], 64)
		if row[1] == "" || row[2] == "" || err != nil {
			return false
		}
		doc.LeaveTypes = append(doc.LeaveTypes, LeaveType{
			ID:        row[1],
			Name:      row[2],
			TotalDays: total,
			Color:     row[4],
		})
		return true

	case csvRowLeaveOverride:
		year, typeID := row[1], row[2]
		if len(year) != 4 || typeID == "" {
			return false
		}
		var override LeaveOverride
		if row[3] != "" {
			total, err := strconv.ParseFloat(row[3], 64)
			if err != nil {
				return false
			}
			override.TotalDays = &total
		}
		override.Hidden = row[4] == "true"
		doc.Year(year).LeaveOverrides[typeID] = override
		return true

	case csvRowNote:
		dateKey := row[1]
		if !dateKeyPattern.MatchString(dateKey) {
			return false
		}
		doc.Year(YearOf(dateKey)).Day(dateKey).Note = row[2]
		return true

	case csvRowLeave:
		dateKey, typeID, dayType := row[1], row[2], DayType(row[3])
		if !dateKeyPattern.MatchString(dateKey) || typeID == "" {
			return false
		}
		if dayType != DayTypeFull && dayType != DayTypeHalf {
			return false
		}
		doc.Year(YearOf(dateKey)).Day(dateKey).Leave = &LeaveEntry{TypeID: typeID, DayType: dayType}
		return true

	case csvRowActivity:
		dateKey, timeKey := row[1], row[2]
		if !dateKeyPattern.MatchString(dateKey) || timeKey == "" {
			return false
		}
		order, err := strconv.Atoi(row[4])
		if err != nil {
			return false
		}
		doc.Year(YearOf(dateKey)).Day(dateKey).Slots[timeKey] = TimeSlot{Text: row[3], Order: order}
		return true

	case csvRowUserCleared:
		dateKey := row[1]
		if !dateKeyPattern.MatchString(dateKey) {
			return false
		}
		doc.Year(YearOf(dateKey)).Day(dateKey).UserCleared = true
		return true
	}

	return false
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
