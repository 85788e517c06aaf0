package record

// MergeUserDocuments merges guest (offline) data into cloud data after a
// sign-in. Cloud wins on every conflict: a day present in both keeps the
// cloud version, a catalog id present in both keeps the cloud entry. The
// result is a new document; neither input is mutated.
func MergeUserDocuments(cloud, guest *UserDocument) *UserDocument {
	out := cloud.Clone()

	for year, guestYear := range guest.YearlyData {
		cloudYear, ok := out.YearlyData[year]
		if !ok {
			out.YearlyData[year] = guestYear.Clone()
			continue
		}
		for dateKey, day := range guestYear.Activities {
			if _, exists := cloudYear.Activities[dateKey]; !exists {
				cloudYear.Activities[dateKey] = day.Clone()
			}
		}
		for typeID, override := range guestYear.LeaveOverrides {
			if _, exists := cloudYear.LeaveOverrides[typeID]; !exists {
				if override.TotalDays != nil {
					total := *override.TotalDays
					override.TotalDays = &total
				}
				cloudYear.LeaveOverrides[typeID] = override
			}
		}
	}

	for _, lt := range guest.LeaveTypes {
		if _, exists := out.LeaveTypeByID(lt.ID); !exists {
			out.LeaveTypes = append(out.LeaveTypes, lt)
		}
	}

	return out
}
