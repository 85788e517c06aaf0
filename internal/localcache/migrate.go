package localcache

import (
	"encoding/json"
	"regexp"

	"github.com/trackmate/server/internal/record"
)

// The pre-partitioned document kept every day under one flat top-level
// "activities" map. That key now survives decode only as an unknown extra.
const legacyActivitiesKey = "activities"

var legacyDateKey = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// MigrateLegacyLayout moves days from the legacy flat activities map into
// per-year records. Existing per-year data wins on conflict so re-running the
// migration is safe. Returns the number of days moved.
func MigrateLegacyLayout(doc *record.UserDocument) int {
	raw, ok := doc.Extra[legacyActivitiesKey]
	if !ok {
		return 0
	}

	var legacy map[string]*record.Day
	if err := json.Unmarshal(raw, &legacy); err != nil {
		// Not the shape we expect; leave the key alone rather than lose it.
		return 0
	}

	moved := 0
	for dateKey, day := range legacy {
		if !legacyDateKey.MatchString(dateKey) || day == nil {
			continue
		}
		year := doc.Year(record.YearOf(dateKey))
		if _, exists := year.Activities[dateKey]; exists {
			continue
		}
		year.Activities[dateKey] = day
		moved++
	}

	delete(doc.Extra, legacyActivitiesKey)
	return moved
}
