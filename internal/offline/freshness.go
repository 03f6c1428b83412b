package offline

import (
	"encoding/json"
	"fmt"
	"time"
)

// DataFreshness pairs cached data with its age.
type DataFreshness struct {
	Data        json.RawMessage `json:"data"`
	LastUpdated time.Time       `json:"lastUpdated"`
	IsStale     bool            `json:"isStale"`
	TimeAgoText string          `json:"timeAgoText"`
}

func NewDataFreshness(data json.RawMessage, updated time.Time, ttl time.Duration, now time.Time) DataFreshness {
	return DataFreshness{
		Data:        data,
		LastUpdated: updated,
		IsStale:     IsDataStale(updated, ttl, now),
		TimeAgoText: TimeAgoText(updated, now),
	}
}

// IsDataStale reports whether ts is older than ttl. A zero ttl is never
// stale.
func IsDataStale(ts time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(ts) > ttl
}

// TimeAgoText renders the age of ts as "just now", "5 mins ago", "2 hours
// ago" or "3 days ago", and as a date after a week.
func TimeAgoText(ts, now time.Time) string {
	diff := now.Sub(ts)
	secs := int(diff / time.Second)
	mins := secs / 60
	hours := mins / 60
	days := hours / 24

	switch {
	case secs < 60:
		return "just now"
	case mins < 60:
		return plural(mins, "min")
	case hours < 24:
		return plural(hours, "hour")
	case days < 7:
		return plural(days, "day")
	}
	return ts.Format("2006-01-02")
}

func plural(n int, unit string) string {
	if n > 1 {
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}
