package storage

import (
	"regexp"
	"strings"
	"time"
)

// DJI voice recorders embed the recording time in the filename. Two layouts
// are in circulation:
//
//	DJI_13_20250116_110419.m4a
//	DJI_20250607_110648_merged.m4a
var (
	djiNumbered = regexp.MustCompile(`^DJI_\d+_(\d{8})_(\d{6})$`)
	djiSuffixed = regexp.MustCompile(`^DJI_(\d{8})_(\d{6})_\w+$`)
)

// maxRecordingAge rejects embedded dates so old they are almost certainly a
// device clock fault.
const maxRecordingAge = 10 * 365 * 24 * time.Hour

// RecordingTimeFromName extracts the device-embedded recording time from a
// filename. Returns false when the name carries no parseable timestamp or the
// timestamp fails the sanity window (future, or older than ten years).
func RecordingTimeFromName(filename string, now time.Time) (time.Time, bool) {
	base := filename
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}

	var dateStr, timeStr string
	if m := djiNumbered.FindStringSubmatch(base); m != nil {
		dateStr, timeStr = m[1], m[2]
	} else if m := djiSuffixed.FindStringSubmatch(base); m != nil {
		dateStr, timeStr = m[1], m[2]
	} else {
		return time.Time{}, false
	}

	ts, err := time.ParseInLocation("20060102150405", dateStr+timeStr, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	if ts.After(now) || now.Sub(ts) > maxRecordingAge {
		return time.Time{}, false
	}
	return ts, true
}
