package util

import (
	"time"

	"github.com/harrisonrobin/weworkmcp/pkg/model"
)

// DateLayout is the calendar-date format used for every date column.
const DateLayout = "2006-01-02"

// ConvertTimestamp formats an epoch-seconds value as a local calendar date.
// It reports false for null, zero, empty or non-integer input.
func ConvertTimestamp(ts any) (string, bool) {
	return ConvertTimestampIn(ts, time.Local)
}

// ConvertTimestampIn is ConvertTimestamp for an explicit location.
func ConvertTimestampIn(ts any, loc *time.Location) (string, bool) {
	v := model.Of(ts)
	if !v.Truthy() {
		return "", false
	}
	n, ok := v.Int()
	if !ok || n == 0 {
		return "", false
	}
	return time.Unix(n, 0).In(loc).Format(DateLayout), true
}
