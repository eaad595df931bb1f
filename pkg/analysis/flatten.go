package analysis

import (
	"errors"
	"strings"
	"time"

	"github.com/harrisonrobin/weworkmcp/pkg/model"
	"github.com/harrisonrobin/weworkmcp/pkg/util"
)

// completeMarker is the literal progress value upstream sends for a finished task.
const completeMarker = "100.00"

// Reasons a raw record is skipped instead of becoming a row.
var (
	ErrSkipNotObject          = errors.New("record is not an object")
	ErrSkipMalformedFollowers = errors.New("followers is not a list of objects")
)

// FlattenTask maps one raw task or subtask onto a TaskRecord, converting dates in loc.
// A non-nil error is a skip reason: the record cannot be represented and must be dropped.
func FlattenTask(raw model.Value, isSubtask bool, loc *time.Location) (model.TaskRecord, error) {
	if !raw.IsMap() {
		return model.TaskRecord{}, ErrSkipNotObject
	}

	followers, err := joinFollowers(raw.Get("followers"))
	if err != nil {
		return model.TaskRecord{}, err
	}

	rec := model.TaskRecord{
		Assignee:    raw.Get("username").String(),
		Followers:   followers,
		Description: util.CleanHTMLContent(raw.Get("content").Raw()),
		Metatype:    raw.Get("metatype").String(),
	}

	if tasklist := raw.Get("tasklist"); tasklist.IsMap() {
		rec.TaskType = tasklist.Get("name").String()
	}

	name := raw.Get("name").String()
	if isSubtask {
		if origin := raw.Get("origin_export"); origin.IsMap() {
			rec.TaskName = origin.Get("name").String()
		}
		rec.SubtaskName = name
	} else {
		rec.TaskName = name
	}

	if result := raw.Get("result"); result.IsMap() {
		rec.Result = result.Get("content").String()
	}
	rec.FailedReason = failedReason(raw.Get("data"))
	rec.Status = classify(rec.FailedReason, raw.Get("complete"))

	if flag, ok := raw.Get("has_deadline").Int(); ok && flag == 1 {
		rec.Deadline, _ = util.ConvertTimestampIn(raw.Get("deadline").Raw(), loc)
	}
	if completed := raw.Get("completed_time"); completed.Truthy() {
		if n, ok := completed.Int(); ok && n != 0 {
			rec.CompletedDate, _ = util.ConvertTimestampIn(completed.Raw(), loc)
		}
	}
	rec.StartDate, _ = util.ConvertTimestampIn(raw.Get("start_time").Raw(), loc)

	rec.Key = recordKey(raw, rec)
	return rec, nil
}

func classify(failedReason string, complete model.Value) string {
	if failedReason != "" {
		return model.StatusFailed
	}
	if s, ok := complete.Str(); ok && s == completeMarker {
		return model.StatusDone
	}
	return model.StatusInProgress
}

// failedReason reads data.failed_reason, which upstream sends either as {"reason": "..."}
// or as a bare string.
func failedReason(data model.Value) string {
	fr := data.Get("failed_reason")
	if fr.IsMap() {
		return fr.Get("reason").String()
	}
	if s, ok := fr.Str(); ok {
		return s
	}
	return ""
}

func joinFollowers(v model.Value) (string, error) {
	if !v.Truthy() {
		return "", nil
	}
	items, ok := v.List()
	if !ok {
		return "", ErrSkipMalformedFollowers
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if !item.IsMap() {
			return "", ErrSkipMalformedFollowers
		}
		names = append(names, item.Get("username").String())
	}
	return strings.Join(names, ", "), nil
}

func recordKey(raw model.Value, rec model.TaskRecord) string {
	if id := raw.Get("id").String(); id != "" {
		return id
	}
	if rec.SubtaskName != "" {
		return rec.TaskName + "/" + rec.SubtaskName
	}
	return rec.TaskName
}
