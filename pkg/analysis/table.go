package analysis

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harrisonrobin/weworkmcp/pkg/model"
)

// Table is the analysis table: task rows followed by subtask rows, restricted to the
// columns that hold a value in at least one row.
type Table struct {
	Columns []string
	Rows    []model.TaskRecord
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// HasColumn reports whether column survived pruning.
func (t *Table) HasColumn(column string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Column returns every cell of column in row order, or nil if the column was pruned.
func (t *Table) Column(column string) []string {
	if !t.HasColumn(column) {
		return nil
	}
	cells := make([]string, len(t.Rows))
	for i := range t.Rows {
		cells[i] = t.Rows[i].Get(column)
	}
	return cells
}

// Records returns the rows as string-keyed mappings holding only the surviving columns.
func (t *Table) Records() []map[string]string {
	if t == nil {
		return []map[string]string{}
	}
	out := make([]map[string]string, len(t.Rows))
	for i := range t.Rows {
		rec := make(map[string]string, len(t.Columns))
		for _, c := range t.Columns {
			rec[c] = t.Rows[i].Get(c)
		}
		out[i] = rec
	}
	return out
}

func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Records())
}

// Analyzer turns raw project payloads into analysis tables.
type Analyzer struct {
	// Location is the timezone used to render epoch timestamps as dates.
	Location *time.Location
	Logger   logrus.FieldLogger
}

func NewAnalyzer(logger logrus.FieldLogger) *Analyzer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Analyzer{Location: time.Local, Logger: logger}
}

// ParseTasks flattens a raw task list. Records that cannot be flattened are logged and
// dropped; a value that is not a list yields no rows.
func (a *Analyzer) ParseTasks(tasks model.Value, isSubtask bool) []model.TaskRecord {
	items, ok := tasks.List()
	if !ok {
		if tasks.Truthy() {
			a.Logger.WithField("subtasks", isSubtask).Warn("task list is not an array, ignoring")
		}
		return nil
	}

	records := make([]model.TaskRecord, 0, len(items))
	for i, item := range items {
		rec, err := FlattenTask(item, isSubtask, a.Location)
		if err != nil {
			a.Logger.WithFields(logrus.Fields{
				"index":    i,
				"subtasks": isSubtask,
			}).WithError(err).Debug("skipping task record")
			continue
		}
		records = append(records, rec)
	}
	return records
}

// AnalyzeTasks builds the analysis table for a project payload of the form
// {"tasks": [...], "subtasks": [...]}. A null or malformed payload yields an empty table.
func (a *Analyzer) AnalyzeTasks(payload model.Value) *Table {
	if !payload.IsMap() {
		if !payload.IsNull() {
			a.Logger.Warn("project payload is not an object, returning empty analysis")
		}
		return &Table{}
	}

	rows := a.ParseTasks(payload.Get("tasks"), false)
	rows = append(rows, a.ParseTasks(payload.Get("subtasks"), true)...)
	return BuildTable(rows)
}

// BuildTable trims every cell, prunes columns that are empty in every row and sorts rows
// by task name when that column survives. The sort is stable so tasks stay ahead of
// subtasks that share a name.
func BuildTable(rows []model.TaskRecord) *Table {
	if len(rows) == 0 {
		return &Table{}
	}

	for i := range rows {
		for _, c := range model.Columns {
			rows[i].Set(c, strings.TrimSpace(rows[i].Get(c)))
		}
	}

	var columns []string
	for _, c := range model.Columns {
		for i := range rows {
			if rows[i].Get(c) != "" {
				columns = append(columns, c)
				break
			}
		}
	}

	t := &Table{Columns: columns, Rows: rows}
	if t.HasColumn(model.ColTaskName) {
		sort.SliceStable(t.Rows, func(i, j int) bool {
			return t.Rows[i].TaskName < t.Rows[j].TaskName
		})
	}
	return t
}
