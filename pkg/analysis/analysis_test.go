package analysis

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/weworkmcp/pkg/model"
)

func decode(t *testing.T, s string) model.Value {
	t.Helper()
	var v model.Value
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func newTestAnalyzer() (*Analyzer, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	a := NewAnalyzer(logger)
	a.Location = time.UTC
	return a, hook
}

func TestFlattenTaskStatus(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"done", `{"name": "a", "complete": "100.00"}`, model.StatusDone},
		{"done requires the exact string", `{"name": "a", "complete": 100}`, model.StatusInProgress},
		{"in progress", `{"name": "a", "complete": "40.00"}`, model.StatusInProgress},
		{"failed wins over complete", `{"name": "a", "complete": "100.00", "data": {"failed_reason": {"reason": "blocked"}}}`, model.StatusFailed},
		{"failed reason as string", `{"name": "a", "data": {"failed_reason": "no budget"}}`, model.StatusFailed},
		{"empty failed reason", `{"name": "a", "data": {"failed_reason": ""}}`, model.StatusInProgress},
		{"failed reason wrong type", `{"name": "a", "data": {"failed_reason": 3}}`, model.StatusInProgress},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec, err := FlattenTask(decode(t, c.raw), false, time.UTC)
			require.NoError(t, err)
			assert.Equal(t, c.want, rec.Status)
		})
	}
}

func TestFlattenTaskFields(t *testing.T) {
	raw := decode(t, `{
		"id": "t-1",
		"name": "Build API",
		"username": "lan",
		"tasklist": {"name": "Backend"},
		"followers": [{"username": "an"}, {"username": "binh"}],
		"content": "<p style=\"color:red\">Do <strong>it</strong></p><ul><li>fast</li></ul>",
		"result": {"content": "shipped"},
		"has_deadline": "1",
		"deadline": "1700000000",
		"completed_time": "1700086400",
		"start_time": 1699900000,
		"metatype": "task"
	}`)
	rec, err := FlattenTask(raw, false, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, "t-1", rec.Key)
	assert.Equal(t, "Backend", rec.TaskType)
	assert.Equal(t, "Build API", rec.TaskName)
	assert.Equal(t, "", rec.SubtaskName)
	assert.Equal(t, "lan", rec.Assignee)
	assert.Equal(t, "an, binh", rec.Followers)
	assert.Equal(t, "Do it - fast", rec.Description)
	assert.Equal(t, "shipped", rec.Result)
	assert.Equal(t, "2023-11-14", rec.Deadline)
	assert.Equal(t, "2023-11-15", rec.CompletedDate)
	assert.Equal(t, "2023-11-13", rec.StartDate)
	assert.Equal(t, "task", rec.Metatype)
}

func TestFlattenTaskGuards(t *testing.T) {
	rec, err := FlattenTask(decode(t, `{"name": "x", "has_deadline": "0", "deadline": "1700000000", "completed_time": "0"}`), false, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "", rec.Deadline)
	assert.Equal(t, "", rec.CompletedDate)

	rec, err = FlattenTask(decode(t, `{"name": "x", "has_deadline": "yes", "completed_time": "soon", "tasklist": "Backend", "result": "ok"}`), false, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "", rec.Deadline)
	assert.Equal(t, "", rec.CompletedDate)
	assert.Equal(t, "", rec.TaskType)
	assert.Equal(t, "", rec.Result)
	assert.Equal(t, "", rec.Followers)
}

func TestFlattenSubtask(t *testing.T) {
	rec, err := FlattenTask(decode(t, `{"name": "Write tests", "origin_export": {"name": "Build API"}}`), true, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "Build API", rec.TaskName)
	assert.Equal(t, "Write tests", rec.SubtaskName)
	assert.Equal(t, "Build API/Write tests", rec.Key)

	rec, err = FlattenTask(decode(t, `{"name": "Orphan", "origin_export": null}`), true, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "", rec.TaskName)
	assert.Equal(t, "Orphan", rec.SubtaskName)
}

func TestFlattenTaskSkips(t *testing.T) {
	_, err := FlattenTask(decode(t, `"just a string"`), false, time.UTC)
	assert.ErrorIs(t, err, ErrSkipNotObject)

	_, err = FlattenTask(decode(t, `{"name": "x", "followers": [null]}`), false, time.UTC)
	assert.ErrorIs(t, err, ErrSkipMalformedFollowers)

	_, err = FlattenTask(decode(t, `{"name": "x", "followers": "lan"}`), false, time.UTC)
	assert.ErrorIs(t, err, ErrSkipMalformedFollowers)
}

func TestAnalyzeTasksEmpty(t *testing.T) {
	a, _ := newTestAnalyzer()
	for _, payload := range []string{`null`, `{}`, `{"tasks": [], "subtasks": []}`, `[1, 2]`, `{"tasks": "nope"}`} {
		table := a.AnalyzeTasks(decode(t, payload))
		assert.True(t, table.Empty(), "payload %s", payload)
		assert.Empty(t, table.Records())
	}
}

func TestAnalyzeTasksOrderingAndPruning(t *testing.T) {
	a, hook := newTestAnalyzer()
	table := a.AnalyzeTasks(decode(t, `{
		"tasks": [
			{"name": "  Zeta  ", "username": "lan", "complete": "100.00"},
			{"name": "Alpha", "username": "an"},
			42
		],
		"subtasks": [
			{"name": "Alpha step", "origin_export": {"name": "Alpha"}, "username": "binh"}
		]
	}`))

	require.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"Alpha", "Alpha", "Zeta"}, table.Column(model.ColTaskName))
	assert.Equal(t, []string{"", "Alpha step", ""}, table.Column(model.ColSubtaskName))

	assert.Equal(t, []string{model.ColTaskName, model.ColSubtaskName, model.ColAssignee, model.ColStatus}, table.Columns)
	assert.False(t, table.HasColumn(model.ColDeadline))
	assert.Nil(t, table.Column(model.ColDeadline))

	records := table.Records()
	assert.Equal(t, map[string]string{
		model.ColTaskName:    "Zeta",
		model.ColSubtaskName: "",
		model.ColAssignee:    "lan",
		model.ColStatus:      model.StatusDone,
	}, records[2])

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "skipping task record", hook.LastEntry().Message)
}

func TestAnalyzeTasksOneTaskOneSubtask(t *testing.T) {
	a, _ := newTestAnalyzer()
	table := a.AnalyzeTasks(decode(t, `{
		"tasks": [{"name": "Plan"}],
		"subtasks": [{"name": "Draft", "origin_export": {"name": "Plan"}}]
	}`))
	require.Equal(t, 2, table.Len())
	assert.Equal(t, "", table.Rows[0].SubtaskName)
	assert.Equal(t, "Draft", table.Rows[1].SubtaskName)
}

func TestTableMarshalJSON(t *testing.T) {
	table := BuildTable([]model.TaskRecord{{TaskName: "A", Status: model.StatusDone}})
	out, err := json.Marshal(table)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"task_name": "A", "status": "Done"}]`, string(out))
}

func TestComputeStatistics(t *testing.T) {
	stats := ComputeStatistics(&Table{})
	assert.Equal(t, 0, stats.TotalTasks)
	assert.Equal(t, 0.0, stats.CompletionRate)
	assert.Empty(t, stats.StatusBreakdown)

	stats = ComputeStatistics(nil)
	assert.Equal(t, 0.0, stats.CompletionRate)

	table := BuildTable([]model.TaskRecord{
		{TaskName: "a", Assignee: "lan", TaskType: "Dev", Status: model.StatusDone},
		{TaskName: "b", Assignee: "lan", TaskType: "Dev", Status: model.StatusDone},
		{TaskName: "c", Assignee: "an", TaskType: "QA", Status: model.StatusDone},
		{TaskName: "d", Assignee: "an", Status: model.StatusFailed},
	})
	stats = ComputeStatistics(table)
	assert.Equal(t, 4, stats.TotalTasks)
	assert.Equal(t, 75.0, stats.CompletionRate)
	assert.Equal(t, map[string]int{model.StatusDone: 3, model.StatusFailed: 1}, stats.StatusBreakdown)
	assert.Equal(t, map[string]int{"lan": 2, "an": 2}, stats.AssigneeBreakdown)
	assert.Equal(t, map[string]int{"Dev": 2, "QA": 1, "": 1}, stats.TaskTypeBreakdown)
	assert.Equal(t, StatusSummary{Completed: 3, Failed: 1}, stats.Summary)
}

func TestCompletionRateRounding(t *testing.T) {
	assert.Equal(t, 33.33, CompletionRate(1, 3))
	assert.Equal(t, 66.67, CompletionRate(2, 3))
	assert.Equal(t, 0.0, CompletionRate(5, 0))
}
