package analysis

import (
	"math"

	"github.com/harrisonrobin/weworkmcp/pkg/model"
)

type StatusSummary struct {
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
}

// Statistics is the aggregate view of an analysis table.
type Statistics struct {
	TotalTasks        int            `json:"total_tasks"`
	StatusBreakdown   map[string]int `json:"task_breakdown"`
	AssigneeBreakdown map[string]int `json:"assignee_breakdown"`
	TaskTypeBreakdown map[string]int `json:"task_type_breakdown"`
	// CompletionRate is the percentage of Done rows, rounded to two decimals.
	CompletionRate float64       `json:"completion_rate"`
	Summary        StatusSummary `json:"summary"`
}

// ComputeStatistics derives counts and the completion rate from t. An empty or nil table
// gives zero counts and a zero rate.
func ComputeStatistics(t *Table) Statistics {
	stats := Statistics{
		TotalTasks:        t.Len(),
		StatusBreakdown:   countValues(t, model.ColStatus),
		AssigneeBreakdown: countValues(t, model.ColAssignee),
		TaskTypeBreakdown: countValues(t, model.ColTaskType),
	}
	stats.Summary = StatusSummary{
		Completed:  stats.StatusBreakdown[model.StatusDone],
		InProgress: stats.StatusBreakdown[model.StatusInProgress],
		Failed:     stats.StatusBreakdown[model.StatusFailed],
	}
	stats.CompletionRate = CompletionRate(stats.Summary.Completed, stats.TotalTasks)
	return stats
}

// CompletionRate returns 100*done/total rounded to two decimals, or 0 when total is 0.
func CompletionRate(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(done) / float64(total) * 100
	return math.Round(rate*100) / 100
}

func countValues(t *Table, column string) map[string]int {
	counts := make(map[string]int)
	for _, v := range t.Column(column) {
		counts[v]++
	}
	return counts
}
