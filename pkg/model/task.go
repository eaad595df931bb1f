package model

// Status classifications derived while flattening a raw task.
const (
	StatusFailed     = "Failed"
	StatusDone       = "Done"
	StatusInProgress = "InProgress"
)

// Column names of the analysis table, in display order.
const (
	ColTaskType      = "task_type"
	ColTaskName      = "task_name"
	ColSubtaskName   = "subtask_name"
	ColAssignee      = "assignee"
	ColFollowers     = "followers"
	ColDescription   = "description"
	ColStatus        = "status"
	ColResult        = "result"
	ColFailedReason  = "failed_reason"
	ColStartDate     = "start_date"
	ColDeadline      = "deadline"
	ColCompletedDate = "completed_date"
	ColMetatype      = "metatype"
)

// Columns is the fixed column set of a TaskRecord.
var Columns = []string{
	ColTaskType,
	ColTaskName,
	ColSubtaskName,
	ColAssignee,
	ColFollowers,
	ColDescription,
	ColStatus,
	ColResult,
	ColFailedReason,
	ColStartDate,
	ColDeadline,
	ColCompletedDate,
	ColMetatype,
}

// TaskRecord is the flat, fixed-shape form of one upstream task or subtask.
// Every field is a string; "" means the upstream value was missing or unusable.
type TaskRecord struct {
	// Key identifies the upstream record (its id, or its names when upstream sent none).
	// It is not an analysis column.
	Key string `json:"-"`

	TaskType      string `json:"task_type"`
	TaskName      string `json:"task_name"`
	SubtaskName   string `json:"subtask_name"`
	Assignee      string `json:"assignee"`
	Followers     string `json:"followers"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	Result        string `json:"result"`
	FailedReason  string `json:"failed_reason"`
	StartDate     string `json:"start_date"`
	Deadline      string `json:"deadline"`
	CompletedDate string `json:"completed_date"`
	Metatype      string `json:"metatype"`
}

// Get returns the cell for a column name, "" for unknown columns.
func (r *TaskRecord) Get(column string) string {
	if p := r.field(column); p != nil {
		return *p
	}
	return ""
}

// Set assigns the cell for a column name. Unknown columns are ignored.
func (r *TaskRecord) Set(column, value string) {
	if p := r.field(column); p != nil {
		*p = value
	}
}

func (r *TaskRecord) field(column string) *string {
	switch column {
	case ColTaskType:
		return &r.TaskType
	case ColTaskName:
		return &r.TaskName
	case ColSubtaskName:
		return &r.SubtaskName
	case ColAssignee:
		return &r.Assignee
	case ColFollowers:
		return &r.Followers
	case ColDescription:
		return &r.Description
	case ColStatus:
		return &r.Status
	case ColResult:
		return &r.Result
	case ColFailedReason:
		return &r.FailedReason
	case ColStartDate:
		return &r.StartDate
	case ColDeadline:
		return &r.Deadline
	case ColCompletedDate:
		return &r.CompletedDate
	case ColMetatype:
		return &r.Metatype
	}
	return nil
}
