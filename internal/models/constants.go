package models

const (
	PriorityMustDo     = "must-do"
	PriorityShouldDo   = "should-do"
	PriorityNiceToHave = "nice-to-have"
)

const (
	TaskStatusTodo       = "todo"
	TaskStatusInProgress = "in-progress"
	TaskStatusDone       = "done"
	TaskStatusDropped    = "dropped"
)

const (
	EnergyLow    = "low"
	EnergyMedium = "medium"
	EnergyHigh   = "high"
)

const (
	CategoryMustDo = "must-do"
	CategoryWantTo = "want-to"
	CategoryHealth = "health"
)

// SyncMetadata.SyncStatus values.
const (
	SyncStatusSynced  = "synced"
	SyncStatusPending = "pending"
	SyncStatusFailed  = "failed"
)

// SyncQueueEntry.Status values.
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusFailed     = "failed"
	QueueStatusCompleted  = "completed"
)

const (
	OperationCreate   = "create"
	OperationUpdate   = "update"
	OperationComplete = "complete"
	OperationDelete   = "delete"
	OperationImport   = "import"
	OperationConflict = "conflict"
)

const EntityTask = "task"

// SyncLogEntry.Status values.
const (
	LogStatusSuccess = "success"
	LogStatusFailure = "failure"
)

const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
	OutcomePending   = "pending"
)

const ProviderGoogle = "google"

const (
	// DefaultEstimatedMinutes is used when a task carries no estimate.
	DefaultEstimatedMinutes = 30

	// DefaultQueueBatchSize bounds one drain pass.
	DefaultQueueBatchSize = 50
)

// PriorityRank orders priorities, must-do first. Unknown priorities sort last.
func PriorityRank(priority string) int {
	switch priority {
	case PriorityMustDo:
		return 0
	case PriorityShouldDo:
		return 1
	case PriorityNiceToHave:
		return 2
	default:
		return 3
	}
}

func ValidPriority(priority string) bool {
	return PriorityRank(priority) < 3
}

func ValidTaskStatus(status string) bool {
	switch status {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusDropped:
		return true
	}
	return false
}

func ValidEnergy(energy string) bool {
	switch energy {
	case EnergyLow, EnergyMedium, EnergyHigh:
		return true
	}
	return false
}
