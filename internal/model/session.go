package model

import "time"

// TaskStatus mirrors the agent's todo-list states.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// Task is one entry in the agent's current task list.
type Task struct {
	Content string     `json:"content"`
	Status  TaskStatus `json:"status"`
}

// SessionProgress is the live-status record shown on the watch. Last write
// wins; each hook update overwrites the record wholesale. Short TTL so a
// crashed hook doesn't leave a stuck progress bar.
type SessionProgress struct {
	PairingID       string    `json:"pairingId"`
	CurrentTask     string    `json:"currentTask,omitempty"`
	CurrentActivity string    `json:"currentActivity,omitempty"`
	PercentComplete float64   `json:"percentComplete"`
	CompletedCount  int       `json:"completedCount"`
	TotalCount      int       `json:"totalCount"`
	Tasks           []Task    `json:"tasks,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// InterruptAction is a watch-originated control signal for the session.
type InterruptAction string

const (
	InterruptStop   InterruptAction = "stop"
	InterruptResume InterruptAction = "resume"
	InterruptClear  InterruptAction = "clear"
)

// IsValid reports whether the action is a known value.
func (a InterruptAction) IsValid() bool {
	switch a {
	case InterruptStop, InterruptResume, InterruptClear:
		return true
	}
	return false
}

// SessionInterrupt is the advisory pause flag for a session. The hook polls
// it between tool invocations; it is cooperative, never preemptive.
type SessionInterrupt struct {
	PairingID   string          `json:"pairingId"`
	Interrupted bool            `json:"interrupted"`
	Action      InterruptAction `json:"action"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
