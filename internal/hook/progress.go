package hook

import (
	"github.com/edgeoftrust/watchrelay/internal/model"
)

// BuildProgress converts a TodoWrite task list into the progress record
// shown on the watch. Returns nil when the invocation carries no todos.
func BuildProgress(pairingID string, in *Input) *model.SessionProgress {
	todos := in.ToolInput.Todos
	if len(todos) == 0 {
		return nil
	}

	p := &model.SessionProgress{
		PairingID:  pairingID,
		TotalCount: len(todos),
		Tasks:      make([]model.Task, 0, len(todos)),
	}
	for _, todo := range todos {
		status := model.TaskStatus(todo.Status)
		switch status {
		case model.TaskPending, model.TaskInProgress, model.TaskCompleted:
		default:
			status = model.TaskPending
		}
		p.Tasks = append(p.Tasks, model.Task{Content: todo.Content, Status: status})

		switch status {
		case model.TaskCompleted:
			p.CompletedCount++
		case model.TaskInProgress:
			if p.CurrentTask == "" {
				p.CurrentTask = todo.Content
			}
		}
	}
	p.PercentComplete = float64(p.CompletedCount) / float64(p.TotalCount) * 100
	return p
}
