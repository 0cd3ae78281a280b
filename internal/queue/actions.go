package queue

import (
	"fmt"

	"github.com/todosync/todosync/internal/task"
)

// Convenience constructors for the common action shapes. Deletes and
// full syncs are enqueued high priority: a delete left behind a dropped
// create or update would resurrect the task on the next pull.

// EnqueueCreate queues a remote create for a locally added task.
func (q *Queue) EnqueueCreate(userID string, t task.Task) (string, error) {
	return q.Enqueue(Action{
		Type:     ActionCreate,
		UserID:   userID,
		Create:   &CreatePayload{Task: t},
		Metadata: Metadata{Description: fmt.Sprintf("Create task %q", t.Title)},
	})
}

// EnqueueUpdate queues a remote update.
func (q *Queue) EnqueueUpdate(userID, taskID string, p UpdatePayload) (string, error) {
	p.TaskID = taskID
	return q.Enqueue(Action{
		Type:     ActionUpdate,
		UserID:   userID,
		Update:   &p,
		Metadata: Metadata{Description: fmt.Sprintf("Update task %s", taskID)},
	})
}

// EnqueueDelete queues a remote delete at high priority.
func (q *Queue) EnqueueDelete(userID, taskID string) (string, error) {
	return q.Enqueue(Action{
		Type:     ActionDelete,
		UserID:   userID,
		Priority: PriorityHigh,
		Delete:   &DeletePayload{TaskID: taskID},
		Metadata: Metadata{Description: fmt.Sprintf("Delete task %s", taskID)},
	})
}

// EnqueueSync queues a full reconciliation pass at high priority.
func (q *Queue) EnqueueSync(userID string, forceUpload bool) (string, error) {
	return q.Enqueue(Action{
		Type:     ActionSync,
		UserID:   userID,
		Priority: PriorityHigh,
		Sync:     &SyncPayload{ForceUpload: forceUpload},
		Metadata: Metadata{Description: "Sync all tasks"},
	})
}
