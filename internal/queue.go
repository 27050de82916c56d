package internal

// TaskQueue holds work scheduled while a cycle is running.
// Tasks run after the cycle that queued them, in FIFO order.
type TaskQueue struct {
	tasks []func()
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		tasks: make([]func(), 0),
	}
}

func (q *TaskQueue) Enqueue(fn func()) {
	q.tasks = append(q.tasks, fn)
}

// Pop removes and returns the oldest task.
func (q *TaskQueue) Pop() (func(), bool) {
	if len(q.tasks) == 0 {
		return nil, false
	}

	task := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]

	return task, true
}

func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

// Clear drops every pending task and returns how many were dropped.
func (q *TaskQueue) Clear() int {
	n := len(q.tasks)
	q.tasks = q.tasks[:0]
	return n
}
