// Package queue orders incoming emails for processing. Urgent mail is
// answered first; within one priority class older mail wins. Failed tasks
// are requeued with a bounded retry budget.
package queue

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Priority orders tasks; lower values are processed first.
type Priority int

const (
	PriorityUrgent Priority = iota + 1
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Status is the processing state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRetry      Status = "retry"
)

// DefaultMaxRetries bounds requeues of a failing task.
const DefaultMaxRetries = 3

// Task is one email waiting for, or undergoing, processing.
type Task struct {
	EmailID    string
	MessageID  string
	Priority   Priority
	CreatedAt  time.Time
	RetryCount int
	Status     Status

	ProcessingStarted   time.Time
	ProcessingCompleted time.Time
	ErrorMessage        string

	seq uint64 // insertion order, breaks remaining ties deterministically
}

// Stats is a snapshot of queue counters.
type Stats struct {
	QueueSize         int
	ProcessingCount   int
	CompletedCount    int
	FailedCount       int
	TotalProcessed    int
	TotalFailed       int
	TotalRetries      int
	AvgProcessingTime time.Duration
}

// Queue is a thread-safe priority queue of email tasks.
type Queue struct {
	mu         sync.Mutex
	heap       taskHeap
	processing map[string]*Task
	completed  map[string]*Task
	failed     map[string]*Task
	nextSeq    uint64
	maxRetries int

	totalProcessed int
	totalFailed    int
	totalRetries   int
	avgProcessing  time.Duration

	logger *slog.Logger
}

// New creates an empty queue. maxRetries <= 0 uses DefaultMaxRetries.
func New(maxRetries int, logger *slog.Logger) *Queue {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		processing: make(map[string]*Task),
		completed:  make(map[string]*Task),
		failed:     make(map[string]*Task),
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Add enqueues an email. A zero createdAt means now.
func (q *Queue) Add(emailID, messageID string, priority Priority, createdAt time.Time) {
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	task := &Task{
		EmailID:   emailID,
		MessageID: messageID,
		Priority:  priority,
		CreatedAt: createdAt,
		Status:    StatusPending,
		seq:       q.nextSeq,
	}
	q.nextSeq++
	heap.Push(&q.heap, task)

	q.logger.Debug("enqueued email", "email_id", emailID, "priority", priority.String())
}

// Next pops the highest-priority task and marks it processing. Returns nil
// when the queue is empty.
func (q *Queue) Next() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil
	}
	task := heap.Pop(&q.heap).(*Task)
	task.Status = StatusProcessing
	task.ProcessingStarted = time.Now()
	q.processing[task.EmailID] = task

	q.logger.Debug("dequeued email", "email_id", task.EmailID, "priority", task.Priority.String())
	return task
}

// Complete marks a processing task as successfully finished.
func (q *Queue) Complete(emailID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.processing[emailID]
	if !ok {
		return fmt.Errorf("email %q is not being processed", emailID)
	}
	delete(q.processing, emailID)

	task.Status = StatusCompleted
	task.ProcessingCompleted = time.Now()
	q.completed[emailID] = task
	q.totalProcessed++
	q.updateAvgProcessing(task.ProcessingCompleted.Sub(task.ProcessingStarted))

	return nil
}

// Fail records a processing failure. Tasks under the retry budget are
// requeued with StatusRetry; beyond it they land in the failed set. Returns
// whether the task was requeued.
func (q *Queue) Fail(emailID string, cause error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.processing[emailID]
	if !ok {
		return false, fmt.Errorf("email %q is not being processed", emailID)
	}
	delete(q.processing, emailID)

	task.ProcessingCompleted = time.Now()
	if cause != nil {
		task.ErrorMessage = cause.Error()
	}

	if task.RetryCount < q.maxRetries {
		task.RetryCount++
		task.Status = StatusRetry
		task.ProcessingStarted = time.Time{}
		task.ProcessingCompleted = time.Time{}
		task.seq = q.nextSeq
		q.nextSeq++
		heap.Push(&q.heap, task)
		q.totalRetries++
		q.logger.Debug("requeued failed email",
			"email_id", emailID, "retry", task.RetryCount, "max_retries", q.maxRetries)
		return true, nil
	}

	task.Status = StatusFailed
	q.failed[emailID] = task
	q.totalFailed++
	q.logger.Warn("email failed permanently",
		"email_id", emailID, "retries", task.RetryCount, "error", task.ErrorMessage)
	return false, nil
}

// Stats returns a snapshot of queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		QueueSize:         q.heap.Len(),
		ProcessingCount:   len(q.processing),
		CompletedCount:    len(q.completed),
		FailedCount:       len(q.failed),
		TotalProcessed:    q.totalProcessed,
		TotalFailed:       q.totalFailed,
		TotalRetries:      q.totalRetries,
		AvgProcessingTime: q.avgProcessing,
	}
}

// PriorityDistribution counts queued tasks per priority class.
func (q *Queue) PriorityDistribution() map[Priority]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	distribution := make(map[Priority]int)
	for _, task := range q.heap {
		distribution[task.Priority]++
	}
	return distribution
}

// PromoteRetries raises queued normal-priority retry tasks to high priority
// so repeatedly failing mail does not starve behind fresh arrivals.
func (q *Queue) PromoteRetries() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	promoted := 0
	for _, task := range q.heap {
		if task.Priority == PriorityNormal && task.RetryCount > 0 {
			task.Priority = PriorityHigh
			promoted++
		}
	}
	if promoted > 0 {
		heap.Init(&q.heap)
	}
	return promoted
}

// ClearOld drops completed and failed records older than the given age and
// returns how many were removed.
func (q *Queue) ClearOld(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	q.mu.Lock()
	defer q.mu.Unlock()

	cleared := 0
	for id, task := range q.completed {
		if !task.ProcessingCompleted.IsZero() && task.ProcessingCompleted.Before(cutoff) {
			delete(q.completed, id)
			cleared++
		}
	}
	for id, task := range q.failed {
		if !task.ProcessingCompleted.IsZero() && task.ProcessingCompleted.Before(cutoff) {
			delete(q.failed, id)
			cleared++
		}
	}
	return cleared
}

func (q *Queue) updateAvgProcessing(elapsed time.Duration) {
	if q.totalProcessed == 1 {
		q.avgProcessing = elapsed
		return
	}
	n := time.Duration(q.totalProcessed)
	q.avgProcessing = (q.avgProcessing*(n-1) + elapsed) / n
}

// taskHeap implements heap.Interface ordered by priority, then age, then
// insertion order.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	if !h[i].CreatedAt.Equal(h[j].CreatedAt) {
		return h[i].CreatedAt.Before(h[j].CreatedAt)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return task
}
