package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is the base interface for all taskflow events.
type Event interface {
	EventType() string
	TaskID() uuid.UUID
}

// Topic constants
const (
	TopicTask  = "task"
	TopicQueue = "queue"
)

// Event type constants
const (
	EventTypeTaskSubmitted  = "task.submitted"
	EventTypeTaskEvaluating = "task.evaluating"
	EventTypeTaskExecuting  = "task.executing"
	EventTypeTaskCancelled  = "task.cancelled"
	EventTypeTaskFinished   = "task.finished"
	EventTypeQueueDrained   = "queue.drained"
)

// TaskSubmittedEvent is published when a task enters the queue.
type TaskSubmittedEvent struct {
	ID        uuid.UUID
	Name      string
	Deps      int
	Timestamp time.Time
}

func (e TaskSubmittedEvent) EventType() string { return EventTypeTaskSubmitted }
func (e TaskSubmittedEvent) TaskID() uuid.UUID { return e.ID }

// TaskEvaluatingEvent is published when precondition evaluation begins.
type TaskEvaluatingEvent struct {
	ID            uuid.UUID
	Name          string
	Preconditions int
	Timestamp     time.Time
}

func (e TaskEvaluatingEvent) EventType() string { return EventTypeTaskEvaluating }
func (e TaskEvaluatingEvent) TaskID() uuid.UUID { return e.ID }

// TaskExecutingEvent is published when a task's execution body is about
// to run.
type TaskExecutingEvent struct {
	ID        uuid.UUID
	Name      string
	Class     string
	Timestamp time.Time
}

func (e TaskExecutingEvent) EventType() string { return EventTypeTaskExecuting }
func (e TaskExecutingEvent) TaskID() uuid.UUID { return e.ID }

// TaskCancelledEvent is published when the queue observes a cancelled
// task at the ready/executing boundary and routes it straight to
// finishing.
type TaskCancelledEvent struct {
	ID        uuid.UUID
	Name      string
	Errs      int
	Timestamp time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) TaskID() uuid.UUID { return e.ID }

// TaskFinishedEvent is published once a task reaches its terminal state.
type TaskFinishedEvent struct {
	ID        uuid.UUID
	Name      string
	Cancelled bool
	Errs      int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFinishedEvent) EventType() string { return EventTypeTaskFinished }
func (e TaskFinishedEvent) TaskID() uuid.UUID { return e.ID }

// QueueDrainedEvent is published when every submitted task has finished.
type QueueDrainedEvent struct {
	Submitted int
	Timestamp time.Time
}

func (e QueueDrainedEvent) EventType() string { return EventTypeQueueDrained }
func (e QueueDrainedEvent) TaskID() uuid.UUID { return uuid.Nil }
