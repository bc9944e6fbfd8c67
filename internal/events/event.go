package events

import "time"

type Type string

const (
	// TypeQueued fires when an SMS has been persisted and its send deferred
	// to the background worker.
	TypeQueued Type = "QUEUED"
	// TypeQueueError fires when persisting or enqueueing a deferred send failed.
	TypeQueueError Type = "QUEUE_ERROR"
	// TypeJobComplete fires when the worker finished a deferred send.
	TypeJobComplete Type = "JOB_COMPLETE"
	// TypeJobError fires when a deferred send attempt failed.
	TypeJobError Type = "JOB_ERROR"
)

type Event struct {
	Type      Type
	SMSID     string
	Error     string
	Timestamp time.Time
}
