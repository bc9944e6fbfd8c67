// Package queue is the deferred-send job queue collaborator.
package queue

import (
	"context"
	"encoding/json"
)

const (
	StreamName     = "SMS"
	StreamSubjects = "sms.>"
	SubjectQueued  = "sms.queued"
)

// Job is the payload of one deferred send: a reference to a persisted SMS.
// The worker re-fetches the SMS by id so a queued job never carries stale
// message state.
type Job struct {
	SMSID string `json:"sms_id"`
}

func (j Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Close() error
}
