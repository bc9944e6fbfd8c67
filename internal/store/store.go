// Package store defines the persistence collaborators of the send pipeline.
package store

import (
	"context"
	"errors"

	"github.com/nyotafm/smsgate/internal/domain"
)

// ErrNotFound indicates a lookup by identity that matched no record.
var ErrNotFound = errors.New("not found")

// SMSFilter narrows an SMS query. Zero values mean "any". Sent filters on
// whether the gateway has accepted the SMS (sentAt set/unset).
type SMSFilter struct {
	IDs  []string
	From string
	Sent *bool
}

type SMSStore interface {
	Create(ctx context.Context, sms *domain.SMS) error
	GetByID(ctx context.Context, id string) (*domain.SMS, error)
	Update(ctx context.Context, sms *domain.SMS) error
	Find(ctx context.Context, filter SMSFilter) ([]domain.SMS, error)
}

type MessageStore interface {
	CreateBatch(ctx context.Context, messages []domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	Update(ctx context.Context, msg *domain.Message) error

	// FindBySMS returns the messages belonging to one SMS. With
	// needingDelivery set, only retry-eligible messages are returned:
	// doneAt unset or error set.
	FindBySMS(ctx context.Context, smsID string, needingDelivery bool) ([]domain.Message, error)
}
