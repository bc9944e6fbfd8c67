// Package gateway defines the upstream SMS gateway protocol: the batch send
// payload, the raw response shapes, and the normalization of those shapes
// into canonical per-message status records.
package gateway

import (
	"context"
	"fmt"
)

// BatchDestination addresses one message of a batch to one recipient. The
// MessageID is echoed back by the gateway and is how results are matched to
// local Message records.
type BatchDestination struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

// Batch is one gateway send request covering every pending destination of a
// single SMS.
type Batch struct {
	BulkID             string             `json:"bulkId"`
	From               string             `json:"from"`
	Text               string             `json:"text"`
	IntermediateReport bool               `json:"intermediateReport"`
	NotifyURL          string             `json:"notifyUrl,omitempty"`
	NotifyContentType  string             `json:"notifyContentType,omitempty"`
	CallbackData       string             `json:"callbackData,omitempty"`
	Options            map[string]any     `json:"-"`
	Destinations       []BatchDestination `json:"destinations"`
}

// Transport performs one gateway round trip. Implementations must honor the
// context deadline; the caller does not retry.
type Transport interface {
	SendBatch(ctx context.Context, batch Batch) (*RawResponse, error)
}

// Error is a transport-level gateway failure: network, auth or gateway-side
// rejection of the whole batch.
type Error struct {
	StatusCode int    `json:"code"`
	Status     string `json:"status,omitempty"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gateway: %s (%d): %s", e.Status, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway: %d: %s", e.StatusCode, e.Message)
}
