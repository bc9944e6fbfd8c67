package gateway

import (
	"context"
	"sync"
	"time"
)

// Fake is a Transport for local and test runs. It acknowledges every
// destination as delivered without any network I/O.
type Fake struct {
	// Err, when set, is returned from every SendBatch call.
	Err error

	// Batches records every batch submitted, in order.
	Batches []Batch

	mu sync.Mutex
}

func (f *Fake) SendBatch(_ context.Context, batch Batch) (*RawResponse, error) {
	f.mu.Lock()
	f.Batches = append(f.Batches, batch)
	err := f.Err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	now := time.Now().Format(timeLayout)
	results := make([]RawResult, 0, len(batch.Destinations))
	for _, dest := range batch.Destinations {
		results = append(results, RawResult{
			BulkID:    batch.BulkID,
			MessageID: dest.MessageID,
			To:        dest.To,
			SMSCount:  1,
			SentAt:    now,
			DoneAt:    now,
			Price:     &RawPrice{PricePerMessage: 0, Currency: "NA"},
			Status: &RawStatus{
				ID:          5,
				GroupID:     3,
				GroupName:   "DELIVERED",
				Name:        "DELIVERED_TO_HANDSET",
				Description: "Message delivered to handset",
			},
		})
	}
	return &RawResponse{BulkID: batch.BulkID, Results: results}, nil
}
