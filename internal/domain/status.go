package domain

import "time"

// Group classifies a Status into a gateway outcome family
// (e.g. DELIVERED, UNDELIVERABLE, PENDING).
type Group struct {
	EID  int    `json:"eid"`
	Name string `json:"name,omitempty"`
}

// Status is the canonical per-message outcome record. The shape is identical
// whether the record originated from a send acknowledgement or from an
// asynchronous delivery report; producing that uniformity is the job of
// gateway.Normalize.
type Status struct {
	EID         int    `json:"eid"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Permanent   bool   `json:"permanent,omitempty"`
	Group       Group  `json:"group"`
}

// StatusRecord is one normalized gateway result, addressed to a Message by
// its identity. Reconciliation applies its non-nil fields onto that Message.
type StatusRecord struct {
	ID     string     `json:"id"`
	Count  int        `json:"count,omitempty"`
	SentAt *time.Time `json:"sent_at,omitempty"`
	DoneAt *time.Time `json:"done_at,omitempty"`
	Price  *Price     `json:"price,omitempty"`
	Status *Status    `json:"status,omitempty"`
	Error  *Status    `json:"error,omitempty"`
}
