package domain

import "time"

// Destination is the resolved routing information of one recipient.
type Destination struct {
	Country string `json:"country"`
	Code    string `json:"code"`
	To      string `json:"to"` // E.164
}

// Price is the gateway-reported cost of a single message segment.
type Price struct {
	PricePerMessage float64 `json:"price_per_message"`
	Currency        string  `json:"currency"`
}

// Cost is a computed total send cost of a message.
type Cost struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Message is one (SMS, recipient) pair. It carries the per-recipient
// destination, segment count, pricing and delivery outcome.
type Message struct {
	ID          string       `json:"id"`
	SMSID       string       `json:"sms_id"`
	To          string       `json:"to"`
	Destination *Destination `json:"destination,omitempty"`
	Text        string       `json:"text"`
	Count       int          `json:"count,omitempty"`
	SentAt      *time.Time   `json:"sent_at,omitempty"`
	DoneAt      *time.Time   `json:"done_at,omitempty"`
	Price       *Price       `json:"price,omitempty"`
	Status      *Status      `json:"status,omitempty"`
	Error       *Status      `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// NeedsDelivery reports whether this message is still eligible for a send
// attempt: it has not been delivered, or its last attempt ended in error.
func (m *Message) NeedsDelivery() bool {
	return m.DoneAt == nil || m.Error != nil
}

// SendCost computes the total cost of delivering this message. The zero Cost
// with currency "NA" is returned until the gateway has reported pricing.
func (m *Message) SendCost() Cost {
	if m.Count == 0 || m.Price == nil || m.Price.PricePerMessage == 0 || m.Price.Currency == "" {
		return Cost{Amount: 0, Currency: "NA"}
	}
	return Cost{
		Amount:   m.Price.PricePerMessage * float64(m.Count),
		Currency: m.Price.Currency,
	}
}
