package gateway

// Raw wire shapes of the gateway responses this package consumes: the
// synchronous acknowledgement of a batch send (Results) and the asynchronous
// delivery report posted to the notify URL (Messages). Field names follow
// the gateway JSON verbatim; Normalize converts them to the canonical form.

// RawStatus is the gateway-native status or error block of one result.
type RawStatus struct {
	ID          int    `json:"id"`
	GroupID     int    `json:"groupId"`
	GroupName   string `json:"groupName"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Permanent   bool   `json:"permanent"`
}

// RawPrice is the gateway-native pricing block of one result.
type RawPrice struct {
	PricePerMessage float64 `json:"pricePerMessage"`
	Currency        string  `json:"currency"`
}

// RawResult is one per-message entry of a send acknowledgement or delivery
// report.
type RawResult struct {
	BulkID       string     `json:"bulkId,omitempty"`
	MessageID    string     `json:"messageId,omitempty"`
	CallbackData string     `json:"callbackData,omitempty"`
	To           string     `json:"to,omitempty"`
	SMSCount     int        `json:"smsCount,omitempty"`
	SentAt       string     `json:"sentAt,omitempty"`
	DoneAt       string     `json:"doneAt,omitempty"`
	Price        *RawPrice  `json:"price,omitempty"`
	Status       *RawStatus `json:"status,omitempty"`
	Error        *RawStatus `json:"error,omitempty"`
}

// RawResponse is the envelope of both response kinds. A send acknowledgement
// carries Results, a delivery report carries Messages; all other fields of
// the envelope are ignored.
type RawResponse struct {
	BulkID   string      `json:"bulkId,omitempty"`
	Results  []RawResult `json:"results,omitempty"`
	Messages []RawResult `json:"messages,omitempty"`
}
