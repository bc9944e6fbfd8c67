package server

import (
	"time"

	"github.com/nyotafm/smsgate/internal/domain"
)

type sendRequest struct {
	From    string         `json:"from" binding:"required"`
	To      []string       `json:"to" binding:"required"`
	Text    string         `json:"text" binding:"required"`
	Options map[string]any `json:"options"`
}

func (r sendRequest) draft() *domain.SMS {
	return &domain.SMS{
		From: r.From,
		To:   r.To,
		Text: r.Text,
	}
}

type filterRequest struct {
	IDs  []string `json:"ids"`
	From string   `json:"from"`
}

type smsResponse struct {
	ID        string     `json:"id"`
	From      string     `json:"from"`
	To        []string   `json:"to"`
	Text      string     `json:"text"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	Error     any        `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type messageResponse struct {
	ID     string     `json:"id"`
	To     string     `json:"to"`
	Count  int        `json:"count"`
	SentAt *time.Time `json:"sent_at,omitempty"`
	DoneAt *time.Time `json:"done_at,omitempty"`
}

type sendResponse struct {
	SMS      smsResponse       `json:"sms"`
	Messages []messageResponse `json:"messages"`
}

type listResponse struct {
	SMS   []smsResponse `json:"sms"`
	Total int           `json:"total"`
}

func toSMSResponse(sms domain.SMS) smsResponse {
	resp := smsResponse{
		ID:        sms.ID,
		From:      sms.From,
		To:        sms.To,
		Text:      sms.Text,
		SentAt:    sms.SentAt,
		CreatedAt: sms.CreatedAt,
	}
	if len(sms.Error) > 0 {
		resp.Error = sms.Error
	}
	return resp
}

func toMessageResponses(messages []domain.Message) []messageResponse {
	out := make([]messageResponse, len(messages))
	for i, msg := range messages {
		out[i] = messageResponse{
			ID:     msg.ID,
			To:     msg.To,
			Count:  msg.Count,
			SentAt: msg.SentAt,
			DoneAt: msg.DoneAt,
		}
	}
	return out
}

func toListResponse(smses []domain.SMS) listResponse {
	out := make([]smsResponse, len(smses))
	for i, sms := range smses {
		out[i] = toSMSResponse(sms)
	}
	return listResponse{SMS: out, Total: len(out)}
}
