package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	MinFromLength = 3
	MaxFromLength = 14
	MinRecipients = 2
)

// SMS is one logical send request: a single text fanned out to many
// recipients. Each recipient gets its own Message record.
type SMS struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        []string        `json:"to"`
	Text      string          `json:"text"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
	Options   map[string]any  `json:"options,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *SMS) Validate() error {
	if l := len(s.From); l < MinFromLength || l > MaxFromLength {
		return fmt.Errorf("from must be %d to %d characters, got %d", MinFromLength, MaxFromLength, l)
	}
	if strings.TrimSpace(s.Text) == "" {
		return fmt.Errorf("text is required")
	}
	var recipients int
	for _, to := range s.To {
		if strings.TrimSpace(to) != "" {
			recipients++
		}
	}
	if recipients < MinRecipients {
		return fmt.Errorf("to must have at least %d recipients, got %d", MinRecipients, recipients)
	}
	return nil
}

// Sent reports whether the gateway accepted this SMS.
func (s *SMS) Sent() bool {
	return s.SentAt != nil
}
