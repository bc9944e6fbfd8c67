package gateway

import (
	"time"

	"github.com/nyotafm/smsgate/internal/domain"
)

// Gateway timestamp layout, e.g. "2024-03-01T09:51:43.123+0300".
const timeLayout = "2006-01-02T15:04:05.000-0700"

// Normalize converts a raw gateway response into canonical per-message status
// records. Send acknowledgements and delivery reports produce identical
// record shapes. Record identity is the echoed message id, falling back to
// the client correlation value; the raw recipient address and batch id are
// dropped. A response carrying neither results nor messages yields nil,
// which signals "nothing to normalize" rather than an error.
func Normalize(resp *RawResponse) []domain.StatusRecord {
	if resp == nil {
		return nil
	}

	raw := resp.Results
	if raw == nil {
		raw = resp.Messages
	}
	if raw == nil {
		return nil
	}

	records := make([]domain.StatusRecord, 0, len(raw))
	for _, r := range raw {
		rec := domain.StatusRecord{
			Count:  r.SMSCount,
			SentAt: parseTime(r.SentAt),
			DoneAt: parseTime(r.DoneAt),
			Status: normalizeStatus(r.Status),
			Error:  normalizeStatus(r.Error),
		}

		rec.ID = r.MessageID
		if rec.ID == "" {
			rec.ID = r.CallbackData
		}

		if r.Price != nil {
			rec.Price = &domain.Price{
				PricePerMessage: r.Price.PricePerMessage,
				Currency:        r.Price.Currency,
			}
		}

		records = append(records, rec)
	}
	return records
}

func normalizeStatus(raw *RawStatus) *domain.Status {
	if raw == nil {
		return nil
	}
	return &domain.Status{
		EID:         raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Permanent:   raw.Permanent,
		Group: domain.Group{
			EID:  raw.GroupID,
			Name: raw.GroupName,
		},
	}
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{timeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
