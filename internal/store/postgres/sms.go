package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nyotafm/smsgate/internal/domain"
	"github.com/nyotafm/smsgate/internal/store"
)

type SMSStore struct {
	db *DB
}

func NewSMSStore(db *DB) *SMSStore {
	return &SMSStore{db: db}
}

const smsColumns = "id, sender, recipients, body, sent_at, error, options, created_at"

func (s *SMSStore) Create(ctx context.Context, sms *domain.SMS) error {
	recipients, err := json.Marshal(sms.To)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}
	options, err := marshalOptions(sms.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	query := `
		INSERT INTO sms (id, sender, recipients, body, sent_at, error, options, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = s.db.Pool.Exec(ctx, query,
		sms.ID,
		sms.From,
		recipients,
		sms.Text,
		sms.SentAt,
		nullableRaw(sms.Error),
		options,
		sms.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create sms: %w", err)
	}
	return nil
}

func (s *SMSStore) GetByID(ctx context.Context, id string) (*domain.SMS, error) {
	row := s.db.Pool.QueryRow(ctx, "SELECT "+smsColumns+" FROM sms WHERE id = $1", id)
	sms, err := scanSMS(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get sms %s: %w", id, err)
	}
	return sms, nil
}

func (s *SMSStore) Update(ctx context.Context, sms *domain.SMS) error {
	options, err := marshalOptions(sms.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}

	query := `UPDATE sms SET sent_at = $2, error = $3, options = $4 WHERE id = $1`
	tag, err := s.db.Pool.Exec(ctx, query, sms.ID, sms.SentAt, nullableRaw(sms.Error), options)
	if err != nil {
		return fmt.Errorf("update sms %s: %w", sms.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SMSStore) Find(ctx context.Context, filter store.SMSFilter) ([]domain.SMS, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.IDs) > 0 {
		conds = append(conds, "id = ANY("+arg(filter.IDs)+")")
	}
	if filter.From != "" {
		conds = append(conds, "sender = "+arg(filter.From))
	}
	if filter.Sent != nil {
		if *filter.Sent {
			conds = append(conds, "sent_at IS NOT NULL")
		} else {
			conds = append(conds, "sent_at IS NULL")
		}
	}

	query := "SELECT " + smsColumns + " FROM sms"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at"

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find sms: %w", err)
	}
	defer rows.Close()

	var out []domain.SMS
	for rows.Next() {
		sms, err := scanSMS(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sms: %w", err)
		}
		out = append(out, *sms)
	}
	return out, rows.Err()
}

func scanSMS(row pgx.Row) (*domain.SMS, error) {
	var (
		sms        domain.SMS
		recipients []byte
		errJSON    []byte
		options    []byte
		sentAt     *time.Time
	)
	if err := row.Scan(&sms.ID, &sms.From, &recipients, &sms.Text, &sentAt, &errJSON, &options, &sms.CreatedAt); err != nil {
		return nil, err
	}
	sms.SentAt = sentAt
	if err := json.Unmarshal(recipients, &sms.To); err != nil {
		return nil, fmt.Errorf("unmarshal recipients: %w", err)
	}
	if len(errJSON) > 0 {
		sms.Error = json.RawMessage(errJSON)
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &sms.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	return &sms, nil
}

func marshalOptions(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullableRaw(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
