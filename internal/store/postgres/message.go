package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nyotafm/smsgate/internal/domain"
	"github.com/nyotafm/smsgate/internal/store"
)

type MessageStore struct {
	db *DB
}

func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

const messageColumns = "id, sms_id, recipient, destination, body, count, sent_at, done_at, price, status, error, created_at"

func (s *MessageStore) CreateBatch(ctx context.Context, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO messages (id, sms_id, recipient, destination, body, count, sent_at, done_at, price, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for _, m := range messages {
		destination, err := marshalJSONField(m.Destination)
		if err != nil {
			return fmt.Errorf("marshal destination: %w", err)
		}
		price, err := marshalJSONField(m.Price)
		if err != nil {
			return fmt.Errorf("marshal price: %w", err)
		}
		status, err := marshalJSONField(m.Status)
		if err != nil {
			return fmt.Errorf("marshal status: %w", err)
		}
		msgErr, err := marshalJSONField(m.Error)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		batch.Queue(query, m.ID, m.SMSID, m.To, destination, m.Text, m.Count,
			m.SentAt, m.DoneAt, price, status, msgErr, m.CreatedAt)
	}

	results := s.db.Pool.SendBatch(ctx, batch)
	defer results.Close()
	for range messages {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("create messages: %w", err)
		}
	}
	return nil
}

func (s *MessageStore) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	row := s.db.Pool.QueryRow(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = $1", id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

func (s *MessageStore) Update(ctx context.Context, msg *domain.Message) error {
	destination, err := marshalJSONField(msg.Destination)
	if err != nil {
		return fmt.Errorf("marshal destination: %w", err)
	}
	price, err := marshalJSONField(msg.Price)
	if err != nil {
		return fmt.Errorf("marshal price: %w", err)
	}
	status, err := marshalJSONField(msg.Status)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	msgErr, err := marshalJSONField(msg.Error)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	query := `
		UPDATE messages
		SET destination = $2, count = $3, sent_at = $4, done_at = $5,
		    price = $6, status = $7, error = $8
		WHERE id = $1
	`
	tag, err := s.db.Pool.Exec(ctx, query, msg.ID, destination, msg.Count,
		msg.SentAt, msg.DoneAt, price, status, msgErr)
	if err != nil {
		return fmt.Errorf("update message %s: %w", msg.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *MessageStore) FindBySMS(ctx context.Context, smsID string, needingDelivery bool) ([]domain.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE sms_id = $1"
	if needingDelivery {
		query += " AND (done_at IS NULL OR error IS NOT NULL)"
	}
	query += " ORDER BY created_at"

	rows, err := s.db.Pool.Query(ctx, query, smsID)
	if err != nil {
		return nil, fmt.Errorf("find messages for sms %s: %w", smsID, err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		msg         domain.Message
		destination []byte
		price       []byte
		status      []byte
		msgErr      []byte
	)
	if err := row.Scan(&msg.ID, &msg.SMSID, &msg.To, &destination, &msg.Text, &msg.Count,
		&msg.SentAt, &msg.DoneAt, &price, &status, &msgErr, &msg.CreatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalJSONField(destination, &msg.Destination); err != nil {
		return nil, fmt.Errorf("unmarshal destination: %w", err)
	}
	if err := unmarshalJSONField(price, &msg.Price); err != nil {
		return nil, fmt.Errorf("unmarshal price: %w", err)
	}
	if err := unmarshalJSONField(status, &msg.Status); err != nil {
		return nil, fmt.Errorf("unmarshal status: %w", err)
	}
	if err := unmarshalJSONField(msgErr, &msg.Error); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}
	return &msg, nil
}

func marshalJSONField[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSONField[T any](data []byte, dst **T) error {
	if len(data) == 0 {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}
