package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/sprout/internal/domain"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) ListByChat(ctx context.Context, chatID int64, offset, limit int) ([]domain.Message, error) {
	if offset < 0 || limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT id, chat_id, sender_id, message_type, ciphertext, COALESCE(scheme, ''), wrapped_key, nonce,
			media_url, one_time, created_at, read_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, chatID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			msg                        domain.Message
			msgType                    string
			ciphertext, wrapped, nonce []byte
		)
		if err := rows.Scan(
			&msg.ID, &msg.ChatID, &msg.SenderID, &msgType, &ciphertext, &msg.Scheme, &wrapped, &nonce,
			&msg.MediaURL, &msg.OneTime, &msg.CreatedAt, &msg.ReadAt,
		); err != nil {
			return nil, err
		}
		msg.Type = domain.MessageType(msgType)
		msg.Ciphertext = ciphertext
		msg.WrappedKey = wrapped
		msg.Nonce = nonce
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
