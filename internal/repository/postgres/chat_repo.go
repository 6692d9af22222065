package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/sprout/internal/domain"
	"github.com/vedran77/sprout/internal/repository"
)

const uniqueViolation = "23505"

const chatColumns = `id, user_a_id, user_b_id, last_message_id, seen_by_a, seen_by_b, created_at, updated_at`

type ChatRepo struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) *ChatRepo {
	return &ChatRepo{pool: pool}
}

func (r *ChatRepo) Create(ctx context.Context, chat *domain.Chat) error {
	query := `
		INSERT INTO chats (user_a_id, user_b_id, seen_by_a, seen_by_b, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := r.pool.QueryRow(ctx, query,
		chat.UserAID, chat.UserBID, chat.SeenByA, chat.SeenByB, chat.CreatedAt, chat.UpdatedAt,
	).Scan(&chat.ID)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func (r *ChatRepo) GetByID(ctx context.Context, id int64) (*domain.Chat, error) {
	return r.scanChat(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id)
}

// GetByParticipants accepts the two users in either order.
func (r *ChatRepo) GetByParticipants(ctx context.Context, user1ID, user2ID int64) (*domain.Chat, error) {
	a, b := domain.CanonicalPair(user1ID, user2ID)
	return r.scanChat(ctx, `SELECT `+chatColumns+` FROM chats WHERE user_a_id = $1 AND user_b_id = $2`, a, b)
}

func (r *ChatRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Chat, error) {
	query := `
		SELECT ` + chatColumns + `
		FROM chats
		WHERE user_a_id = $1 OR user_b_id = $1
		ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []domain.Chat
	for rows.Next() {
		var c domain.Chat
		if err := scanChatRow(rows, &c); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (r *ChatRepo) MarkSeen(ctx context.Context, chatID, userID int64) error {
	query := `
		UPDATE chats
		SET seen_by_a = CASE WHEN user_a_id = $2 THEN TRUE ELSE seen_by_a END,
			seen_by_b = CASE WHEN user_b_id = $2 THEN TRUE ELSE seen_by_b END
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, chatID, userID)
	return err
}

func (r *ChatRepo) AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Chat, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Row lock keeps inserts for one chat in send order.
	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM chats WHERE id = $1 FOR UPDATE`, msg.ChatID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking chat: %w", err)
	}

	insert := `
		INSERT INTO messages (chat_id, sender_id, message_type, ciphertext, scheme, wrapped_key, nonce,
			media_url, one_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	err = tx.QueryRow(ctx, insert,
		msg.ChatID, msg.SenderID, string(msg.Type), []byte(msg.Ciphertext), nullString(msg.Scheme),
		[]byte(msg.WrappedKey), []byte(msg.Nonce), msg.MediaURL, msg.OneTime, msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	update := `
		UPDATE chats
		SET last_message_id = $2,
			seen_by_a = (user_a_id = $3),
			seen_by_b = (user_b_id = $3),
			updated_at = $4
		WHERE id = $1
		RETURNING ` + chatColumns
	var chat domain.Chat
	if err := scanChatRow(tx.QueryRow(ctx, update, msg.ChatID, msg.ID, msg.SenderID, time.Now()), &chat); err != nil {
		return nil, fmt.Errorf("updating chat: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *ChatRepo) scanChat(ctx context.Context, query string, args ...any) (*domain.Chat, error) {
	var c domain.Chat
	err := scanChatRow(r.pool.QueryRow(ctx, query, args...), &c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanChatRow(row pgx.Row, c *domain.Chat) error {
	return row.Scan(
		&c.ID, &c.UserAID, &c.UserBID, &c.LastMessageID,
		&c.SeenByA, &c.SeenByB, &c.CreatedAt, &c.UpdatedAt,
	)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
