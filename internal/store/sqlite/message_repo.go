package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatspace/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const viewSelect = `
	SELECT m.id, m.channel_id, m.user_id, u.username, u.color, m.content, m.created_at,
	       m.reply_to, r.content AS reply_content, ru.username AS reply_username, m.edited, m.deleted
	FROM messages m
	JOIN users u ON u.id = m.user_id
	LEFT JOIN messages r ON r.id = m.reply_to
	LEFT JOIN users ru ON ru.id = r.user_id
`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (channel_id, user_id, content, created_at, reply_to, edited, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ChannelID, m.UserID, m.Content, m.CreatedAt, m.ReplyTo, m.Edited, m.Deleted)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	m := &domain.Message{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, channel_id, user_id, content, created_at, reply_to, edited, deleted
		FROM messages WHERE id = ?
	`, id).Scan(&m.ID, &m.ChannelID, &m.UserID, &m.Content, &m.CreatedAt, &m.ReplyTo, &m.Edited, &m.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) GetView(ctx context.Context, id int64) (*domain.MessageView, error) {
	rows, err := r.db.QueryContext(ctx, viewSelect+` WHERE m.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get message view: %w", err)
	}
	views, err := scanViews(rows)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}
	return views[0], nil
}

func (r *MessageRepo) ListRecent(ctx context.Context, channelID int64, limit int) ([]*domain.MessageView, error) {
	rows, err := r.db.QueryContext(ctx, viewSelect+`
		WHERE m.channel_id = ?
		ORDER BY m.id DESC
		LIMIT ?
	`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	views, err := scanViews(rows)
	if err != nil {
		return nil, err
	}
	// Reverse to chronological order (query returns newest first)
	for i, j := 0, len(views)-1; i < j; i, j = i+1, j-1 {
		views[i], views[j] = views[j], views[i]
	}
	return views, nil
}

func (r *MessageRepo) UpdateContent(ctx context.Context, id, channelID, authorID int64, content string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, edited = 1
		WHERE id = ? AND channel_id = ? AND user_id = ? AND deleted = 0
	`, content, id, channelID, authorID)
	if err != nil {
		return false, fmt.Errorf("update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id, channelID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = ?, deleted = 1
		WHERE id = ? AND channel_id = ? AND deleted = 0
	`, domain.DeletedPlaceholder, id, channelID)
	if err != nil {
		return false, fmt.Errorf("soft delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *MessageRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func scanViews(rows *sql.Rows) ([]*domain.MessageView, error) {
	defer rows.Close()

	var res []*domain.MessageView
	for rows.Next() {
		v := &domain.MessageView{}
		var replyContent, replyUser sql.NullString
		if err := rows.Scan(
			&v.ID,
			&v.ChannelID,
			&v.UserID,
			&v.Username,
			&v.Color,
			&v.Content,
			&v.CreatedAt,
			&v.ReplyTo,
			&replyContent,
			&replyUser,
			&v.Edited,
			&v.Deleted,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if replyContent.Valid {
			v.ReplyContent = &replyContent.String
		}
		if replyUser.Valid {
			v.ReplyUsername = &replyUser.String
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
