package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatspace/internal/domain"
)

type ChannelRepo struct {
	db *sql.DB
}

func NewChannelRepo(db *sql.DB) *ChannelRepo {
	return &ChannelRepo{db: db}
}

var _ domain.ChannelRepository = (*ChannelRepo)(nil)

const channelColumns = `c.id, c.name, c.kind, c.created_by, c.created_at`

func (r *ChannelRepo) Create(ctx context.Context, c *domain.Channel, memberIDs []int64) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO channels (name, kind, created_by, created_at)
		VALUES (?, ?, ?, ?)
	`, c.Name, string(c.Kind), c.CreatedBy, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert channel %q: %w", c.Name, domain.ErrConflict)
		}
		return fmt.Errorf("insert channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	for _, uid := range memberIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO channel_members (channel_id, user_id, last_read_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
		`, id, uid); err != nil {
			return fmt.Errorf("insert member %d: %w", uid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	c.ID = id
	return nil
}

func (r *ChannelRepo) GetByID(ctx context.Context, id int64) (*domain.Channel, error) {
	return r.scanOne(ctx, `SELECT `+channelColumns+` FROM channels c WHERE c.id = ?`, id)
}

func (r *ChannelRepo) GetByName(ctx context.Context, name string, kind domain.ChannelKind) (*domain.Channel, error) {
	return r.scanOne(ctx, `
		SELECT `+channelColumns+` FROM channels c
		WHERE c.name = ? AND c.kind = ?
		ORDER BY c.id ASC
		LIMIT 1
	`, name, string(kind))
}

func (r *ChannelRepo) ListVisible(ctx context.Context, userID int64) ([]*domain.Channel, error) {
	return r.scanMany(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.kind = 'public'
		   OR EXISTS (
				SELECT 1 FROM channel_members cm
				WHERE cm.channel_id = c.id AND cm.user_id = ?
		   )
		ORDER BY c.id ASC
	`, userID)
}

func (r *ChannelRepo) ListAll(ctx context.Context) ([]*domain.Channel, error) {
	return r.scanMany(ctx, `SELECT `+channelColumns+` FROM channels c ORDER BY c.id ASC`)
}

func (r *ChannelRepo) IsMember(ctx context.Context, channelID, userID int64) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1
		FROM channel_members
		WHERE channel_id = ? AND user_id = ?
	`, channelID, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is member: %w", err)
	}
	return true, nil
}

func (r *ChannelRepo) MemberIDs(ctx context.Context, channelID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM channel_members WHERE channel_id = ? ORDER BY user_id ASC
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ChannelRepo) Delete(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete channel messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_members WHERE channel_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete channel members: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete channel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return n > 0, nil
}

func (r *ChannelRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM channels`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count channels: %w", err)
	}
	return n, nil
}

func (r *ChannelRepo) scanOne(ctx context.Context, query string, args ...any) (*domain.Channel, error) {
	c := &domain.Channel{}
	var kind string
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.Name, &kind, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	c.Kind = domain.ChannelKind(kind)
	return c, nil
}

func (r *ChannelRepo) scanMany(ctx context.Context, query string, args ...any) ([]*domain.Channel, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var res []*domain.Channel
	for rows.Next() {
		c := &domain.Channel{}
		var kind string
		if err := rows.Scan(&c.ID, &c.Name, &kind, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.Kind = domain.ChannelKind(kind)
		res = append(res, c)
	}
	return res, rows.Err()
}
