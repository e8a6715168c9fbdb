package domain

import (
	"context"
)

// UserRepository defines persistence operations for identities.
type UserRepository interface {
	// Create inserts u and fills its ID. Returns ErrConflict on a duplicate username.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	SetStatus(ctx context.Context, id int64, status string) error
	// Delete removes the identity together with its messages and memberships.
	// It reports whether a row was removed.
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int, error)
}

// ChannelRepository defines persistence operations for channels and memberships.
type ChannelRepository interface {
	// Create inserts c with membership rows for memberIDs. Returns ErrConflict
	// when a direct channel with the same name already exists.
	Create(ctx context.Context, c *Channel, memberIDs []int64) error
	GetByID(ctx context.Context, id int64) (*Channel, error)
	GetByName(ctx context.Context, name string, kind ChannelKind) (*Channel, error)
	ListVisible(ctx context.Context, userID int64) ([]*Channel, error)
	ListAll(ctx context.Context) ([]*Channel, error)
	IsMember(ctx context.Context, channelID, userID int64) (bool, error)
	MemberIDs(ctx context.Context, channelID int64) ([]int64, error)
	// Delete removes the channel together with its messages and memberships.
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	// GetView returns the message joined with author and reply metadata.
	GetView(ctx context.Context, id int64) (*MessageView, error)
	// ListRecent returns the most recent limit messages of a channel in
	// ascending creation order.
	ListRecent(ctx context.Context, channelID int64, limit int) ([]*MessageView, error)
	// UpdateContent edits a live message when authorID is its author.
	UpdateContent(ctx context.Context, id, channelID, authorID int64, content string) (bool, error)
	// SoftDelete replaces content with the placeholder and sets the deleted flag.
	SoftDelete(ctx context.Context, id, channelID int64) (bool, error)
	Count(ctx context.Context) (int, error)
}
