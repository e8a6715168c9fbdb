package domain

import "time"

// Identity status values cached on the users table. The presence tracker's
// live-connection count is authoritative; this is a best-effort mirror.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ChannelKind is fixed at creation time.
type ChannelKind string

const (
	KindPublic       ChannelKind = "public"
	KindDirect       ChannelKind = "direct"
	KindPrivateGroup ChannelKind = "private"
)

// DeletedPlaceholder replaces the content of a soft-deleted message.
const DeletedPlaceholder = "This message was deleted"

// User represents a registered identity.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	HashedPassword string    `db:"password" json:"-"`
	Color          string    `db:"color" json:"color"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Channel is a named broadcast and persistence scope.
type Channel struct {
	ID        int64       `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Kind      ChannelKind `db:"kind" json:"kind"`
	CreatedBy *int64      `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
}

// IsPublic reports whether membership is implicit.
func (c *Channel) IsPublic() bool {
	return c.Kind == KindPublic
}

// Membership is materialized only for direct and private-group channels.
type Membership struct {
	ChannelID  int64      `db:"channel_id"`
	UserID     int64      `db:"user_id"`
	LastReadAt *time.Time `db:"last_read_at"`
}

// Message is a single persisted chat message.
type Message struct {
	ID        int64     `db:"id"`
	ChannelID int64     `db:"channel_id"`
	UserID    int64     `db:"user_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	ReplyTo   *int64    `db:"reply_to"`
	Edited    bool      `db:"edited"`
	Deleted   bool      `db:"deleted"`
}

// MessageView is a message joined with its author and, for replies, the
// replied-to message. It is what history replay and fan-out deliver.
type MessageView struct {
	ID            int64     `json:"id"`
	ChannelID     int64     `json:"channelId"`
	UserID        int64     `json:"userId"`
	Username      string    `json:"username"`
	Color         string    `json:"color"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"createdAt"`
	ReplyTo       *int64    `json:"replyTo,omitempty"`
	ReplyContent  *string   `json:"replyContent,omitempty"`
	ReplyUsername *string   `json:"replyUsername,omitempty"`
	Edited        bool      `json:"edited"`
	Deleted       bool      `json:"deleted"`
}

// UserPresence is one entry of the presence snapshot.
type UserPresence struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
	Status   string `json:"status"`
}

// Stats is the admin overview.
type Stats struct {
	Users       int `json:"users"`
	Channels    int `json:"channels"`
	Messages    int `json:"messages"`
	OnlineUsers int `json:"onlineUsers"`
	Connections int `json:"connections"`
}

// Attachment is the structured content a client posts after an upload. It is
// stored JSON-encoded as the message content.
type Attachment struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// AttachmentType is the Type value of an encoded Attachment.
const AttachmentType = "attachment"
