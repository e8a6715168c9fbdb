package ws

import (
	"encoding/json"

	"chatspace/internal/domain"
)

// Inbound event types.
const (
	EventJoinChannel    = "join_channel"
	EventLeaveChannel   = "leave_channel"
	EventSendMessage    = "send_message"
	EventEditMessage    = "edit_message"
	EventDeleteMessage  = "delete_message"
	EventTyping         = "typing"
	EventGetOnlineUsers = "get_online_users"
)

// Outbound event types.
const (
	EventChannelHistory   = "channel_history"
	EventNewMessage       = "new_message"
	EventMessageEdited    = "message_edited"
	EventMessageDeleted   = "message_deleted"
	EventUserTyping       = "user_typing"
	EventOnlineUsersList  = "online_users_list"
	EventUserStatusChange = "user_status_change"
	EventChannelCreated   = "channel_created"
	EventUserDeleted      = "user_deleted"
	EventChannelDeleted   = "channel_deleted"
)

// Event is the frame envelope in both directions.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// inbound defers payload decoding to the handler for Type.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type channelRef struct {
	ChannelID int64 `json:"channelId"`
}

type sendMessageIn struct {
	ChannelID int64  `json:"channelId"`
	Content   string `json:"content"`
	ReplyTo   *int64 `json:"replyTo"`
}

type editMessageIn struct {
	MessageID int64  `json:"messageId"`
	ChannelID int64  `json:"channelId"`
	Content   string `json:"content"`
}

type deleteMessageIn struct {
	MessageID int64 `json:"messageId"`
	ChannelID int64 `json:"channelId"`
}

type typingIn struct {
	ChannelID int64 `json:"channelId"`
	IsTyping  bool  `json:"isTyping"`
}

type HistoryPayload struct {
	ChannelID int64                 `json:"channelId"`
	Messages  []*domain.MessageView `json:"messages"`
}

type MessageChangePayload struct {
	MessageID int64  `json:"messageId"`
	ChannelID int64  `json:"channelId"`
	Content   string `json:"content"`
}

type TypingPayload struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	ChannelID int64  `json:"channelId"`
	IsTyping  bool   `json:"isTyping"`
}

type StatusPayload struct {
	UserID int64  `json:"userId"`
	Status string `json:"status"`
}

type UserDeletedPayload struct {
	UserID int64 `json:"userId"`
}

type ChannelDeletedPayload struct {
	ChannelID int64 `json:"channelId"`
}
