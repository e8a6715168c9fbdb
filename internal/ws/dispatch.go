package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"chatspace/internal/domain"
	"chatspace/internal/metrics"
	"chatspace/internal/service"
)

// MessageLog persists channel messages.
type MessageLog interface {
	Post(ctx context.Context, authorID int64, in service.PostInput) (*domain.MessageView, error)
	Edit(ctx context.Context, editorID, messageID, channelID int64, content string) error
	Delete(ctx context.Context, callerID int64, isAdmin bool, messageID, channelID int64) error
	History(ctx context.Context, userID, channelID int64) ([]*domain.MessageView, error)
}

// UserDirectory lists identities with live presence.
type UserDirectory interface {
	Directory(ctx context.Context) ([]domain.UserPresence, error)
}

// HandlerFunc handles one inbound event for a connection. A returned error
// is logged and otherwise dropped; the client never sees it.
type HandlerFunc func(ctx context.Context, c *Client, payload json.RawMessage) error

var errNotSubscribed = errors.New("not subscribed to channel")

// Dispatcher maps inbound event types to handlers.
type Dispatcher struct {
	hub      *Hub
	access   service.ChannelAccess
	messages MessageLog
	users    UserDirectory
	metrics  *metrics.Metrics
	log      *zap.Logger

	// Held across persist and fan-out so a channel's fan-out follows its
	// persisted order, and across subscribe and history replay.
	channelLocks *keyedMutex

	handlers map[string]HandlerFunc
}

func NewDispatcher(hub *Hub, access service.ChannelAccess, messages MessageLog, users UserDirectory, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		hub:          hub,
		access:       access,
		messages:     messages,
		users:        users,
		metrics:      m,
		log:          log,
		channelLocks: newKeyedMutex(),
	}
	d.handlers = map[string]HandlerFunc{
		EventJoinChannel:    d.joinChannel,
		EventLeaveChannel:   d.leaveChannel,
		EventSendMessage:    d.sendMessage,
		EventEditMessage:    d.editMessage,
		EventDeleteMessage:  d.deleteMessage,
		EventTyping:         d.typing,
		EventGetOnlineUsers: d.getOnlineUsers,
	}
	return d
}

// Dispatch decodes one frame and runs its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, frame []byte) {
	var in inbound
	if err := json.Unmarshal(frame, &in); err != nil {
		d.log.Debug("ws: malformed frame", zap.String("conn_id", c.ID()), zap.Error(err))
		return
	}
	h, ok := d.handlers[in.Type]
	if !ok {
		d.log.Debug("ws: unknown event", zap.String("type", in.Type), zap.String("conn_id", c.ID()))
		return
	}
	d.metrics.Event(in.Type)
	if err := h(ctx, c, in.Payload); err != nil {
		d.log.Debug("ws: event dropped",
			zap.String("type", in.Type),
			zap.String("conn_id", c.ID()),
			zap.Int64("user_id", c.UserID()),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) joinChannel(ctx context.Context, c *Client, payload json.RawMessage) error {
	channelID, err := decodeChannelID(payload)
	if err != nil {
		return err
	}
	if _, err := d.access.Access(ctx, c.UserID(), channelID); err != nil {
		return err
	}

	unlock := d.channelLocks.Lock(channelID)
	defer unlock()

	// Posts to this channel hold the same lock, so nothing lands between the
	// history read and the subscription.
	views, err := d.messages.History(ctx, c.UserID(), channelID)
	if err != nil {
		return err
	}
	d.hub.Subscribe(c, channelID)
	d.hub.SendTo(c, Event{Type: EventChannelHistory, Payload: HistoryPayload{ChannelID: channelID, Messages: views}})
	return nil
}

func (d *Dispatcher) leaveChannel(_ context.Context, c *Client, payload json.RawMessage) error {
	channelID, err := decodeChannelID(payload)
	if err != nil {
		return err
	}
	d.hub.Unsubscribe(c, channelID)
	return nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, c *Client, payload json.RawMessage) error {
	var in sendMessageIn
	if err := decode(payload, &in); err != nil {
		return err
	}

	unlock := d.channelLocks.Lock(in.ChannelID)
	defer unlock()

	view, err := d.messages.Post(ctx, c.UserID(), service.PostInput{
		ChannelID: in.ChannelID,
		Content:   in.Content,
		ReplyTo:   in.ReplyTo,
	})
	if err != nil {
		return err
	}
	d.metrics.MessagePosted()
	d.hub.BroadcastChannel(in.ChannelID, Event{Type: EventNewMessage, Payload: view}, nil)
	return nil
}

func (d *Dispatcher) editMessage(ctx context.Context, c *Client, payload json.RawMessage) error {
	var in editMessageIn
	if err := decode(payload, &in); err != nil {
		return err
	}

	unlock := d.channelLocks.Lock(in.ChannelID)
	defer unlock()

	if err := d.messages.Edit(ctx, c.UserID(), in.MessageID, in.ChannelID, in.Content); err != nil {
		return err
	}
	d.hub.BroadcastChannel(in.ChannelID, Event{Type: EventMessageEdited, Payload: MessageChangePayload{
		MessageID: in.MessageID,
		ChannelID: in.ChannelID,
		Content:   in.Content,
	}}, nil)
	return nil
}

func (d *Dispatcher) deleteMessage(ctx context.Context, c *Client, payload json.RawMessage) error {
	var in deleteMessageIn
	if err := decode(payload, &in); err != nil {
		return err
	}

	unlock := d.channelLocks.Lock(in.ChannelID)
	defer unlock()

	if err := d.messages.Delete(ctx, c.UserID(), c.Claims().IsAdmin(), in.MessageID, in.ChannelID); err != nil {
		return err
	}
	d.hub.BroadcastChannel(in.ChannelID, Event{Type: EventMessageDeleted, Payload: MessageChangePayload{
		MessageID: in.MessageID,
		ChannelID: in.ChannelID,
		Content:   domain.DeletedPlaceholder,
	}}, nil)
	return nil
}

// typing is relayed to the other subscribers only; nothing is stored and no
// timeout is applied.
func (d *Dispatcher) typing(_ context.Context, c *Client, payload json.RawMessage) error {
	var in typingIn
	if err := decode(payload, &in); err != nil {
		return err
	}
	if !d.hub.Subscribed(c, in.ChannelID) {
		return errNotSubscribed
	}
	d.hub.BroadcastChannel(in.ChannelID, Event{Type: EventUserTyping, Payload: TypingPayload{
		UserID:    c.UserID(),
		Username:  c.Claims().Username,
		ChannelID: in.ChannelID,
		IsTyping:  in.IsTyping,
	}}, c)
	return nil
}

func (d *Dispatcher) getOnlineUsers(ctx context.Context, c *Client, _ json.RawMessage) error {
	users, err := d.users.Directory(ctx)
	if err != nil {
		return err
	}
	d.hub.SendTo(c, Event{Type: EventOnlineUsersList, Payload: users})
	return nil
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: missing payload", domain.ErrInvalidInput)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// decodeChannelID accepts either {"channelId": n} or a bare number.
func decodeChannelID(payload json.RawMessage) (int64, error) {
	trimmed := bytes.TrimSpace(payload)
	var id int64
	if len(trimmed) > 0 && trimmed[0] != '{' {
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	} else {
		var ref channelRef
		if err := decode(payload, &ref); err != nil {
			return 0, err
		}
		id = ref.ChannelID
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: channel id required", domain.ErrInvalidInput)
	}
	return id, nil
}
