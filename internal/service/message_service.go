package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"chatspace/internal/domain"
)

const maxContentLen = 5000

// ChannelAccess decides whether an identity may use a channel.
type ChannelAccess interface {
	Access(ctx context.Context, userID, channelID int64) (*domain.Channel, error)
}

// MessageService persists channel messages. Fan-out is the caller's job.
type MessageService struct {
	messages     domain.MessageRepository
	access       ChannelAccess
	log          *zap.Logger
	historyLimit int
}

func NewMessageService(messages domain.MessageRepository, access ChannelAccess, historyLimit int, log *zap.Logger) *MessageService {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &MessageService{
		messages:     messages,
		access:       access,
		log:          log,
		historyLimit: historyLimit,
	}
}

type PostInput struct {
	ChannelID int64
	Content   string
	ReplyTo   *int64
}

// Post stores a message and returns it joined with author and reply metadata.
func (s *MessageService) Post(ctx context.Context, authorID int64, in PostInput) (*domain.MessageView, error) {
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	if _, err := s.access.Access(ctx, authorID, in.ChannelID); err != nil {
		return nil, err
	}
	if in.ReplyTo != nil {
		target, err := s.messages.GetByID(ctx, *in.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("get reply target: %w", err)
		}
		if target == nil || target.ChannelID != in.ChannelID {
			return nil, domain.Errorf(domain.ErrInvalidInput, "Reply target must be a message in the same channel")
		}
	}

	msg := &domain.Message{
		ChannelID: in.ChannelID,
		UserID:    authorID,
		Content:   in.Content,
		ReplyTo:   in.ReplyTo,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	view, err := s.messages.GetView(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, fmt.Errorf("message %d missing after insert: %w", msg.ID, domain.ErrInternal)
	}
	return view, nil
}

// Edit replaces the content of a live message. Only its author may edit it.
func (s *MessageService) Edit(ctx context.Context, editorID, messageID, channelID int64, content string) error {
	if err := validateContent(content); err != nil {
		return err
	}
	msg, err := s.lookup(ctx, editorID, messageID, channelID)
	if err != nil {
		return err
	}
	if msg.UserID != editorID {
		return domain.Errorf(domain.ErrForbidden, "Only the author can edit a message")
	}
	ok, err := s.messages.UpdateContent(ctx, messageID, channelID, editorID, content)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "Message not found")
	}
	return nil
}

// Delete soft-deletes a message. The author and admins may delete.
func (s *MessageService) Delete(ctx context.Context, callerID int64, isAdmin bool, messageID, channelID int64) error {
	msg, err := s.lookup(ctx, callerID, messageID, channelID)
	if err != nil {
		return err
	}
	if msg.UserID != callerID && !isAdmin {
		return domain.Errorf(domain.ErrForbidden, "Only the author or an admin can delete a message")
	}
	ok, err := s.messages.SoftDelete(ctx, messageID, channelID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "Message not found")
	}
	s.log.Debug("message deleted",
		zap.Int64("message_id", messageID),
		zap.Int64("channel_id", channelID),
		zap.Int64("by", callerID),
	)
	return nil
}

// History returns the most recent messages of a channel, oldest first.
func (s *MessageService) History(ctx context.Context, userID, channelID int64) ([]*domain.MessageView, error) {
	if _, err := s.access.Access(ctx, userID, channelID); err != nil {
		return nil, err
	}
	views, err := s.messages.ListRecent(ctx, channelID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []*domain.MessageView{}
	}
	return views, nil
}

// lookup returns a live message of channelID visible to userID.
func (s *MessageService) lookup(ctx context.Context, userID, messageID, channelID int64) (*domain.Message, error) {
	if _, err := s.access.Access(ctx, userID, channelID); err != nil {
		return nil, err
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil || msg.ChannelID != channelID || msg.Deleted {
		return nil, domain.Errorf(domain.ErrNotFound, "Message not found")
	}
	return msg, nil
}

func validateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return domain.Errorf(domain.ErrInvalidInput, "Message content cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxContentLen {
		return domain.Errorf(domain.ErrInvalidInput, "Message content exceeds %d characters", maxContentLen)
	}
	if strings.HasPrefix(trimmed, `{"type":"attachment"`) {
		var a domain.Attachment
		if err := json.Unmarshal([]byte(trimmed), &a); err != nil || a.URL == "" || a.Name == "" {
			return domain.Errorf(domain.ErrInvalidInput, "Malformed attachment")
		}
	}
	return nil
}
