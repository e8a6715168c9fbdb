package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chatspace/internal/domain"
)

// LiveCounter reports live connection counts.
type LiveCounter interface {
	OnlineCount() int
	ConnectionCount() int
}

// AdminService implements the admin-only workspace operations. Every method
// checks the caller before touching storage.
type AdminService struct {
	users    domain.UserRepository
	channels domain.ChannelRepository
	messages domain.MessageRepository
	live     LiveCounter
	notify   Notifier
	log      *zap.Logger
}

func NewAdminService(
	users domain.UserRepository,
	channels domain.ChannelRepository,
	messages domain.MessageRepository,
	live LiveCounter,
	notify Notifier,
	log *zap.Logger,
) *AdminService {
	return &AdminService{
		users:    users,
		channels: channels,
		messages: messages,
		live:     live,
		notify:   notify,
		log:      log,
	}
}

func requireAdmin(caller *domain.User) error {
	if caller == nil || !domain.IsAdmin(caller.Username) {
		return domain.Errorf(domain.ErrForbidden, "Admin access required")
	}
	return nil
}

func (s *AdminService) Stats(ctx context.Context, caller *domain.User) (*domain.Stats, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	channels, err := s.channels.Count(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.Stats{
		Users:       users,
		Channels:    channels,
		Messages:    messages,
		OnlineUsers: s.live.OnlineCount(),
		Connections: s.live.ConnectionCount(),
	}, nil
}

func (s *AdminService) ListUsers(ctx context.Context, caller *domain.User) ([]*domain.User, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

// DeleteUser removes an identity and its messages, then tells live clients.
func (s *AdminService) DeleteUser(ctx context.Context, caller *domain.User, id int64) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if caller.ID == id {
		return domain.Errorf(domain.ErrInvalidInput, "Cannot delete yourself")
	}
	ok, err := s.users.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "User not found")
	}
	s.log.Info("identity deleted", zap.Int64("user_id", id), zap.String("by", caller.Username))
	s.notify.UserDeleted(id)
	return nil
}

func (s *AdminService) ListChannels(ctx context.Context, caller *domain.User) ([]*domain.Channel, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.channels.ListAll(ctx)
}

func (s *AdminService) DeleteChannel(ctx context.Context, caller *domain.User, id int64) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	ok, err := s.channels.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "Channel not found")
	}
	s.log.Info("channel deleted", zap.Int64("channel_id", id), zap.String("by", caller.Username))
	s.notify.ChannelDeleted(id)
	return nil
}
