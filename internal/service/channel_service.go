package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"chatspace/internal/domain"
)

const maxChannelNameLen = 64

// Notifier receives directory and admin mutations so they can be pushed to
// live connections.
type Notifier interface {
	ChannelCreated(ch *domain.Channel, memberIDs []int64)
	ChannelDeleted(channelID int64)
	UserDeleted(userID int64)
}

// ChannelService resolves channel visibility and creates channels.
type ChannelService struct {
	channels domain.ChannelRepository
	users    domain.UserRepository
	notify   Notifier
	log      *zap.Logger

	direct singleflight.Group
}

func NewChannelService(channels domain.ChannelRepository, users domain.UserRepository, notify Notifier, log *zap.Logger) *ChannelService {
	return &ChannelService{
		channels: channels,
		users:    users,
		notify:   notify,
		log:      log,
	}
}

type ChannelCreateInput struct {
	Name      string
	MemberIDs []int64
}

// ListVisible returns public channels plus the direct and private-group
// channels userID is a member of.
func (s *ChannelService) ListVisible(ctx context.Context, userID int64) ([]*domain.Channel, error) {
	return s.channels.ListVisible(ctx, userID)
}

// Create makes a public channel, or a private group when member ids are given.
// The creator is always a member of a private group.
func (s *ChannelService) Create(ctx context.Context, in ChannelCreateInput, creatorID int64) (*domain.Channel, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, "Channel name required")
	}
	if utf8.RuneCountInString(name) > maxChannelNameLen {
		return nil, domain.Errorf(domain.ErrInvalidInput, "Channel name must be at most %d characters", maxChannelNameLen)
	}

	ch := &domain.Channel{Name: name, Kind: domain.KindPublic, CreatedBy: &creatorID}
	var members []int64
	if len(in.MemberIDs) > 0 {
		ch.Kind = domain.KindPrivateGroup
		members = []int64{creatorID}
		seen := map[int64]struct{}{creatorID: {}}
		for _, id := range in.MemberIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			u, err := s.users.GetByID(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("get member: %w", err)
			}
			if u == nil {
				return nil, domain.Errorf(domain.ErrInvalidInput, "Unknown member %d", id)
			}
			members = append(members, id)
		}
	}

	if err := s.channels.Create(ctx, ch, members); err != nil {
		return nil, err
	}
	s.log.Info("channel created",
		zap.Int64("channel_id", ch.ID),
		zap.String("kind", string(ch.Kind)),
		zap.Int("members", len(members)),
	)
	s.notify.ChannelCreated(ch, members)
	return ch, nil
}

// GetOrCreateDirect returns the direct channel between a and b, creating it
// on first use. Concurrent calls for the same pair return the same row.
func (s *ChannelService) GetOrCreateDirect(ctx context.Context, a, b int64) (*domain.Channel, error) {
	if a == b {
		return nil, domain.Errorf(domain.ErrInvalidInput, "Cannot open a direct channel with yourself")
	}
	target, err := s.users.GetByID(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	if target == nil {
		return nil, domain.Errorf(domain.ErrNotFound, "User not found")
	}

	name := domain.DirectChannelName(a, b)
	v, err, _ := s.direct.Do(name, func() (any, error) {
		return s.findOrCreateDirect(context.WithoutCancel(ctx), name, a, b)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Channel), nil
}

func (s *ChannelService) findOrCreateDirect(ctx context.Context, name string, a, b int64) (*domain.Channel, error) {
	existing, err := s.channels.GetByName(ctx, name, domain.KindDirect)
	if err != nil {
		return nil, fmt.Errorf("find direct channel: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	ch := &domain.Channel{Name: name, Kind: domain.KindDirect}
	members := []int64{a, b}
	err = s.channels.Create(ctx, ch, members)
	if errors.Is(err, domain.ErrConflict) {
		// Another process created the row between the lookup and the insert.
		existing, err = s.channels.GetByName(ctx, name, domain.KindDirect)
		if err != nil {
			return nil, fmt.Errorf("re-read direct channel: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("direct channel %s vanished after conflict", name)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	s.log.Info("direct channel created", zap.Int64("channel_id", ch.ID), zap.String("name", name))
	s.notify.ChannelCreated(ch, members)
	return ch, nil
}

// Access returns the channel when userID may read and post in it.
func (s *ChannelService) Access(ctx context.Context, userID, channelID int64) (*domain.Channel, error) {
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return nil, domain.Errorf(domain.ErrNotFound, "Channel not found")
	}
	if ch.IsPublic() {
		return ch, nil
	}
	ok, err := s.channels.IsMember(ctx, channelID, userID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return nil, domain.Errorf(domain.ErrForbidden, "Not a member of this channel")
	}
	return ch, nil
}

func (s *ChannelService) MemberIDs(ctx context.Context, channelID int64) ([]int64, error) {
	return s.channels.MemberIDs(ctx, channelID)
}
