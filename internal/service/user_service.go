package service

import (
	"context"

	"chatspace/internal/domain"
)

// PresenceSource answers whether an identity currently has a live connection.
type PresenceSource interface {
	IsOnline(userID int64) bool
}

// UserService provides the identity directory.
type UserService struct {
	users    domain.UserRepository
	presence PresenceSource
}

func NewUserService(users domain.UserRepository, presence PresenceSource) *UserService {
	return &UserService{users: users, presence: presence}
}

// Profile is the caller's own identity.
type Profile struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color"`
	IsAdmin  bool   `json:"isAdmin"`
}

func (s *UserService) Profile(u *domain.User) *Profile {
	return &Profile{
		ID:       u.ID,
		Username: u.Username,
		Color:    u.Color,
		IsAdmin:  domain.IsAdmin(u.Username),
	}
}

// Directory lists every identity with its live presence status. The status
// comes from live connections, not the cached column.
func (s *UserService) Directory(ctx context.Context) ([]domain.UserPresence, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UserPresence, 0, len(users))
	for _, u := range users {
		status := domain.StatusOffline
		if s.presence.IsOnline(u.ID) {
			status = domain.StatusOnline
		}
		out = append(out, domain.UserPresence{
			ID:       u.ID,
			Username: u.Username,
			Color:    u.Color,
			Status:   status,
		})
	}
	return out, nil
}
