package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"chatspace/internal/domain"
	"chatspace/internal/security"
)

// Palette is the fixed set of display colours assigned at registration.
var Palette = []string{
	"#ef4444", "#f97316", "#eab308", "#84cc16", "#22c55e", "#0ea5e9",
	"#3b82f6", "#6366f1", "#a855f7", "#d946ef", "#f43f5e",
}

const maxUsernameLen = 32

// AuthService registers identities, issues credentials and verifies them.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
	hash   *security.PasswordHasher
	log    *zap.Logger

	pickColor func() string
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher, log *zap.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hash:   hash,
		log:    log,
		pickColor: func() string {
			return Palette[rand.Intn(len(Palette))]
		},
	}
}

type RegisterInput struct {
	Username string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

type LoginResult struct {
	Token string
	User  *domain.User
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, "Username and password required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return nil, domain.Errorf(domain.ErrInvalidInput, "Username must be at most %d characters", maxUsernameLen)
	}

	if existing, err := s.users.GetByUsername(ctx, username); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	} else if existing != nil {
		return nil, domain.Errorf(domain.ErrConflict, "Username already taken")
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:       username,
		HashedPassword: hashed,
		Color:          s.pickColor(),
		Status:         domain.StatusOffline,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration of the same name.
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Errorf(domain.ErrConflict, "Username already taken")
		}
		return nil, err
	}
	s.log.Info("identity registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Login checks the password and issues a credential.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(in.Username))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		_ = s.hash.VerifyMissing(in.Password)
		return nil, domain.Errorf(domain.ErrInvalidCredentials, "Invalid credentials")
	}
	if err := s.hash.Verify(in.Password, user.HashedPassword); err != nil {
		return nil, domain.Errorf(domain.ErrInvalidCredentials, "Invalid credentials")
	}

	token, err := s.tokens.CreateForUser(user)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	return &LoginResult{Token: token, User: user}, nil
}

// Verify validates a bearer credential and resolves it to a live identity.
// Credentials of deleted identities are rejected even before they expire.
func (s *AuthService) Verify(ctx context.Context, token string) (*security.Claims, *domain.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, nil, fmt.Errorf("%w: identity %d no longer exists", domain.ErrUnauthorized, claims.UserID)
	}
	return claims, user, nil
}
