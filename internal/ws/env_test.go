package ws

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"chatspace/internal/domain"
	"chatspace/internal/security"
	"chatspace/internal/service"
	"chatspace/internal/store/sqlite"
)

type testEnv struct {
	users    *sqlite.UserRepo
	channels *service.ChannelService
	messages *service.MessageService
	auth     *service.AuthService
	tokens   *security.TokenService

	hub        *Hub
	tracker    *Tracker
	dispatcher *Dispatcher
	general    *domain.Channel
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.Migrate(ctx, db, "general"))

	log := zap.NewNop()
	users := sqlite.NewUserRepo(db)
	channelRepo := sqlite.NewChannelRepo(db)
	hub := NewHub(nil, log)
	tracker := NewTracker(hub, users, nil, log)
	channels := service.NewChannelService(channelRepo, users, hub, log)
	messages := service.NewMessageService(sqlite.NewMessageRepo(db), channels, 100, log)
	directory := service.NewUserService(users, tracker)
	tokens := security.NewTokenService("test-secret", security.CredentialTTL)

	general, err := channelRepo.GetByName(ctx, "general", domain.KindPublic)
	require.NoError(t, err)

	return &testEnv{
		users:      users,
		channels:   channels,
		messages:   messages,
		auth:       service.NewAuthService(users, tokens, security.NewPasswordHasher(bcrypt.MinCost), log),
		tokens:     tokens,
		hub:        hub,
		tracker:    tracker,
		dispatcher: NewDispatcher(hub, channels, messages, directory, nil, log),
		general:    general,
	}
}

func (e *testEnv) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u := &domain.User{Username: name, HashedPassword: "x", Color: "#22c55e"}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) connect(u *domain.User) *Client {
	c := NewClient(&security.Claims{UserID: u.ID, Username: u.Username, Color: u.Color})
	e.tracker.Connect(context.Background(), c)
	return c
}

func (e *testEnv) emit(t *testing.T, c *Client, eventType string, payload any) {
	t.Helper()
	frame, err := json.Marshal(map[string]any{"type": eventType, "payload": payload})
	require.NoError(t, err)
	e.dispatcher.Dispatch(context.Background(), c, frame)
}

// drain returns every event queued for c so far.
func drain(c *Client) []Event {
	var out []Event
	for {
		select {
		case ev := <-c.send:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func ofType(events []Event, eventType string) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
