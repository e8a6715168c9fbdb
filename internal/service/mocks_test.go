package service_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"chatspace/internal/domain"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) List(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepo) SetStatus(ctx context.Context, id int64, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockUserRepo) Delete(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockChannelRepo struct {
	mock.Mock
}

func (m *MockChannelRepo) Create(ctx context.Context, c *domain.Channel, memberIDs []int64) error {
	args := m.Called(ctx, c, memberIDs)
	return args.Error(0)
}

func (m *MockChannelRepo) GetByID(ctx context.Context, id int64) (*domain.Channel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Channel), args.Error(1)
}

func (m *MockChannelRepo) GetByName(ctx context.Context, name string, kind domain.ChannelKind) (*domain.Channel, error) {
	args := m.Called(ctx, name, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Channel), args.Error(1)
}

func (m *MockChannelRepo) ListVisible(ctx context.Context, userID int64) ([]*domain.Channel, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Channel), args.Error(1)
}

func (m *MockChannelRepo) ListAll(ctx context.Context) ([]*domain.Channel, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Channel), args.Error(1)
}

func (m *MockChannelRepo) IsMember(ctx context.Context, channelID, userID int64) (bool, error) {
	args := m.Called(ctx, channelID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockChannelRepo) MemberIDs(ctx context.Context, channelID int64) ([]int64, error) {
	args := m.Called(ctx, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockChannelRepo) Delete(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockChannelRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) GetView(ctx context.Context, id int64) (*domain.MessageView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MessageView), args.Error(1)
}

func (m *MockMessageRepo) ListRecent(ctx context.Context, channelID int64, limit int) ([]*domain.MessageView, error) {
	args := m.Called(ctx, channelID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.MessageView), args.Error(1)
}

func (m *MockMessageRepo) UpdateContent(ctx context.Context, id, channelID, authorID int64, content string) (bool, error) {
	args := m.Called(ctx, id, channelID, authorID, content)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepo) SoftDelete(ctx context.Context, id, channelID int64) (bool, error) {
	args := m.Called(ctx, id, channelID)
	return args.Bool(0), args.Error(1)
}

func (m *MockMessageRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// recordingNotifier captures notifications; safe for concurrent use.
type recordingNotifier struct {
	mu             sync.Mutex
	created        []*domain.Channel
	createdMembers [][]int64
	deletedUsers   []int64
	deletedChans   []int64
}

func (n *recordingNotifier) ChannelCreated(ch *domain.Channel, memberIDs []int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, ch)
	n.createdMembers = append(n.createdMembers, memberIDs)
}

func (n *recordingNotifier) ChannelDeleted(channelID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deletedChans = append(n.deletedChans, channelID)
}

func (n *recordingNotifier) UserDeleted(userID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deletedUsers = append(n.deletedUsers, userID)
}

func (n *recordingNotifier) createdCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.created)
}

type fakeLive struct {
	online      map[int64]bool
	connections int
}

func (f fakeLive) IsOnline(id int64) bool { return f.online[id] }

func (f fakeLive) OnlineCount() int { return len(f.online) }

func (f fakeLive) ConnectionCount() int { return f.connections }
