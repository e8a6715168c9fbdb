package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatspace/internal/domain"
	"chatspace/internal/service"
)

// openAccess lets everyone into channel 1 and nobody into anything else.
type openAccess struct{}

func (openAccess) Access(_ context.Context, _, channelID int64) (*domain.Channel, error) {
	if channelID != 1 {
		return nil, domain.Errorf(domain.ErrForbidden, "Not a member of this channel")
	}
	return &domain.Channel{ID: 1, Kind: domain.KindPublic}, nil
}

func newMessages(repo *MockMessageRepo) *service.MessageService {
	return service.NewMessageService(repo, openAccess{}, 100, zap.NewNop())
}

func TestPost(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		repo := new(MockMessageRepo)
		svc := newMessages(repo)
		view := &domain.MessageView{ID: 5, ChannelID: 1, UserID: 2, Content: "hi", Username: "bob"}
		repo.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			return m.ChannelID == 1 && m.UserID == 2 && m.Content == "hi"
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Message).ID = 5
		}).Return(nil)
		repo.On("GetView", mock.Anything, int64(5)).Return(view, nil)

		got, err := svc.Post(ctx, 2, service.PostInput{ChannelID: 1, Content: "hi"})
		require.NoError(t, err)
		assert.Same(t, view, got)
	})

	t.Run("BlankContent", func(t *testing.T) {
		repo := new(MockMessageRepo)
		svc := newMessages(repo)
		_, err := svc.Post(ctx, 2, service.PostInput{ChannelID: 1, Content: " \n\t "})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("ReplyInOtherChannel", func(t *testing.T) {
		repo := new(MockMessageRepo)
		svc := newMessages(repo)
		target := int64(9)
		repo.On("GetByID", mock.Anything, target).Return(&domain.Message{ID: 9, ChannelID: 3}, nil)

		_, err := svc.Post(ctx, 2, service.PostInput{ChannelID: 1, Content: "re", ReplyTo: &target})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("ReplyMissing", func(t *testing.T) {
		repo := new(MockMessageRepo)
		svc := newMessages(repo)
		target := int64(9)
		repo.On("GetByID", mock.Anything, target).Return(nil, nil)

		_, err := svc.Post(ctx, 2, service.PostInput{ChannelID: 1, Content: "re", ReplyTo: &target})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("NotVisible", func(t *testing.T) {
		repo := new(MockMessageRepo)
		svc := newMessages(repo)
		_, err := svc.Post(ctx, 2, service.PostInput{ChannelID: 7, Content: "hi"})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("Attachment", func(t *testing.T) {
		repo := new(MockMessageRepo)
		svc := newMessages(repo)

		_, err := svc.Post(ctx, 2, service.PostInput{ChannelID: 1, Content: `{"type":"attachment","url":`})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		ok := `{"type":"attachment","url":"/api/uploads/a.png","name":"a.png","size":3,"mimeType":"image/png"}`
		repo.On("Create", mock.Anything, mock.Anything).Return(nil)
		repo.On("GetView", mock.Anything, mock.Anything).Return(&domain.MessageView{Content: ok}, nil)
		_, err = svc.Post(ctx, 2, service.PostInput{ChannelID: 1, Content: ok})
		assert.NoError(t, err)
	})
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	repo := new(MockMessageRepo)
	svc := newMessages(repo)
	repo.On("GetByID", mock.Anything, int64(5)).Return(&domain.Message{ID: 5, ChannelID: 1, UserID: 2, Content: "orig"}, nil)
	repo.On("GetByID", mock.Anything, int64(6)).Return(&domain.Message{ID: 6, ChannelID: 1, UserID: 2, Deleted: true}, nil)
	repo.On("UpdateContent", mock.Anything, int64(5), int64(1), int64(2), "new").Return(true, nil)

	assert.NoError(t, svc.Edit(ctx, 2, 5, 1, "new"))

	err := svc.Edit(ctx, 3, 5, 1, "hijack")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	repo.AssertNotCalled(t, "UpdateContent", mock.Anything, int64(5), int64(1), int64(3), "hijack")

	err = svc.Edit(ctx, 2, 6, 1, "resurrect")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.Edit(ctx, 2, 5, 1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo := new(MockMessageRepo)
	svc := newMessages(repo)
	repo.On("GetByID", mock.Anything, int64(5)).Return(&domain.Message{ID: 5, ChannelID: 1, UserID: 2}, nil)
	repo.On("GetByID", mock.Anything, int64(7)).Return(nil, nil)
	repo.On("SoftDelete", mock.Anything, int64(5), int64(1)).Return(true, nil)

	assert.ErrorIs(t, svc.Delete(ctx, 3, false, 5, 1), domain.ErrForbidden)
	repo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything)

	assert.NoError(t, svc.Delete(ctx, 3, true, 5, 1), "admin may delete")
	assert.NoError(t, svc.Delete(ctx, 2, false, 5, 1), "author may delete")
	assert.ErrorIs(t, svc.Delete(ctx, 2, false, 7, 1), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, 2, false, 5, 4), domain.ErrForbidden)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	repo := new(MockMessageRepo)
	svc := service.NewMessageService(repo, openAccess{}, 25, zap.NewNop())
	repo.On("ListRecent", mock.Anything, int64(1), 25).Return(nil, nil)

	views, err := svc.History(ctx, 2, 1)
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)

	_, err = svc.History(ctx, 2, 9)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
