package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chatspace/internal/domain"
	"chatspace/internal/service"
)

func TestJoinReplaysBoundedHistory(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice")
	for i := 0; i < 120; i++ {
		_, err := e.messages.Post(ctx, alice.ID, service.PostInput{ChannelID: e.general.ID, Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	c := e.connect(alice)
	drain(c)
	e.emit(t, c, EventJoinChannel, map[string]any{"channelId": e.general.ID})

	hist := ofType(drain(c), EventChannelHistory)
	require.Len(t, hist, 1)
	p := hist[0].Payload.(HistoryPayload)
	assert.Equal(t, e.general.ID, p.ChannelID)
	require.Len(t, p.Messages, 100)
	assert.Equal(t, "m20", p.Messages[0].Content)
	assert.Equal(t, "m119", p.Messages[99].Content)
	for i := 1; i < len(p.Messages); i++ {
		assert.Less(t, p.Messages[i-1].ID, p.Messages[i].ID)
	}
	assert.True(t, e.hub.Subscribed(c, e.general.ID))

	// Re-subscribing is idempotent and replays again.
	e.emit(t, c, EventJoinChannel, e.general.ID)
	assert.Len(t, ofType(drain(c), EventChannelHistory), 1)
}

func TestFanOutReachesOnlySubscribers(t *testing.T) {
	e := newTestEnv(t)
	a := e.connect(e.user(t, "alice"))
	b := e.connect(e.user(t, "bob"))
	outsider := e.connect(e.user(t, "carol"))

	e.emit(t, a, EventJoinChannel, map[string]any{"channelId": e.general.ID})
	e.emit(t, b, EventJoinChannel, map[string]any{"channelId": e.general.ID})
	e.emit(t, b, EventLeaveChannel, map[string]any{"channelId": e.general.ID})
	drain(a)
	drain(b)
	drain(outsider)

	e.emit(t, a, EventSendMessage, map[string]any{"channelId": e.general.ID, "content": "hello"})

	got := ofType(drain(a), EventNewMessage)
	require.Len(t, got, 1, "sender receives its own message")
	view := got[0].Payload.(*domain.MessageView)
	assert.Equal(t, "hello", view.Content)
	assert.Equal(t, "alice", view.Username)
	assert.Empty(t, drain(b))
	assert.Empty(t, drain(outsider))
}

func TestSendMessageSilentNoOps(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice")
	a := e.connect(alice)
	e.emit(t, a, EventJoinChannel, map[string]any{"channelId": e.general.ID})
	drain(a)

	e.emit(t, a, EventSendMessage, map[string]any{"channelId": e.general.ID, "content": "   "})
	e.emit(t, a, EventSendMessage, map[string]any{"channelId": e.general.ID, "content": "x", "replyTo": 999})
	e.emit(t, a, EventSendMessage, map[string]any{"channelId": 4242, "content": "nowhere"})
	e.emit(t, a, "no_such_event", nil)
	e.dispatcher.Dispatch(ctx, a, []byte("{not json"))

	assert.Empty(t, drain(a))
	views, err := e.messages.History(ctx, alice.ID, e.general.ID)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestReplyCarriesParentMetadata(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	parent, err := e.messages.Post(ctx, alice.ID, service.PostInput{ChannelID: e.general.ID, Content: "question"})
	require.NoError(t, err)

	b := e.connect(bob)
	e.emit(t, b, EventJoinChannel, map[string]any{"channelId": e.general.ID})
	drain(b)
	e.emit(t, b, EventSendMessage, map[string]any{"channelId": e.general.ID, "content": "answer", "replyTo": parent.ID})

	got := ofType(drain(b), EventNewMessage)
	require.Len(t, got, 1)
	view := got[0].Payload.(*domain.MessageView)
	require.NotNil(t, view.ReplyTo)
	assert.Equal(t, parent.ID, *view.ReplyTo)
	assert.Equal(t, "question", *view.ReplyContent)
	assert.Equal(t, "alice", *view.ReplyUsername)
}

func TestEditOnlyByAuthor(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	msg, err := e.messages.Post(ctx, alice.ID, service.PostInput{ChannelID: e.general.ID, Content: "original"})
	require.NoError(t, err)

	a, b := e.connect(alice), e.connect(bob)
	e.emit(t, a, EventJoinChannel, map[string]any{"channelId": e.general.ID})
	e.emit(t, b, EventJoinChannel, map[string]any{"channelId": e.general.ID})
	drain(a)
	drain(b)

	e.emit(t, b, EventEditMessage, map[string]any{"messageId": msg.ID, "channelId": e.general.ID, "content": "hijacked"})
	assert.Empty(t, drain(a), "foreign edit is not broadcast")
	views, err := e.messages.History(ctx, alice.ID, e.general.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", views[0].Content)
	assert.False(t, views[0].Edited)

	e.emit(t, a, EventEditMessage, map[string]any{"messageId": msg.ID, "channelId": e.general.ID, "content": "fixed"})
	edits := ofType(drain(b), EventMessageEdited)
	require.Len(t, edits, 1)
	assert.Equal(t, MessageChangePayload{MessageID: msg.ID, ChannelID: e.general.ID, Content: "fixed"}, edits[0].Payload)

	views, err = e.messages.History(ctx, alice.ID, e.general.ID)
	require.NoError(t, err)
	assert.Equal(t, "fixed", views[0].Content)
	assert.True(t, views[0].Edited)
}

func TestDeleteByAuthorOrAdmin(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, bob, admin := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "admin_x")
	msg, err := e.messages.Post(ctx, alice.ID, service.PostInput{ChannelID: e.general.ID, Content: "secret words"})
	require.NoError(t, err)

	a, b, root := e.connect(alice), e.connect(bob), e.connect(admin)
	for _, c := range []*Client{a, b, root} {
		e.emit(t, c, EventJoinChannel, map[string]any{"channelId": e.general.ID})
		drain(c)
	}

	e.emit(t, b, EventDeleteMessage, map[string]any{"messageId": msg.ID, "channelId": e.general.ID})
	assert.Empty(t, drain(a))

	e.emit(t, root, EventDeleteMessage, map[string]any{"messageId": msg.ID, "channelId": e.general.ID})
	dels := ofType(drain(a), EventMessageDeleted)
	require.Len(t, dels, 1)
	assert.Equal(t, domain.DeletedPlaceholder, dels[0].Payload.(MessageChangePayload).Content)
	assert.Len(t, ofType(drain(b), EventMessageDeleted), 1)
	assert.Len(t, ofType(drain(root), EventMessageDeleted), 1)

	// A second delete affects no row and is not broadcast.
	e.emit(t, a, EventDeleteMessage, map[string]any{"messageId": msg.ID, "channelId": e.general.ID})
	assert.Empty(t, drain(a))
	assert.Empty(t, drain(b))
	assert.Empty(t, drain(root))

	views, err := e.messages.History(ctx, bob.ID, e.general.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Deleted)
	assert.Equal(t, domain.DeletedPlaceholder, views[0].Content)
	assert.NotContains(t, views[0].Content, "secret")
}

func TestTypingExcludesSender(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	a, b := e.connect(alice), e.connect(bob)
	e.emit(t, a, EventJoinChannel, map[string]any{"channelId": e.general.ID})
	e.emit(t, b, EventJoinChannel, map[string]any{"channelId": e.general.ID})
	drain(a)
	drain(b)

	e.emit(t, a, EventTyping, map[string]any{"channelId": e.general.ID, "isTyping": true})
	assert.Empty(t, drain(a))
	got := ofType(drain(b), EventUserTyping)
	require.Len(t, got, 1)
	assert.Equal(t, TypingPayload{UserID: alice.ID, Username: "alice", ChannelID: e.general.ID, IsTyping: true}, got[0].Payload)

	e.emit(t, b, EventLeaveChannel, map[string]any{"channelId": e.general.ID})
	e.emit(t, b, EventTyping, map[string]any{"channelId": e.general.ID, "isTyping": true})
	assert.Empty(t, drain(a), "unsubscribed sender is ignored")
}

func TestPrivateChannelRequiresMembership(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	alice, bob, carol := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "carol")
	a, b, c := e.connect(alice), e.connect(bob), e.connect(carol)
	drain(a)
	drain(b)
	drain(c)

	group, err := e.channels.Create(ctx, service.ChannelCreateInput{Name: "team", MemberIDs: []int64{bob.ID}}, alice.ID)
	require.NoError(t, err)

	assert.Len(t, ofType(drain(a), EventChannelCreated), 1)
	assert.Len(t, ofType(drain(b), EventChannelCreated), 1)
	assert.Empty(t, drain(c), "non-members do not learn about private groups")

	e.emit(t, c, EventJoinChannel, map[string]any{"channelId": group.ID})
	assert.Empty(t, drain(c))
	assert.False(t, e.hub.Subscribed(c, group.ID))

	e.emit(t, c, EventSendMessage, map[string]any{"channelId": group.ID, "content": "let me in"})
	views, err := e.messages.History(ctx, alice.ID, group.ID)
	require.NoError(t, err)
	assert.Empty(t, views)

	e.emit(t, b, EventJoinChannel, map[string]any{"channelId": group.ID})
	assert.Len(t, ofType(drain(b), EventChannelHistory), 1)

	pub, err := e.channels.Create(ctx, service.ChannelCreateInput{Name: "random"}, alice.ID)
	require.NoError(t, err)
	created := ofType(drain(c), EventChannelCreated)
	require.Len(t, created, 1)
	assert.Equal(t, pub.ID, created[0].Payload.(*domain.Channel).ID)
}

func TestGetOnlineUsers(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "alice")
	e.user(t, "bob")
	a := e.connect(alice)
	drain(a)

	e.emit(t, a, EventGetOnlineUsers, nil)
	lists := ofType(drain(a), EventOnlineUsersList)
	require.Len(t, lists, 1)
	users := lists[0].Payload.([]domain.UserPresence)
	require.Len(t, users, 2)
	assert.Equal(t, domain.UserPresence{ID: alice.ID, Username: "alice", Color: "#22c55e", Status: "online"}, users[0])
	assert.Equal(t, "offline", users[1].Status)
}

func TestDeletedIdentityIsDisconnected(t *testing.T) {
	e := newTestEnv(t)
	alice, bob := e.user(t, "alice"), e.user(t, "bob")
	a := e.connect(alice)
	b1, b2 := e.connect(bob), e.connect(bob)
	drain(a)

	e.hub.UserDeleted(bob.ID)

	for _, c := range []*Client{b1, b2} {
		select {
		case <-c.Done():
		default:
			t.Fatal("connection of deleted identity left open")
		}
	}
	got := ofType(drain(a), EventUserDeleted)
	require.Len(t, got, 1)
	assert.Equal(t, UserDeletedPayload{UserID: bob.ID}, got[0].Payload)
}

func TestChannelDeletedDropsGroup(t *testing.T) {
	e := newTestEnv(t)
	a := e.connect(e.user(t, "alice"))
	e.emit(t, a, EventJoinChannel, map[string]any{"channelId": e.general.ID})
	drain(a)

	e.hub.ChannelDeleted(e.general.ID)
	assert.Len(t, ofType(drain(a), EventChannelDeleted), 1)
	assert.False(t, e.hub.Subscribed(a, e.general.ID))
}

func TestSlowClientIsClosed(t *testing.T) {
	e := newTestEnv(t)
	a := e.connect(e.user(t, "alice"))
	e.hub.Subscribe(a, e.general.ID)

	for i := 0; i < sendQueueSize+1; i++ {
		e.hub.BroadcastChannel(e.general.ID, Event{Type: EventUserTyping}, nil)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("slow client not closed")
	}
	assert.Zero(t, e.hub.BroadcastChannel(e.general.ID, Event{Type: EventUserTyping}, nil))
}

func TestCloseAllEndsEveryConnection(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	c1, c2 := e.connect(a), e.connect(b)

	e.hub.CloseAll()
	for _, c := range []*Client{c1, c2} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("connection %s still open", c.ID())
		}
	}
}

type failingHistory struct {
	MessageLog
}

func (failingHistory) History(context.Context, int64, int64) ([]*domain.MessageView, error) {
	return nil, errors.New("disk on fire")
}

func TestJoinWithoutHistoryLeavesUnsubscribed(t *testing.T) {
	e := newTestEnv(t)
	alice := e.user(t, "alice")
	d := NewDispatcher(e.hub, e.channels, failingHistory{MessageLog: e.messages}, nil, nil, zap.NewNop())

	c := e.connect(alice)
	drain(c)
	frame, err := json.Marshal(map[string]any{"type": EventJoinChannel, "payload": map[string]any{"channelId": e.general.ID}})
	require.NoError(t, err)
	d.Dispatch(context.Background(), c, frame)

	assert.False(t, e.hub.Subscribed(c, e.general.ID))
	assert.Empty(t, ofType(drain(c), EventChannelHistory))
}
