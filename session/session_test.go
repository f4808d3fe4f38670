package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"fruitmart/game"
	"fruitmart/protocol"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 20 * time.Millisecond
)

type failTransport struct{}

func (failTransport) Open(context.Context, string) (Channel, error) {
	return nil, errors.New("relay unreachable")
}

func connect(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Connect(ctx))
	t.Cleanup(func() { _ = s.Close() })
}

func TestAllocatorIdempotentAndCapped(t *testing.T) {
	a := NewAllocator(3)

	first, ok := a.Assign("n1", "bob")
	require.True(t, ok)
	assert.Equal(t, 2, first.PlayerID)

	again, ok := a.Assign("n1", "bob")
	require.True(t, ok)
	assert.Equal(t, first, again)

	second, ok := a.Assign("n2", "eve")
	require.True(t, ok)
	assert.Equal(t, 3, second.PlayerID)

	_, ok = a.Assign("n3", "mallory")
	assert.False(t, ok)

	assert.Equal(t, []Assignment{first, second}, a.Assignments())
}

func TestRosterSortedByIDThenName(t *testing.T) {
	got := rosterFromPresence([]protocol.PresenceEntry{
		{Key: "c", Meta: protocol.Presence{PlayerID: 2, PlayerName: "zed"}},
		{Key: "a", Meta: protocol.Presence{PlayerID: 1, PlayerName: "host"}},
		{Key: "d", Meta: protocol.Presence{PlayerID: 0, PlayerName: "bea"}},
		{Key: "b", Meta: protocol.Presence{PlayerID: 0, PlayerName: "amy"}},
	})
	names := make([]string, 0, len(got))
	for _, m := range got {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"amy", "bea", "host", "zed"}, names)
}

func TestFailedSubscribeStaysSubscribing(t *testing.T) {
	s := CreateRoom(failTransport{}, "host")
	assert.Equal(t, Disconnected, s.Status())

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, Subscribing, s.Status())

	assert.ErrorIs(t, s.StartGame(context.Background()), ErrNotSubscribed)
}

func TestCreateRoomIsHostWithFixedID(t *testing.T) {
	s := CreateRoom(NewMemTransport(), "host")
	assert.Equal(t, Host, s.Role())
	assert.Equal(t, HostID, s.PlayerID())
	assert.True(t, protocol.ValidCode(s.Code()))
	assert.Equal(t, "game:"+s.Code(), s.Topic())

	c := JoinRoom(NewMemTransport(), " ab2c", "guest")
	assert.Equal(t, Client, c.Role())
	assert.Equal(t, 0, c.PlayerID())
	assert.Equal(t, "AB2C", c.Code())
}

func TestIdentityHandshakeAssignsSequentialIDs(t *testing.T) {
	tr := NewMemTransport()
	host := CreateRoom(tr, "host")
	connect(t, host)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	var assigned []int
	var mu sync.Mutex
	for _, name := range []string{"bob", "eve"} {
		c := JoinRoom(tr, host.Code(), name)
		c.Handle(Handlers{OnIdentityAssigned: func(id int) {
			mu.Lock()
			assigned = append(assigned, id)
			mu.Unlock()
		}})
		connect(t, c)

		id, err := c.AwaitIdentity(ctx, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, id, c.PlayerID())
	}

	as := host.Assignments()
	require.Len(t, as, 2)
	assert.Equal(t, 2, as[0].PlayerID)
	assert.Equal(t, "bob", as[0].Name)
	assert.Equal(t, 3, as[1].PlayerID)
	assert.Equal(t, "eve", as[1].Name)

	mu.Lock()
	assert.ElementsMatch(t, []int{2, 3}, assigned)
	mu.Unlock()

	// 名单来自在线状态，客户端采纳 id 后重新上报
	require.Eventually(t, func() bool {
		m := host.Members()
		return len(m) == 3 && m[0].PlayerID == 1 && m[1].PlayerID == 2 && m[2].PlayerID == 3
	}, waitFor, tick)
}

func TestRepeatedIdentityRequestsKeepOneID(t *testing.T) {
	tr := NewMemTransport()
	host := CreateRoom(tr, "host")
	connect(t, host)

	c := JoinRoom(tr, host.Code(), "bob")
	connect(t, c)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.RequestIdentity(ctx))
	}

	id, err := c.AwaitIdentity(ctx, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	require.Eventually(t, func() bool { return len(host.Assignments()) == 1 }, waitFor, tick)
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, host.Assignments(), 1)
}

func TestIdentityRefusedWhenRoomFull(t *testing.T) {
	tr := NewMemTransport()
	host := CreateRoom(tr, "host", WithMaxPlayers(2))
	connect(t, host)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	first := JoinRoom(tr, host.Code(), "bob")
	connect(t, first)
	id, err := first.AwaitIdentity(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, id)

	late := JoinRoom(tr, host.Code(), "eve")
	connect(t, late)
	shortCtx, cancelShort := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancelShort()
	_, err = late.AwaitIdentity(shortCtx, 100*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, late.PlayerID())
}

func TestInputReachesHostAndStateReachesClient(t *testing.T) {
	tr := NewMemTransport()
	host := CreateRoom(tr, "host")
	inputs := make(chan game.Input, 4)
	host.Handle(Handlers{
		OnPlayerInput: func(in game.Input) { inputs <- in },
		OnStateUpdate: func(*game.State) { t.Error("host must not receive state") },
	})
	connect(t, host)

	c := JoinRoom(tr, host.Code(), "bob")
	states := make(chan *game.State, 4)
	started := make(chan struct{}, 1)
	c.Handle(Handlers{
		OnStateUpdate: func(s *game.State) { states <- s },
		OnGameStart:   func() { started <- struct{}{} },
		OnPlayerInput: func(game.Input) { t.Error("client must not receive input") },
	})
	connect(t, c)

	ctx := context.Background()
	require.NoError(t, c.SendInput(ctx, game.Input{PlayerID: 2, Keys: game.Keys{Left: true}}))
	select {
	case in := <-inputs:
		assert.Equal(t, 2, in.PlayerID)
		assert.True(t, in.Keys.Left)
	case <-time.After(waitFor):
		t.Fatal("input not delivered")
	}

	require.NoError(t, host.StartGame(ctx))
	select {
	case <-started:
	case <-time.After(waitFor):
		t.Fatal("game_start not delivered")
	}

	st := game.NewState(game.DefaultTuning(), []game.Participant{{ID: 1, Name: "host"}, {ID: 2, Name: "bob"}})
	st.Money = 42
	require.NoError(t, host.BroadcastState(ctx, st))
	select {
	case got := <-states:
		assert.Equal(t, 42, got.Money)
		assert.Len(t, got.Players, 2)
	case <-time.After(waitFor):
		t.Fatal("state not delivered")
	}
}

func TestClientCannotActAsHost(t *testing.T) {
	tr := NewMemTransport()
	c := JoinRoom(tr, "ABCD", "bob")
	connect(t, c)

	ctx := context.Background()
	assert.ErrorIs(t, c.BroadcastState(ctx, &game.State{}), ErrNotHost)
	assert.ErrorIs(t, c.StartGame(ctx), ErrNotHost)

	id, err := CreateRoom(tr, "h").AwaitIdentity(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, HostID, id)
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	tr := NewMemTransport()
	c := JoinRoom(tr, "ABCD", "bob")
	states := make(chan *game.State, 4)
	c.Handle(Handlers{OnStateUpdate: func(s *game.State) { states <- s }})
	connect(t, c)

	ctx := context.Background()
	raw, err := tr.Open(ctx, c.Topic())
	require.NoError(t, err)
	defer raw.Close()

	require.NoError(t, raw.Send(ctx, protocol.EventGameState, json.RawMessage(`{"state":5}`)))
	require.NoError(t, raw.Send(ctx, "no_such_event", json.RawMessage(`{}`)))
	require.NoError(t, raw.Send(ctx, protocol.EventGameState, protocol.StatePayload{State: &game.State{
		Players: []game.Player{}, Plots: []game.Plot{}, Shelves: []game.Shelf{}, Customers: []game.Customer{}, Money: 7,
	}}))

	select {
	case got := <-states:
		assert.Equal(t, 7, got.Money)
	case <-time.After(waitFor):
		t.Fatal("valid state not delivered")
	}
	select {
	case got := <-states:
		t.Fatalf("unexpected extra state %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, Subscribed, c.Status())
}

func TestCloseIsFinal(t *testing.T) {
	tr := NewMemTransport()
	host := CreateRoom(tr, "host")
	ctx := context.Background()
	require.NoError(t, host.Connect(ctx))

	require.NoError(t, host.Close())
	assert.Equal(t, Closed, host.Status())
	assert.ErrorIs(t, host.BroadcastState(ctx, &game.State{}), ErrClosed)
	assert.ErrorIs(t, host.Connect(ctx), ErrClosed)
	require.NoError(t, host.Close())

	select {
	case <-host.Done():
	default:
		t.Fatal("dispatch still running after Close")
	}
}

func TestIdentityRefusedAfterGameStart(t *testing.T) {
	tr := NewMemTransport()
	host := CreateRoom(tr, "host")
	connect(t, host)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	first := JoinRoom(tr, host.Code(), "bob")
	connect(t, first)
	id, err := first.AwaitIdentity(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 2, id)

	require.NoError(t, host.StartGame(ctx))
	assert.True(t, host.Started())

	late := JoinRoom(tr, host.Code(), "eve")
	connect(t, late)
	shortCtx, cancelShort := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancelShort()
	_, err = late.AwaitIdentity(shortCtx, 100*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, late.PlayerID())
	assert.Len(t, host.Assignments(), 1)

	// 已分配过的 nonce 重发请求仍得到原来的 id
	raw, err := tr.Open(ctx, host.Topic())
	require.NoError(t, err)
	defer raw.Close()
	require.NoError(t, raw.Send(ctx, protocol.EventRequestID, protocol.RequestIDPayload{Name: "bob", Nonce: first.Nonce()}))
	for {
		select {
		case ev := <-raw.Events():
			if ev.Kind != KindBroadcast || ev.Name != protocol.EventAssignID {
				continue
			}
			a, err := protocol.DecodePayload[protocol.AssignIDPayload](ev.Payload)
			require.NoError(t, err)
			if a.Nonce != first.Nonce() {
				continue
			}
			assert.Equal(t, 2, a.PlayerID)
			return
		case <-ctx.Done():
			t.Fatal("known nonce was not re-assigned after start")
		}
	}
}

func TestAllocatorLookupDoesNotAssign(t *testing.T) {
	a := NewAllocator(4)
	_, ok := a.Lookup("n1")
	assert.False(t, ok)
	assert.Empty(t, a.Assignments())

	as, ok := a.Assign("n1", "bob")
	require.True(t, ok)
	got, ok := a.Lookup("n1")
	require.True(t, ok)
	assert.Equal(t, as, got)
}

func TestCloseWithoutSubscribeEndsDone(t *testing.T) {
	failed := JoinRoom(failTransport{}, "ABCD", "bob")
	require.Error(t, failed.Connect(context.Background()))
	require.NoError(t, failed.Close())

	never := CreateRoom(NewMemTransport(), "host")
	require.NoError(t, never.Close())

	for _, s := range []*Session{failed, never} {
		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatal("Done blocked for a session that never subscribed")
		}
		assert.Equal(t, Closed, s.Status())
	}
}
