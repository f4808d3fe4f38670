package engine

import (
	"context"
	"testing"
	"time"

	"fruitmart/game"
	"fruitmart/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 房主与客户端通过进程内传输完整走一遍：握手、开局、输入、状态复制
func TestHostAndClientConvergeOverMemTransport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tr := session.NewMemTransport()
	tu := game.DefaultTuning()

	hostSess := session.CreateRoom(tr, "host")
	host := New(hostSess, tu)
	require.NoError(t, hostSess.Connect(ctx))
	defer hostSess.Close()

	clientSess := session.JoinRoom(tr, hostSess.Code(), "bob")
	client := New(clientSess, tu)
	require.NoError(t, clientSess.Connect(ctx))
	defer clientSess.Close()

	id, err := clientSess.AwaitIdentity(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 2, id)

	require.NoError(t, host.Start(ctx))
	require.Eventually(t, func() bool { return client.Phase() == Playing }, 5*time.Second, 10*time.Millisecond)

	go func() { _ = host.Run(ctx, 60) }()
	go func() { _ = client.Run(ctx, 60) }()

	require.Eventually(t, func() bool {
		s := client.Snapshot()
		return s != nil && len(s.Players) == 2
	}, 5*time.Second, 10*time.Millisecond)
	startX := client.Snapshot().Player(2).Pos.X

	require.NoError(t, client.SetLocalKeys(ctx, game.Keys{Left: true}))

	require.Eventually(t, func() bool {
		s := client.Snapshot()
		return s.Player(2).Pos.X < startX-30
	}, 5*time.Second, 20*time.Millisecond, "client sees its own movement through host state")

	require.NoError(t, client.SetLocalKeys(ctx, game.Keys{}))
	require.Eventually(t, func() bool {
		h := host.Snapshot().Player(2).Pos
		time.Sleep(100 * time.Millisecond)
		return h == host.Snapshot().Player(2).Pos
	}, 5*time.Second, 20*time.Millisecond, "player stops once keys are released")

	// 客户端副本落后于房主，但不会超前
	assert.LessOrEqual(t, client.Snapshot().GameTime, host.Snapshot().GameTime)
}
