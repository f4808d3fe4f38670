package session

import (
	"context"
	"encoding/json"

	"fruitmart/protocol"

	"github.com/pkg/errors"
)

var (
	ErrNotHost       = errors.New("only the host may do this")
	ErrNotClient     = errors.New("only a client may do this")
	ErrClosed        = errors.New("session closed")
	ErrNotSubscribed = errors.New("session not subscribed")
)

type EventKind int

const (
	KindBroadcast EventKind = iota + 1
	KindPresence
)

// Event 频道上收到的一条消息：广播事件或完整在线列表
type Event struct {
	Kind     EventKind
	Name     string
	Payload  json.RawMessage
	Presence []protocol.PresenceEntry
}

// Channel 一个已订阅的房间频道。Send 广播给除自己以外的所有成员，
// 不保证送达；Events 在频道结束时被关闭。
type Channel interface {
	Key() string
	Send(ctx context.Context, event string, payload any) error
	Track(ctx context.Context, meta protocol.Presence) error
	Events() <-chan Event
	Close() error
}

// Transport 打开房间频道；返回即表示订阅成功
type Transport interface {
	Open(ctx context.Context, topic string) (Channel, error)
}
