package server

import (
	"time"

	"fruitmart/protocol"
)

// MemberKey 中继为每个连接分配的唯一标识（uuid）
type MemberKey string

// Member 房间内的一个连接
type Member struct {
	Key      MemberKey
	JoinedAt time.Time

	// Presence 未 track 之前为 nil，不出现在在线列表中
	Presence *protocol.Presence

	Conn *ClientConn // 网络连接的发送端（写协程）
}

// MemberInfo 供 HTTP 输出的只读视图
type MemberInfo struct {
	Key      MemberKey          `json:"key"`
	JoinedAt time.Time          `json:"joinedAt"`
	Presence *protocol.Presence `json:"presence,omitempty"`
}
