package protocol

import (
	"encoding/json"

	"fruitmart/game"
)

// 中继帧类型
const (
	FrameSubscribed   = "subscribed"    // 中继 → 客户端：已加入频道，携带成员 key
	FrameBroadcast    = "broadcast"     // 双向：广播事件（不回送给发送者）
	FrameTrack        = "track"         // 客户端 → 中继：更新在线状态
	FramePresenceSync = "presence_sync" // 中继 → 客户端：完整在线列表
)

// 广播事件名
const (
	EventPlayerInput = "player_input"
	EventGameState   = "game_state"
	EventGameStart   = "game_start"
	EventRequestID   = "request_id"
	EventAssignID    = "assign_id"
)

// Frame 中继与客户端之间的信封
type Frame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Subscribed 加入成功后的首帧
type Subscribed struct {
	Key   string `json:"key"`
	Topic string `json:"topic"`
}

// Presence 每个在线参与者被跟踪的元数据，仅用于名单展示
type Presence struct {
	PlayerID   int    `json:"playerId"`
	PlayerName string `json:"playerName"`
}

// PresenceEntry 在线列表中的一项
type PresenceEntry struct {
	Key  string   `json:"key"`
	Meta Presence `json:"meta"`
}

type PresenceSync struct {
	Members []PresenceEntry `json:"members"`
}

type InputPayload struct {
	Input game.Input `json:"input"`
}

type StatePayload struct {
	State *game.State `json:"state"`
}

type GameStartPayload struct{}

// RequestIDPayload nonce 标识请求方，使重复请求得到同一个 id
type RequestIDPayload struct {
	Name  string `json:"name"`
	Nonce string `json:"nonce"`
}

type AssignIDPayload struct {
	PlayerID int    `json:"playerId"`
	Name     string `json:"name"`
	Nonce    string `json:"nonce"`
}
