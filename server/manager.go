package server

import (
	"sort"
	"sync"

	"fruitmart/config"
	"fruitmart/logging"
	"fruitmart/protocol"
)

// RoomManager 管理多个房间的生命周期：首次加入时创建，最后一人离开时回收
type RoomManager struct {
	cfg config.RelayConfig

	mu    sync.RWMutex
	rooms map[string]*Room
}

// RoomInfo 房间列表项
type RoomInfo struct {
	Topic   string `json:"topic"`
	Code    string `json:"code,omitempty"`
	Members int    `json:"members"`
}

func NewRoomManager(cfg config.RelayConfig) *RoomManager {
	return &RoomManager{cfg: cfg, rooms: make(map[string]*Room)}
}

func (m *RoomManager) Config() config.RelayConfig { return m.cfg }

// GetOrCreateRoom 获取或创建房间，并确保房间协程已启动
func (m *RoomManager) GetOrCreateRoom(topic string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[topic]
	if !ok {
		r = NewRoom(topic, RoomConfig{
			SimulateDropProb: m.cfg.SimulateDropProb,
			MaxMembers:       m.cfg.MaxMembers,
		}, m.cfg.PresenceFlush)
		r.OnEmpty = m.removeRoom
		m.rooms[topic] = r
		go r.Run()
		logging.Log.Infow("room created", "topic", topic)
	}
	return r
}

// GetRoom 不存在时返回 nil
func (m *RoomManager) GetRoom(topic string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[topic]
}

// removeRoom 停止 r；只有表中仍是同一个房间时才删除，避免误删同名的新房间
func (m *RoomManager) removeRoom(r *Room) {
	r.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[r.Topic]; ok && cur == r {
		delete(m.rooms, r.Topic)
		logging.Log.Infow("room removed", "topic", r.Topic)
	}
}

// ListRooms 按 topic 排序的房间列表
func (m *RoomManager) ListRooms() []RoomInfo {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		info := RoomInfo{Topic: r.Topic, Members: len(r.Members())}
		info.Code, _ = protocol.CodeFromTopic(r.Topic)
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}

// Shutdown 停止所有房间
func (m *RoomManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for topic, r := range m.rooms {
		r.Stop()
		delete(m.rooms, topic)
	}
}
