package server

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"fruitmart/logging"
	"fruitmart/protocol"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrRoomFull    = errors.New("room is full")
	ErrRoomStopped = errors.New("room stopped")
)

// RoomConfig 房间可热更新的中继参数
type RoomConfig struct {
	SimulateDropProb float64 `json:"simulateDropProb"`
	MaxMembers       int     `json:"maxMembers"`
}

// Room 一个广播频道：成员表只由房间协程维护，转发不做任何模拟
type Room struct {
	Topic string

	members map[MemberKey]*Member
	inbox   chan any
	stop    chan struct{}
	stopped sync.Once

	cfgMu sync.RWMutex
	cfg   RoomConfig

	presenceFlush time.Duration
	presenceDirty bool

	rng     *rand.Rand
	metrics *RoomMetrics
	log     *zap.SugaredLogger

	// OnEmpty 最后一个成员离开时在房间协程中调用
	OnEmpty func(r *Room)
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(topic string, cfg RoomConfig, presenceFlush time.Duration) *Room {
	if presenceFlush <= 0 {
		presenceFlush = 100 * time.Millisecond
	}
	return &Room{
		Topic:         topic,
		members:       make(map[MemberKey]*Member),
		inbox:         make(chan any, 256), // 足够缓冲，避免网络读阻塞
		stop:          make(chan struct{}),
		cfg:           cfg,
		presenceFlush: presenceFlush,
		rng:           rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
		metrics:       &RoomMetrics{},
		log:           logging.Log.With("topic", topic),
	}
}

func (r *Room) Metrics() *RoomMetrics { return r.metrics }

func (r *Room) Config() RoomConfig {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.cfg
}

// UpdateConfig 部分更新；nil 字段保持不变
func (r *Room) UpdateConfig(dropProb *float64, maxMembers *int) RoomConfig {
	r.cfgMu.Lock()
	defer r.cfgMu.Unlock()
	if dropProb != nil {
		r.cfg.SimulateDropProb = *dropProb
	}
	if maxMembers != nil {
		r.cfg.MaxMembers = *maxMembers
	}
	return r.cfg
}

// Join 阻塞直到房间协程接纳或拒绝该成员
func (r *Room) Join(m *Member) error {
	reply := make(chan error, 1)
	select {
	case r.inbox <- joinCmd{m: m, reply: reply}:
	case <-r.stop:
		return ErrRoomStopped
	}
	select {
	case err := <-reply:
		return err
	case <-r.stop:
		// 停止与应答同时就绪时以应答为准
		select {
		case err := <-reply:
			return err
		default:
			return ErrRoomStopped
		}
	}
}

// RequestLeave 请求在房间协程中移除成员，避免并发改动成员表
func (r *Room) RequestLeave(key MemberKey) {
	// 为保证移除一定生效，这里采用阻塞式写入
	select {
	case r.inbox <- leaveCmd{key: key}:
	case <-r.stop:
	}
}

// OnFrame 入站帧（不阻塞）：拥塞时丢弃，保证读协程不被拖慢
func (r *Room) OnFrame(from MemberKey, f protocol.Frame) {
	select {
	case r.inbox <- frameCmd{from: from, frame: f}:
	default:
		r.metrics.IncInboxFull()
	}
}

// Members 当前成员的只读快照
func (r *Room) Members() []MemberInfo {
	reply := make(chan []MemberInfo, 1)
	select {
	case r.inbox <- membersCmd{reply: reply}:
	case <-r.stop:
		return nil
	}
	select {
	case out := <-reply:
		return out
	case <-r.stop:
		return nil
	}
}

func (r *Room) Stop() {
	r.stopped.Do(func() { close(r.stop) })
}

func (r *Room) isStopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *Room) handle(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- r.join(c.m)
	case leaveCmd:
		r.leave(c.key)
	case frameCmd:
		r.relay(c.from, c.frame)
	case membersCmd:
		c.reply <- r.memberInfos()
	}
}

func (r *Room) join(m *Member) error {
	// 已停止的房间不再接纳成员，调用方应换到新房间
	if r.isStopped() {
		return ErrRoomStopped
	}
	if limit := r.Config().MaxMembers; limit > 0 && len(r.members) >= limit {
		r.metrics.IncRejected()
		return ErrRoomFull
	}
	b, err := protocol.Encode(protocol.FrameSubscribed, "", protocol.Subscribed{Key: string(m.Key), Topic: r.Topic})
	if err != nil {
		return err
	}
	r.members[m.Key] = m
	r.metrics.IncJoins()
	// 首帧必须是 subscribed；之后的在线列表与广播都排在其后
	r.send(m, b)
	r.presenceDirty = true
	r.log.Infow("member joined", "key", m.Key, "members", len(r.members))
	return nil
}

func (r *Room) leave(key MemberKey) {
	m, ok := r.members[key]
	if !ok {
		return
	}
	if m.Conn != nil {
		m.Conn.Close()
	}
	delete(r.members, key)
	r.metrics.IncLeaves()
	if m.Presence != nil {
		r.presenceDirty = true
	}
	r.log.Infow("member left", "key", key, "members", len(r.members))
	if len(r.members) == 0 && r.OnEmpty != nil {
		r.OnEmpty(r)
	}
}

// relay 广播帧转发给除发送者以外的所有成员；track 帧更新在线状态
func (r *Room) relay(from MemberKey, f protocol.Frame) {
	sender, ok := r.members[from]
	if !ok {
		return
	}
	switch f.Type {
	case protocol.FrameBroadcast:
		if f.Event == "" {
			r.metrics.IncMalformed()
			return
		}
		r.metrics.IncFramesIn()
		var payload any
		if len(f.Payload) > 0 {
			payload = f.Payload
		}
		b, err := protocol.Encode(protocol.FrameBroadcast, f.Event, payload)
		if err != nil {
			r.metrics.IncMalformed()
			return
		}
		drop := r.Config().SimulateDropProb
		for key, m := range r.members {
			if key == from {
				continue
			}
			if drop > 0 && r.rng.Float64() < drop {
				r.metrics.IncDropsSimulated()
				continue
			}
			r.send(m, b)
		}
	case protocol.FrameTrack:
		meta, err := protocol.DecodePayload[protocol.Presence](f.Payload)
		if err != nil {
			r.metrics.IncMalformed()
			return
		}
		sender.Presence = &meta
		r.presenceDirty = true
	default:
		r.metrics.IncMalformed()
	}
}

func (r *Room) send(m *Member, b []byte) {
	if m.Conn == nil {
		return
	}
	if m.Conn.Enqueue(b) {
		r.metrics.IncRelayed()
	} else {
		r.metrics.IncChanFullDiscarded()
	}
}

// flushPresence 合并同一周期内的变更，向所有成员推送完整在线列表
func (r *Room) flushPresence() {
	if !r.presenceDirty {
		return
	}
	r.presenceDirty = false

	entries := make([]protocol.PresenceEntry, 0, len(r.members))
	for key, m := range r.members {
		if m.Presence == nil {
			continue
		}
		entries = append(entries, protocol.PresenceEntry{Key: string(key), Meta: *m.Presence})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	b, err := protocol.Encode(protocol.FramePresenceSync, "", protocol.PresenceSync{Members: entries})
	if err != nil {
		r.log.Errorw("encode presence", "err", err)
		return
	}
	for _, m := range r.members {
		if m.Conn != nil && !m.Conn.Enqueue(b) {
			r.metrics.IncChanFullDiscarded()
		}
	}
	r.metrics.IncPresenceSyncs()
}

func (r *Room) memberInfos() []MemberInfo {
	out := make([]MemberInfo, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, MemberInfo{Key: m.Key, JoinedAt: m.JoinedAt, Presence: m.Presence})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out
}
