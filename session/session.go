package session

import (
	"context"
	"sync"
	"time"

	"fruitmart/game"
	"fruitmart/logging"
	"fruitmart/protocol"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Role int

const (
	Host Role = iota + 1
	Client
)

func (r Role) String() string {
	switch r {
	case Host:
		return "host"
	case Client:
		return "client"
	default:
		return "unknown"
	}
}

type Status int

const (
	Disconnected Status = iota
	Subscribing
	Subscribed
	Closed
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handlers 入站事件回调，均在会话的分发协程中调用，不应阻塞
type Handlers struct {
	OnPlayerInput      func(in game.Input) // 仅房主
	OnStateUpdate      func(s *game.State) // 仅客户端
	OnPlayersChanged   func(members []Member)
	OnGameStart        func()
	OnIdentityAssigned func(playerID int) // 仅客户端
}

// Session 一个房间频道之上的角色化会话
type Session struct {
	role      Role
	code      string
	name      string
	nonce     string
	transport Transport
	log       *zap.SugaredLogger

	mu       sync.RWMutex
	status   Status
	ch       Channel
	playerID int
	members  []Member
	handlers Handlers
	started  bool // 房主已开局，不再接纳新身份

	alloc        *Allocator
	assigned     chan struct{}
	dispatch     chan struct{}
	dispatchOnce sync.Once
}

type Option func(*Session)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Session) { s.log = l }
}

// WithMaxPlayers 房主身份分配上限（含房主）
func WithMaxPlayers(n int) Option {
	return func(s *Session) { s.alloc = NewAllocator(n) }
}

// CreateRoom 以房主身份创建新房间（id 固定为 1），尚未连接
func CreateRoom(t Transport, name string, opts ...Option) *Session {
	s := newSession(t, Host, protocol.NewRoomCode(), name, opts...)
	s.playerID = HostID
	if s.alloc == nil {
		s.alloc = NewAllocator(game.MaxPlayers)
	}
	return s
}

// JoinRoom 以客户端身份加入已有房间，身份需向房主申请
func JoinRoom(t Transport, code, name string, opts ...Option) *Session {
	return newSession(t, Client, protocol.NormalizeCode(code), name, opts...)
}

func newSession(t Transport, role Role, code, name string, opts ...Option) *Session {
	s := &Session{
		role:      role,
		code:      code,
		name:      name,
		nonce:     uuid.NewString(),
		transport: t,
		log:       logging.Log,
		assigned:  make(chan struct{}),
		dispatch:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("room", code, "role", role.String())
	return s
}

func (s *Session) Role() Role { return s.role }
func (s *Session) Code() string { return s.code }
func (s *Session) Topic() string { return protocol.Topic(s.code) }
func (s *Session) Name() string { return s.name }
func (s *Session) Nonce() string { return s.nonce }
func (s *Session) IsHost() bool { return s.role == Host }

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// PlayerID 房主为 1；客户端分配前为 0
func (s *Session) PlayerID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerID
}

// Members 最近一次在线同步得到的名单
func (s *Session) Members() []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Member, len(s.members))
	copy(out, s.members)
	return out
}

// Assignments 房主已分配的客户端身份；客户端返回 nil
func (s *Session) Assignments() []Assignment {
	if s.alloc == nil {
		return nil
	}
	return s.alloc.Assignments()
}

// Handle 设置回调；须在 Connect 之前调用
func (s *Session) Handle(h Handlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

// Connect 订阅房间频道。失败时状态停留在 Subscribing，不自动重试。
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.status {
	case Closed:
		s.mu.Unlock()
		return ErrClosed
	case Subscribed:
		s.mu.Unlock()
		return nil
	}
	if s.ch != nil {
		s.mu.Unlock()
		return errors.New("reconnect is not supported")
	}
	s.status = Subscribing
	s.mu.Unlock()

	ch, err := s.transport.Open(ctx, s.Topic())
	if err != nil {
		s.log.Warnw("subscribe failed", "err", err)
		return errors.Wrap(err, "subscribe")
	}

	s.mu.Lock()
	if s.status == Closed {
		s.mu.Unlock()
		_ = ch.Close()
		return ErrClosed
	}
	s.ch = ch
	s.status = Subscribed
	id := s.playerID
	s.mu.Unlock()

	s.log.Infow("subscribed", "key", ch.Key())
	go s.run(ch)

	if err := ch.Track(ctx, protocol.Presence{PlayerID: id, PlayerName: s.name}); err != nil {
		s.log.Warnw("track presence failed", "err", err)
	}
	return nil
}

func (s *Session) channel() (Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.status {
	case Subscribed:
		return s.ch, nil
	case Closed:
		return nil, ErrClosed
	default:
		return nil, ErrNotSubscribed
	}
}

// SendInput 广播本地输入（客户端 → 房主）
func (s *Session) SendInput(ctx context.Context, in game.Input) error {
	ch, err := s.channel()
	if err != nil {
		return err
	}
	return ch.Send(ctx, protocol.EventPlayerInput, protocol.InputPayload{Input: in})
}

// BroadcastState 房主广播权威状态
func (s *Session) BroadcastState(ctx context.Context, st *game.State) error {
	if s.role != Host {
		return ErrNotHost
	}
	ch, err := s.channel()
	if err != nil {
		return err
	}
	return ch.Send(ctx, protocol.EventGameState, protocol.StatePayload{State: st})
}

// StartGame 房主宣布开局。此后只重发已分配的身份，不再分配新 id。
func (s *Session) StartGame(ctx context.Context) error {
	if s.role != Host {
		return ErrNotHost
	}
	ch, err := s.channel()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return ch.Send(ctx, protocol.EventGameStart, protocol.GameStartPayload{})
}

// Started 房主是否已开局
func (s *Session) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// RequestIdentity 客户端向房主申请 id（带本会话 nonce，可安全重发）
func (s *Session) RequestIdentity(ctx context.Context) error {
	if s.role != Client {
		return ErrNotClient
	}
	ch, err := s.channel()
	if err != nil {
		return err
	}
	return ch.Send(ctx, protocol.EventRequestID, protocol.RequestIDPayload{Name: s.name, Nonce: s.nonce})
}

// AwaitIdentity 按间隔重发身份请求，直到收到分配或 ctx 结束。
// 房主按 nonce 幂等分配，重发不会占用新的 id。
func (s *Session) AwaitIdentity(ctx context.Context, every time.Duration) (int, error) {
	if s.role == Host {
		return HostID, nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.assigned:
			return s.PlayerID(), nil
		default:
		}
		if err := s.RequestIdentity(ctx); err != nil && !errors.Is(err, ErrNotSubscribed) {
			return 0, err
		}
		select {
		case <-s.assigned:
			return s.PlayerID(), nil
		case <-ctx.Done():
			return 0, errors.WithStack(ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close 关闭频道并等待分发协程退出；之后所有发送返回 ErrClosed。
// 不可在回调中调用。
func (s *Session) Close() error {
	s.mu.Lock()
	if s.status == Closed {
		s.mu.Unlock()
		return nil
	}
	s.status = Closed
	ch := s.ch
	s.mu.Unlock()

	if ch == nil {
		// 从未订阅成功：没有分发协程，直接结束
		s.endDispatch()
		return nil
	}
	err := ch.Close()
	<-s.dispatch
	return err
}

// Done 分发协程结束（或会话在订阅前被关闭）时关闭
func (s *Session) Done() <-chan struct{} { return s.dispatch }

func (s *Session) endDispatch() {
	s.dispatchOnce.Do(func() { close(s.dispatch) })
}

func (s *Session) run(ch Channel) {
	defer s.endDispatch()
	for ev := range ch.Events() {
		switch ev.Kind {
		case KindPresence:
			s.onPresence(ev.Presence)
		case KindBroadcast:
			s.onBroadcast(ev)
		}
	}
	s.mu.Lock()
	if s.status != Closed {
		s.status = Disconnected
		s.log.Infow("channel ended")
	}
	s.mu.Unlock()
}

func (s *Session) onPresence(entries []protocol.PresenceEntry) {
	members := rosterFromPresence(entries)
	s.mu.Lock()
	s.members = members
	cb := s.handlers.OnPlayersChanged
	s.mu.Unlock()
	if cb != nil {
		cb(members)
	}
}

// onBroadcast 校验后按角色分派；不合法或与角色无关的消息被丢弃
func (s *Session) onBroadcast(ev Event) {
	if err := protocol.ValidatePayload(ev.Name, ev.Payload); err != nil {
		s.log.Debugw("invalid message dropped", "event", ev.Name, "err", err)
		return
	}
	s.mu.RLock()
	h := s.handlers
	s.mu.RUnlock()

	switch ev.Name {
	case protocol.EventPlayerInput:
		if s.role != Host || h.OnPlayerInput == nil {
			return
		}
		p, err := protocol.DecodePayload[protocol.InputPayload](ev.Payload)
		if err != nil {
			s.log.Debugw("bad input dropped", "err", err)
			return
		}
		h.OnPlayerInput(p.Input)

	case protocol.EventGameState:
		if s.role != Client || h.OnStateUpdate == nil {
			return
		}
		p, err := protocol.DecodePayload[protocol.StatePayload](ev.Payload)
		if err != nil || p.State == nil {
			s.log.Debugw("bad state dropped", "err", err)
			return
		}
		h.OnStateUpdate(p.State)

	case protocol.EventGameStart:
		if s.role == Client && h.OnGameStart != nil {
			h.OnGameStart()
		}

	case protocol.EventRequestID:
		if s.role == Host {
			s.onRequestID(ev)
		}

	case protocol.EventAssignID:
		if s.role == Client {
			s.onAssignID(ev, h.OnIdentityAssigned)
		}
	}
}

func (s *Session) onRequestID(ev Event) {
	req, err := protocol.DecodePayload[protocol.RequestIDPayload](ev.Payload)
	if err != nil {
		s.log.Debugw("bad request_id dropped", "err", err)
		return
	}
	var (
		as Assignment
		ok bool
	)
	if s.Started() {
		// 开局后只重发已有的分配
		if as, ok = s.alloc.Lookup(req.Nonce); !ok {
			s.log.Warnw("game already started, identity request refused", "name", req.Name)
			return
		}
	} else if as, ok = s.alloc.Assign(req.Nonce, req.Name); !ok {
		s.log.Warnw("room full, identity request refused", "name", req.Name)
		return
	}
	ch, err := s.channel()
	if err != nil {
		return
	}
	err = ch.Send(context.Background(), protocol.EventAssignID, protocol.AssignIDPayload{
		PlayerID: as.PlayerID,
		Name:     as.Name,
		Nonce:    as.Nonce,
	})
	if err != nil {
		s.log.Warnw("send assign_id failed", "err", err)
		return
	}
	s.log.Infow("identity assigned", "playerId", as.PlayerID, "name", as.Name)
}

// onAssignID 只采纳携带本会话 nonce 的分配，并以新 id 重新上报在线状态
func (s *Session) onAssignID(ev Event, cb func(int)) {
	a, err := protocol.DecodePayload[protocol.AssignIDPayload](ev.Payload)
	if err != nil || a.Nonce != s.nonce {
		return
	}
	s.mu.Lock()
	if s.playerID != 0 {
		s.mu.Unlock()
		return
	}
	s.playerID = a.PlayerID
	ch := s.ch
	close(s.assigned)
	s.mu.Unlock()

	s.log.Infow("identity adopted", "playerId", a.PlayerID)
	if ch != nil {
		if err := ch.Track(context.Background(), protocol.Presence{PlayerID: a.PlayerID, PlayerName: s.name}); err != nil {
			s.log.Warnw("re-track presence failed", "err", err)
		}
	}
	if cb != nil {
		cb(a.PlayerID)
	}
}
