package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"fruitmart/game"
	"fruitmart/logging"
	"fruitmart/session"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// BroadcastEvery 房主每隔多少 Tick 广播一次状态
const BroadcastEvery = 2

// Session 帧循环依赖的会话能力，*session.Session 满足该接口
type Session interface {
	Role() session.Role
	PlayerID() int
	Name() string
	Handle(h session.Handlers)
	SendInput(ctx context.Context, in game.Input) error
	BroadcastState(ctx context.Context, s *game.State) error
	StartGame(ctx context.Context) error
	Assignments() []session.Assignment
}

// Recorder 可选的状态记录器
type Recorder interface {
	Record(tick int, s *game.State) error
}

type Phase int

const (
	Lobby Phase = iota
	Playing
)

func (p Phase) String() string {
	if p == Playing {
		return "playing"
	}
	return "lobby"
}

// Loop 本地世界的唯一持有者。房主在 Frame 中推进模拟并节流广播；
// 客户端不模拟，只转发按键变化并整体替换本地副本。
// 入站回调只写入受锁保护的缓冲，在下一帧开头读取。
type Loop struct {
	sess           Session
	sim            *game.Simulator
	tuning         game.Tuning
	broadcastEvery int
	recorder       Recorder
	log            *zap.SugaredLogger

	mu        sync.Mutex
	phase     Phase
	state     *game.State
	ticks     int
	localKeys game.Keys
	lastSent  game.Keys
	sent      bool
	remote    map[int]game.Keys
	pending   *game.State
	members   []session.Member
}

type Option func(*Loop)

func WithBroadcastEvery(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.broadcastEvery = n
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(l *Loop) { l.log = log }
}

// WithRand 替换模拟用随机源（默认固定种子）
func WithRand(rng game.Rand) Option {
	return func(l *Loop) { l.sim = game.NewSimulator(l.tuning, rng) }
}

// New 创建帧循环并接管会话回调；须在会话 Connect 之前调用
func New(sess Session, t game.Tuning, opts ...Option) *Loop {
	l := &Loop{
		sess:           sess,
		tuning:         t,
		sim:            game.NewSimulator(t, game.NewRand(1)),
		broadcastEvery: BroadcastEvery,
		log:            logging.Log,
		remote:         make(map[int]game.Keys),
	}
	for _, o := range opts {
		o(l)
	}
	l.log = l.log.With("role", sess.Role().String())

	sess.Handle(session.Handlers{
		OnPlayerInput:    l.HandleRemoteInput,
		OnStateUpdate:    l.HandleStateUpdate,
		OnPlayersChanged: l.handlePlayersChanged,
		OnGameStart:      l.handleGameStart,
		OnIdentityAssigned: func(id int) {
			l.log.Infow("playing as", "playerId", id)
		},
	})
	return l
}

// Start 房主开局：先宣布开局（会话随即停止分配新身份），
// 再以自己加已分配身份构建世界，并立即广播首个状态
func (l *Loop) Start(ctx context.Context) error {
	if l.sess.Role() != session.Host {
		return session.ErrNotHost
	}
	if err := l.sess.StartGame(ctx); err != nil {
		return errors.Wrap(err, "announce start")
	}

	roster := []game.Participant{{ID: l.sess.PlayerID(), Name: l.sess.Name()}}
	for _, a := range l.sess.Assignments() {
		roster = append(roster, game.Participant{ID: a.PlayerID, Name: a.Name})
	}
	st := game.NewState(l.tuning, roster)

	l.mu.Lock()
	l.state = st
	l.phase = Playing
	l.ticks = 0
	snap := st.Clone()
	l.mu.Unlock()

	l.log.Infow("game started", "players", len(st.Players))
	l.publish(ctx, snap)
	return nil
}

// Frame 推进一帧
func (l *Loop) Frame(ctx context.Context) {
	if l.sess.Role() == session.Host {
		l.hostFrame(ctx)
		return
	}
	l.clientFrame()
}

func (l *Loop) hostFrame(ctx context.Context) {
	l.mu.Lock()
	if l.phase != Playing || l.state == nil {
		l.mu.Unlock()
		return
	}
	l.sim.Step(l.state, l.gatherInputsLocked())
	l.ticks++
	var snap *game.State
	if l.ticks%l.broadcastEvery == 0 {
		snap = l.state.Clone()
	}
	l.mu.Unlock()

	if snap != nil {
		l.publish(ctx, snap)
	}
}

// gatherInputsLocked 本地输入在前，其余按 id 排序；远端没有新输入时沿用最近一次按键
func (l *Loop) gatherInputsLocked() []game.Input {
	own := l.sess.PlayerID()
	inputs := make([]game.Input, 0, len(l.remote)+1)
	inputs = append(inputs, game.Input{PlayerID: own, Keys: l.localKeys})

	ids := make([]int, 0, len(l.remote))
	for id := range l.remote {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		inputs = append(inputs, game.Input{PlayerID: id, Keys: l.remote[id]})
	}
	return inputs
}

func (l *Loop) publish(ctx context.Context, snap *game.State) {
	if err := l.sess.BroadcastState(ctx, snap); err != nil {
		l.log.Debugw("broadcast state failed", "err", err)
	}
	l.record(snap)
}

func (l *Loop) clientFrame() {
	l.mu.Lock()
	next := l.pending
	l.pending = nil
	if next != nil {
		l.state = next
		l.phase = Playing
	}
	l.mu.Unlock()

	if next != nil {
		l.record(next)
	}
}

func (l *Loop) record(s *game.State) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.Record(s.GameTime, s); err != nil {
		l.log.Warnw("record state failed", "err", err)
	}
}

// SetLocalKeys 更新本地按键。客户端仅在按键变化时发送输入；
// 身份尚未分配时不发送。
func (l *Loop) SetLocalKeys(ctx context.Context, keys game.Keys) error {
	l.mu.Lock()
	l.localKeys = keys
	if l.sess.Role() == session.Host {
		l.mu.Unlock()
		return nil
	}
	id := l.sess.PlayerID()
	if id == 0 || (l.sent && keys == l.lastSent) {
		l.mu.Unlock()
		return nil
	}
	l.lastSent = keys
	l.sent = true
	l.mu.Unlock()

	if err := l.sess.SendInput(ctx, game.Input{PlayerID: id, Keys: keys}); err != nil {
		l.mu.Lock()
		l.sent = false
		l.mu.Unlock()
		return err
	}
	return nil
}

// HandleRemoteInput 记录远端玩家最近的按键，下一帧生效
func (l *Loop) HandleRemoteInput(in game.Input) {
	if in.PlayerID == l.sess.PlayerID() {
		return
	}
	l.mu.Lock()
	l.remote[in.PlayerID] = in.Keys
	l.mu.Unlock()
}

// HandleStateUpdate 缓存房主的最新状态，下一帧整体替换本地副本
func (l *Loop) HandleStateUpdate(s *game.State) {
	if s == nil {
		return
	}
	l.mu.Lock()
	l.pending = s
	l.mu.Unlock()
}

func (l *Loop) handleGameStart() {
	l.mu.Lock()
	l.phase = Playing
	l.mu.Unlock()
	l.log.Infow("host started the game")
}

func (l *Loop) handlePlayersChanged(members []session.Member) {
	l.mu.Lock()
	l.members = members
	l.mu.Unlock()
	l.log.Debugw("roster changed", "members", len(members))
}

// Snapshot 渲染用的深拷贝；开局前为 nil
func (l *Loop) Snapshot() *game.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == nil {
		return nil
	}
	return l.state.Clone()
}

func (l *Loop) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Ticks 房主已推进的 Tick 数
func (l *Loop) Ticks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ticks
}

func (l *Loop) Members() []session.Member {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]session.Member, len(l.members))
	copy(out, l.members)
	return out
}

// Run 以 hz 频率驱动 Frame，直到 ctx 结束
func (l *Loop) Run(ctx context.Context, hz int) error {
	if hz <= 0 {
		return errors.Errorf("invalid frame rate %d", hz)
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Frame(ctx)
		}
	}
}
