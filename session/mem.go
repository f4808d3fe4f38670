package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"fruitmart/logging"
	"fruitmart/protocol"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/mempubsub"
)

const metaFrom = "from"

// MemTransport 进程内的房间频道：每个房间一个 mempubsub topic，
// 每个频道一个订阅；在线状态由内存表维护。用于测试和单进程演示。
type MemTransport struct {
	Log *zap.SugaredLogger

	mu    sync.Mutex
	rooms map[string]*memRoom
}

func NewMemTransport() *MemTransport {
	return &MemTransport{rooms: make(map[string]*memRoom)}
}

type memRoom struct {
	topic *pubsub.Topic

	mu       sync.Mutex
	members  map[string]*memChannel
	presence map[string]protocol.Presence
}

func (t *MemTransport) Open(ctx context.Context, topic string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	log := t.Log
	if log == nil {
		log = logging.Log
	}

	t.mu.Lock()
	if t.rooms == nil {
		t.rooms = make(map[string]*memRoom)
	}
	r, ok := t.rooms[topic]
	if !ok {
		r = &memRoom{
			topic:    mempubsub.NewTopic(),
			members:  make(map[string]*memChannel),
			presence: make(map[string]protocol.Presence),
		}
		t.rooms[topic] = r
	}
	key := uuid.NewString()
	rctx, cancel := context.WithCancel(context.Background())
	c := &memChannel{
		t:      t,
		name:   topic,
		room:   r,
		key:    key,
		sub:    mempubsub.NewSubscription(r.topic, time.Minute),
		events: make(chan Event, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log.With("topic", topic, "key", key),
	}
	r.mu.Lock()
	r.members[key] = c
	r.mu.Unlock()
	t.mu.Unlock()

	go c.receive(rctx)
	r.syncPresence()
	return c, nil
}

// syncPresence 把当前完整在线列表推给房间内每个成员
func (r *memRoom) syncPresence() {
	r.mu.Lock()
	entries := make([]protocol.PresenceEntry, 0, len(r.presence))
	for k, meta := range r.presence {
		entries = append(entries, protocol.PresenceEntry{Key: k, Meta: meta})
	}
	members := make([]*memChannel, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	for _, m := range members {
		m.emit(Event{Kind: KindPresence, Presence: entries})
	}
}

type memChannel struct {
	t    *MemTransport
	name string
	room *memRoom
	key  string
	sub  *pubsub.Subscription

	mu     sync.Mutex
	closed bool
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	log    *zap.SugaredLogger
}

func (c *memChannel) Key() string { return c.key }

func (c *memChannel) Events() <-chan Event { return c.events }

func (c *memChannel) Send(ctx context.Context, event string, payload any) error {
	if c.isClosed() {
		return ErrClosed
	}
	b, err := protocol.Encode(protocol.FrameBroadcast, event, payload)
	if err != nil {
		return err
	}
	err = c.room.topic.Send(ctx, &pubsub.Message{
		Body:     b,
		Metadata: map[string]string{metaFrom: c.key},
	})
	return errors.Wrapf(err, "publish %s", event)
}

func (c *memChannel) Track(_ context.Context, meta protocol.Presence) error {
	if c.isClosed() {
		return ErrClosed
	}
	c.room.mu.Lock()
	c.room.presence[c.key] = meta
	c.room.mu.Unlock()
	c.room.syncPresence()
	return nil
}

func (c *memChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// emit 非阻塞投递，缓冲满时丢弃（与网络传输的丢包语义一致）
func (c *memChannel) emit(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.log.Debugw("event buffer full, dropped", "kind", ev.Kind, "event", ev.Name)
	}
}

func (c *memChannel) receive(ctx context.Context) {
	defer close(c.done)
	for {
		msg, err := c.sub.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Infow("subscription ended", "err", err)
			}
			return
		}
		msg.Ack()
		if msg.Metadata[metaFrom] == c.key {
			continue
		}
		f, err := protocol.DecodeFrame(msg.Body)
		if err != nil {
			c.log.Debugw("malformed frame dropped", "err", err)
			continue
		}
		c.emit(Event{Kind: KindBroadcast, Name: f.Event, Payload: f.Payload})
	}
}

func (c *memChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.events)
	c.mu.Unlock()

	c.cancel()
	<-c.done
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = c.sub.Shutdown(shutdownCtx)

	c.t.mu.Lock()
	r := c.room
	r.mu.Lock()
	delete(r.members, c.key)
	delete(r.presence, c.key)
	empty := len(r.members) == 0
	r.mu.Unlock()
	if empty {
		delete(c.t.rooms, c.name)
	}
	c.t.mu.Unlock()

	if empty {
		_ = r.topic.Shutdown(shutdownCtx)
		return nil
	}
	r.syncPresence()
	return nil
}
