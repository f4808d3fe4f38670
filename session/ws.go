package session

import (
	"context"
	"net/url"
	"sync"
	"time"

	"fruitmart/logging"
	"fruitmart/protocol"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 5 * time.Second
	wsSubscribeWait  = 10 * time.Second
	defaultSendQueue = 64
	eventBuffer      = 256
)

// WSTransport 通过 WebSocket 连接中继服务
type WSTransport struct {
	URL       string // 例如 ws://localhost:8080/ws
	Dialer    *websocket.Dialer
	SendQueue int
	Log       *zap.SugaredLogger
}

func NewWSTransport(rawURL string) *WSTransport {
	return &WSTransport{URL: rawURL}
}

// Open 建立连接并等待中继返回 subscribed 首帧
func (t *WSTransport) Open(ctx context.Context, topic string) (Channel, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse relay url")
	}
	q := u.Query()
	q.Set("room", topic)
	u.RawQuery = q.Encode()

	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", u.Redacted())
	}

	deadline := time.Now().Add(wsSubscribeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ws.SetReadDeadline(deadline)
	_, b, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return nil, errors.Wrap(err, "wait subscribed")
	}
	f, err := protocol.DecodeFrame(b)
	if err != nil || f.Type != protocol.FrameSubscribed {
		_ = ws.Close()
		return nil, errors.Errorf("unexpected first frame %q", f.Type)
	}
	sub, err := protocol.DecodePayload[protocol.Subscribed](f.Payload)
	if err != nil {
		_ = ws.Close()
		return nil, errors.Wrap(err, "decode subscribed")
	}
	_ = ws.SetReadDeadline(time.Time{})

	queue := t.SendQueue
	if queue <= 0 {
		queue = defaultSendQueue
	}
	log := t.Log
	if log == nil {
		log = logging.Log
	}
	c := &wsChannel{
		ws:     ws,
		key:    sub.Key,
		send:   make(chan []byte, queue),
		events: make(chan Event, eventBuffer),
		done:   make(chan struct{}),
		log:    log.With("topic", topic, "key", sub.Key),
	}
	go c.writePump()
	go c.readPump()
	return c, nil
}

type wsChannel struct {
	ws     *websocket.Conn
	key    string
	send   chan []byte
	events chan Event
	done   chan struct{}
	once   sync.Once
	log    *zap.SugaredLogger
}

func (c *wsChannel) Key() string { return c.key }

func (c *wsChannel) Events() <-chan Event { return c.events }

func (c *wsChannel) Send(_ context.Context, event string, payload any) error {
	b, err := protocol.Encode(protocol.FrameBroadcast, event, payload)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

func (c *wsChannel) Track(_ context.Context, meta protocol.Presence) error {
	b, err := protocol.Encode(protocol.FrameTrack, "", meta)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

// enqueue 非阻塞写入发送队列，满则丢弃，保证帧循环不被网络拖慢
func (c *wsChannel) enqueue(b []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- b:
	default:
		c.log.Debugw("send queue full, frame dropped", "bytes", len(b))
	}
	return nil
}

func (c *wsChannel) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	})
	return nil
}

func (c *wsChannel) writePump() {
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debugw("write failed", "err", err)
				return
			}
		}
	}
}

// readPump 唯一写 events 的协程，退出时关闭 events
func (c *wsChannel) readPump() {
	defer close(c.events)
	defer c.Close()
	for {
		_, b, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Infow("relay connection ended", "err", err)
			}
			return
		}
		f, err := protocol.DecodeFrame(b)
		if err != nil {
			c.log.Debugw("malformed frame dropped", "err", err)
			continue
		}

		var ev Event
		switch f.Type {
		case protocol.FrameBroadcast:
			ev = Event{Kind: KindBroadcast, Name: f.Event, Payload: f.Payload}
		case protocol.FramePresenceSync:
			ps, err := protocol.DecodePayload[protocol.PresenceSync](f.Payload)
			if err != nil {
				c.log.Debugw("malformed presence dropped", "err", err)
				continue
			}
			ev = Event{Kind: KindPresence, Presence: ps.Members}
		default:
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}
