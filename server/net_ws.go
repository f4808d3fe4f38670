package server

import (
	"net/http"
	"sync"
	"time"

	"fruitmart/logging"
	"fruitmart/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewClientConn(ws *websocket.Conn, queue int) *ClientConn {
	if queue <= 0 {
		queue = 64
	}
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, queue),
		done: make(chan struct{}),
	}
}

// Enqueue 将要发送的消息压入队列（非阻塞，满则丢弃）；返回是否入队
func (c *ClientConn) Enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		// 为了实时性丢弃，防止慢连接拖住整个房间
		return false
	}
}

// Close 关闭底层连接并结束写协程，可重复调用
func (c *ClientConn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端帧并交给房间协程
func (c *ClientConn) readPump(room *Room, key MemberKey, readLimit int64) {
	defer c.ws.Close()
	// 读泵退出时，通知房间在房间协程中移除该成员
	defer room.RequestLeave(key)
	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.DecodeFrame(payload)
		if err != nil {
			room.metrics.IncMalformed()
			continue
		}
		room.OnFrame(key, f)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：/ws?room=game:ABCD（也接受裸房间码）
func (h *Handler) HandleWS(c echo.Context) error {
	topic := roomParam(c)
	if topic == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing room query")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logging.Log.Warnw("upgrade error", "err", err)
		return nil
	}

	cfg := h.rooms.Config()
	key := MemberKey(uuid.NewString())
	client := NewClientConn(ws, cfg.SendQueue)
	m := &Member{Key: key, JoinedAt: time.Now(), Conn: client}
	go client.writePump()

	// 房间可能恰好在最后一人离开时被回收，重试一次即可拿到新房间
	for attempt := 0; attempt < 2; attempt++ {
		room := h.rooms.GetOrCreateRoom(topic)
		err = room.Join(m)
		if err == nil {
			go client.readPump(room, key, cfg.ReadLimit)
			return nil
		}
		if errors.Is(err, ErrRoomFull) {
			break
		}
	}

	logging.Log.Infow("join rejected", "topic", topic, "err", err)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
		time.Now().Add(writeWait))
	client.Close()
	return nil
}
