package server

import (
	"net/http"

	"fruitmart/logging"
	"fruitmart/protocol"

	"github.com/labstack/echo/v4"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// Handler 中继的 HTTP 入口
type Handler struct {
	rooms *RoomManager
}

func NewHandler(rooms *RoomManager) *Handler {
	return &Handler{rooms: rooms}
}

// Register 挂载全部路由
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/ws", h.HandleWS)
	e.GET("/rooms", h.HandleRooms)
	e.GET("/rooms/:code/qr", h.HandleRoomQR)
	// 管理与监控接口
	e.GET("/admin/config", h.HandleAdminConfig)
	e.POST("/admin/config", h.HandleAdminConfig)
	e.GET("/metrics", h.HandleMetrics)
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

// roomParam 接受完整 topic 或房间码
func roomParam(c echo.Context) string {
	q := c.QueryParam("room")
	if code := protocol.NormalizeCode(q); protocol.ValidCode(code) {
		return protocol.Topic(code)
	}
	return q
}

func (h *Handler) lookup(c echo.Context) (*Room, error) {
	topic := roomParam(c)
	if topic == "" {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "missing room query")
	}
	room := h.rooms.GetRoom(topic)
	if room == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "room not found")
	}
	return room, nil
}

type configBody struct {
	SimulateDropProb *float64 `json:"simulateDropProb,omitempty"`
	MaxMembers       *int     `json:"maxMembers,omitempty"`
}

// HandleAdminConfig 房间中继参数的读取与热更新
// GET /admin/config?room=ABCD  返回当前配置
// POST /admin/config?room=ABCD 以 JSON 载荷更新部分字段
func (h *Handler) HandleAdminConfig(c echo.Context) error {
	room, err := h.lookup(c)
	if err != nil {
		return err
	}
	if c.Request().Method == http.MethodGet {
		return c.JSON(http.StatusOK, room.Config())
	}

	var body configBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if p := body.SimulateDropProb; p != nil && (*p < 0 || *p > 1) {
		return echo.NewHTTPError(http.StatusBadRequest, "simulateDropProb must be within [0,1]")
	}
	if n := body.MaxMembers; n != nil && *n < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "maxMembers must be positive")
	}
	cur := room.UpdateConfig(body.SimulateDropProb, body.MaxMembers)
	logging.Log.Infow("config updated", "topic", room.Topic,
		"drop", cur.SimulateDropProb, "maxMembers", cur.MaxMembers)
	return c.JSON(http.StatusOK, cur)
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=ABCD
func (h *Handler) HandleMetrics(c echo.Context) error {
	room, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"room":    room.Topic,
		"members": room.Members(),
		"metrics": room.Metrics().Snapshot(),
	})
}

// HandleRooms 当前所有房间
func (h *Handler) HandleRooms(c echo.Context) error {
	return c.JSON(http.StatusOK, h.rooms.ListRooms())
}

// HandleRoomQR 房间码的二维码（PNG），便于在另一台设备上加入
func (h *Handler) HandleRoomQR(c echo.Context) error {
	code := protocol.NormalizeCode(c.Param("code"))
	if !protocol.ValidCode(code) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid room code")
	}
	png, err := qrcode.Encode(code, qrcode.Medium, qrSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Blob(http.StatusOK, "image/png", png)
}
