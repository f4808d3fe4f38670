package server

import (
	"sync/atomic"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	FramesIn          int64 // 收到的广播帧
	FramesRelayed     int64 // 成功入队的转发（按接收方计）
	DropsSimulated    int64 // 因模拟丢包被丢弃的转发
	ChanFullDiscarded int64 // 因发送队列满被丢弃的帧
	InboxFull         int64 // 因房间入站通道满被丢弃的帧
	PresenceSyncs     int64 // 推送的在线列表次数
	MalformedFrames   int64 // 无法解析或类型未知的帧
	Joins             int64
	Leaves            int64
	Rejected          int64 // 因满员被拒绝的连接
}

func (m *RoomMetrics) IncFramesIn()          { atomic.AddInt64(&m.FramesIn, 1) }
func (m *RoomMetrics) IncRelayed()           { atomic.AddInt64(&m.FramesRelayed, 1) }
func (m *RoomMetrics) IncDropsSimulated()    { atomic.AddInt64(&m.DropsSimulated, 1) }
func (m *RoomMetrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *RoomMetrics) IncInboxFull()         { atomic.AddInt64(&m.InboxFull, 1) }
func (m *RoomMetrics) IncPresenceSyncs()     { atomic.AddInt64(&m.PresenceSyncs, 1) }
func (m *RoomMetrics) IncMalformed()         { atomic.AddInt64(&m.MalformedFrames, 1) }
func (m *RoomMetrics) IncJoins()             { atomic.AddInt64(&m.Joins, 1) }
func (m *RoomMetrics) IncLeaves()            { atomic.AddInt64(&m.Leaves, 1) }
func (m *RoomMetrics) IncRejected()          { atomic.AddInt64(&m.Rejected, 1) }

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	return map[string]any{
		"frames_in":           atomic.LoadInt64(&m.FramesIn),
		"frames_relayed":      atomic.LoadInt64(&m.FramesRelayed),
		"drops_simulated":     atomic.LoadInt64(&m.DropsSimulated),
		"chan_full_discarded": atomic.LoadInt64(&m.ChanFullDiscarded),
		"inbox_full":          atomic.LoadInt64(&m.InboxFull),
		"presence_syncs":      atomic.LoadInt64(&m.PresenceSyncs),
		"malformed_frames":    atomic.LoadInt64(&m.MalformedFrames),
		"joins":               atomic.LoadInt64(&m.Joins),
		"leaves":              atomic.LoadInt64(&m.Leaves),
		"rejected":            atomic.LoadInt64(&m.Rejected),
	}
}
