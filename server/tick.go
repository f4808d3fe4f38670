package server

import "time"

// Run 房间协程：串行处理入站命令，并按固定周期合并推送在线列表
func (r *Room) Run() {
	ticker := time.NewTicker(r.presenceFlush)
	defer ticker.Stop()
	defer r.closeAll()
	for {
		select {
		case <-r.stop:
			return
		case cmd := <-r.inbox:
			// select 在 stop 与 inbox 同时就绪时随机选择；停止后只回绝，不再改动成员表
			if r.isStopped() {
				r.reject(cmd)
				continue
			}
			r.handle(cmd)
		case <-ticker.C:
			r.flushPresence()
		}
	}
}

// reject 停止后仍排在队列里的命令：需要应答的立即回绝
func (r *Room) reject(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- ErrRoomStopped
	case membersCmd:
		c.reply <- nil
	}
}

// closeAll 房间停止时断开剩余连接
func (r *Room) closeAll() {
	for key, m := range r.members {
		if m.Conn != nil {
			m.Conn.Close()
		}
		delete(r.members, key)
	}
}
