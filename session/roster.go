package session

import (
	"sort"

	"fruitmart/protocol"
)

// Member 在线名单中的一人，仅用于展示
type Member struct {
	Key      string `json:"key"`
	PlayerID int    `json:"playerId"`
	Name     string `json:"name"`
}

// rosterFromPresence 按 id、名字排序；尚未分配身份的客户端 id 为 0，排在最前
func rosterFromPresence(entries []protocol.PresenceEntry) []Member {
	out := make([]Member, 0, len(entries))
	for _, e := range entries {
		out = append(out, Member{Key: e.Key, PlayerID: e.Meta.PlayerID, Name: e.Meta.PlayerName})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PlayerID != out[j].PlayerID {
			return out[i].PlayerID < out[j].PlayerID
		}
		return out[i].Name < out[j].Name
	})
	return out
}
