package session

import (
	"sync"

	"fruitmart/game"
)

// HostID 房主固定为 1
const HostID = 1

// Assignment 房主分配出去的一个身份
type Assignment struct {
	PlayerID int
	Name     string
	Nonce    string
}

// Allocator 房主侧的身份分配：nonce → id，计数器从 2 开始。
// 同一 nonce 重复请求得到同一 id，超过人数上限的请求被拒绝。
type Allocator struct {
	mu      sync.Mutex
	max     int
	next    int
	byNonce map[string]int
	list    []Assignment
}

func NewAllocator(maxPlayers int) *Allocator {
	if maxPlayers <= 0 {
		maxPlayers = game.MaxPlayers
	}
	return &Allocator{
		max:     maxPlayers,
		next:    HostID + 1,
		byNonce: make(map[string]int),
	}
}

// Assign 返回 nonce 对应的身份；新请求在满员时 ok=false
func (a *Allocator) Assign(nonce, name string) (Assignment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if as, ok := a.lookupLocked(nonce); ok {
		return as, true
	}
	if a.next > a.max {
		return Assignment{}, false
	}
	as := Assignment{PlayerID: a.next, Name: name, Nonce: nonce}
	a.next++
	a.byNonce[nonce] = as.PlayerID
	a.list = append(a.list, as)
	return as, true
}

// Lookup 只查询已有分配，不分配新 id
func (a *Allocator) Lookup(nonce string) (Assignment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lookupLocked(nonce)
}

func (a *Allocator) lookupLocked(nonce string) (Assignment, bool) {
	id, ok := a.byNonce[nonce]
	if !ok {
		return Assignment{}, false
	}
	for _, as := range a.list {
		if as.PlayerID == id {
			return as, true
		}
	}
	return Assignment{}, false
}

// Assignments 按分配顺序返回副本
func (a *Allocator) Assignments() []Assignment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Assignment, len(a.list))
	copy(out, a.list)
	return out
}
