package main

import (
	"math"

	"fruitmart/game"

	"github.com/paulmach/orb/planar"
)

// autopilot 代替输入设备：采摘 → 上架 → 守收银台，钱够时买下最便宜的地块
type autopilot struct {
	id     int
	tuning game.Tuning
}

// keys 根据当前快照决定本帧按键
func (a autopilot) keys(s *game.State) game.Keys {
	if s == nil {
		return game.Keys{}
	}
	me := s.Player(a.id)
	if me == nil {
		return game.Keys{}
	}

	if me.Carrying != game.NoFruit {
		if i := a.shelfFor(s, me); i >= 0 {
			return a.steer(me.Pos, s.Shelves[i].Pos, false)
		}
		return a.steer(me.Pos, s.Cashier.Pos, false)
	}
	if waiting(s) {
		return a.steer(me.Pos, s.Cashier.Pos, false)
	}
	if i := a.readyPlot(s, me); i >= 0 {
		return a.steer(me.Pos, s.Plots[i].Pos, false)
	}
	if i := a.affordablePlot(s); i >= 0 {
		return a.steer(me.Pos, s.Plots[i].Pos, true)
	}
	return a.steer(me.Pos, s.Cashier.Pos, false)
}

// waiting 有顾客在收银台等待结账
func waiting(s *game.State) bool {
	for _, c := range s.Customers {
		if c.AtCashier && !c.Served && !c.Leaving {
			return true
		}
	}
	return false
}

func (a autopilot) shelfFor(s *game.State, me *game.Player) int {
	best, bestDist := -1, math.Inf(1)
	for i, sh := range s.Shelves {
		if sh.Stock >= sh.MaxStock || (sh.Type != game.NoFruit && sh.Type != me.Carrying) {
			continue
		}
		// 优先补同类货架
		d := planar.Distance(me.Pos.Point(), sh.Pos.Point())
		if sh.Type == me.Carrying {
			d /= 4
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (a autopilot) readyPlot(s *game.State, me *game.Player) int {
	best, bestDist := -1, math.Inf(1)
	for i, pl := range s.Plots {
		if !pl.Purchased || !pl.Ready {
			continue
		}
		if d := planar.Distance(me.Pos.Point(), pl.Pos.Point()); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (a autopilot) affordablePlot(s *game.State) int {
	best := -1
	for i, pl := range s.Plots {
		if pl.Purchased || pl.Cost > s.Money {
			continue
		}
		if best < 0 || pl.Cost < s.Plots[best].Cost {
			best = i
		}
	}
	return best
}

// steer 朝目标移动；进入交互距离后停下
func (a autopilot) steer(from, to game.Position, interact bool) game.Keys {
	k := game.Keys{Interact: interact}
	if planar.Distance(from.Point(), to.Point()) < a.tuning.InteractionDistance*0.5 {
		return k
	}
	dead := a.tuning.PlayerSpeed
	switch {
	case to.X > from.X+dead:
		k.Right = true
	case to.X < from.X-dead:
		k.Left = true
	}
	switch {
	case to.Y > from.Y+dead:
		k.Down = true
	case to.Y < from.Y-dead:
		k.Up = true
	}
	return k
}
