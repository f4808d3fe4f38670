package game

import "math/rand/v2"

// Rand 随机源；*math/rand/v2.Rand 满足该接口，测试可注入固定序列
type Rand interface {
	IntN(n int) int
}

// Simulator 持有数值与随机源，按固定顺序推进世界
type Simulator struct {
	Tuning Tuning
	rng    Rand
}

func NewSimulator(t Tuning, rng Rand) *Simulator {
	return &Simulator{Tuning: t, rng: rng}
}

// Step 原地推进一个 Tick。同一 Tick 内对同一资源的争用按 inputs 顺序决出（先处理者得）。
// 未知玩家 id 与重复输入被忽略；任何交易要么完整发生，要么不发生。
func (sim *Simulator) Step(s *State, inputs []Input) {
	if s == nil || s.Paused {
		return
	}
	t := sim.Tuning

	s.GameTime++

	harvested := make(map[int]bool)
	seen := make(map[int]bool, len(inputs))
	for _, in := range inputs {
		p := s.Player(in.PlayerID)
		if p == nil || seen[in.PlayerID] {
			continue
		}
		seen[in.PlayerID] = true

		sim.applyMove(p, in.Keys)
		if in.Keys.Interact {
			sim.tryPurchasePlot(s, p)
		}
		if i := sim.tryHarvest(s, p); i >= 0 {
			harvested[i] = true
		}
		sim.tryStock(s, p)
	}

	for i := range s.Plots {
		pl := &s.Plots[i]
		if !pl.Purchased || pl.Ready || harvested[i] {
			continue
		}
		pl.GrowTimer++
		if pl.GrowTimer >= pl.MaxGrow {
			pl.Ready = true
		}
	}

	s.CustomerTimer++
	if s.CustomerTimer >= s.CustomerInterval && len(s.Customers) < t.MaxCustomers {
		sim.spawnCustomer(s)
		s.CustomerTimer = 0
	}

	sim.updateCustomers(s)
}

// applyMove 按键位移动，对角归一化后裁剪到内缩的地图边界
func (sim *Simulator) applyMove(p *Player, k Keys) {
	var dx, dy float64
	if k.Up {
		dy -= p.Speed
	}
	if k.Down {
		dy += p.Speed
	}
	if k.Left {
		dx -= p.Speed
	}
	if k.Right {
		dx += p.Speed
	}
	if dx != 0 && dy != 0 {
		dx *= diagonalFactor
		dy *= diagonalFactor
	}
	next := Position{X: p.Pos.X + dx, Y: p.Pos.Y + dy}
	p.Pos = clampTo(sim.Tuning.mapBound(p.Size), next)
}

func (sim *Simulator) inRange(a, b Position) bool {
	return dist(a, b) < sim.Tuning.InteractionDistance
}

// tryPurchasePlot 需要显式交互键；买下范围内第一块买得起的地块，都买不起时什么也不做
func (sim *Simulator) tryPurchasePlot(s *State, p *Player) {
	for i := range s.Plots {
		pl := &s.Plots[i]
		if pl.Purchased || !sim.inRange(p.Pos, pl.Pos) || s.Money < pl.Cost {
			continue
		}
		s.Money -= pl.Cost
		pl.Purchased = true
		pl.Ready = true
		pl.GrowTimer = 0
		return
	}
}

// tryHarvest 空手靠近成熟地块时自动采摘；返回被采摘地块下标，未采摘返回 -1
func (sim *Simulator) tryHarvest(s *State, p *Player) int {
	if p.Carrying != NoFruit {
		return -1
	}
	for i := range s.Plots {
		pl := &s.Plots[i]
		if !pl.Purchased || !pl.Ready || !sim.inRange(p.Pos, pl.Pos) {
			continue
		}
		p.Carrying = pl.Type
		pl.Ready = false
		pl.GrowTimer = 0
		return i
	}
	return -1
}

// tryStock 携带水果靠近可接收的货架时自动上架，每 Tick 至多一次
func (sim *Simulator) tryStock(s *State, p *Player) {
	if p.Carrying == NoFruit {
		return
	}
	for i := range s.Shelves {
		sh := &s.Shelves[i]
		if !sim.inRange(p.Pos, sh.Pos) {
			continue
		}
		if sh.Type != NoFruit && sh.Type != p.Carrying {
			continue
		}
		if sh.Stock >= sh.MaxStock {
			continue
		}
		sh.Type = p.Carrying
		sh.Stock++
		p.Carrying = NoFruit
		return
	}
}

// NewRand 可复现的随机源
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
