package game

import "fmt"

// Participant 开局名单中的一项（id 来自身份分配，而非在线列表）
type Participant struct {
	ID   int
	Name string
}

var playerColors = []string{"#4a9eed", "#ed4a7a", "#4aed8a", "#edc44a"}

type plotSpec struct {
	x, y  float64
	fruit FruitType
}

// 地块布局：下标 0 为免费的起始地块
var plotLayout = []plotSpec{
	{80, 110, Banana},
	{80, 260, Apple},
	{80, 410, Orange},
	{180, 110, Banana},
	{180, 410, Apple},
}

// NewState 按名单构造初始世界；超出 MaxPlayers 的参与者被忽略
func NewState(t Tuning, roster []Participant) *State {
	w, h := t.MapWidth, t.MapHeight
	spawns := []Position{
		{200, h / 2},
		{w / 2, h / 2},
		{w/2 - 120, h / 2},
		{w/2 + 120, h / 2},
	}

	s := &State{
		Players:          make([]Player, 0, MaxPlayers),
		Plots:            make([]Plot, 0, len(plotLayout)),
		Shelves:          make([]Shelf, 0, 6),
		Customers:        make([]Customer, 0, t.MaxCustomers),
		CustomerInterval: t.CustomerSpawnTicks,
		Money:            t.StartingMoney,
		Cashier:          Cashier{Pos: Position{w - 160, h / 2}, Size: t.CashierSize},
	}

	for i, p := range roster {
		if i >= MaxPlayers {
			break
		}
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("Player %d", p.ID)
		}
		s.Players = append(s.Players, Player{
			ID:    p.ID,
			Pos:   spawns[i],
			Speed: t.PlayerSpeed,
			Size:  t.PlayerSize,
			Color: playerColors[i],
			Name:  name,
		})
	}

	for i, spec := range plotLayout {
		cost := 0
		if i < len(t.PlotCosts) {
			cost = t.PlotCosts[i]
		}
		starter := i == 0
		s.Plots = append(s.Plots, Plot{
			Pos:       Position{spec.x, spec.y},
			Type:      spec.fruit,
			Purchased: starter,
			Ready:     starter,
			MaxGrow:   t.FruitGrowTicks,
			Cost:      cost,
			Size:      t.PlotSize,
		})
	}

	for _, y := range []float64{120, h - 120} {
		for _, dx := range []float64{-120, 0, 120} {
			s.Shelves = append(s.Shelves, Shelf{
				Pos:      Position{w/2 + dx, y},
				MaxStock: t.ShelfMaxStock,
				Size:     t.ShelfSize,
			})
		}
	}
	return s
}

// ingress 顾客的固定入口
func (t Tuning) ingress() Position {
	return Position{t.MapWidth - 40, t.MapHeight / 2}
}
