package game

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/paulmach/orb"
)

// FruitType 水果种类；空值表示“无”，序列化为 JSON null
type FruitType string

const (
	NoFruit FruitType = ""
	Banana  FruitType = "banana"
	Apple   FruitType = "apple"
	Orange  FruitType = "orange"
)

// FruitTypes 顾客随机需求的取值顺序（随机数按此下标抽取）
var FruitTypes = []FruitType{Banana, Apple, Orange}

func (f FruitType) MarshalJSON() ([]byte, error) {
	if f == NoFruit {
		return []byte("null"), nil
	}
	return json.Marshal(string(f))
}

func (f *FruitType) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = NoFruit
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*f = FruitType(s)
	return nil
}

// Position 二维坐标（值类型）
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Position) Point() orb.Point { return orb.Point{p.X, p.Y} }

// Player 玩家实体；Size 为碰撞半径，Carrying 至多一件水果
type Player struct {
	ID       int       `json:"id"`
	Pos      Position  `json:"pos"`
	Speed    float64   `json:"speed"`
	Size     float64   `json:"size"`
	Color    string    `json:"color"`
	Name     string    `json:"name"`
	Carrying FruitType `json:"carrying"`
}

// Plot 可购买、可重复生长的果园地块
type Plot struct {
	Pos       Position  `json:"pos"`
	Type      FruitType `json:"type"`
	Purchased bool      `json:"purchased"`
	Ready     bool      `json:"ready"`
	GrowTimer int       `json:"growTimer"`
	MaxGrow   int       `json:"maxGrow"`
	Cost      int       `json:"cost"`
	Size      float64   `json:"size"`
}

// Shelf 单一水果种类的货架；库存归零时种类重置为空
type Shelf struct {
	Pos      Position  `json:"pos"`
	Type     FruitType `json:"type"`
	Stock    int       `json:"stock"`
	MaxStock int       `json:"maxStock"`
	Size     float64   `json:"size"`
}

// Cashier 固定收银台
type Cashier struct {
	Pos  Position `json:"pos"`
	Size float64  `json:"size"`
}

// Customer 顾客：生成 → 走向货架 → 购买或改道 → 收银 → 离开
type Customer struct {
	Pos         Position  `json:"pos"`
	Wants       FruitType `json:"wants"`
	TargetShelf int       `json:"targetShelf"`
	Served      bool      `json:"served"`
	Leaving     bool      `json:"leaving"`
	AtCashier   bool      `json:"atCashier"` // 已从货架取货，处于结账阶段
	Patience    int       `json:"patience"`
	MaxPatience int       `json:"maxPatience"`
	Speed       float64   `json:"speed"`
	Size        float64   `json:"size"`
}

// State 世界聚合：仅由主机进程修改，其余参与者持有只读副本
type State struct {
	Players          []Player   `json:"players"`
	Plots            []Plot     `json:"plots"`
	Shelves          []Shelf    `json:"shelves"`
	Cashier          Cashier    `json:"cashier"`
	Customers        []Customer `json:"customers"`
	GameTime         int        `json:"gameTime"`
	CustomerTimer    int        `json:"customerTimer"`
	CustomerInterval int        `json:"customerInterval"`
	Paused           bool       `json:"paused"`
	Money            int        `json:"money"`
}

// Keys 某一时刻的按键状态
type Keys struct {
	Up       bool `json:"up"`
	Down     bool `json:"down"`
	Left     bool `json:"left"`
	Right    bool `json:"right"`
	Interact bool `json:"interact"`
}

// Input 单个玩家在一个 Tick 内提交的输入
type Input struct {
	PlayerID int  `json:"playerId"`
	Keys     Keys `json:"keys"`
}

// Clone 深拷贝，供渲染快照与副本替换使用
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Players = slices.Clone(s.Players)
	cp.Plots = slices.Clone(s.Plots)
	cp.Shelves = slices.Clone(s.Shelves)
	cp.Customers = slices.Clone(s.Customers)
	return &cp
}

// Player 按 id 查找玩家，不存在时返回 nil
func (s *State) Player(id int) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}
