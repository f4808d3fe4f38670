package game

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// MaxPlayers 单房间参与者上限
	MaxPlayers = 4

	exitMargin = 50.0
)

// Tuning 游戏数值；默认值见 DefaultTuning，可由 YAML 覆盖
type Tuning struct {
	MapWidth            float64 `yaml:"map_width"`
	MapHeight           float64 `yaml:"map_height"`
	PlayerSize          float64 `yaml:"player_size"`
	PlayerSpeed         float64 `yaml:"player_speed"`
	PlotSize            float64 `yaml:"plot_size"`
	ShelfSize           float64 `yaml:"shelf_size"`
	ShelfMaxStock       int     `yaml:"shelf_max_stock"`
	CashierSize         float64 `yaml:"cashier_size"`
	CustomerSize        float64 `yaml:"customer_size"`
	CustomerSpeed       float64 `yaml:"customer_speed"`
	CustomerPatience    int     `yaml:"customer_patience"`
	CustomerSpawnTicks  int     `yaml:"customer_spawn_ticks"`
	MaxCustomers        int     `yaml:"max_customers"`
	InteractionDistance float64 `yaml:"interaction_distance"`
	FruitGrowTicks      int     `yaml:"fruit_grow_ticks"`
	StartingMoney       int     `yaml:"starting_money"`

	Prices    map[FruitType]int `yaml:"prices"`
	PlotCosts []int             `yaml:"plot_costs"` // 与 NewState 中地块布局按下标对应
}

// DefaultTuning 返回内置默认数值（帧为单位的计时，约 60 TPS）
func DefaultTuning() Tuning {
	return Tuning{
		MapWidth:            960,
		MapHeight:           640,
		PlayerSize:          28,
		PlayerSpeed:         3,
		PlotSize:            40,
		ShelfSize:           44,
		ShelfMaxStock:       5,
		CashierSize:         48,
		CustomerSize:        24,
		CustomerSpeed:       1.5,
		CustomerPatience:    800,
		CustomerSpawnTicks:  180,
		MaxCustomers:        8,
		InteractionDistance: 45,
		FruitGrowTicks:      180,
		StartingMoney:       0,
		Prices: map[FruitType]int{
			Banana: 5,
			Apple:  8,
			Orange: 6,
		},
		PlotCosts: []int{0, 20, 35, 30, 60},
	}
}

// LoadTuning 读取 YAML，未出现的字段保留默认值
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, errors.Wrap(err, "read tuning")
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, errors.Wrapf(err, "tuning %s", path)
	}
	return t, nil
}

// Price 某种水果的售价，未配置时为 0
func (t Tuning) Price(f FruitType) int {
	return t.Prices[f]
}
