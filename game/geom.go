package game

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// 对角移动的归一化系数 1/√2
var diagonalFactor = 1 / math.Sqrt2

func dist(a, b Position) float64 {
	return planar.Distance(a.Point(), b.Point())
}

// mapBound 地图边界内缩 inset（玩家碰撞半径）
func (t Tuning) mapBound(inset float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{inset, inset},
		Max: orb.Point{t.MapWidth - inset, t.MapHeight - inset},
	}
}

func clampTo(b orb.Bound, p Position) Position {
	return Position{
		X: math.Max(b.Min.X(), math.Min(b.Max.X(), p.X)),
		Y: math.Max(b.Min.Y(), math.Min(b.Max.Y(), p.Y)),
	}
}

// moveToward 以 speed 向目标前进一步；距离不足一步时停在目标点
func moveToward(from, to Position, speed float64) Position {
	d := dist(from, to)
	if d == 0 {
		return from
	}
	if d <= speed {
		return to
	}
	return Position{
		X: from.X + (to.X-from.X)/d*speed,
		Y: from.Y + (to.Y-from.Y)/d*speed,
	}
}
