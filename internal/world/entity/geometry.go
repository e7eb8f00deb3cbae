package entity

import (
	"math"

	"github.com/annel0/landblock/internal/vec"
)

// LandblockSize — сторона ландблока в единицах мира
const LandblockSize = 192.0

// LandblockGrid — число ландблоков по каждой оси
const LandblockGrid = 256

// LandblockOf возвращает сырой идентификатор ландблока (X в старшем байте, Y в младшем)
// для глобальной точки; false — точка за пределами мира.
func LandblockOf(pos vec.Vec2Float) (uint16, bool) {
	x := math.Floor(pos.X / LandblockSize)
	y := math.Floor(pos.Y / LandblockSize)
	if x < 0 || y < 0 || x >= LandblockGrid || y >= LandblockGrid {
		return 0, false
	}
	return uint16(x)<<8 | uint16(y), true
}
