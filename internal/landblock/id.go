package landblock

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world/entity"
)

// ID — координатный ключ ландблока: X в старшем байте, Y в младшем
type ID uint16

// NewID собирает идентификатор из координат сетки
func NewID(x, y uint8) ID {
	return ID(uint16(x)<<8 | uint16(y))
}

func (id ID) X() uint8 { return uint8(id >> 8) }
func (id ID) Y() uint8 { return uint8(id) }

// String возвращает вид 0xA9B4
func (id ID) String() string {
	return fmt.Sprintf("0x%04X", uint16(id))
}

// ParseID разбирает "A9B4", "0xA9B4" или "a9b4"
func ParseID(s string) (ID, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("parse landblock id %q: %w", s, err)
	}
	return ID(v), nil
}

// IDFromPosition возвращает ландблок, содержащий точку мира
func IDFromPosition(pos vec.Vec2Float) (ID, bool) {
	raw, ok := entity.LandblockOf(pos)
	return ID(raw), ok
}

// Origin — угол ландблока с минимальными координатами
func (id ID) Origin() vec.Vec2Float {
	return vec.Vec2Float{
		X: float64(id.X()) * entity.LandblockSize,
		Y: float64(id.Y()) * entity.LandblockSize,
	}
}

// Center — центр ландблока
func (id ID) Center() vec.Vec2Float {
	return id.Origin().Add(vec.Vec2Float{X: entity.LandblockSize / 2, Y: entity.LandblockSize / 2})
}

// Neighbours возвращает до восьми соседних ландблоков внутри сетки
func (id ID) Neighbours() []ID {
	out := make([]ID, 0, 8)
	x, y := int(id.X()), int(id.Y())
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= entity.LandblockGrid || ny >= entity.LandblockGrid {
				continue
			}
			out = append(out, NewID(uint8(nx), uint8(ny)))
		}
	}
	return out
}

// IsAdjacent сообщает, что ландблоки соседствуют (по Чебышёву)
func (id ID) IsAdjacent(other ID) bool {
	a := vec.Vec2{X: int(id.X()), Y: int(id.Y())}
	b := vec.Vec2{X: int(other.X()), Y: int(other.Y())}
	return id != other && a.Chebyshev(b) == 1
}
