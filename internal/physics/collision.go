package physics

import (
	"math"

	"github.com/annel0/landblock/internal/vec"
)

// BoxCollider представляет простой прямоугольный коллайдер с центром в позиции объекта
type BoxCollider struct {
	Width  float64
	Height float64
}

// NewBoxCollider создаёт новый коллайдер с указанными размерами
func NewBoxCollider(width, height float64) *BoxCollider {
	return &BoxCollider{
		Width:  width,
		Height: height,
	}
}

// IsPointInside проверяет, находится ли точка внутри коллайдера
func (bc *BoxCollider) IsPointInside(colliderPos, point vec.Vec2Float) bool {
	halfWidth := bc.Width / 2
	halfHeight := bc.Height / 2

	return point.X >= colliderPos.X-halfWidth &&
		point.X < colliderPos.X+halfWidth &&
		point.Y >= colliderPos.Y-halfHeight &&
		point.Y < colliderPos.Y+halfHeight
}

// CheckBoxCollision проверяет пересечение двух коллайдеров
func CheckBoxCollision(pos1 vec.Vec2Float, collider1 *BoxCollider, pos2 vec.Vec2Float, collider2 *BoxCollider) bool {
	halfWidth1 := collider1.Width / 2
	halfHeight1 := collider1.Height / 2
	halfWidth2 := collider2.Width / 2
	halfHeight2 := collider2.Height / 2

	return pos1.X+halfWidth1 > pos2.X-halfWidth2 &&
		pos1.X-halfWidth1 < pos2.X+halfWidth2 &&
		pos1.Y+halfHeight1 > pos2.Y-halfHeight2 &&
		pos1.Y-halfHeight1 < pos2.Y+halfHeight2
}

// GetCollisionPoints возвращает клетки местности, которые нужно проверить для коллайдера:
// углы и центр. Для коллайдера не больше клетки — только центр.
func GetCollisionPoints(pos vec.Vec2Float, collider *BoxCollider) []vec.Vec2 {
	if collider.Width <= 1 && collider.Height <= 1 {
		return []vec.Vec2{pos.ToVec2()}
	}

	halfWidth := collider.Width / 2
	halfHeight := collider.Height / 2
	// правая и нижняя границы не включаются
	right := math.Nextafter(pos.X+halfWidth, math.Inf(-1))
	bottom := math.Nextafter(pos.Y+halfHeight, math.Inf(-1))

	return []vec.Vec2{
		vec.Vec2Float{X: pos.X - halfWidth, Y: pos.Y - halfHeight}.ToVec2(), // Левый верхний
		vec.Vec2Float{X: right, Y: pos.Y - halfHeight}.ToVec2(),             // Правый верхний
		vec.Vec2Float{X: pos.X - halfWidth, Y: bottom}.ToVec2(),             // Левый нижний
		vec.Vec2Float{X: right, Y: bottom}.ToVec2(),                         // Правый нижний
		pos.ToVec2(),                                                        // Центр
	}
}

// CanMoveToPosition проверяет, может ли коллайдер занять указанную позицию.
// passable сообщает, проходима ли клетка местности.
func CanMoveToPosition(newPos vec.Vec2Float, collider *BoxCollider, passable func(vec.Vec2) bool) bool {
	for _, point := range GetCollisionPoints(newPos, collider) {
		if !passable(point) {
			return false
		}
	}
	return true
}
