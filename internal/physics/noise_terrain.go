package physics

import (
	"github.com/annel0/landblock/internal/vec"
	"github.com/aquilax/go-perlin"
)

// NoiseTerrain — местность из шума Перлина: клетки, где шум выше порога, непроходимы (скалы)
type NoiseTerrain struct {
	noise     *perlin.Perlin
	scale     float64
	threshold float64
}

// NewNoiseTerrain создаёт местность. scale — частота в клетках (0.05 — крупные пятна),
// threshold в [0, 1] — доля высот, считающаяся проходимой.
func NewNoiseTerrain(seed int64, scale, threshold float64) *NoiseTerrain {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	if scale <= 0 {
		scale = 0.05
	}
	return &NoiseTerrain{
		noise:     perlin.NewPerlin(alpha, beta, n, seed),
		scale:     scale,
		threshold: threshold,
	}
}

// Height возвращает высоту клетки в диапазоне от 0 до 1
func (t *NoiseTerrain) Height(tile vec.Vec2) float64 {
	noise := t.noise.Noise2D(float64(tile.X)*t.scale, float64(tile.Y)*t.scale)
	return (noise + 1.0) / 2.0
}

func (t *NoiseTerrain) Passable(tile vec.Vec2) bool {
	return t.Height(tile) <= t.threshold
}
