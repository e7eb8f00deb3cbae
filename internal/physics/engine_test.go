package physics

import (
	"testing"
	"time"

	"github.com/annel0/landblock/internal/vec"
	"github.com/annel0/landblock/internal/world/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wallAtX(x int) Terrain {
	return TerrainFunc(func(tile vec.Vec2) bool { return tile.X != x })
}

func TestCheckBoxCollision(t *testing.T) {
	c := NewBoxCollider(1, 1)
	assert.True(t, CheckBoxCollision(vec.Vec2Float{X: 0, Y: 0}, c, vec.Vec2Float{X: 0.5, Y: 0.5}, c))
	assert.False(t, CheckBoxCollision(vec.Vec2Float{X: 0, Y: 0}, c, vec.Vec2Float{X: 1, Y: 0}, c))
	assert.True(t, c.IsPointInside(vec.Vec2Float{X: 5, Y: 5}, vec.Vec2Float{X: 5.4, Y: 4.6}))
}

func TestGetCollisionPoints(t *testing.T) {
	small := GetCollisionPoints(vec.Vec2Float{X: 3.5, Y: 3.5}, NewBoxCollider(0.8, 0.8))
	assert.Equal(t, []vec.Vec2{{X: 3, Y: 3}}, small)

	big := GetCollisionPoints(vec.Vec2Float{X: 4, Y: 4}, NewBoxCollider(2, 2))
	assert.Contains(t, big, vec.Vec2{X: 3, Y: 3})
	assert.Contains(t, big, vec.Vec2{X: 4, Y: 4})
	assert.NotContains(t, big, vec.Vec2{X: 5, Y: 5})
}

func TestEngine_Place(t *testing.T) {
	e := NewEngine(wallAtX(10))

	a := entity.NewItem(1, "a")
	a.SetLocation(vec.Vec2Float{X: 5.5, Y: 5.5})
	require.NoError(t, e.Place(a, nil))

	b := entity.NewItem(2, "b")
	b.SetLocation(vec.Vec2Float{X: 5.8, Y: 5.5})
	err := e.Place(b, []entity.WorldObject{a, b})
	assert.ErrorIs(t, err, ErrPlacementBlocked)

	b.Ethereal = true
	assert.NoError(t, e.Place(b, []entity.WorldObject{a}))

	wall := entity.NewItem(3, "wall")
	wall.SetLocation(vec.Vec2Float{X: 10.5, Y: 5.5})
	assert.ErrorIs(t, e.Place(wall, nil), ErrPlacementBlocked)

	assert.ErrorIs(t, e.Place(entity.NewItem(4, "void"), nil), ErrNoLocation)
}

func TestEngine_Step(t *testing.T) {
	e := NewEngine(wallAtX(10))

	c := entity.NewCreature(1, "drudge", vec.Vec2Float{X: 5.5, Y: 5.5})
	_, moved := e.Step(c, time.Second)
	assert.False(t, moved)

	c.Velocity = vec.Vec2Float{X: 2, Y: 0}
	next, moved := e.Step(c, time.Second)
	require.True(t, moved)
	assert.InDelta(t, 7.5, next.X, 1e-9)

	c.SetLocation(vec.Vec2Float{X: 9.5, Y: 5.5})
	next, moved = e.Step(c, 500*time.Millisecond)
	assert.False(t, moved)
	assert.InDelta(t, 9.5, next.X, 1e-9)
}

func TestEngine_ReleaseLandblock(t *testing.T) {
	e := NewEngine(nil)

	a := entity.NewItem(1, "a")
	a.SetLocation(vec.Vec2Float{X: 5, Y: 5})
	require.NoError(t, e.Place(a, nil))

	b := entity.NewItem(2, "b")
	b.SetLocation(vec.Vec2Float{X: entity.LandblockSize + 5, Y: 5})
	require.NoError(t, e.Place(b, nil))
	assert.Equal(t, 2, e.CachedLandblocks())

	e.ReleaseLandblock(0x0000)
	assert.Equal(t, 1, e.CachedLandblocks())
}

func TestNoiseTerrain_Threshold(t *testing.T) {
	open := NewNoiseTerrain(42, 0.1, 10)
	closed := NewNoiseTerrain(42, 0.1, -10)
	for x := 0; x < 20; x++ {
		tile := vec.Vec2{X: x, Y: x * 3}
		if !open.Passable(tile) {
			t.Fatalf("tile %v should be passable at threshold 10", tile)
		}
		if closed.Passable(tile) {
			t.Fatalf("tile %v should be blocked at threshold -10", tile)
		}
	}
}

func TestNoiseTerrain_Deterministic(t *testing.T) {
	a := NewNoiseTerrain(7, 0.05, 0.5)
	b := NewNoiseTerrain(7, 0.05, 0.5)
	for x := 0; x < 50; x += 7 {
		tile := vec.Vec2{X: x, Y: 100 - x}
		if a.Height(tile) != b.Height(tile) {
			t.Fatalf("same seed gave different heights at %v", tile)
		}
	}
}
