package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpectedIsSymmetric(t *testing.T) {
	pairs := [][2]int{{1000, 1000}, {1200, 800}, {1500, 1499}, {0, 3000}, {-150, 400}}
	for _, p := range pairs {
		sum := Expected(p[0], p[1]) + Expected(p[1], p[0])
		assert.InDelta(t, 1.0, sum, 1e-9, "ratings %v", p)
	}
}

func TestExpectedEqualRatings(t *testing.T) {
	assert.InDelta(t, 0.5, Expected(1000, 1000), 1e-9)
	assert.Greater(t, Expected(1400, 1000), 0.9)
}

func TestApplyWinFromEqualRatings(t *testing.T) {
	r1, r2 := Apply(1000, 1000, Win, 32)
	assert.Equal(t, 1016, r1)
	assert.Equal(t, 984, r2)
}

func TestApplyDrawMovesTowardHalf(t *testing.T) {
	r1, r2 := Apply(1200, 1000, Draw, DefaultK)
	assert.Less(t, r1, 1200, "favourite loses points on a draw")
	assert.Greater(t, r2, 1000, "underdog gains points on a draw")

	e1, e2 := Apply(1000, 1000, Draw, DefaultK)
	assert.Equal(t, 1000, e1)
	assert.Equal(t, 1000, e2)
}

func TestUpdateUsesKFactor(t *testing.T) {
	assert.Equal(t, 1005, Update(1000, 1000, Win, 10))
	assert.Equal(t, 1000, Update(1000, 1000, Win, 0))
}

func TestUpdateNotClamped(t *testing.T) {
	assert.Equal(t, -22, Update(10, 10, Loss, 64))
	assert.Equal(t, -1, Update(0, 0, Loss, 2))
}

func TestOddKRoundsHalvesToEven(t *testing.T) {
	r1, r2 := Apply(1000, 1000, Win, 33)
	assert.Equal(t, 1016, r1)
	assert.Equal(t, 984, r2)
	assert.Equal(t, 2000, r1+r2, "pool total is preserved")

	assert.Equal(t, 1000, Update(1000, 1000, Win, 1))
	assert.Equal(t, 1000, Update(1000, 1000, Loss, 1))
	assert.Equal(t, 1002, Update(1001, 1001, Win, 3))
}
