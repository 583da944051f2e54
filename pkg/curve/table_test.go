package curve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("Integer Text Keys", func(t *testing.T) {
		tab, err := Parse(map[string]float64{"95": 0.49, "96": 0.41, "-10": 0.05})
		require.NoError(t, err)
		assert.Equal(t, 3, tab.Len())
		assert.Equal(t, 0.49, tab.Multiplier(95))
		assert.Equal(t, 0.05, tab.Multiplier(-10))
	})

	t.Run("Float Text Keys", func(t *testing.T) {
		tab, err := Parse(map[string]float64{"95.0": 0.49})
		require.NoError(t, err)
		assert.Equal(t, 0.49, tab.Multiplier(95))
	})

	t.Run("Non Numeric Keys Rejected", func(t *testing.T) {
		_, err := Parse(map[string]float64{"full": 0.49})
		assert.Error(t, err)

		_, err = Parse(map[string]float64{"95.5": 0.49})
		assert.Error(t, err, "fractional keys have no canonical integer form")
	})
}

func TestMultiplierDefaults(t *testing.T) {
	tab := New(map[int]float64{50: 0.8})
	assert.Equal(t, 0.8, tab.Multiplier(50))
	// missing entries fall back to the default, never an error
	assert.Equal(t, DefaultMultiplier, tab.Multiplier(51))

	empty := New(nil)
	assert.Equal(t, DefaultMultiplier, empty.Multiplier(0))
	assert.Equal(t, DefaultMultiplier, empty.Nearest(0))
	assert.Equal(t, DefaultMultiplier, empty.TemperatureMultiplier(10))
}

func TestNearest(t *testing.T) {
	tab := New(map[int]float64{0: 0.1, 10: 0.5, 20: 1.0})
	assert.Equal(t, 0.5, tab.Nearest(10))
	// 17 is closer to 20 than to 10
	assert.Equal(t, 1.0, tab.Nearest(17))
	assert.Equal(t, 0.5, tab.Nearest(12))
	// ties prefer the lower key: 5 is equidistant from 0 and 10
	assert.Equal(t, 0.1, tab.Nearest(5))
	// beyond the documented range, the boundary value applies
	assert.Equal(t, 1.0, tab.Nearest(40))
	assert.Equal(t, 0.1, tab.Nearest(-40))
}

func TestTemperatureMultiplierClamps(t *testing.T) {
	tab := New(map[int]float64{-20: 0.0, 0: 0.1, 10: 0.5, 20: 1.0})
	assert.Equal(t, 1.0, tab.TemperatureMultiplier(35), "clamped to 20")
	assert.Equal(t, 0.0, tab.TemperatureMultiplier(-45), "clamped to -20")
	assert.Equal(t, 0.5, tab.TemperatureMultiplier(10))
	assert.Equal(t, 1.0, tab.TemperatureMultiplier(17), "nearest boundary")
}
