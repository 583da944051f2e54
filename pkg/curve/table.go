// Package curve holds the battery rate-multiplier tables and the low-power
// charge-rate solver.
package curve

import (
	"fmt"
	"sort"
	"strconv"
)

const (
	// TemperatureMin and TemperatureMax bound the usable temperature range;
	// readings outside it are clamped before lookup.
	TemperatureMin = -20
	TemperatureMax = 20

	// DefaultMultiplier is used when a table has no entry for a key. Curves
	// are best-effort hardware approximations, not safety bounds.
	DefaultMultiplier = 1.0
)

// Table maps an integer key (SOC percent or degrees C) to a rate
// multiplier. Keys arriving as numeric text are normalized once here, never
// re-parsed by consumers.
type Table struct {
	entries map[int]float64
	keys    []int
}

// New builds a table from integer keys.
func New(entries map[int]float64) Table {
	t := Table{entries: make(map[int]float64, len(entries))}
	for k, v := range entries {
		t.entries[k] = v
	}
	t.rebuildKeys()
	return t
}

// Parse builds a table from duck-typed numeric-text keys, as delivered by
// JSON or YAML configuration.
func Parse(raw map[string]float64) (Table, error) {
	entries := make(map[int]float64, len(raw))
	for k, v := range raw {
		key, err := strconv.Atoi(k)
		if err != nil {
			// allow "95.0" style keys too
			f, ferr := strconv.ParseFloat(k, 64)
			if ferr != nil || f != float64(int(f)) {
				return Table{}, fmt.Errorf("invalid curve key %q: %w", k, err)
			}
			key = int(f)
		}
		entries[key] = v
	}
	return New(entries), nil
}

func (t *Table) rebuildKeys() {
	t.keys = t.keys[:0]
	for k := range t.entries {
		t.keys = append(t.keys, k)
	}
	sort.Ints(t.keys)
}

// Len returns the number of entries.
func (t Table) Len() int {
	return len(t.entries)
}

// Multiplier returns the multiplier for the exact key, or the default when
// the key is missing.
func (t Table) Multiplier(key int) float64 {
	if v, ok := t.entries[key]; ok {
		return v
	}
	return DefaultMultiplier
}

// Nearest returns the multiplier at the defined key closest to the given
// key, preferring the lower key on ties. An empty table returns the default.
func (t Table) Nearest(key int) float64 {
	if v, ok := t.entries[key]; ok {
		return v
	}
	if len(t.keys) == 0 {
		return DefaultMultiplier
	}
	best := t.keys[0]
	for _, k := range t.keys[1:] {
		if abs(k-key) < abs(best-key) {
			best = k
		}
	}
	return t.entries[best]
}

// TemperatureMultiplier clamps the temperature to the usable range and
// returns the multiplier at the nearest documented boundary.
func (t Table) TemperatureMultiplier(tempC float64) float64 {
	clamped := tempC
	if clamped < TemperatureMin {
		clamped = TemperatureMin
	}
	if clamped > TemperatureMax {
		clamped = TemperatureMax
	}
	return t.Nearest(int(clamped))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
