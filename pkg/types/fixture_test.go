package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFixture() Fixture {
	return Fixture{
		Version: CurrentFixtureVersion,
		Name:    "sample",
		Inputs: Inputs{
			PriceSet: []float64{5.0, 10.0, 12.5},
			Levels: []PriceLevel{
				{Price: 5.0, Variants: []VariantRef{{Kind: VariantExportFull, WindowID: 0}}},
				{Price: 10.0, Variants: []VariantRef{
					{Kind: VariantChargeFull, WindowID: 0},
					{Kind: VariantChargeFreeze, WindowID: 0},
				}},
				{Price: 12.5, Variants: []VariantRef{{Kind: VariantExportFreeze, WindowID: 0}}},
			},
			Index: map[string]Variant{
				"chargeFull:0":   {Kind: VariantChargeFull, WindowID: 0, RawPrice: 10.0, ComparisonPrice: 10.0},
				"chargeFreeze:0": {Kind: VariantChargeFreeze, WindowID: 0, RawPrice: 10.0, ComparisonPrice: 10.0},
				"exportFull:0":   {Kind: VariantExportFull, WindowID: 0, RawPrice: 12.5, ComparisonPrice: 5.0},
				"exportFreeze:0": {Kind: VariantExportFreeze, WindowID: 0, RawPrice: 12.5, ComparisonPrice: 12.5},
			},
			ChargeWindows: []Window{{StartMinute: 0, EndMinute: 30, AveragePrice: 10.0}},
			ExportWindows: []Window{{StartMinute: 60, EndMinute: 90, AveragePrice: 12.5}},
			ChargeLimits:  []float64{0},
			ExportLimits:  []float64{100},
		},
	}
}

func TestFixtureRoundTrip(t *testing.T) {
	f := sampleFixture()

	// load -> save -> load must produce identical values
	b1, err := json.Marshal(f)
	require.NoError(t, err)

	var f2 Fixture
	require.NoError(t, json.Unmarshal(b1, &f2))
	assert.Equal(t, f, f2)

	b2, err := json.Marshal(f2)
	require.NoError(t, err)
	assert.Equal(t, b1, b2, "serialized form should be byte-identical across round trips")
}

func TestMigrateFixture(t *testing.T) {
	t.Run("Current Version Unchanged", func(t *testing.T) {
		f := sampleFixture()
		out, changed, err := MigrateFixture(f)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, f, out)
	})

	t.Run("Missing Limits Defaulted", func(t *testing.T) {
		f := sampleFixture()
		f.Version = 1
		f.Inputs.ChargeLimits = nil
		f.Inputs.ExportLimits = nil
		out, changed, err := MigrateFixture(f)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, CurrentFixtureVersion, out.Version)
		// charge windows default to inaction (0), export windows to 100
		assert.Equal(t, []float64{0}, out.Inputs.ChargeLimits)
		assert.Equal(t, []float64{100}, out.Inputs.ExportLimits)
	})

	t.Run("Future Version Untouched", func(t *testing.T) {
		f := sampleFixture()
		f.Version = CurrentFixtureVersion + 1
		out, changed, err := MigrateFixture(f)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, f, out)
	})
}

func TestWindowValidate(t *testing.T) {
	assert.NoError(t, Window{StartMinute: 0, EndMinute: 30}.Validate())
	assert.ErrorIs(t, Window{StartMinute: 30, EndMinute: 30}.Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, Window{StartMinute: 60, EndMinute: 30}.Validate(), ErrInvalidWindow)
	// negative offsets are fine as long as start < end
	assert.NoError(t, Window{StartMinute: -120, EndMinute: -60}.Validate())
}

func TestInputsValidate(t *testing.T) {
	in := sampleFixture().Inputs
	require.NoError(t, in.Validate())

	bad := in
	bad.ChargeLimits = []float64{0, 50}
	assert.Error(t, bad.Validate())

	bad = in
	bad.ChargeWindows = []Window{{StartMinute: 30, EndMinute: 0}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidWindow)
}

func TestCloneLimits(t *testing.T) {
	assert.Nil(t, CloneLimits(nil))

	orig := []float64{1, 2, 3}
	c := CloneLimits(orig)
	assert.Equal(t, orig, c)
	c[0] = 99
	assert.Equal(t, 1.0, orig[0], "clone must not alias the original")
}
