package greeks

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greeks_ingest/models"
)

func sampleRecord(symbol string, delta float64) models.GreeksRecord {
	return models.GreeksRecord{
		Symbol:     symbol,
		EventIndex: 7461053953849950208,
		EventTime:  1737161994421,
		EventFlags: 4,
		Sequence:   12,
		Price:      14.23456,
		Volatility: 0.51249,
		Delta:      delta,
		Gamma:      0.00412,
		Theta:      -0.35555,
		Rho:        0.12345,
		Vega:       0.88888,
	}
}

func TestRound3(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.1666666, 0.167},
		{1 - 0.85, 0.15},
		{1 - 0.8, 0.2},
		{-0.35555, -0.356},
		{0, 0},
		{0.0625, 0.062},   // exact tie, to even
		{0.1875, 0.188},   // exact tie, to even
		{0.2345, 0.234},   // just below the tie in binary
		{0.1115, 0.112},   // just above the tie in binary
		{1.0005, 1},       // just below the tie in binary
		{-0.0625, -0.062}, // exact tie, to even
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Round3(tt.in), "Round3(%v)", tt.in)
	}

	assert.True(t, math.IsNaN(Round3(math.NaN())))
	assert.True(t, math.IsInf(Round3(math.Inf(1)), 1))
}

func TestTransform_CallShapedIsRounded(t *testing.T) {
	out, err := Transform(sampleRecord(".TSLA250221C550", 0.1666666), 0.22)
	require.NoError(t, err)

	assert.Equal(t, ".TSLA250221C550", out.Symbol)
	assert.Equal(t, 0.167, out.Delta)
	assert.Equal(t, 14.235, out.Price)
	assert.Equal(t, 0.512, out.Volatility)
	assert.Equal(t, 0.004, out.Gamma)
	assert.Equal(t, -0.356, out.Theta)
	assert.Equal(t, 0.123, out.Rho)
	assert.Equal(t, 0.889, out.Vega)
	assert.Equal(t, int64(7461053953849950208), out.EventIndex)
}

func TestTransform_IdempotentOnCallShaped(t *testing.T) {
	once, err := Transform(sampleRecord(".AAPL250117C200", 0.19), 0.22)
	require.NoError(t, err)

	twice, err := Transform(once, 0.22)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestTransform_SynthesizesPut(t *testing.T) {
	in := sampleRecord(".TSLA250221C550", 0.85)

	out, err := Transform(in, 0.22)
	require.NoError(t, err)

	assert.Equal(t, ".TSLA250221P550", out.Symbol)
	assert.Equal(t, 0.15, out.Delta)
	assert.Zero(t, out.Price)
	assert.Zero(t, out.Volatility)
	assert.Zero(t, out.Gamma)
	assert.Zero(t, out.Theta)
	assert.Zero(t, out.Rho)
	assert.Zero(t, out.Vega)

	assert.Equal(t, in.EventIndex, out.EventIndex)
	assert.Equal(t, in.EventTime, out.EventTime)
	assert.Equal(t, in.EventFlags, out.EventFlags)
	assert.Equal(t, in.Sequence, out.Sequence)
}

func TestTransform_OnlyReplacesMarkerBeforeStrike(t *testing.T) {
	out, err := Transform(sampleRecord(".CSCO250221C60", 0.8), 0.22)
	require.NoError(t, err)

	assert.Equal(t, ".CSCO250221P60", out.Symbol)
}

func TestTransform_PutAboveMaxKeepsSymbol(t *testing.T) {
	in := sampleRecord(".SPY250321P500", 0.9)

	out, err := Transform(in, 0.22)
	require.NoError(t, err)

	assert.Equal(t, ".SPY250321P500", out.Symbol)
	assert.Equal(t, 0.1, out.Delta)
	assert.Zero(t, out.Price)
	assert.Zero(t, out.Volatility)
	assert.Zero(t, out.Gamma)
	assert.Zero(t, out.Theta)
	assert.Zero(t, out.Rho)
	assert.Zero(t, out.Vega)
	assert.Equal(t, in.EventIndex, out.EventIndex)
	assert.Equal(t, in.Sequence, out.Sequence)
}

func TestTransform_MalformedSymbol(t *testing.T) {
	_, err := Transform(sampleRecord("NODIGITS", 0.85), 0.22)
	require.Error(t, err)

	var malformed *models.MalformedSymbolError
	assert.True(t, errors.As(err, &malformed))
}
