package greeks

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"greeks_ingest/models"
)

const precision = 3

// Round3 rounds the exact binary value of v to three decimals, breaking
// exact ties to even: 0.1666666 becomes 0.167, 0.0625 becomes 0.062 and
// 0.2345 (stored just below the tie) becomes 0.234.
func Round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.RequireFromString(strconv.FormatFloat(v, 'f', precision, 64)).InexactFloat64()
}

// Round returns rec with every float field rounded to three decimals.
func Round(rec models.GreeksRecord) models.GreeksRecord {
	rec.Price = Round3(rec.Price)
	rec.Volatility = Round3(rec.Volatility)
	rec.Delta = Round3(rec.Delta)
	rec.Gamma = Round3(rec.Gamma)
	rec.Theta = Round3(rec.Theta)
	rec.Rho = Round3(rec.Rho)
	rec.Vega = Round3(rec.Vega)
	return rec
}

// NeedsPut reports whether a record with this delta is stored as a
// synthesized put instead of as itself.
func NeedsPut(delta, maxDelta float64) bool {
	return delta > maxDelta
}

// Transform normalizes rec for persistence.
//
// Records with delta <= maxDelta are call shaped and only get rounded. Above
// maxDelta the record stands for the put on the other side of the strangle:
// the type marker in front of the strike becomes P, delta becomes
// round(1-delta, 3) and the market fields are zeroed since no quote exists
// for that side. Event index, time, flags and sequence are kept.
func Transform(rec models.GreeksRecord, maxDelta float64) (models.GreeksRecord, error) {
	sym, err := models.ParseOptionSymbol(rec.Symbol)
	if err != nil {
		return models.GreeksRecord{}, err
	}

	if !NeedsPut(rec.Delta, maxDelta) {
		return Round(rec), nil
	}

	put := sym
	if sym.Type == models.Call {
		put = sym.AsPut()
	}

	return models.GreeksRecord{
		Symbol:     put.String(),
		EventIndex: rec.EventIndex,
		EventTime:  rec.EventTime,
		EventFlags: rec.EventFlags,
		Sequence:   rec.Sequence,
		Delta:      Round3(1 - rec.Delta),
	}, nil
}
