package models

// GreeksColumns is the persisted column order of a GreeksRecord.
var GreeksColumns = []string{
	"event_symbol",
	"event_index",
	"event_time",
	"event_flags",
	"sequence",
	"price",
	"volatility",
	"delta",
	"gamma",
	"theta",
	"rho",
	"vega",
}

// GreeksRecord is one Greeks event for a single contract. EventTime is in
// milliseconds since the epoch, as delivered by the feed.
type GreeksRecord struct {
	Symbol     string
	EventIndex int64
	EventTime  int64
	EventFlags int32
	Sequence   int64
	Price      float64
	Volatility float64
	Delta      float64
	Gamma      float64
	Theta      float64
	Rho        float64
	Vega       float64
}

// Values returns the record fields in GreeksColumns order.
func (g GreeksRecord) Values() []interface{} {
	return []interface{}{
		g.Symbol,
		g.EventIndex,
		g.EventTime,
		g.EventFlags,
		g.Sequence,
		g.Price,
		g.Volatility,
		g.Delta,
		g.Gamma,
		g.Theta,
		g.Rho,
		g.Vega,
	}
}
