package models

// QuoteColumns is the persisted column order of a QuoteRecord.
var QuoteColumns = []string{
	"streamer_symbol",
	"bid_price",
	"ask_price",
	"bid_size",
	"ask_size",
}

// QuoteRecord is the latest top of book for a symbol.
type QuoteRecord struct {
	Symbol   string
	BidPrice float64
	AskPrice float64
	BidSize  float64
	AskSize  float64
}

func (q QuoteRecord) Values() []interface{} {
	return []interface{}{q.Symbol, q.BidPrice, q.AskPrice, q.BidSize, q.AskSize}
}
