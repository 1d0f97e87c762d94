// Package parser decodes DXLink feed messages. Event payloads arrive in the
// COMPACT format: a flat array of values per event type whose order is given
// by the field list agreed in FEED_SETUP / FEED_CONFIG.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"greeks_ingest/feed"
	"greeks_ingest/models"
)

// Envelope is the common shape of every DXLink protocol message.
type Envelope struct {
	Type        string              `json:"type"`
	Channel     int                 `json:"channel"`
	State       string              `json:"state,omitempty"`
	Error       string              `json:"error,omitempty"`
	Message     string              `json:"message,omitempty"`
	DataFormat  string              `json:"dataFormat,omitempty"`
	EventFields map[string][]string `json:"eventFields,omitempty"`
	Data        json.RawMessage     `json:"data,omitempty"`
}

func ParseEnvelope(msg []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("message without type: %s", truncate(msg, 120))
	}
	return &env, nil
}

// Fields maps an event type to the ordered field names of its compact rows.
type Fields map[feed.EventKind][]string

var knownFields = map[feed.EventKind]map[string]bool{
	feed.KindGreeks: set("eventType", "eventSymbol", "eventTime", "eventFlags", "index", "time",
		"sequence", "price", "volatility", "delta", "gamma", "theta", "rho", "vega"),
	feed.KindQuote: set("eventType", "eventSymbol", "eventTime", "sequence", "timeNanoPart",
		"bidTime", "bidExchangeCode", "bidPrice", "bidSize", "askTime", "askExchangeCode", "askPrice", "askSize"),
}

// DefaultFields is what the feed adapter requests in FEED_SETUP.
var DefaultFields = Fields{
	feed.KindGreeks: {"eventType", "eventSymbol", "eventFlags", "index", "time", "sequence",
		"price", "volatility", "delta", "gamma", "theta", "rho", "vega"},
	feed.KindQuote: {"eventType", "eventSymbol", "bidPrice", "askPrice", "bidSize", "askSize"},
}

// Validate rejects event types and field names the decoder has no rule for.
func (f Fields) Validate() error {
	for kind, names := range f {
		known, ok := knownFields[kind]
		if !ok {
			return fmt.Errorf("unsupported event type %q", kind)
		}
		if len(names) == 0 || names[0] != "eventType" {
			return fmt.Errorf("%s fields must start with eventType", kind)
		}
		for _, n := range names {
			if !known[n] {
				return fmt.Errorf("unknown %s field %q", kind, n)
			}
		}
	}
	return nil
}

// Merge returns a copy of f with the entries of other replacing its own.
func (f Fields) Merge(other map[string][]string) Fields {
	out := make(Fields, len(f)+len(other))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range other {
		out[feed.EventKind(k)] = v
	}
	return out
}

// DecodeFeedData turns the data member of a FEED_DATA message into events.
// data alternates event type names and flat value arrays.
func DecodeFeedData(data json.RawMessage, fields Fields) ([]feed.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var groups []interface{}
	if err := dec.Decode(&groups); err != nil {
		return nil, fmt.Errorf("failed to decode feed data: %w", err)
	}
	if len(groups)%2 != 0 {
		return nil, fmt.Errorf("feed data has %d members, want type/values pairs", len(groups))
	}

	var events []feed.Event
	for i := 0; i < len(groups); i += 2 {
		name, ok := groups[i].(string)
		if !ok {
			return nil, fmt.Errorf("feed data member %d is not an event type", i)
		}
		values, ok := groups[i+1].([]interface{})
		if !ok {
			return nil, fmt.Errorf("feed data for %s is not an array", name)
		}

		kind := feed.EventKind(name)
		names := fields[kind]
		if len(names) == 0 {
			return nil, fmt.Errorf("no field list for event type %q", name)
		}
		if len(values)%len(names) != 0 {
			return nil, fmt.Errorf("%s payload has %d values, not a multiple of %d fields", name, len(values), len(names))
		}

		for off := 0; off < len(values); off += len(names) {
			row := make(map[string]interface{}, len(names))
			for j, n := range names {
				row[n] = values[off+j]
			}

			ev, err := buildEvent(kind, row)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}

	return events, nil
}

func buildEvent(kind feed.EventKind, row map[string]interface{}) (feed.Event, error) {
	symbol, _ := row["eventSymbol"].(string)
	if symbol == "" {
		return feed.Event{}, fmt.Errorf("%s event without eventSymbol", kind)
	}

	switch kind {
	case feed.KindGreeks:
		return feed.Event{
			Kind: kind,
			Greeks: &models.GreeksRecord{
				Symbol:     symbol,
				EventIndex: toInt64(row["index"]),
				EventTime:  toInt64(row["time"]),
				EventFlags: int32(toInt64(row["eventFlags"])),
				Sequence:   toInt64(row["sequence"]),
				Price:      toFloat(row["price"]),
				Volatility: toFloat(row["volatility"]),
				Delta:      toFloat(row["delta"]),
				Gamma:      toFloat(row["gamma"]),
				Theta:      toFloat(row["theta"]),
				Rho:        toFloat(row["rho"]),
				Vega:       toFloat(row["vega"]),
			},
		}, nil
	case feed.KindQuote:
		return feed.Event{
			Kind: kind,
			Quote: &models.QuoteRecord{
				Symbol:   symbol,
				BidPrice: toFloat(row["bidPrice"]),
				AskPrice: toFloat(row["askPrice"]),
				BidSize:  toFloat(row["bidSize"]),
				AskSize:  toFloat(row["askSize"]),
			},
		}, nil
	}

	return feed.Event{}, fmt.Errorf("unsupported event type %q", kind)
}

// toFloat maps missing values and the feed's "NaN"/"Infinity" strings to
// their float counterparts.
func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		switch x {
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// toInt64 keeps full precision for 64-bit event indexes.
func toInt64(v interface{}) int64 {
	n, ok := v.(json.Number)
	if !ok {
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return int64(f)
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
