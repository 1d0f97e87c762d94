package parser

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greeks_ingest/feed"
)

func TestParseEnvelope(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"AUTH_STATE","channel":0,"state":"AUTHORIZED","userId":"x"}`))
	require.NoError(t, err)

	assert.Equal(t, "AUTH_STATE", env.Type)
	assert.Equal(t, "AUTHORIZED", env.State)

	_, err = ParseEnvelope([]byte(`{"channel":1}`))
	assert.Error(t, err)

	_, err = ParseEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecodeFeedData_Greeks(t *testing.T) {
	data := json.RawMessage(`["Greeks",[
		"Greeks",".TSLA250221C550",0,7461053953849950208,1737161994421,3,14.25,0.51,0.85,0.004,-0.35,0.12,0.88,
		"Greeks",".TSLA250221C560",0,7461053953849950209,1737161994422,4,"NaN",0.5,"NaN",0,0,0,0
	]]`)

	events, err := DecodeFeedData(data, DefaultFields)
	require.NoError(t, err)
	require.Len(t, events, 2)

	g := events[0].Greeks
	require.NotNil(t, g)
	assert.Equal(t, feed.KindGreeks, events[0].Kind)
	assert.Equal(t, ".TSLA250221C550", events[0].Symbol())
	assert.Equal(t, int64(7461053953849950208), g.EventIndex)
	assert.Equal(t, int64(1737161994421), g.EventTime)
	assert.Equal(t, int64(3), g.Sequence)
	assert.Equal(t, 0.85, g.Delta)
	assert.Equal(t, -0.35, g.Theta)

	assert.True(t, math.IsNaN(events[1].Greeks.Delta))
	assert.True(t, math.IsNaN(events[1].Greeks.Price))
}

func TestDecodeFeedData_QuoteWithServerFields(t *testing.T) {
	fields := DefaultFields.Merge(map[string][]string{
		"Quote": {"eventType", "eventSymbol", "askPrice", "bidPrice", "askSize", "bidSize"},
	})
	require.NoError(t, fields.Validate())

	events, err := DecodeFeedData(json.RawMessage(`["Quote",["Quote","SPY",601.5,601.4,"Infinity",200]]`), fields)
	require.NoError(t, err)
	require.Len(t, events, 1)

	q := events[0].Quote
	require.NotNil(t, q)
	assert.Equal(t, 601.4, q.BidPrice)
	assert.Equal(t, 601.5, q.AskPrice)
	assert.Equal(t, 200.0, q.BidSize)
	assert.True(t, math.IsInf(q.AskSize, 1))
}

func TestDecodeFeedData_Errors(t *testing.T) {
	cases := map[string]string{
		"odd members":      `["Greeks"]`,
		"unknown type":     `["Trade",["Trade","SPY",1]]`,
		"short row":        `["Quote",["Quote","SPY",1,2,3]]`,
		"values not array": `["Quote","SPY"]`,
		"missing symbol":   `["Quote",["Quote","",1,2,3,4]]`,
		"not an array":     `{"Quote":1}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFeedData(json.RawMessage(raw), DefaultFields)
			assert.Error(t, err)
		})
	}
}

func TestFieldsValidate(t *testing.T) {
	assert.NoError(t, DefaultFields.Validate())

	assert.Error(t, Fields{feed.KindGreeks: {"eventType", "eventSymbol", "charm"}}.Validate())
	assert.Error(t, Fields{feed.KindGreeks: {"eventSymbol", "delta"}}.Validate())
	assert.Error(t, Fields{"Trade": {"eventType", "eventSymbol"}}.Validate())
}
