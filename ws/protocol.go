package ws

import "greeks_ingest/parser"

// DXLink protocol message types.
const (
	msgSetup            = "SETUP"
	msgAuth             = "AUTH"
	msgAuthState        = "AUTH_STATE"
	msgChannelRequest   = "CHANNEL_REQUEST"
	msgChannelOpened    = "CHANNEL_OPENED"
	msgChannelCancel    = "CHANNEL_CANCEL"
	msgChannelClosed    = "CHANNEL_CLOSED"
	msgFeedSetup        = "FEED_SETUP"
	msgFeedConfig       = "FEED_CONFIG"
	msgFeedSubscription = "FEED_SUBSCRIPTION"
	msgFeedData         = "FEED_DATA"
	msgKeepalive        = "KEEPALIVE"
	msgError            = "ERROR"

	stateAuthorized = "AUTHORIZED"

	protocolVersion  = "0.1-DXF-JS/0.3.0"
	keepaliveTimeout = 60
	feedChannel      = 1
)

type setupMessage struct {
	Type                   string `json:"type"`
	Channel                int    `json:"channel"`
	Version                string `json:"version"`
	KeepaliveTimeout       int    `json:"keepaliveTimeout"`
	AcceptKeepaliveTimeout int    `json:"acceptKeepaliveTimeout"`
}

type authMessage struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`
	Token   string `json:"token"`
}

type channelRequest struct {
	Type       string            `json:"type"`
	Channel    int               `json:"channel"`
	Service    string            `json:"service"`
	Parameters map[string]string `json:"parameters"`
}

type feedSetup struct {
	Type                    string              `json:"type"`
	Channel                 int                 `json:"channel"`
	AcceptAggregationPeriod float64             `json:"acceptAggregationPeriod"`
	AcceptDataFormat        string              `json:"acceptDataFormat"`
	AcceptEventFields       map[string][]string `json:"acceptEventFields"`
}

type subscriptionEntry struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

type feedSubscription struct {
	Type    string              `json:"type"`
	Channel int                 `json:"channel"`
	Reset   bool                `json:"reset,omitempty"`
	Add     []subscriptionEntry `json:"add,omitempty"`
	Remove  []subscriptionEntry `json:"remove,omitempty"`
}

type channelMessage struct {
	Type    string `json:"type"`
	Channel int    `json:"channel"`
}

func acceptFields(fields parser.Fields) map[string][]string {
	out := make(map[string][]string, len(fields))
	for k, v := range fields {
		out[string(k)] = v
	}
	return out
}

func entries(kind string, symbols []string) []subscriptionEntry {
	out := make([]subscriptionEntry, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, subscriptionEntry{Type: kind, Symbol: s})
	}
	return out
}
