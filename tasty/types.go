package tasty

type envelope[T any] struct {
	Data  T         `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type loginRequest struct {
	Login      string `json:"login"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember-me"`
}

type sessionData struct {
	SessionToken string `json:"session-token"`
}

// QuoteToken grants access to the DXLink streamer.
type QuoteToken struct {
	Token     string `json:"token"`
	DXLinkURL string `json:"dxlink-url"`
	Level     string `json:"level"`
}

type nestedChainData struct {
	Items []NestedChain `json:"items"`
}

type NestedChain struct {
	UnderlyingSymbol string       `json:"underlying-symbol"`
	RootSymbol       string       `json:"root-symbol"`
	Expirations      []Expiration `json:"expirations"`
}

type Expiration struct {
	ExpirationType   string   `json:"expiration-type"`
	ExpirationDate   string   `json:"expiration-date"`
	DaysToExpiration int      `json:"days-to-expiration"`
	SettlementType   string   `json:"settlement-type"`
	Strikes          []Strike `json:"strikes"`
}

type Strike struct {
	StrikePrice        string `json:"strike-price"`
	Call               string `json:"call"`
	CallStreamerSymbol string `json:"call-streamer-symbol"`
	Put                string `json:"put"`
	PutStreamerSymbol  string `json:"put-streamer-symbol"`
}

// StreamerSymbols lists call and put streamer symbols strike by strike.
func (e Expiration) StreamerSymbols() []string {
	out := make([]string, 0, len(e.Strikes)*2)
	for _, s := range e.Strikes {
		if s.CallStreamerSymbol != "" {
			out = append(out, s.CallStreamerSymbol)
		}
		if s.PutStreamerSymbol != "" {
			out = append(out, s.PutStreamerSymbol)
		}
	}
	return out
}
