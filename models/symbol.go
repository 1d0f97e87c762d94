package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type OptionType byte

const (
	Call OptionType = 'C'
	Put  OptionType = 'P'
)

func (t OptionType) String() string {
	switch t {
	case Call:
		return "CALL"
	case Put:
		return "PUT"
	}
	return "UNKNOWN"
}

// Streamer option symbols look like .TSLA250221C550: the root runs up to the
// first digit, then a YYMMDD expiration, one type marker and the strike.
var optionSymbolPattern = regexp.MustCompile(
	`^(?P<root>[^0-9]+)(?P<date>[0-9]{6})(?P<type>[CP])(?P<strike>[0-9]+(?:\.[0-9]+)?)$`,
)

const expirationLayout = "060102"

// MalformedSymbolError is returned when a symbol does not match the
// root/date/type/strike grammar.
type MalformedSymbolError struct {
	Symbol string
	Reason string
}

func (e *MalformedSymbolError) Error() string {
	return fmt.Sprintf("malformed option symbol %q: %s", e.Symbol, e.Reason)
}

// OptionSymbol is the decomposed form of a streamer option symbol.
type OptionSymbol struct {
	Root       string
	Expiration time.Time
	Type       OptionType
	Strike     string
}

// ParseOptionSymbol decomposes symbol strictly. Nothing is truncated or
// guessed: any deviation from the grammar is a *MalformedSymbolError.
func ParseOptionSymbol(symbol string) (OptionSymbol, error) {
	if strings.IndexFunc(symbol, isDigit) < 0 {
		return OptionSymbol{}, &MalformedSymbolError{Symbol: symbol, Reason: "no expiration date digits"}
	}

	m := optionSymbolPattern.FindStringSubmatch(symbol)
	if m == nil {
		return OptionSymbol{}, &MalformedSymbolError{Symbol: symbol, Reason: "expected <root><YYMMDD><C|P><strike>"}
	}

	parts := make(map[string]string, 4)
	for i, name := range optionSymbolPattern.SubexpNames() {
		if name != "" {
			parts[name] = m[i]
		}
	}

	exp, err := time.Parse(expirationLayout, parts["date"])
	if err != nil {
		return OptionSymbol{}, &MalformedSymbolError{Symbol: symbol, Reason: "invalid expiration date " + parts["date"]}
	}

	return OptionSymbol{
		Root:       parts["root"],
		Expiration: exp,
		Type:       OptionType(parts["type"][0]),
		Strike:     parts["strike"],
	}, nil
}

// String rebuilds the streamer symbol.
func (s OptionSymbol) String() string {
	return s.Root + s.Expiration.Format(expirationLayout) + string(s.Type) + s.Strike
}

// AsPut returns the same contract with the type marker set to put. Only the
// marker in front of the strike changes; the root is left as is even when it
// contains a C.
func (s OptionSymbol) AsPut() OptionSymbol {
	s.Type = Put
	return s
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
