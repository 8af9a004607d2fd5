package wire

// Dialect distinguishes the two upstream frame layouts. The nested
// dialect wraps payloads under "data" with a "stream" key and writes
// symbols with underscores/uppercase ("BTC_USDT"); the flat dialect
// uses lowercase concatenated symbols ("btcusdt") and a flat layout.
type Dialect uint8

const (
	DialectUnknown Dialect = iota
	DialectNested
	DialectFlat
)

func (d Dialect) String() string {
	switch d {
	case DialectNested:
		return "nested"
	case DialectFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// ParseDialect maps a config token to a Dialect.
func ParseDialect(s string) Dialect {
	switch s {
	case "nested":
		return DialectNested
	case "flat":
		return DialectFlat
	default:
		return DialectUnknown
	}
}

// DetectDialect classifies a symbol string. An underscore or any
// uppercase letter means the nested dialect; all-lowercase without
// underscore is the flat one. "ETHUSDT" classifies as nested.
func DetectDialect(symbol string) Dialect {
	if symbol == "" {
		return DialectUnknown
	}
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		if c == '_' || (c >= 'A' && c <= 'Z') {
			return DialectNested
		}
	}
	return DialectFlat
}
