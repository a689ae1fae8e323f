package domain

import "strings"

// Broker-agnostic types for position snapshots
// These types abstract away broker-specific payloads (Client Portal, TWS, etc.)

// InstrumentKind classifies a broker position
type InstrumentKind string

const (
	InstrumentOption InstrumentKind = "OPT"
	InstrumentShare  InstrumentKind = "STK"
)

// OptionRight is the stored option type
type OptionRight string

const (
	RightCall OptionRight = "Call"
	RightPut  OptionRight = "Put"
)

// DefaultContractMultiplier applies when the broker omits the multiplier
const DefaultContractMultiplier = 100

// ParseRight maps a broker right code ("C", "CALL", "P", ...) to an OptionRight.
// Anything not starting with C is a put.
func ParseRight(code string) OptionRight {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(code)), "C") {
		return RightCall
	}
	return RightPut
}

// OptionDetail carries the contract fields of an option position
type OptionDetail struct {
	RightCode  string  // Raw right code from the broker ("C" or "P")
	Strike     float64 // Strike price
	Expiration string  // Expiration as reported (YYYYMMDD)
	Multiplier int     // Contract multiplier, 0 means unspecified
}

// Right returns the parsed option right
func (d OptionDetail) Right() OptionRight {
	return ParseRight(d.RightCode)
}

// EffectiveMultiplier returns the multiplier, falling back to the default when unspecified
func (d OptionDetail) EffectiveMultiplier() int {
	if d.Multiplier == 0 {
		return DefaultContractMultiplier
	}
	return d.Multiplier
}

// ExternalPosition is one entry of a broker snapshot (broker-agnostic).
// Quantity is signed: negative means short.
type ExternalPosition struct {
	Kind      InstrumentKind
	Symbol    string
	Quantity  int64
	CostBasis float64 // Per-unit cost; per contract (multiplier included) for options
	Account   string
	Option    *OptionDetail
}

// ConnectionConfig selects the broker session endpoint. Zero values mean "use configured default".
type ConnectionConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	ClientID int    `json:"client_id"`
}

// WithDefaults fills zero fields from fallback
func (c ConnectionConfig) WithDefaults(fallback ConnectionConfig) ConnectionConfig {
	if c.Host == "" {
		c.Host = fallback.Host
	}
	if c.Port <= 0 {
		c.Port = fallback.Port
	}
	if c.ClientID <= 0 {
		c.ClientID = fallback.ClientID
	}
	return c
}

// ConnectionTestResult reports the outcome of a broker connection test
type ConnectionTestResult struct {
	Connected     bool
	Accounts      []string
	ServerVersion string
	Error         string
}
