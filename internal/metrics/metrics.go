package metrics

import "time"

// Collector records ledger and token lifecycle metrics.
type Collector interface {
	RecordLedgerOperation(operation, outcome string, duration time.Duration)
	RecordLedgerRetry(operation string)
	RecordRevocationLookup(tier string, revoked bool)
	RecordEphemeralToken(purpose, event string)
	RecordCircuitState(name string, state CircuitState)
}

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Revocation lookup tiers.
const (
	TierCache    = "cache"
	TierNegative = "negative"
	TierDurable  = "durable"
)

// NoOpCollector discards everything.
type NoOpCollector struct{}

func (NoOpCollector) RecordLedgerOperation(string, string, time.Duration) {}
func (NoOpCollector) RecordLedgerRetry(string)                            {}
func (NoOpCollector) RecordRevocationLookup(string, bool)                 {}
func (NoOpCollector) RecordEphemeralToken(string, string)                 {}
func (NoOpCollector) RecordCircuitState(string, CircuitState)             {}
