// Package scanner implements the ScannerRuntime of spec §4.I: three
// market-clock-gated cooperative workers (premarket catalyst, intraday
// pump, opportunity) publishing Candidates onto a shared bounded channel.
package scanner

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which worker produced a Candidate.
type Kind string

const (
	KindPremarketCatalyst Kind = "PREMARKET_CATALYST"
	KindIntradayPump      Kind = "INTRADAY_PUMP"
	KindOpportunity       Kind = "OPPORTUNITY"
)

// Priority is used only for candidate-channel back-pressure decisions
// (spec §4.I: "priority-preserving: CRITICAL never dropped; LOW dropped
// first"), distinct from Alert priority though the labels are shared.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// Candidate is the spec §3 Candidate entity. CorrelationID ties a
// candidate back to the scanner tick that produced it (SPEC_FULL
// supplement, grounded in the teacher's uuid-based request correlation),
// distinct from the content-hash Alert.ID it is later turned into.
type Candidate struct {
	Symbol        string
	Kind          Kind
	Score         float64
	Priority      Priority
	Reasons       []string
	DetectedAt    time.Time
	CorrelationID string
	Payload       any
}

// NewCorrelationID mints a fresh correlation id for one scanner tick's
// evaluation of one symbol.
func NewCorrelationID() string { return uuid.NewString() }
