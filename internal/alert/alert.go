// Package alert implements the AlertDispatcher of spec §4.J: priority
// routing, cooldown-bucketed deduplication, multi-channel delivery with
// retry/backoff and per-channel circuit breaking.
package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Priority mirrors spec §3's Alert priority scale.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Alert is the spec §3 Alert entity.
type Alert struct {
	ID                 string
	Symbol             string
	Kind               string
	Priority           Priority
	Title              string
	Body               string
	CreatedAt          time.Time
	ChannelsAttempted  []string
	ChannelsSucceeded  []string
	AckAt              *time.Time
}

// ComputeID implements spec §3's cooldown-bucketed dedup id:
// sha256(symbol|kind|bucket(createdAt, cooldown)).
func ComputeID(symbol, kind string, createdAt time.Time, cooldown time.Duration) string {
	cooldownSeconds := int64(cooldown / time.Second)
	if cooldownSeconds <= 0 {
		cooldownSeconds = 1
	}
	bucket := createdAt.Unix() / cooldownSeconds
	basis := fmt.Sprintf("%s|%s|%d", symbol, kind, bucket)
	sum := sha256.Sum256([]byte(basis))
	return hex.EncodeToString(sum[:])
}

// routingTable implements spec §4.J's priority → channel routing:
// "CRITICAL uses all; HIGH omits Email; MEDIUM uses Desktop only; LOW
// is logged only."
func routingTable(p Priority) []string {
	switch p {
	case PriorityCritical:
		return []string{"telegram", "email", "desktop", "audio"}
	case PriorityHigh:
		return []string{"telegram", "desktop", "audio"}
	case PriorityMedium:
		return []string{"desktop"}
	default:
		return nil // LOW is logged only, no channel attempts
	}
}
