package enums

import (
	"fmt"
	"strings"
)

// OutboxStatus is the delivery state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusSent    OutboxStatus = "SENT"
	OutboxStatusFailed  OutboxStatus = "FAILED"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusSent,
	OutboxStatusFailed,
}

// IsValid reports whether the value matches a known status.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the relay will never pick the message up again.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusSent || s == OutboxStatusFailed
}

// ParseOutboxStatus converts raw input (case-insensitive) into OutboxStatus.
func ParseOutboxStatus(value string) (OutboxStatus, error) {
	normalized := OutboxStatus(strings.ToUpper(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid outbox status %q", value)
}

// OutboxStatuses lists every status in lifecycle order.
func OutboxStatuses() []OutboxStatus {
	out := make([]OutboxStatus, len(validOutboxStatuses))
	copy(out, validOutboxStatuses)
	return out
}
