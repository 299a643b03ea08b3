package types

import "time"

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// OutboxMessageView is the admin representation of an outbox record.
type OutboxMessageView struct {
	MessageID     string     `json:"messageId"`
	AggregateID   string     `json:"aggregateId"`
	Status        string     `json:"status"`
	Payload       string     `json:"payload"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	SentAt        *time.Time `json:"sentAt,omitempty"`
	AttemptCount  int        `json:"attemptCount"`
	LastError     *string    `json:"lastError,omitempty"`
	ClaimedBy     *string    `json:"claimedBy,omitempty"`
}

type OutboxMessageList struct {
	Items  []OutboxMessageView `json:"items"`
	Status string              `json:"status"`
	Limit  int                 `json:"limit"`
}

// ReplayResult reports the outcome of a batch replay per message id.
type ReplayResult struct {
	Replayed []string          `json:"replayed"`
	Skipped  map[string]string `json:"skipped,omitempty"`
}
