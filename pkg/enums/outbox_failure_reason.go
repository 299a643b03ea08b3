package enums

// OutboxFailureReason labels why the relay quarantined a message.
type OutboxFailureReason string

const (
	OutboxFailureSerialization OutboxFailureReason = "serialization"
	OutboxFailurePublish       OutboxFailureReason = "publish"
)

var validOutboxFailureReasons = []OutboxFailureReason{
	OutboxFailureSerialization,
	OutboxFailurePublish,
}

func (r OutboxFailureReason) IsValid() bool {
	for _, candidate := range validOutboxFailureReasons {
		if candidate == r {
			return true
		}
	}
	return false
}
