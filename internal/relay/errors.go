package relay

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sergeJAVA/contractor-service/pkg/enums"
)

// PublishError reports that the broker did not take a message: it was
// unreachable, the publish timed out or the broker nacked it.
type PublishError struct {
	MessageID uuid.UUID
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish outbox message %s: %v", e.MessageID, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func (e *PublishError) Operation() string {
	return "publish"
}

func (e *PublishError) OutboxMessageID() string {
	return e.MessageID.String()
}

func (e *PublishError) FailureReason() string {
	return string(enums.OutboxFailurePublish)
}

// IsPublishError reports whether err carries a PublishError.
func IsPublishError(err error) bool {
	var target *PublishError
	return errors.As(err, &target)
}
