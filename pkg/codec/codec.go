// Package codec turns contractor snapshots into outbox payloads and back.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sergeJAVA/contractor-service/pkg/db/models"
	"github.com/sergeJAVA/contractor-service/pkg/enums"
)

// ContentType is the broker content type of every encoded payload.
const ContentType = "application/json"

// ContractorType names the payload for the AMQP type property.
const ContractorType = "contractor"

var errMissingID = errors.New("contractor id is required")

// SerializationError reports a payload that could not be encoded or decoded.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s contractor payload: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

func (e *SerializationError) Operation() string {
	return e.Op + " contractor payload"
}

func (e *SerializationError) FailureReason() string {
	return string(enums.OutboxFailureSerialization)
}

// IsSerializationError reports whether err carries a SerializationError.
func IsSerializationError(err error) bool {
	var target *SerializationError
	return errors.As(err, &target)
}

// Contractor is the JSON codec for contractor snapshots.
type Contractor struct{}

func NewContractor() Contractor {
	return Contractor{}
}

// Encode serializes a contractor snapshot. Encoding is stable for a given
// snapshot so the payload stored in the outbox is what consumers receive.
func (Contractor) Encode(c *models.Contractor) ([]byte, error) {
	if c == nil {
		return nil, &SerializationError{Op: "encode", Err: errors.New("contractor is nil")}
	}
	if strings.TrimSpace(c.ID) == "" {
		return nil, &SerializationError{Op: "encode", Err: errMissingID}
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, &SerializationError{Op: "encode", Err: err}
	}
	return payload, nil
}

// Decode parses a stored payload back into a contractor snapshot.
func (Contractor) Decode(payload []byte) (*models.Contractor, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, &SerializationError{Op: "decode", Err: errors.New("payload is empty")}
	}
	var c models.Contractor
	if err := json.Unmarshal(trimmed, &c); err != nil {
		return nil, &SerializationError{Op: "decode", Err: err}
	}
	if strings.TrimSpace(c.ID) == "" {
		return nil, &SerializationError{Op: "decode", Err: errMissingID}
	}
	return &c, nil
}
