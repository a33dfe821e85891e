// internal/webarchive/errors.go
package webarchive

import (
	"errors"
	"fmt"
)

// ErrTemplateSlot reports a response template missing a required slot or
// holding a value of the wrong kind there.
var ErrTemplateSlot = errors.New("response template slot missing or malformed")

// EncodingError is returned when a response record cannot be produced from
// the template. Callers degrade to the plain encoding.
type EncodingError struct {
	Slot string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("response template %s: %v", e.Slot, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

func slotError(slot string, format string, args ...interface{}) error {
	return &EncodingError{Slot: slot, Err: fmt.Errorf("%w: "+format, append([]interface{}{ErrTemplateSlot}, args...)...)}
}
