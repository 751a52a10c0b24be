package google

import (
	"errors"
	"fmt"
)

// ErrMissingID matches any *MissingIDError.
var ErrMissingID = errors.New("provider response missing id")

// MissingIDError is returned when a create call succeeds without an id.
type MissingIDError struct {
	Resource string
}

func (e *MissingIDError) Error() string {
	return fmt.Sprintf("google %s create returned no id", e.Resource)
}

func (e *MissingIDError) Is(target error) bool {
	return target == ErrMissingID
}
