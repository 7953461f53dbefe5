package ability

import (
	"errors"
	"fmt"
)

// DeniedError reports that the actor's policy grants no matching rule.
type DeniedError struct {
	Action  Action
	Subject Subject
	Field   string
}

func (e *DeniedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("Cannot execute %q on %q of %q", e.Action, e.Field, e.Subject)
	}
	return fmt.Sprintf("Cannot execute %q on %q", e.Action, e.Subject)
}

// IsDenied reports whether err is or wraps a *DeniedError.
func IsDenied(err error) bool {
	var de *DeniedError
	return errors.As(err, &de)
}
