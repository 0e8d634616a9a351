package analytics

import (
	"errors"
	"fmt"

	"github.com/clinicore/clinicore/internal/platform/db"
)

// ClientError is a request the caller can fix: an unsupported selection or a
// missing clinic association. Handlers report it as 400.
type ClientError struct {
	Reason string
}

func (e *ClientError) Error() string { return e.Reason }

// ErrNoClinic is returned when the caller is not associated with a clinic.
var ErrNoClinic = &ClientError{Reason: "user is not associated with a clinic"}

func clientErrorf(format string, args ...interface{}) error {
	return &ClientError{Reason: fmt.Sprintf(format, args...)}
}

// NotProvisionedError reports that an optional report section could not run
// because the tables or columns it reads are absent from the schema.
type NotProvisionedError struct {
	Section string
	Err     error
}

func (e *NotProvisionedError) Error() string {
	return fmt.Sprintf("%s: not provisioned: %v", e.Section, e.Err)
}

func (e *NotProvisionedError) Unwrap() error { return e.Err }

// classify wraps a query error for section, marking missing schema objects as
// NotProvisionedError.
func classify(section string, err error) error {
	if err == nil {
		return nil
	}
	if db.IsUndefinedObject(err) {
		return &NotProvisionedError{Section: section, Err: err}
	}
	return fmt.Errorf("%s: %w", section, err)
}

// IsClientError reports whether err (or anything it wraps) is a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsNotProvisioned reports whether err marks a missing optional schema.
func IsNotProvisioned(err error) bool {
	var np *NotProvisionedError
	return errors.As(err, &np)
}
