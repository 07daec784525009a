package apps

import "fmt"

// UnknownApplicationError is returned when an id is not in the registry.
type UnknownApplicationError struct {
	ID string
}

func (e *UnknownApplicationError) Error() string {
	return fmt.Sprintf("unknown application %q", e.ID)
}

// ConfigMalformedError means the registry document is invalid. It is an
// operator error and is never retried.
type ConfigMalformedError struct {
	// ID is the offending entry, empty when the whole document is bad.
	ID  string
	Err error
}

func (e *ConfigMalformedError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("malformed application config: %v", e.Err)
	}
	return fmt.Sprintf("malformed application config for %q: %v", e.ID, e.Err)
}

func (e *ConfigMalformedError) Unwrap() error {
	return e.Err
}
