package power

import (
	"fmt"
	"strings"
)

// TransportError means the SSH channel to the host could not be established.
type TransportError struct {
	Address string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("unable to reach %s over SSH: %v", e.Address, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CommandFailedError means a remote command ran and exited non-zero.
type CommandFailedError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandFailedError) Error() string {
	msg := fmt.Sprintf("remote command %q exited with code %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// NewCommandFailedError builds a CommandFailedError from a finished command.
func NewCommandFailedError(command string, res *Result) *CommandFailedError {
	return &CommandFailedError{
		Command:  command,
		ExitCode: res.ExitCode,
		Stderr:   string(res.Stderr),
	}
}
