package power

import "context"

// Host identifies the machine being managed. It is never mutated after
// construction.
type Host struct {
	// MACAddress is only used for wake packets.
	MACAddress string
	// Address is used for ping, port and SSH operations.
	Address string
	// User is the remote login for SSH.
	User string
}

// WolSender sends Wake-on-LAN magic packets
type WolSender interface {
	Wake(macAddress string, port int, broadcastAddress string) error
}

// Prober performs read-only checks against a host. Failures are reported as
// false, never as errors.
type Prober interface {
	IsReachable(ctx context.Context, address string) bool
	IsPortOpen(ctx context.Context, address string, port int32) bool
	HasInternetConnectivity(ctx context.Context) bool
}

// RemoteExecutor runs commands on a host over SSH.
type RemoteExecutor interface {
	// Run executes command under host.User. A non-zero exit status is
	// reported in the Result; only a failure to reach the host is an error.
	Run(ctx context.Context, host Host, command []string, stdin []byte, capture bool) (*Result, error)

	// RunScript uploads the named local script and runs it under bash.
	RunScript(ctx context.Context, host Host, name string, capture bool) (*Result, error)
}

// Result describes one finished remote command.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte

	// ExitMissing is set when the session closed without reporting an exit
	// status, which is what a host does when it goes down mid-command.
	ExitMissing bool
}

// Success reports whether the command exited with status zero.
func (r *Result) Success() bool {
	return r != nil && !r.ExitMissing && r.ExitCode == 0
}
