package power

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/Unbounder1/server-manager/internal/metrics"
)

const (
	DefaultSSHPort    = 22
	DefaultSSHTimeout = 10 * time.Second
)

// SSHExecutor runs remote commands over a fresh SSH connection per call.
type SSHExecutor struct {
	Port int
	// PrivateKey is a PEM encoded key. When empty the executor falls back to
	// the agent listening on SSH_AUTH_SOCK.
	PrivateKey     []byte
	KnownHostsFile string
	Timeout        time.Duration

	// Scripts holds the local scripts RunScript can ship to the host.
	Scripts fs.FS
}

var _ RemoteExecutor = &SSHExecutor{}

func (s *SSHExecutor) Run(ctx context.Context, host Host, command []string, stdin []byte, capture bool) (*Result, error) {
	logger := log.FromContext(ctx).WithValues("address", host.Address, "user", host.User)

	res, err := s.run(ctx, host, command, stdin, capture)
	switch {
	case err != nil:
		metrics.RemoteCommandsTotal.WithLabelValues("transport-error").Inc()
		return nil, err
	case res.ExitMissing:
		metrics.RemoteCommandsTotal.WithLabelValues("exit-missing").Inc()
	case res.ExitCode != 0:
		metrics.RemoteCommandsTotal.WithLabelValues("failed").Inc()
	default:
		metrics.RemoteCommandsTotal.WithLabelValues("ok").Inc()
	}

	logger.V(1).Info("Remote command finished", "command", command[0], "exitCode", res.ExitCode, "exitMissing", res.ExitMissing)
	return res, nil
}

func (s *SSHExecutor) run(ctx context.Context, host Host, command []string, stdin []byte, capture bool) (*Result, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty remote command")
	}
	transportErr := func(err error) error {
		return &TransportError{Address: host.Address, Err: err}
	}

	auth, closeAuth, err := s.authMethods()
	if err != nil {
		return nil, transportErr(err)
	}
	defer closeAuth()

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if s.KnownHostsFile != "" {
		hostKeyCallback, err = knownhosts.New(s.KnownHostsFile)
		if err != nil {
			return nil, transportErr(fmt.Errorf("unable to load known hosts: %w", err))
		}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultSSHTimeout
	}
	config := &ssh.ClientConfig{
		User:            host.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	port := s.Port
	if port == 0 {
		port = DefaultSSHPort
	}
	addr := net.JoinHostPort(host.Address, strconv.Itoa(port))

	client, err := dialSSH(ctx, addr, config)
	if err != nil {
		return nil, transportErr(fmt.Errorf("unable to connect to SSH server: %w", err))
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, transportErr(fmt.Errorf("unable to create SSH session: %w", err))
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	if capture {
		session.Stdout = &stdout
		session.Stderr = &stderr
	}

	res := &Result{}
	err = session.Run(shellJoin(command))

	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	case errors.As(err, &missingErr):
		// Connection drop during shutdown is expected
		res.ExitCode = -1
		res.ExitMissing = true
	default:
		return nil, transportErr(fmt.Errorf("unable to execute command: %w", err))
	}

	if capture {
		res.Stdout = stdout.Bytes()
		res.Stderr = stderr.Bytes()
	}
	return res, nil
}

// RunScript reads name from Scripts and pipes it into bash on the host.
func (s *SSHExecutor) RunScript(ctx context.Context, host Host, name string, capture bool) (*Result, error) {
	if s.Scripts == nil {
		return nil, fmt.Errorf("no scripts directory configured")
	}
	body, err := fs.ReadFile(s.Scripts, name)
	if err != nil {
		return nil, fmt.Errorf("unable to read script %s: %w", name, err)
	}

	log.FromContext(ctx).V(1).Info("Running script", "script", name)
	return s.Run(ctx, host, []string{"bash"}, body, capture)
}

func (s *SSHExecutor) authMethods() ([]ssh.AuthMethod, func(), error) {
	noop := func() {}

	if len(s.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(s.PrivateKey)
		if err != nil {
			return nil, noop, fmt.Errorf("unable to parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, noop, nil
	}

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, noop, fmt.Errorf("SSH private key is required when no agent is available")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, noop, fmt.Errorf("unable to connect to SSH agent: %w", err)
	}
	client := agent.NewClient(conn)
	return []ssh.AuthMethod{ssh.PublicKeysCallback(client.Signers)}, func() { conn.Close() }, nil
}

func dialSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := &net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// shellJoin quotes each argument for the remote POSIX shell.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = shellQuote(arg)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:@,+%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
