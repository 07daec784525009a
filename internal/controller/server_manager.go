/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	apiv1 "github.com/Unbounder1/server-manager/api/v1"
	"github.com/Unbounder1/server-manager/internal/apps"
	"github.com/Unbounder1/server-manager/internal/metrics"
	"github.com/Unbounder1/server-manager/internal/poll"
	"github.com/Unbounder1/server-manager/internal/power"
)

// Outcome describes what a successful operation did.
type Outcome string

const (
	// OutcomeApplied means remote actions were taken.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyConverged means the target state already held and
	// nothing was sent to the host.
	OutcomeAlreadyConverged Outcome = "already-converged"
	// OutcomeSkippedInUse means shutdown was refused by the in-use guard.
	OutcomeSkippedInUse Outcome = "skipped-in-use"
)

// Applications resolves application ids. *apps.Registry implements it.
type Applications interface {
	Load(ctx context.Context) (map[string]apps.Descriptor, error)
	Resolve(ctx context.Context, id string) (apps.Descriptor, error)
}

// Waiter blocks until a condition holds. *poll.Poller implements it.
type Waiter interface {
	WaitFor(ctx context.Context, cond poll.ConditionFunc, interval, timeout time.Duration) error
}

// ServerManager sequences power and application transitions for one host.
// It keeps no state between calls and does not serialize concurrent calls;
// callers that need ordering must queue operations themselves.
type ServerManager struct {
	Host         power.Host
	Prober       power.Prober
	WolSender    power.WolSender
	Executor     power.RemoteExecutor
	Applications Applications
	Poller       Waiter

	WolPort          int
	BroadcastAddress string
	InUseScript      string
	ShutdownCommand  []string

	PollInterval   time.Duration
	PowerOnTimeout time.Duration
	PortTimeout    time.Duration
}

// PowerOn wakes the host unless it already answers pings. With verify it
// blocks until the host is reachable. The wake packet is sent once per call.
func (m *ServerManager) PowerOn(ctx context.Context, verify bool) (outcome Outcome, err error) {
	defer observe("power-on", time.Now(), &outcome, &err)
	logger := m.logger(ctx)

	if m.reachable(ctx) {
		logger.V(1).Info("Host already online")
		return OutcomeAlreadyConverged, nil
	}

	logger.Info("Sending wake-on-LAN packet", "macAddress", m.Host.MACAddress)
	if err := m.WolSender.Wake(m.Host.MACAddress, m.WolPort, m.BroadcastAddress); err != nil {
		return "", fmt.Errorf("failed to send wake packet: %w", err)
	}
	if !verify {
		return OutcomeApplied, nil
	}

	timeout := orDefault(m.PowerOnTimeout, apiv1.DefaultPowerOnTimeout)
	if err := m.Poller.WaitFor(ctx, m.reachable, m.PollInterval, timeout); err != nil {
		return "", fmt.Errorf("host %s did not come online within %s: %w", m.Host.Address, timeout, err)
	}

	logger.Info("Host online")
	return OutcomeApplied, nil
}

// PowerOff shuts the host down unless the in-use script exits zero.
func (m *ServerManager) PowerOff(ctx context.Context) (outcome Outcome, err error) {
	defer observe("power-off", time.Now(), &outcome, &err)
	logger := m.logger(ctx)

	inUse := m.InUseScript
	if inUse == "" {
		inUse = apiv1.DefaultInUseScript
	}
	res, err := m.Executor.RunScript(ctx, m.Host, inUse, true)
	if err != nil {
		return "", fmt.Errorf("failed to check whether host is in use: %w", err)
	}
	if res.Success() {
		logger.Info("Host in use, skipping shutdown")
		return OutcomeSkippedInUse, nil
	}

	cmd := m.ShutdownCommand
	if len(cmd) == 0 {
		cmd = strings.Fields(apiv1.DefaultShutdownCommand)
	}
	logger.Info("Shutting down host")
	res, err = m.Executor.Run(ctx, m.Host, cmd, nil, true)
	if err != nil {
		return "", fmt.Errorf("failed to shut down host: %w", err)
	}
	if res.ExitMissing {
		// Connection drop during shutdown is expected
		return OutcomeApplied, nil
	}
	if res.ExitCode != 0 {
		return "", power.NewCommandFailedError(strings.Join(cmd, " "), res)
	}
	return OutcomeApplied, nil
}

// StartApplication powers the host on, always verified, then runs the
// application's on script. With verify, every verify port must be open
// afterwards; if they already are, the script is not run at all.
func (m *ServerManager) StartApplication(ctx context.Context, id string, verify bool) (Outcome, error) {
	return m.setApplication(ctx, "start-application", id, true, verify)
}

// StopApplication runs the application's off script. With verify, every
// verify port must be closed afterwards. The host is not powered on first.
func (m *ServerManager) StopApplication(ctx context.Context, id string, verify bool) (Outcome, error) {
	return m.setApplication(ctx, "stop-application", id, false, verify)
}

func (m *ServerManager) setApplication(ctx context.Context, op, id string, running, verify bool) (outcome Outcome, err error) {
	defer observe(op, time.Now(), &outcome, &err)
	logger := log.FromContext(ctx).WithValues("application", id, "running", running)
	ctx = log.IntoContext(ctx, logger)

	app, err := m.Applications.Resolve(ctx, id)
	if err != nil {
		return "", err
	}

	if running {
		if _, err := m.PowerOn(ctx, true); err != nil {
			return "", err
		}
	}

	// Probes on a cancelled context fail, which would read as closed.
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Shared by the skip check and the verification wait.
	portInState := m.portPredicate(running)

	if verify && app.Verifiable() && m.allPorts(ctx, app.VerifyPorts, portInState) {
		logger.Info("Application already in desired state, skipping script")
		return OutcomeAlreadyConverged, nil
	}

	script := app.OffScript()
	if running {
		script = app.OnScript()
	}
	logger.Info("Running application script", "script", script)
	res, err := m.Executor.RunScript(ctx, m.Host, script, true)
	if err != nil {
		return "", fmt.Errorf("failed to run %s: %w", script, err)
	}
	if !res.Success() {
		return "", power.NewCommandFailedError(script, res)
	}

	if !verify {
		return OutcomeApplied, nil
	}

	state := stateName(running)
	timeout := orDefault(m.PortTimeout, apiv1.DefaultPortTimeout)
	for _, port := range app.VerifyPorts {
		port := port
		cond := func(ctx context.Context) bool { return portInState(ctx, port) }
		if err := m.Poller.WaitFor(ctx, cond, m.PollInterval, timeout); err != nil {
			return "", fmt.Errorf("port %d of %s did not become %s within %s: %w", port, id, state, timeout, err)
		}
		logger.V(1).Info("Port converged", "port", port, "state", state)
	}
	return OutcomeApplied, nil
}

func (m *ServerManager) reachable(ctx context.Context) bool {
	return m.Prober.IsReachable(ctx, m.Host.Address)
}

// portPredicate returns a check that a port is open (wantOpen) or closed.
func (m *ServerManager) portPredicate(wantOpen bool) func(ctx context.Context, port int32) bool {
	return func(ctx context.Context, port int32) bool {
		return m.Prober.IsPortOpen(ctx, m.Host.Address, port) == wantOpen
	}
}

func (m *ServerManager) allPorts(ctx context.Context, ports []int32, inState func(context.Context, int32) bool) bool {
	for _, port := range ports {
		if !inState(ctx, port) {
			return false
		}
	}
	return true
}

func stateName(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func observe(op string, start time.Time, outcome *Outcome, err *error) {
	metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	label := string(*outcome)
	if *err != nil {
		label = "error-" + string(Classify(*err))
	}
	metrics.OperationsTotal.WithLabelValues(op, label).Inc()
}

func (m *ServerManager) logger(ctx context.Context) logr.Logger {
	return log.FromContext(ctx).WithValues("address", m.Host.Address)
}
