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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	ctrl "sigs.k8s.io/controller-runtime"

	apiv1 "github.com/Unbounder1/server-manager/api/v1"
	"github.com/Unbounder1/server-manager/internal/apps"
	"github.com/Unbounder1/server-manager/internal/controller"
	"github.com/Unbounder1/server-manager/internal/httpapi"
	"github.com/Unbounder1/server-manager/internal/poll"
	"github.com/Unbounder1/server-manager/internal/power"
)

type managerLoader func(cmd *cobra.Command) (*controller.ServerManager, error)

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return &usageError{msg: fmt.Sprintf("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args))}
		}
		return nil
	}
}

func printOutcome(cmd *cobra.Command, what string, outcome controller.Outcome) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", what, outcome)
}

func newPowerOnCommand(load managerLoader) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "on",
		Short: "Wake the host",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := load(cmd)
			if err != nil {
				return err
			}
			outcome, err := m.PowerOn(cmd.Context(), verify)
			if err != nil {
				return err
			}
			printOutcome(cmd, "power on", outcome)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "Wait until the host answers pings.")
	return cmd
}

func newPowerOffCommand(load managerLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Shut the host down unless it is in use",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := load(cmd)
			if err != nil {
				return err
			}
			outcome, err := m.PowerOff(cmd.Context())
			if err != nil {
				return err
			}
			printOutcome(cmd, "power off", outcome)
			return nil
		},
	}
}

func newStartCommand(load managerLoader) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "start APPLICATION",
		Short: "Power the host on and start an application",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := load(cmd)
			if err != nil {
				return err
			}
			outcome, err := m.StartApplication(cmd.Context(), args[0], verify)
			if err != nil {
				return err
			}
			printOutcome(cmd, "start "+args[0], outcome)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", true, "Wait until every verify port of the application is open.")
	return cmd
}

func newStopCommand(load managerLoader) *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "stop APPLICATION",
		Short: "Stop an application",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := load(cmd)
			if err != nil {
				return err
			}
			outcome, err := m.StopApplication(cmd.Context(), args[0], verify)
			if err != nil {
				return err
			}
			printOutcome(cmd, "stop "+args[0], outcome)
			return nil
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", true, "Wait until every verify port of the application is closed.")
	return cmd
}

func newStatusCommand(load managerLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the host and its applications are up",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := load(cmd)
			if err != nil {
				return err
			}
			status, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
}

func newServeCommand(load managerLoader) *cobra.Command {
	opts := httpapi.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API over HTTP",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.Validate(); err != nil {
				return &usageError{msg: err.Error()}
			}
			m, err := load(cmd)
			if err != nil {
				return err
			}
			return httpapi.NewServer(opts, m).Start(cmd.Context())
		},
	}
	opts.BindFlags(cmd.Flags(), "")
	return cmd
}

func newWaitOfflineCommand(load managerLoader) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "wait-offline",
		Short: "Block until this machine loses internet connectivity",
		Long: "Block until this machine loses internet connectivity. Meant for " +
			"supervisors that restart long-lived listeners once the network drops.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := load(cmd)
			if err != nil {
				return err
			}
			offline := func(ctx context.Context) bool { return !m.Prober.HasInternetConnectivity(ctx) }
			return m.Poller.WaitFor(cmd.Context(), offline, interval, poll.NoTimeout)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "How often to check connectivity.")
	return cmd
}

// buildManager wires a ServerManager from the HostConfig at path.
func buildManager(path string) (*controller.ServerManager, error) {
	cfg, err := apiv1.LoadHostConfig(path)
	if err != nil {
		return nil, &apps.ConfigMalformedError{Err: err}
	}

	var key []byte
	if cfg.SSH.PrivateKeyFile != "" {
		key, err = os.ReadFile(cfg.SSH.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read SSH private key: %w", err)
		}
	}

	scripts := os.DirFS(cfg.ScriptsDir)
	source, err := applicationsSource(cfg.Applications)
	if err != nil {
		return nil, err
	}

	setupLog.V(1).Info("Loaded host config", "address", cfg.Host.Address, "scriptsDir", cfg.ScriptsDir)

	return &controller.ServerManager{
		Host: power.Host{
			MACAddress: cfg.Host.MACAddress,
			Address:    cfg.Host.Address,
			User:       cfg.Host.User,
		},
		Prober: &power.NetProbe{ConnectivityURL: cfg.ConnectivityURL},
		WolSender: &power.UDPWolSender{
			DefaultPort:             power.DefaultWolPort,
			DefaultBroadcastAddress: power.DefaultBroadcastAddress,
		},
		Executor: &power.SSHExecutor{
			Port:           cfg.SSH.Port,
			PrivateKey:     key,
			KnownHostsFile: cfg.SSH.KnownHostsFile,
			Scripts:        scripts,
		},
		Applications:     &apps.Registry{Source: source, Scripts: scripts},
		Poller:           poll.New(nil),
		WolPort:          cfg.WOL.Port,
		BroadcastAddress: cfg.WOL.BroadcastAddress,
		InUseScript:      cfg.InUseScript,
		ShutdownCommand:  strings.Fields(cfg.ShutdownCommand),
		PollInterval:     cfg.Timeouts.PollInterval.Duration,
		PowerOnTimeout:   cfg.Timeouts.PowerOn.Duration,
		PortTimeout:      cfg.Timeouts.Port.Duration,
	}, nil
}

func applicationsSource(spec apiv1.ApplicationsSource) (apps.Source, error) {
	if spec.ConfigMap == nil {
		return &apps.FileSource{Path: spec.File}, nil
	}

	restConfig, err := ctrl.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("unable to load kubeconfig: %w", err)
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create Kubernetes client: %w", err)
	}
	return &apps.ConfigMapSource{
		Client:    client,
		Namespace: spec.ConfigMap.Namespace,
		Name:      spec.ConfigMap.Name,
		Key:       spec.ConfigMap.Key,
	}, nil
}
