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
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/Unbounder1/server-manager/internal/controller"
)

var setupLog = ctrl.Log.WithName("setup")

func main() {
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctrl.SetupSignalHandler()); err != nil {
		kind := controller.Classify(err)
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", kind.Describe(), err)
		os.Exit(exitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		zapOpts    = zap.Options{Development: true}
	)

	root := &cobra.Command{
		Use:           "servermgr",
		Short:         "Power a remote host on and off and manage the applications it runs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))
		},
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{msg: fmt.Sprintf("%s: %v", cmd.CommandPath(), err)}
	})

	goFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	zapOpts.BindFlags(goFlags)
	root.PersistentFlags().AddGoFlagSet(goFlags)
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "servermgr.yaml",
		"Path to the HostConfig document.")

	load := func(*cobra.Command) (*controller.ServerManager, error) {
		return buildManager(configPath)
	}

	root.AddCommand(
		newPowerOnCommand(load),
		newPowerOffCommand(load),
		newStartCommand(load),
		newStopCommand(load),
		newStatusCommand(load),
		newServeCommand(load),
		newWaitOfflineCommand(load),
	)
	return root
}

// exitCode gives each error kind its own process exit status so callers can
// tell them apart without parsing output.
func exitCode(err error) int {
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		return 2
	}

	switch controller.Classify(err) {
	case controller.KindTimeout:
		return 3
	case controller.KindTransport:
		return 4
	case controller.KindRemoteCommand:
		return 5
	case controller.KindUnknownApplication:
		return 6
	case controller.KindBadConfig:
		return 7
	default:
		return 1
	}
}

type usageError struct {
	msg string
}

func (e *usageError) Error() string {
	return e.msg
}
