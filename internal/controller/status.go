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

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/Unbounder1/server-manager/internal/apps"
)

// HostStatus is a read-only snapshot of the host and its applications.
type HostStatus struct {
	Address      string              `json:"address"`
	Online       bool                `json:"online"`
	Applications []ApplicationStatus `json:"applications,omitempty"`
}

type ApplicationStatus struct {
	ID    string       `json:"id"`
	Ports []PortStatus `json:"ports,omitempty"`
	// Running is nil when the application has no verify ports or the host
	// is offline.
	Running *bool `json:"running,omitempty"`
}

type PortStatus struct {
	Port int32 `json:"port"`
	Open bool  `json:"open"`
}

// Status pings the host and, when it is online, checks every verify port of
// every registered application. It never runs remote commands.
func (m *ServerManager) Status(ctx context.Context) (*HostStatus, error) {
	all, err := m.Applications.Load(ctx)
	if err != nil {
		return nil, err
	}

	status := &HostStatus{
		Address: m.Host.Address,
		Online:  m.reachable(ctx),
	}

	for _, id := range apps.IDs(all) {
		app := all[id]
		appStatus := ApplicationStatus{ID: id}

		if status.Online && app.Verifiable() {
			running := true
			for _, port := range app.VerifyPorts {
				open := m.Prober.IsPortOpen(ctx, m.Host.Address, port)
				appStatus.Ports = append(appStatus.Ports, PortStatus{Port: port, Open: open})
				running = running && open
			}
			appStatus.Running = &running
		}
		status.Applications = append(status.Applications, appStatus)
	}

	log.FromContext(ctx).V(1).Info("Collected status", "online", status.Online, "applications", len(status.Applications))
	return status, nil
}
