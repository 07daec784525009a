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

package v1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	GroupVersion = "servermgr.unbounder1.io/v1"
	Kind         = "HostConfig"
)

// HostConfig describes the single machine a servermgr process manages.
type HostConfig struct {
	metav1.TypeMeta `json:",inline"`

	Host HostSpec `json:"host"`
	WOL  WOLSpec  `json:"wol,omitempty"`
	SSH  SSHSpec  `json:"ssh,omitempty"`

	// ScriptsDir holds the in-use script and the per-application
	// {prefix}.on.sh / {prefix}.off.sh scripts.
	ScriptsDir string `json:"scriptsDir,omitempty"`

	// +kubebuilder:default=in_use.sh
	InUseScript string `json:"inUseScript,omitempty"`

	// +kubebuilder:default="sudo shutdown -h now"
	ShutdownCommand string `json:"shutdownCommand,omitempty"`

	Applications ApplicationsSource `json:"applications"`

	// ConnectivityURL is fetched to decide whether this machine is online.
	ConnectivityURL string `json:"connectivityURL,omitempty"`

	Timeouts TimeoutSpec `json:"timeouts,omitempty"`
}

type HostSpec struct {
	MACAddress string `json:"macAddress"`
	Address    string `json:"address"`
	User       string `json:"user"`
}

type WOLSpec struct {
	// +kubebuilder:default=9
	Port             int    `json:"port,omitempty"`
	BroadcastAddress string `json:"broadcastAddress,omitempty"`
}

type SSHSpec struct {
	// +kubebuilder:default=22
	Port           int    `json:"port,omitempty"`
	PrivateKeyFile string `json:"privateKeyFile,omitempty"`
	KnownHostsFile string `json:"knownHostsFile,omitempty"`
}

// ApplicationsSource points at the application registry document. Exactly
// one of File or ConfigMap is set.
type ApplicationsSource struct {
	File      string           `json:"file,omitempty"`
	ConfigMap *ConfigMapSource `json:"configMap,omitempty"`
}

type ConfigMapSource struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	// +kubebuilder:default=applications.yaml
	Key string `json:"key,omitempty"`
}

type TimeoutSpec struct {
	// +kubebuilder:default="5s"
	PollInterval *metav1.Duration `json:"pollInterval,omitempty"`
	// +kubebuilder:default="300s"
	PowerOn *metav1.Duration `json:"powerOn,omitempty"`
	// +kubebuilder:default="300s"
	Port *metav1.Duration `json:"port,omitempty"`
}
