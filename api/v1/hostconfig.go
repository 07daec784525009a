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
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"sigs.k8s.io/yaml"

	"github.com/Unbounder1/server-manager/internal/poll"
	"github.com/Unbounder1/server-manager/internal/power"
)

// Defaults shared by the config document and ServerManager.
const (
	DefaultInUseScript     = "in_use.sh"
	DefaultShutdownCommand = "sudo shutdown -h now"
	DefaultConfigMapKey    = "applications.yaml"
	DefaultPollInterval    = poll.DefaultInterval
	DefaultPowerOnTimeout  = 300 * time.Second
	DefaultPortTimeout     = 300 * time.Second
)

// LoadHostConfig reads, defaults and validates the config at path. Relative
// file references inside it are resolved against the config's directory.
func LoadHostConfig(path string) (*HostConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read host config: %w", err)
	}

	cfg, err := ParseHostConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid host config %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// ParseHostConfig decodes a YAML or JSON document strictly, so unknown fields
// are rejected.
func ParseHostConfig(data []byte) (*HostConfig, error) {
	var cfg HostConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Default()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default fills in every optional field left empty.
func (c *HostConfig) Default() {
	if c.APIVersion == "" {
		c.APIVersion = GroupVersion
	}
	if c.Kind == "" {
		c.Kind = Kind
	}
	if c.WOL.Port == 0 {
		c.WOL.Port = power.DefaultWolPort
	}
	if c.WOL.BroadcastAddress == "" {
		c.WOL.BroadcastAddress = power.DefaultBroadcastAddress
	}
	if c.SSH.Port == 0 {
		c.SSH.Port = power.DefaultSSHPort
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = "scripts"
	}
	if c.InUseScript == "" {
		c.InUseScript = DefaultInUseScript
	}
	if c.ShutdownCommand == "" {
		c.ShutdownCommand = DefaultShutdownCommand
	}
	if c.Applications.ConfigMap != nil && c.Applications.ConfigMap.Key == "" {
		c.Applications.ConfigMap.Key = DefaultConfigMapKey
	}
	if c.Timeouts.PollInterval == nil {
		c.Timeouts.PollInterval = &metav1.Duration{Duration: DefaultPollInterval}
	}
	if c.Timeouts.PowerOn == nil {
		c.Timeouts.PowerOn = &metav1.Duration{Duration: DefaultPowerOnTimeout}
	}
	if c.Timeouts.Port == nil {
		c.Timeouts.Port = &metav1.Duration{Duration: DefaultPortTimeout}
	}
}

// Validate reports every problem at once.
func (c *HostConfig) Validate() error {
	var errs field.ErrorList

	if c.APIVersion != GroupVersion {
		errs = append(errs, field.NotSupported(field.NewPath("apiVersion"), c.APIVersion, []string{GroupVersion}))
	}
	if c.Kind != Kind {
		errs = append(errs, field.NotSupported(field.NewPath("kind"), c.Kind, []string{Kind}))
	}

	host := field.NewPath("host")
	if c.Host.MACAddress == "" {
		errs = append(errs, field.Required(host.Child("macAddress"), "needed for wake-on-LAN"))
	} else if _, err := net.ParseMAC(c.Host.MACAddress); err != nil {
		errs = append(errs, field.Invalid(host.Child("macAddress"), c.Host.MACAddress, err.Error()))
	}
	if c.Host.Address == "" {
		errs = append(errs, field.Required(host.Child("address"), ""))
	}
	if c.Host.User == "" {
		errs = append(errs, field.Required(host.Child("user"), "needed for SSH"))
	}

	for _, p := range []struct {
		path *field.Path
		port int
	}{
		{field.NewPath("wol", "port"), c.WOL.Port},
		{field.NewPath("ssh", "port"), c.SSH.Port},
	} {
		for _, msg := range validation.IsValidPortNum(p.port) {
			errs = append(errs, field.Invalid(p.path, p.port, msg))
		}
	}

	apps := field.NewPath("applications")
	switch {
	case c.Applications.File == "" && c.Applications.ConfigMap == nil:
		errs = append(errs, field.Required(apps, "one of file or configMap must be set"))
	case c.Applications.File != "" && c.Applications.ConfigMap != nil:
		errs = append(errs, field.Forbidden(apps, "file and configMap are mutually exclusive"))
	case c.Applications.ConfigMap != nil:
		cm := apps.Child("configMap")
		if c.Applications.ConfigMap.Namespace == "" {
			errs = append(errs, field.Required(cm.Child("namespace"), ""))
		}
		if c.Applications.ConfigMap.Name == "" {
			errs = append(errs, field.Required(cm.Child("name"), ""))
		}
	}

	timeouts := field.NewPath("timeouts")
	for name, d := range map[string]*metav1.Duration{
		"pollInterval": c.Timeouts.PollInterval,
		"powerOn":      c.Timeouts.PowerOn,
		"port":         c.Timeouts.Port,
	} {
		if d != nil && d.Duration <= 0 {
			errs = append(errs, field.Invalid(timeouts.Child(name), d.Duration.String(), "must be positive"))
		}
	}

	return errs.ToAggregate()
}

func (c *HostConfig) resolvePaths(baseDir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	c.ScriptsDir = abs(c.ScriptsDir)
	c.SSH.PrivateKeyFile = abs(c.SSH.PrivateKeyFile)
	c.SSH.KnownHostsFile = abs(c.SSH.KnownHostsFile)
	c.Applications.File = abs(c.Applications.File)
}
