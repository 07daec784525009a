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
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("HostConfig", func() {
	const minimal = `
apiVersion: servermgr.unbounder1.io/v1
kind: HostConfig
host:
  macAddress: "00:11:22:33:44:55"
  address: 192.168.1.100
  user: admin
applications:
  file: applications.yaml
`

	It("should apply defaults to a minimal config", func() {
		cfg, err := ParseHostConfig([]byte(minimal))
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.WOL.Port).To(Equal(9))
		Expect(cfg.WOL.BroadcastAddress).To(Equal("255.255.255.255"))
		Expect(cfg.SSH.Port).To(Equal(22))
		Expect(cfg.InUseScript).To(Equal("in_use.sh"))
		Expect(cfg.ShutdownCommand).To(Equal("sudo shutdown -h now"))
		Expect(cfg.Timeouts.PollInterval.Duration).To(Equal(5 * time.Second))
		Expect(cfg.Timeouts.PowerOn.Duration).To(Equal(300 * time.Second))
		Expect(cfg.Timeouts.Port.Duration).To(Equal(300 * time.Second))
	})

	It("should parse durations and a configmap source", func() {
		cfg, err := ParseHostConfig([]byte(`
host:
  macAddress: "00:11:22:33:44:55"
  address: 192.168.1.100
  user: admin
applications:
  configMap:
    namespace: homelab
    name: servermgr-apps
timeouts:
  powerOn: 2m
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.APIVersion).To(Equal(GroupVersion))
		Expect(cfg.Applications.ConfigMap.Key).To(Equal(DefaultConfigMapKey))
		Expect(cfg.Timeouts.PowerOn.Duration).To(Equal(2 * time.Minute))
	})

	It("should reject unknown fields", func() {
		_, err := ParseHostConfig([]byte(minimal + "bogus: true\n"))
		Expect(err).To(HaveOccurred())
	})

	It("should report every invalid field", func() {
		_, err := ParseHostConfig([]byte(`
kind: Server
host:
  macAddress: nope
wol:
  port: 70000
applications: {}
`))
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(SatisfyAll(
			ContainSubstring("kind"),
			ContainSubstring("host.macAddress"),
			ContainSubstring("host.address"),
			ContainSubstring("host.user"),
			ContainSubstring("wol.port"),
			ContainSubstring("applications"),
		))
	})

	It("should reject both application sources at once", func() {
		_, err := ParseHostConfig([]byte(minimal + `  configMap:
    namespace: a
    name: b
`))
		Expect(err).To(MatchError(ContainSubstring("mutually exclusive")))
	})

	It("should resolve relative paths against the config directory", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "servermgr.yaml")
		Expect(os.WriteFile(path, []byte(minimal+"ssh:\n  privateKeyFile: /etc/key\n"), 0o600)).To(Succeed())

		cfg, err := LoadHostConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Applications.File).To(Equal(filepath.Join(dir, "applications.yaml")))
		Expect(cfg.ScriptsDir).To(Equal(filepath.Join(dir, "scripts")))
		Expect(cfg.SSH.PrivateKeyFile).To(Equal("/etc/key"))
	})
})
