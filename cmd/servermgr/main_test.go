package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Unbounder1/server-manager/internal/apps"
	"github.com/Unbounder1/server-manager/internal/poll"
	"github.com/Unbounder1/server-manager/internal/power"
)

var _ = Describe("servermgr", func() {
	var dir string

	writeFile := func(name, content string) {
		path := filepath.Join(dir, name)
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		writeFile("servermgr.yaml", `
apiVersion: servermgr.unbounder1.io/v1
kind: HostConfig
host:
  macAddress: "00:11:22:33:44:55"
  address: 192.168.1.100
  user: admin
shutdownCommand: sudo systemctl poweroff
applications:
  file: applications.yaml
timeouts:
  port: 1m
`)
		writeFile("applications.yaml", "web:\n  script_prefix: web\n  verify_ports: [8080]\n")
		writeFile("scripts/web.on.sh", "exit 0\n")
		writeFile("scripts/web.off.sh", "exit 0\n")
	})

	It("should wire a manager from the host config", func() {
		m, err := buildManager(filepath.Join(dir, "servermgr.yaml"))
		Expect(err).NotTo(HaveOccurred())

		Expect(m.Host).To(Equal(power.Host{MACAddress: "00:11:22:33:44:55", Address: "192.168.1.100", User: "admin"}))
		Expect(m.ShutdownCommand).To(Equal([]string{"sudo", "systemctl", "poweroff"}))
		Expect(m.InUseScript).To(Equal("in_use.sh"))
		Expect(m.WolPort).To(Equal(9))
		Expect(m.PortTimeout).To(Equal(time.Minute))
		Expect(m.PowerOnTimeout).To(Equal(300 * time.Second))

		d, err := m.Applications.Resolve(context.Background(), "web")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.VerifyPorts).To(Equal([]int32{8080}))
	})

	It("should report a bad host config as a config error", func() {
		writeFile("servermgr.yaml", "host: {}\n")

		_, err := buildManager(filepath.Join(dir, "servermgr.yaml"))
		Expect(exitCode(err)).To(Equal(7))
	})

	It("should reject missing arguments as a usage error", func() {
		cmd := newRootCommand()
		cmd.SetArgs([]string{"--config", filepath.Join(dir, "servermgr.yaml"), "start"})
		cmd.SetOut(&bytes.Buffer{})

		err := cmd.ExecuteContext(context.Background())
		Expect(exitCode(err)).To(Equal(2))
	})

	DescribeTable("should treat flag errors as usage errors",
		func(args ...string) {
			cmd := newRootCommand()
			cmd.SetArgs(append([]string{"--config", filepath.Join(dir, "servermgr.yaml")}, args...))
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})

			err := cmd.ExecuteContext(context.Background())
			Expect(exitCode(err)).To(Equal(2))
		},
		Entry("unknown root flag", "--bogus", "status"),
		Entry("unknown subcommand flag", "start", "--nope", "web"),
		Entry("bad flag value", "stop", "--verify=maybe", "web"),
	)

	It("should fail unknown applications before contacting the host", func() {
		cmd := newRootCommand()
		cmd.SetArgs([]string{"--config", filepath.Join(dir, "servermgr.yaml"), "start", "nonexistent-app"})

		err := cmd.ExecuteContext(context.Background())
		Expect(exitCode(err)).To(Equal(6))
	})

	DescribeTable("should give each error kind its own exit code",
		func(err error, code int) {
			Expect(exitCode(err)).To(Equal(code))
		},
		Entry("timeout", fmt.Errorf("x: %w", poll.ErrTimeout), 3),
		Entry("transport", &power.TransportError{Err: fmt.Errorf("refused")}, 4),
		Entry("remote command", &power.CommandFailedError{ExitCode: 1}, 5),
		Entry("unknown application", &apps.UnknownApplicationError{ID: "x"}, 6),
		Entry("bad config", &apps.ConfigMalformedError{Err: fmt.Errorf("bad")}, 7),
		Entry("internal", fmt.Errorf("boom"), 1),
	)
})
