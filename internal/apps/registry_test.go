package apps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing/fstest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

const sampleConfig = `
minecraft:
  script_prefix: minecraft
  verify_ports: [25565]
jellyfin:
  script_prefix: media/jellyfin
  verify_ports: [8096, 8920]
backup:
  script_prefix: backup
`

var _ = Describe("Parse", func() {
	It("should classify entries with and without verify ports", func() {
		all, err := Parse([]byte(sampleConfig))
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))

		Expect(all["minecraft"].VerifyPorts).To(Equal([]int32{25565}))
		Expect(all["jellyfin"].OnScript()).To(Equal("media/jellyfin.on.sh"))
		Expect(all["jellyfin"].OffScript()).To(Equal("media/jellyfin.off.sh"))
		Expect(all["backup"].Verifiable()).To(BeFalse())
		Expect(IDs(all)).To(Equal([]string{"backup", "jellyfin", "minecraft"}))
	})

	It("should accept JSON documents", func() {
		all, err := Parse([]byte(`{"web": {"script_prefix": "web", "verify_ports": [8080]}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(all["web"].VerifyPorts).To(ConsistOf(int32(8080)))
	})

	DescribeTable("should reject malformed entries",
		func(doc, reason string) {
			_, err := Parse([]byte(doc))
			var malformed *ConfigMalformedError
			Expect(errors.As(err, &malformed)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring(reason))
		},
		Entry("missing prefix", "web:\n  verify_ports: [80]\n", "missing script_prefix"),
		Entry("empty prefix", "web:\n  script_prefix: \"\"\n", "must not be empty"),
		Entry("unknown key", "web:\n  script_prefix: web\n  ports: [80]\n", "unexpected keys ports"),
		Entry("prefix escaping the scripts dir", "web:\n  script_prefix: ../web\n", "not a valid script name"),
		Entry("port out of range", "web:\n  script_prefix: web\n  verify_ports: [0]\n", "verify_ports"),
		Entry("ports not a list", "web:\n  script_prefix: web\n  verify_ports: 80\n", "verify_ports"),
		Entry("entry not a mapping", "web: hello\n", "malformed application config"),
	)

	It("should name the entry when exactly one is malformed", func() {
		_, err := Parse([]byte("good:\n  script_prefix: good\nbad: {}\n"))
		var malformed *ConfigMalformedError
		Expect(errors.As(err, &malformed)).To(BeTrue())
		Expect(malformed.ID).To(Equal("bad"))
	})

	It("should report every malformed entry", func() {
		_, err := Parse([]byte("a: {}\nb:\n  script_prefix: \"\"\n"))
		Expect(err).To(MatchError(SatisfyAll(ContainSubstring("a:"), ContainSubstring("b:"))))
	})
})

var _ = Describe("Registry", func() {
	var (
		ctx     context.Context
		path    string
		scripts fstest.MapFS
		reg     *Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = filepath.Join(GinkgoT().TempDir(), "applications.yaml")
		Expect(os.WriteFile(path, []byte(sampleConfig), 0o600)).To(Succeed())

		scripts = fstest.MapFS{
			"minecraft.on.sh":  {Data: []byte("true")},
			"minecraft.off.sh": {Data: []byte("true")},
			"backup.on.sh":     {Data: []byte("true")},
		}
		reg = &Registry{Source: &FileSource{Path: path}, Scripts: scripts}
	})

	It("should resolve a known application", func() {
		d, err := reg.Resolve(ctx, "minecraft")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.ID).To(Equal("minecraft"))
		Expect(d.ScriptPrefix).To(Equal("minecraft"))
	})

	It("should fail for an unknown application", func() {
		_, err := reg.Resolve(ctx, "nonexistent-app")
		var unknown *UnknownApplicationError
		Expect(errors.As(err, &unknown)).To(BeTrue())
		Expect(unknown.ID).To(Equal("nonexistent-app"))
	})

	It("should fail when one of the scripts is missing", func() {
		_, err := reg.Resolve(ctx, "backup")
		var malformed *ConfigMalformedError
		Expect(errors.As(err, &malformed)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("backup.off.sh"))
	})

	It("should pick up changes between calls", func() {
		_, err := reg.Resolve(ctx, "web")
		Expect(err).To(HaveOccurred())

		Expect(os.WriteFile(path, []byte("web:\n  script_prefix: minecraft\n"), 0o600)).To(Succeed())
		d, err := reg.Resolve(ctx, "web")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.VerifyPorts).To(BeEmpty())
	})

	It("should surface a missing config file", func() {
		reg.Source = &FileSource{Path: filepath.Join(GinkgoT().TempDir(), "missing.yaml")}
		_, err := reg.Load(ctx)
		Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
	})

	Context("with a ConfigMap source", func() {
		var cm *corev1.ConfigMap

		BeforeEach(func() {
			cm = &corev1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{Namespace: "homelab", Name: "servermgr-apps"},
				Data:       map[string]string{"applications.yaml": sampleConfig},
			}
		})

		It("should read the document from the configured key", func() {
			client := fake.NewSimpleClientset(cm)
			reg.Source = &ConfigMapSource{Client: client, Namespace: "homelab", Name: "servermgr-apps", Key: "applications.yaml"}

			all, err := reg.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveKey("jellyfin"))
		})

		It("should reload after the ConfigMap changes", func() {
			client := fake.NewSimpleClientset(cm)
			reg.Source = &ConfigMapSource{Client: client, Namespace: "homelab", Name: "servermgr-apps", Key: "applications.yaml"}

			updated := cm.DeepCopy()
			updated.Data["applications.yaml"] = "only:\n  script_prefix: minecraft\n"
			_, err := client.CoreV1().ConfigMaps("homelab").Update(ctx, updated, metav1.UpdateOptions{})
			Expect(err).NotTo(HaveOccurred())

			all, err := reg.Load(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(IDs(all)).To(Equal([]string{"only"}))
		})

		It("should fail on a missing key", func() {
			client := fake.NewSimpleClientset(cm)
			reg.Source = &ConfigMapSource{Client: client, Namespace: "homelab", Name: "servermgr-apps", Key: "other.yaml"}

			_, err := reg.Load(ctx)
			var malformed *ConfigMalformedError
			Expect(errors.As(err, &malformed)).To(BeTrue())
		})

		It("should fail when the ConfigMap does not exist", func() {
			reg.Source = &ConfigMapSource{Client: fake.NewSimpleClientset(), Namespace: "homelab", Name: "servermgr-apps", Key: "applications.yaml"}

			_, err := reg.Load(ctx)
			Expect(err).To(MatchError(ContainSubstring("homelab/servermgr-apps")))
		})
	})
})
