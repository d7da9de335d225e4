//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/spotlight/internal/command"
	"github.com/eliteGoblin/focusd/spotlight/internal/config"
	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
	"github.com/eliteGoblin/focusd/spotlight/internal/infra"
	"github.com/eliteGoblin/focusd/spotlight/internal/ipc"
	"github.com/eliteGoblin/focusd/spotlight/internal/shell"
	"github.com/eliteGoblin/focusd/spotlight/test/fixtures"
)

var _ = Describe("Spotlight shell", func() {
	var (
		tmpDir string
		cfg    config.Config
		pm     domain.ProcessManager
		s      *shell.Shell
		client *ipc.Client
	)

	start := func(binary string) {
		cfg.Worker.Binary = binary
		spec, err := shell.ResolveWorkerSpec(cfg.Worker)
		Expect(err).NotTo(HaveOccurred())

		logger := zap.NewNop()
		s = shell.New(cfg, spec, shell.Deps{
			Host:      infra.NewHeadlessHost(),
			Checker:   infra.StaticChecker{State: domain.PermissionGranted},
			Launcher:  infra.NewExecLauncher(pm, logger),
			Processes: pm,
		}, logger)
	}

	status := func() domain.Status {
		st, err := client.Status()
		Expect(err).NotTo(HaveOccurred())
		return *st
	}

	BeforeEach(func() {
		var err error
		// Short prefix keeps the socket path under the unix limit
		tmpDir, err = os.MkdirTemp("", "sl")
		Expect(err).NotTo(HaveOccurred())

		cfg = config.DefaultConfig()
		cfg.Window.Backend = config.BackendHeadless
		cfg.Permission.PromptOnStart = false
		cfg.IPC.SocketPath = filepath.Join(tmpDir, "s.sock")
		cfg.Worker.ShutdownTimeout = 2 * time.Second

		pm = infra.NewProcessManager()
		client = ipc.NewClient(cfg.IPC.SocketPath)
		s = nil
	})

	AfterEach(func() {
		if s != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Shutdown(ctx)
		}
		os.RemoveAll(tmpDir)
	})

	Describe("worker bridge", func() {
		Context("when the worker writes four lines", func() {
			It("should relay four events and acknowledge once", func() {
				worker := fixtures.NewFakeWorker(tmpDir, 4)
				script, err := worker.Create()
				Expect(err).NotTo(HaveOccurred())

				start(script)
				events, cancel := s.Bus.Subscribe()
				defer cancel()
				Expect(s.Start(context.Background())).To(Succeed())

				var payloads []string
				for i := 0; i < 4; i++ {
					var ev domain.UIEvent
					Eventually(events, 5*time.Second).Should(Receive(&ev))
					Expect(ev.Name).To(Equal("message"))
					var line string
					Expect(json.Unmarshal(ev.Payload, &line)).To(Succeed())
					payloads = append(payloads, line)
				}
				Expect(payloads).To(Equal([]string{"line 1", "line 2", "line 3", "line 4"}))

				Eventually(worker.Acks, 5*time.Second).Should(Equal([]string{"message from Rust"}))
				Expect(status().Bridge.Counter).To(Equal(0))
			})
		})

		Context("when the worker writes seven lines", func() {
			It("should acknowledge once and keep a counter of three", func() {
				worker := fixtures.NewFakeWorker(tmpDir, 7)
				script, err := worker.Create()
				Expect(err).NotTo(HaveOccurred())

				start(script)
				Expect(s.Start(context.Background())).To(Succeed())

				Eventually(func() int { return status().Bridge.LinesRelayed }, 5*time.Second).Should(Equal(7))
				st := status()
				Expect(st.Bridge.Counter).To(Equal(3))
				Expect(st.Bridge.AcksSent).To(Equal(1))
				Expect(st.Bridge.State).To(Equal(domain.BridgeRunning))
				Expect(st.WorkerAlive).To(BeTrue())
				Eventually(worker.Acks, 5*time.Second).Should(HaveLen(1))
			})
		})

		Context("when the worker exits after two lines", func() {
			It("should stop the bridge without acknowledging", func() {
				worker := fixtures.NewFakeWorker(tmpDir, 2)
				worker.Exit = true
				script, err := worker.Create()
				Expect(err).NotTo(HaveOccurred())

				start(script)
				Expect(s.Start(context.Background())).To(Succeed())

				Eventually(s.Bridge.Done(), 5*time.Second).Should(BeClosed())
				st := status()
				Expect(st.Bridge.State).To(Equal(domain.BridgeStopped))
				Expect(st.Bridge.Counter).To(Equal(2))
				Expect(st.Bridge.AcksSent).To(Equal(0))
				Expect(st.WorkerAlive).To(BeFalse())
			})
		})

		Context("when shutting down with a live worker", func() {
			It("should terminate the worker process", func() {
				worker := fixtures.NewFakeWorker(tmpDir, 1)
				script, err := worker.Create()
				Expect(err).NotTo(HaveOccurred())

				start(script)
				Expect(s.Start(context.Background())).To(Succeed())
				Eventually(func() int { return status().Bridge.PID }, 5*time.Second).ShouldNot(BeZero())
				pid := status().Bridge.PID

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				Expect(s.Shutdown(ctx)).To(Succeed())
				s = nil

				Eventually(func() bool { return pm.IsRunning(pid) }, 5*time.Second).Should(BeFalse())
			})
		})
	})

	Describe("spawn failure", func() {
		Context("when the worker is optional", func() {
			It("should keep the window commands working", func() {
				start(fixtures.MissingBinary(tmpDir))
				Expect(s.Start(context.Background())).To(Succeed())

				Eventually(func() domain.BridgeState { return status().Bridge.State }, 5*time.Second).
					Should(Equal(domain.BridgeFailed))

				_, err := client.Invoke(command.ShowWindow, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(status().Visibility).To(Equal(domain.WindowVisible))

				_, err = client.Invoke(command.HideWindow, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(status().Visibility).To(Equal(domain.WindowHidden))
			})
		})

		Context("when the worker is required", func() {
			It("should abort startup", func() {
				cfg.Worker.Required = true
				start(fixtures.MissingBinary(tmpDir))

				err := s.Start(context.Background())
				Expect(err).To(MatchError(domain.ErrSpawnFailed))
			})
		})
	})

	Describe("invocable commands", func() {
		It("should toggle the window over the socket", func() {
			cfg.Worker.Enabled = false
			start("")
			Expect(s.Start(context.Background())).To(Succeed())

			Expect(status().Visibility).To(Equal(domain.WindowHidden))

			_, err := client.Invoke(command.ToggleWindow, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(status().Visibility).To(Equal(domain.WindowVisible))

			_, err = client.Invoke(command.ToggleWindow, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(status().Visibility).To(Equal(domain.WindowHidden))
		})

		It("should report the permission state", func() {
			cfg.Worker.Enabled = false
			start("")
			Expect(s.Start(context.Background())).To(Succeed())

			var result command.PermissionResult
			err := client.InvokeInto(command.RequestPermission, command.PermissionPayload{Prompt: true}, &result)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.State).To(Equal(domain.PermissionGranted))
		})

		It("should reject unknown commands", func() {
			cfg.Worker.Enabled = false
			start("")
			Expect(s.Start(context.Background())).To(Succeed())

			_, err := client.Invoke("open_pod_bay_doors", nil)
			Expect(err).To(HaveOccurred())
		})
	})
})
