package acceptance_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/veritas-kanban/core/internal/agentconfig"
	"github.com/veritas-kanban/core/internal/eventbus"
	"github.com/veritas-kanban/core/internal/model"
	"github.com/veritas-kanban/core/internal/supervisor"
)

var _ = Describe("StartAgent", func() {
	var h *harness

	AfterEach(func() {
		if h != nil {
			h.close()
		}
	})

	// S1: happy path.
	It("runs a child to completion and records the full event sequence", func() {
		h = newHarness([]agentconfig.Agent{shellAgent("claude-code", "echo hello")}, "claude-code")
		h.seedCodeTask("t1", h.dir)

		ch, cancel := h.bus.Subscribe("t1")
		defer cancel()

		attempt, err := h.sup.StartAgent(context.Background(), "t1", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(attempt.Status).To(Equal(model.AttemptStatusRunning))

		var gotOutput, gotComplete bool
		Eventually(func() bool {
			select {
			case ev := <-ch:
				switch ev.Kind {
				case eventbus.KindOutput:
					if ev.OutputKind == string(model.OutputStdout) {
						gotOutput = true
					}
				case eventbus.KindComplete:
					gotComplete = true
				}
			default:
			}
			return gotOutput && gotComplete
		}, 2*time.Second, 10*time.Millisecond).Should(BeTrue())

		Eventually(func() model.TaskStatus {
			got, _ := h.tx.GetTask(context.Background(), "t1")
			return got.Status
		}, 2*time.Second, 10*time.Millisecond).Should(Equal(model.TaskStatusReview))

		log, err := h.sup.AttemptLog("t1", attempt.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(log).To(ContainSubstring("hello"))
	})

	// S2: conflict.
	It("rejects a second concurrent start for the same task", func() {
		h = newHarness([]agentconfig.Agent{shellAgent("claude-code", "sleep 0.3")}, "claude-code")
		h.seedCodeTask("t1", h.dir)

		_, err := h.sup.StartAgent(context.Background(), "t1", "")
		Expect(err).NotTo(HaveOccurred())

		_, err = h.sup.StartAgent(context.Background(), "t1", "")
		Expect(err).To(Equal(supervisor.ErrAgentAlreadyRunning))
	})

	// S3: stop.
	It("SIGTERMs a running agent and marks the task review with a failed attempt", func() {
		h = newHarness([]agentconfig.Agent{shellAgent("claude-code", "trap '' TERM; sleep 30")}, "claude-code")
		h.seedCodeTask("t1", h.dir)

		_, err := h.sup.StartAgent(context.Background(), "t1", "")
		Expect(err).NotTo(HaveOccurred())

		time.Sleep(100 * time.Millisecond)
		Expect(h.sup.StopAgent(context.Background(), "t1")).To(Succeed())

		Eventually(func() model.TaskStatus {
			got, _ := h.tx.GetTask(context.Background(), "t1")
			return got.Status
		}, 7*time.Second, 50*time.Millisecond).Should(Equal(model.TaskStatusReview))

		got, _ := h.tx.GetTask(context.Background(), "t1")
		Expect(got.Attempt.Status).To(Equal(model.AttemptStatusFailed))
	})
})
