package controllers_test

import (
	"context"
	"errors"
	"sync"

	"github.com/killallgit/grapher/pkg/chat"
	"github.com/killallgit/grapher/pkg/client"
	"github.com/killallgit/grapher/pkg/controllers"
	"github.com/killallgit/grapher/pkg/process"
	"github.com/killallgit/grapher/pkg/sse"
	"github.com/killallgit/grapher/pkg/testutil"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recorder collects published updates from the sending goroutine
type recorder struct {
	mu      sync.Mutex
	updates []controllers.Update
}

func (r *recorder) record(u controllers.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) all() []controllers.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]controllers.Update, len(r.updates))
	copy(out, r.updates)
	return out
}

func (r *recorder) last() controllers.Update {
	all := r.all()
	Expect(all).NotTo(BeEmpty())
	return all[len(all)-1]
}

func assistantContent(t chat.Transcript) string {
	turn, ok := t.LastAssistantTurn()
	Expect(ok).To(BeTrue())
	return turn.Content
}

var _ = Describe("ChatController", func() {
	var (
		transport  *testutil.FakeTransport
		controller *controllers.ChatController
		updates    *recorder
		ctx        context.Context
	)

	newController := func(opts ...controllers.Option) {
		opts = append([]controllers.Option{
			controllers.WithProject("graph-1"),
			controllers.WithSession("session-1", chat.NewTranscript()),
		}, opts...)
		controller = controllers.NewChatController(transport, opts...)
		updates = &recorder{}
		controller.Subscribe(updates.record)
	}

	BeforeEach(func() {
		ctx = context.Background()
		transport = testutil.NewFakeTransport()
		newController()
	})

	Describe("Send", func() {
		It("should stream chunks into the assistant turn", func() {
			transport.Steps = []testutil.Step{
				{Data: testutil.Frame(sse.Chunk("Hello, "))},
				{Data: testutil.Frame(sse.Chunk("world"))},
			}

			Expect(controller.Send(ctx, "  Hi  ")).To(Succeed())

			turns := controller.Transcript().Turns()
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Role).To(Equal(chat.RoleUser))
			Expect(turns[0].Content).To(Equal("Hi"))
			Expect(turns[1].Content).To(Equal("Hello, world"))
			Expect(controller.State()).To(Equal(process.StateIdle))
			Expect(controller.IsStreaming()).To(BeFalse())
		})

		It("should send the trimmed question with project and session", func() {
			Expect(controller.Send(ctx, " What calls main? ")).To(Succeed())

			Expect(transport.Requests()).To(Equal([]client.QueryRequest{{
				Question:  "What calls main?",
				ProjectID: "graph-1",
				SessionID: "session-1",
			}}))
		})

		It("should publish the placeholder first and a settled snapshot last", func() {
			transport.Steps = []testutil.Step{{Data: testutil.Frame(sse.Chunk("A"))}}

			Expect(controller.Send(ctx, "Hi")).To(Succeed())

			all := updates.all()
			first := all[0]
			Expect(first.State).To(Equal(process.StateSending))
			Expect(first.Streaming).To(BeTrue())
			Expect(first.Transcript.Len()).To(Equal(2))
			Expect(assistantContent(first.Transcript)).To(BeEmpty())

			final := updates.last()
			Expect(final.State).To(Equal(process.StateCompleted))
			Expect(final.Streaming).To(BeFalse())
			Expect(final.LiveThoughts).To(BeEmpty())
			Expect(assistantContent(final.Transcript)).To(Equal("A"))
		})

		It("should publish thought-only updates and keep thoughts on the turn", func() {
			transport.Steps = []testutil.Step{
				{Data: testutil.Frame(sse.Thought("Searching the graph"))},
				{Data: testutil.Frame(sse.Event{Type: sse.EventToolStart, Content: "grep", Icon: "🔍", ToolName: "grep"})},
				{Data: testutil.Frame(sse.Chunk("Found it"))},
			}

			Expect(controller.Send(ctx, "Hi")).To(Succeed())

			var sawThoughts bool
			for _, u := range updates.all() {
				if len(u.LiveThoughts) == 2 && assistantContent(u.Transcript) == "" {
					Expect(u.LiveThoughts).To(Equal([]string{"Searching the graph", "🔍 grep"}))
					sawThoughts = true
				}
			}
			Expect(sawThoughts).To(BeTrue())

			turn, _ := controller.Transcript().LastAssistantTurn()
			Expect(turn.Thoughts).To(HaveLen(2))
			Expect(turn.Thoughts[1].ToolName).To(Equal("grep"))
			Expect(controller.LiveThoughts()).To(BeEmpty())
		})

		It("should replace the response with a backend error and stop", func() {
			transport.Steps = []testutil.Step{
				{Data: testutil.Frame(sse.Chunk("A"))},
				{Data: testutil.Frame(sse.Error("boom"))},
				{Data: testutil.Frame(sse.Chunk("C"))},
			}

			Expect(controller.Send(ctx, "Hi")).To(Succeed())

			Expect(assistantContent(controller.Transcript())).To(Equal("boom"))
			Expect(updates.last().State).To(Equal(process.StateCompleted))
		})

		It("should skip malformed frames between chunks", func() {
			transport.Steps = []testutil.Step{
				{Data: testutil.Frame(sse.Chunk("A"))},
				{Data: "data: {not json\n\n"},
				{Data: testutil.Frame(sse.Chunk("B"))},
			}

			Expect(controller.Send(ctx, "Hi")).To(Succeed())
			Expect(assistantContent(controller.Transcript())).To(Equal("AB"))
		})

		It("should fail when the stream cannot be established", func() {
			transport.StartErr = errors.New("dial tcp: connection refused")

			err := controller.Send(ctx, "Hi")

			Expect(err).To(MatchError(client.ErrStreamStart))
			turns := controller.Transcript().Turns()
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Content).To(Equal("Hi"))
			Expect(turns[1].Content).To(Equal(controllers.FailureMessage))
			Expect(updates.last().State).To(Equal(process.StateFailed))
			Expect(controller.State()).To(Equal(process.StateIdle))
		})

		It("should replace partial content when the stream breaks", func() {
			transport.Steps = []testutil.Step{
				{Data: testutil.Frame(sse.Chunk("Hel"))},
				{Err: testutil.ErrConnectionReset},
			}

			err := controller.Send(ctx, "Hi")

			Expect(err).To(MatchError(testutil.ErrConnectionReset))
			Expect(assistantContent(controller.Transcript())).To(Equal(controllers.FailureMessage))
			Expect(updates.last().State).To(Equal(process.StateFailed))
		})

		It("should keep partial content when stopped", func() {
			release := make(chan struct{})
			defer close(release)
			transport.Steps = []testutil.Step{
				{Data: testutil.Frame(sse.Chunk("Hello"))},
				{Wait: release},
				{Data: testutil.Frame(sse.Chunk(" never"))},
			}

			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- controller.Send(ctx, "Hi")
			}()

			Eventually(func() string {
				t := controller.Transcript()
				if t.IsEmpty() {
					return ""
				}
				return assistantContent(t)
			}).Should(Equal("Hello"))

			controller.Stop()

			Eventually(done).Should(Receive(BeNil()))
			Expect(assistantContent(controller.Transcript())).To(Equal("Hello"))
			Expect(updates.last().State).To(Equal(process.StateCancelled))
			Expect(updates.last().Streaming).To(BeFalse())
			Expect(controller.State()).To(Equal(process.StateIdle))
		})

		It("should treat a cancelled parent context as a stop", func() {
			release := make(chan struct{})
			defer close(release)
			transport.Steps = []testutil.Step{
				{Data: testutil.Frame(sse.Chunk("Par"))},
				{Wait: release},
			}
			cctx, cancel := context.WithCancel(ctx)

			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- controller.Send(cctx, "Hi")
			}()
			Eventually(func() int { return len(updates.all()) }).Should(BeNumerically(">=", 3))
			cancel()

			Eventually(done).Should(Receive(BeNil()))
			Expect(assistantContent(controller.Transcript())).To(Equal("Par"))
			Expect(updates.last().State).To(Equal(process.StateCancelled))
		})

		It("should refuse a second question while streaming", func() {
			release := make(chan struct{})
			transport.Steps = []testutil.Step{{Wait: release}}

			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- controller.Send(ctx, "first")
			}()
			Eventually(controller.IsStreaming).Should(BeTrue())
			Eventually(func() int { return controller.Transcript().Len() }).Should(Equal(2))

			Expect(controller.Send(ctx, "second")).To(MatchError(controllers.ErrBusy))
			Expect(controller.Transcript().Len()).To(Equal(2))

			close(release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(transport.Requests()).To(HaveLen(1))
		})

		It("should reject empty questions without publishing", func() {
			Expect(controller.Send(ctx, "   ")).To(MatchError(chat.ErrEmptyQuestion))
			Expect(updates.all()).To(BeEmpty())
			Expect(transport.Requests()).To(BeEmpty())
		})

		It("should require a project", func() {
			controller.SetProject("  ")
			Expect(controller.Send(ctx, "Hi")).To(MatchError(controllers.ErrNoProject))
			Expect(controller.Transcript().IsEmpty()).To(BeTrue())
		})

		It("should require a session when no identity hook is set", func() {
			controller = controllers.NewChatController(transport, controllers.WithProject("graph-1"))

			Expect(controller.Send(ctx, "Hi")).To(MatchError(controllers.ErrNoSession))
			Expect(controller.State()).To(Equal(process.StateIdle))
		})

		It("should not alias published snapshots", func() {
			transport.Steps = []testutil.Step{
				{Data: testutil.Frame(sse.Chunk("A"))},
				{Data: testutil.Frame(sse.Chunk("B"))},
			}

			Expect(controller.Send(ctx, "Hi")).To(Succeed())

			all := updates.all()
			Expect(assistantContent(all[0].Transcript)).To(BeEmpty())
			Expect(assistantContent(all[len(all)-1].Transcript)).To(Equal("AB"))
		})
	})

	Describe("session identity", func() {
		var calls []string

		BeforeEach(func() {
			calls = nil
			transport = testutil.NewFakeTransport(testutil.Frame(sse.Chunk("ok")))
			controller = controllers.NewChatController(transport,
				controllers.WithProject("graph-1"),
				controllers.WithIdentity(func(sessionID, first string) (string, error) {
					calls = append(calls, "identity:"+sessionID+":"+first)
					return "session-42", nil
				}),
			)
			controller.Subscribe(func(controllers.Update) {
				if len(calls) == 0 || calls[len(calls)-1] != "update" {
					calls = append(calls, "update")
				}
			})
		})

		It("should establish the session once before the first snapshot", func() {
			Expect(controller.Send(ctx, "First question")).To(Succeed())
			Expect(controller.Send(ctx, "Second question")).To(Succeed())

			Expect(calls[0]).To(Equal("identity::First question"))
			Expect(calls[1:]).To(Equal([]string{"update"}))
			Expect(controller.SessionID()).To(Equal("session-42"))

			requests := transport.Requests()
			Expect(requests).To(HaveLen(2))
			Expect(requests[0].SessionID).To(Equal("session-42"))
			Expect(requests[1].SessionID).To(Equal("session-42"))
		})

		It("should leave the conversation untouched when establishment fails", func() {
			controller = controllers.NewChatController(transport,
				controllers.WithProject("graph-1"),
				controllers.WithIdentity(func(string, string) (string, error) {
					return "", errors.New("store unavailable")
				}),
			)

			err := controller.Send(ctx, "Hi")

			Expect(err).To(MatchError(ContainSubstring("store unavailable")))
			Expect(controller.Transcript().IsEmpty()).To(BeTrue())
			Expect(controller.State()).To(Equal(process.StateIdle))
			Expect(transport.Requests()).To(BeEmpty())
		})
	})

	Describe("clearing", func() {
		It("should have nothing to clear on an empty conversation", func() {
			Expect(controller.RequestClear()).To(BeFalse())
			Expect(controller.ConfirmClear()).To(MatchError(controllers.ErrNothingToClear))
		})

		It("should clear after confirmation", func() {
			Expect(controller.Send(ctx, "Hi")).To(Succeed())

			Expect(controller.RequestClear()).To(BeTrue())
			Expect(controller.ClearPending()).To(BeTrue())
			Expect(controller.ConfirmClear()).To(Succeed())

			Expect(controller.Transcript().IsEmpty()).To(BeTrue())
			Expect(updates.last().Transcript.IsEmpty()).To(BeTrue())
			Expect(controller.SessionID()).To(Equal("session-1"))
		})

		It("should keep the conversation when the clear is cancelled", func() {
			Expect(controller.Send(ctx, "Hi")).To(Succeed())

			Expect(controller.RequestClear()).To(BeTrue())
			controller.CancelClear()

			Expect(controller.ConfirmClear()).To(MatchError(controllers.ErrNothingToClear))
			Expect(controller.Transcript().Len()).To(Equal(2))
		})

		It("should refuse to clear while streaming", func() {
			Expect(controller.Send(ctx, "Hi")).To(Succeed())
			Expect(controller.RequestClear()).To(BeTrue())

			release := make(chan struct{})
			transport.Steps = []testutil.Step{{Wait: release}}
			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- controller.Send(ctx, "Again")
			}()
			Eventually(controller.IsStreaming).Should(BeTrue())

			Expect(controller.RequestClear()).To(BeFalse())
			Expect(controller.ConfirmClear()).To(MatchError(controllers.ErrBusy))

			close(release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(controller.Transcript().Len()).To(Equal(4))
		})
	})

	Describe("Load", func() {
		It("should switch conversations", func() {
			history := chat.NewTranscript(chat.NewUserTurn("Old"), chat.NewAssistantTurn("Answer"))

			Expect(controller.Load("session-9", history)).To(Succeed())

			Expect(controller.SessionID()).To(Equal("session-9"))
			Expect(controller.Transcript().Len()).To(Equal(2))
			Expect(updates.last().SessionID).To(Equal("session-9"))
		})

		It("should refuse to switch while streaming", func() {
			release := make(chan struct{})
			transport.Steps = []testutil.Step{{Wait: release}}
			done := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				done <- controller.Send(ctx, "Hi")
			}()
			Eventually(controller.IsStreaming).Should(BeTrue())

			Expect(controller.Load("other", chat.NewTranscript())).To(MatchError(controllers.ErrBusy))

			close(release)
			Eventually(done).Should(Receive(BeNil()))
			Expect(controller.SessionID()).To(Equal("session-1"))
		})
	})

	Describe("Subscribe", func() {
		It("should stop delivering after unsubscribe", func() {
			var count int
			unsubscribe := controller.Subscribe(func(controllers.Update) { count++ })

			Expect(controller.Load("a", chat.NewTranscript())).To(Succeed())
			unsubscribe()
			Expect(controller.Load("b", chat.NewTranscript())).To(Succeed())

			Expect(count).To(Equal(1))
		})
	})

	Describe("Stop", func() {
		It("should be a no-op when idle", func() {
			controller.Stop()
			Expect(controller.State()).To(Equal(process.StateIdle))
			Expect(updates.all()).To(BeEmpty())
		})

		It("should own a question sent while the previous answer settles", func() {
			release := make(chan struct{})
			defer close(release)
			transport.Scripts = [][]testutil.Step{
				{{Data: testutil.Frame(sse.Chunk("first answer"))}},
				{{Wait: release}},
			}

			second := make(chan error, 1)
			var once sync.Once
			controller.Subscribe(func(u controllers.Update) {
				if u.State != process.StateCompleted {
					return
				}
				once.Do(func() {
					go func() {
						defer GinkgoRecover()
						second <- controller.Send(ctx, "follow up")
					}()
					Eventually(func() int { return len(transport.Requests()) }).Should(Equal(2))
				})
			})

			Expect(controller.Send(ctx, "Hi")).To(Succeed())

			Expect(controller.IsStreaming()).To(BeTrue())
			Expect(controller.Send(ctx, "third")).To(MatchError(controllers.ErrBusy))

			controller.Stop()
			Eventually(second).Should(Receive(BeNil()))
			Expect(controller.State()).To(Equal(process.StateIdle))
			Expect(updates.last().State).To(Equal(process.StateCancelled))

			transcript := controller.Transcript()
			Expect(transcript.Len()).To(Equal(4))
			Expect(transcript.Turns()[1].Content).To(Equal("first answer"))
			Expect(transcript.Turns()[2].Content).To(Equal("follow up"))
		})
	})
})
