package permcache_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/frahmantamala/teamboard/internal/core/events"
	"github.com/frahmantamala/teamboard/internal/permcache"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

type recordedInvalidation struct {
	trigger string
	all     bool
	keys    []permcache.Key
}

// recordingInvalidator implements permcache.Invalidator
type recordingInvalidator struct {
	mu    sync.Mutex
	calls []recordedInvalidation
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, trigger string, keys ...permcache.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedInvalidation{trigger: trigger, keys: keys})
	return nil
}

func (r *recordingInvalidator) InvalidateAll(ctx context.Context, trigger string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedInvalidation{trigger: trigger, all: true})
	return nil
}

func (r *recordingInvalidator) Calls() []recordedInvalidation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedInvalidation(nil), r.calls...)
}

var _ = Describe("Broadcaster", func() {
	var (
		mr             *miniredis.Miniredis
		client         *redis.Client
		localA, localB *recordingInvalidator
		a, b           *permcache.Broadcaster
		ctx            context.Context
		cancel         context.CancelFunc
		done           sync.WaitGroup
	)

	listen := func(br *permcache.Broadcaster) {
		ready := make(chan struct{})
		done.Add(1)
		go func() {
			defer GinkgoRecover()
			defer done.Done()
			Expect(br.Listen(ctx, ready)).To(Succeed())
		}()
		Eventually(ready).Should(BeClosed())
	}

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		localA, localB = &recordingInvalidator{}, &recordingInvalidator{}
		a = permcache.NewBroadcaster(client, "test:invalidate", localA, logger)
		b = permcache.NewBroadcaster(client, "test:invalidate", localB, logger)

		ctx, cancel = context.WithCancel(context.Background())
		listen(a)
		listen(b)
	})

	AfterEach(func() {
		cancel()
		done.Wait()
		_ = client.Close()
		mr.Close()
	})

	It("gives each instance its own id", func() {
		Expect(a.InstanceID()).NotTo(Equal(b.InstanceID()))
	})

	It("applies keyed invalidations on peers but not on the sender", func() {
		key := permcache.Key{UserID: "u1", TeamID: "t1"}
		Expect(a.Publish(ctx, "member.role_assigned", key)).To(Succeed())

		Eventually(localB.Calls).Should(HaveLen(1))
		call := localB.Calls()[0]
		Expect(call.trigger).To(Equal("remote:member.role_assigned"))
		Expect(call.keys).To(ConsistOf(key))

		Consistently(localA.Calls, 100*time.Millisecond).Should(BeEmpty())
	})

	It("relays full flushes", func() {
		Expect(b.PublishAll(ctx, "cli")).To(Succeed())

		Eventually(localA.Calls).Should(HaveLen(1))
		Expect(localA.Calls()[0].all).To(BeTrue())
	})

	It("publishes affected subjects of permission events from the bus", func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus := events.NewEventBus(logger)
		a.Register(bus)

		event := events.NewRoleBindingChangedEvent(4, "editor", "billing.read", true, "admin-1", []events.Subject{
			{UserID: "u1", TeamID: "t1"},
			{UserID: "u2", TeamID: "t1"},
		})
		Expect(bus.PublishSync(ctx, event)).To(Succeed())

		Eventually(localB.Calls).Should(HaveLen(1))
		Expect(localB.Calls()[0].keys).To(ConsistOf(
			permcache.Key{UserID: "u1", TeamID: "t1"},
			permcache.Key{UserID: "u2", TeamID: "t1"},
		))
	})

	It("ignores events that affect nobody", func() {
		event := events.NewRoleDeactivatedEvent(9, "unused", "admin-1", nil)
		Expect(a.HandleEvent(ctx, event)).To(Succeed())

		Consistently(localB.Calls, 100*time.Millisecond).Should(BeEmpty())
	})

	It("relays a full flush for events whose subjects are unknown", func() {
		event := events.NewRoleBindingChangedEvent(4, "editor", "billing.read", true, "admin-1", nil)
		event.FlushAll = true
		Expect(a.HandleEvent(ctx, event)).To(Succeed())

		Eventually(localB.Calls).Should(HaveLen(1))
		call := localB.Calls()[0]
		Expect(call.all).To(BeTrue())
		Expect(call.trigger).To(Equal("remote:" + events.EventTypeRoleBindingChanged))
	})

	It("relays permission flush events from the bus", func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		bus := events.NewEventBus(logger)
		a.Register(bus)

		Expect(bus.PublishSync(ctx, events.NewPermissionsFlushedEvent("seed"))).To(Succeed())

		Eventually(localB.Calls).Should(HaveLen(1))
		Expect(localB.Calls()[0].all).To(BeTrue())
	})
})
