package permcache_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/frahmantamala/teamboard/internal/permcache"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

var _ = Describe("RedisStore", func() {
	var (
		mr     *miniredis.Miniredis
		client *redis.Client
		store  *permcache.RedisStore
		clock  *fakeClock
		ctx    context.Context
		key    permcache.Key
	)

	BeforeEach(func() {
		var err error
		mr, err = miniredis.Run()
		Expect(err).NotTo(HaveOccurred())
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		clock = newFakeClock()
		store = permcache.NewRedisStore(client, "test:perm", permcache.WithRedisClock(clock.Now))
		ctx = context.Background()
		key = permcache.Key{UserID: "u1", TeamID: "t1"}
	})

	AfterEach(func() {
		_ = client.Close()
		mr.Close()
	})

	It("round-trips a resolution", func() {
		Expect(store.Put(ctx, key, resolution("u1", "t1", "content.read", "projects.read"), time.Minute)).To(Succeed())

		got, ok, err := store.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got.UserID).To(Equal("u1"))
		Expect(got.Active).To(BeTrue())
		Expect(got.Has("content.read")).To(BeTrue())
	})

	It("sets the redis ttl", func() {
		Expect(store.Put(ctx, key, resolution("u1", "t1"), time.Minute)).To(Succeed())
		Expect(mr.Keys()).To(ContainElement("test:perm:v0:2:u1:t1"))
		Expect(mr.TTL("test:perm:v0:2:u1:t1")).To(Equal(time.Minute))

		mr.FastForward(2 * time.Minute)
		_, ok, err := store.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("treats an entry past ExpiresAt as a miss even if redis still holds it", func() {
		Expect(store.Put(ctx, key, resolution("u1", "t1"), time.Minute)).To(Succeed())
		clock.Advance(time.Minute)

		_, ok, err := store.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("stores nothing for a zero ttl", func() {
		Expect(store.Put(ctx, key, resolution("u1", "t1"), 0)).To(Succeed())
		Expect(mr.Keys()).To(BeEmpty())
	})

	It("deletes a single key", func() {
		Expect(store.Put(ctx, key, resolution("u1", "t1"), time.Minute)).To(Succeed())
		Expect(store.Invalidate(ctx, key)).To(Succeed())

		_, ok, _ := store.Get(ctx, key)
		Expect(ok).To(BeFalse())
	})

	It("flushes everything by moving to a new generation", func() {
		other := permcache.Key{UserID: "u2", TeamID: "t1"}
		Expect(store.Put(ctx, key, resolution("u1", "t1"), time.Minute)).To(Succeed())
		Expect(store.Put(ctx, other, resolution("u2", "t1"), time.Minute)).To(Succeed())

		Expect(store.InvalidateAll(ctx)).To(Succeed())

		_, ok, _ := store.Get(ctx, key)
		Expect(ok).To(BeFalse())
		_, ok, _ = store.Get(ctx, other)
		Expect(ok).To(BeFalse())

		Expect(store.Put(ctx, key, resolution("u1", "t1"), time.Minute)).To(Succeed())
		Expect(mr.Keys()).To(ContainElement("test:perm:v1:2:u1:t1"))
	})

	It("drops unreadable payloads and reports a miss", func() {
		Expect(mr.Set("test:perm:v0:2:u1:t1", "{not json")).To(Succeed())

		_, ok, err := store.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(mr.Exists("test:perm:v0:2:u1:t1")).To(BeFalse())
	})

	It("returns an error when redis is unreachable", func() {
		mr.Close()
		_, _, err := store.Get(ctx, key)
		Expect(err).To(HaveOccurred())
	})

	It("shares entries between stores on the same namespace", func() {
		peer := permcache.NewRedisStore(client, "test:perm", permcache.WithRedisClock(clock.Now))
		Expect(store.Put(ctx, key, resolution("u1", "t1", "team.read"), time.Minute)).To(Succeed())

		got, ok, err := peer.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got.Has("team.read")).To(BeTrue())

		Expect(peer.InvalidateAll(ctx)).To(Succeed())
		_, ok, _ = store.Get(ctx, key)
		Expect(ok).To(BeFalse())
	})

	It("keeps ids containing ':' apart", func() {
		first := permcache.Key{UserID: "a:b", TeamID: "c"}
		second := permcache.Key{UserID: "a", TeamID: "b:c"}
		Expect(store.Put(ctx, first, resolution("a:b", "c", "billing.manage"), time.Minute)).To(Succeed())

		_, ok, err := store.Get(ctx, second)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		got, ok, err := store.Get(ctx, first)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(got.Has("billing.manage")).To(BeTrue())
	})
})
