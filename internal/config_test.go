package internal_test

import (
	"time"

	"github.com/frahmantamala/teamboard/internal"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func validConfig() *internal.Config {
	cfg := internal.LoadConfigFromEnv()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Source = "file::memory:"
	cfg.Security.JWTSecret = "0123456789abcdef0123456789abcdef"
	return cfg
}

var _ = Describe("Config", func() {
	It("accepts the environment defaults once the required values are set", func() {
		Expect(validConfig().Validate()).To(Succeed())
	})

	It("uses the teamboard redis namespace by default", func() {
		cfg := internal.LoadConfigFromEnv()
		Expect(cfg.Cache.Redis.Namespace).To(Equal("teamboard:perm"))
		Expect(cfg.Cache.Redis.Channel).To(Equal("teamboard:perm:invalidate"))
	})

	DescribeTable("rejects invalid settings",
		func(mutate func(*internal.Config), fragment string) {
			cfg := validConfig()
			mutate(cfg)
			err := cfg.Validate()
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(fragment))
		},
		Entry("short jwt secret", func(c *internal.Config) { c.Security.JWTSecret = "short" }, "JWTSecret"),
		Entry("unknown database driver", func(c *internal.Config) { c.Database.Driver = "mysql" }, "Driver"),
		Entry("unknown cache backend", func(c *internal.Config) { c.Cache.Backend = "memcached" }, "Backend"),
		Entry("non-positive ttl", func(c *internal.Config) { c.Cache.TTL = -time.Second }, "ttl must be positive"),
		Entry("ttl above an hour", func(c *internal.Config) { c.Cache.TTL = 2 * time.Hour }, "ttl must not exceed 1h"),
		Entry("redis backend without address", func(c *internal.Config) {
			c.Cache.Backend = "redis"
			c.Cache.Redis.Addr = ""
		}, "redis.addr"),
		Entry("broadcast without address", func(c *internal.Config) {
			c.Cache.Broadcast = true
			c.Cache.Redis.Addr = ""
		}, "redis.addr"),
		Entry("idle above open connections", func(c *internal.Config) {
			c.Database.MaxOpenConns = 2
			c.Database.MaxIdleConns = 5
		}, "max_idle_conns"),
		Entry("read timeout below header timeout", func(c *internal.Config) {
			c.Server.ReadTimeout = time.Second
			c.Server.ReadHeaderTimeout = 2 * time.Second
		}, "read_timeout"),
		Entry("port out of range", func(c *internal.Config) { c.Server.Port = 70000 }, "Port"),
	)
})
