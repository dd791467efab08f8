package resolver_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/audit"
	"github.com/frahmantamala/teamboard/internal/resolver"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// MockSink implements resolver.Appender
type MockSink struct {
	mu         sync.Mutex
	entries    []audit.Entry
	shouldFail bool
	failError  error
}

func (m *MockSink) Append(ctx context.Context, e *audit.Entry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shouldFail {
		return "", m.failError
	}
	m.entries = append(m.entries, *e)
	return "id", nil
}

func (m *MockSink) SetShouldFail(shouldFail bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = shouldFail
	m.failError = err
}

func (m *MockSink) Entries() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audit.Entry(nil), m.entries...)
}

// MockSubmitter implements resolver.Submitter
type MockSubmitter struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *MockSubmitter) Submit(e audit.Entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return true
}

type slowSource struct{}

func (slowSource) Resolve(ctx context.Context, userID, teamID string) (*resolver.Resolution, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingSource struct{ err error }

func (f failingSource) Resolve(ctx context.Context, userID, teamID string) (*resolver.Resolution, error) {
	return nil, f.err
}

var _ = Describe("Checker", func() {
	var (
		dir     *MockDirectory
		sink    *MockSink
		checker *resolver.Checker
		logger  *slog.Logger
		ctx     context.Context
	)

	BeforeEach(func() {
		dir = NewMockDirectory()
		sink = &MockSink{}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		checker = resolver.NewChecker(resolver.NewResolver(dir, dir, logger, nil), sink, logger)
		ctx = context.Background()

		dir.AddRole(4, "editor", 40, editorGrants...)
		dir.Assign("alice", "t1", 4)
	})

	check := func(perm string) (resolver.PermissionCheck, error) {
		return checker.Check(ctx, resolver.CheckRequest{UserID: "alice", TeamID: "t1", Permission: perm})
	}

	It("grants bound permissions without writing an audit entry", func() {
		result, err := check("projects.create")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Granted).To(BeTrue())
		Expect(result.Reason).To(BeEmpty())
		Expect(sink.Entries()).To(BeEmpty())
	})

	It("denies unbound permissions with exactly one denied entry", func() {
		result, err := check("billing.manage")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Granted).To(BeFalse())
		Expect(result.Reason).To(Equal(resolver.ReasonNotGranted))

		entries := sink.Entries()
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Action).To(Equal(audit.ActionDenied))
		Expect(entries[0].UserID).To(Equal("alice"))
		Expect(entries[0].TeamID).To(Equal("t1"))
		Expect(entries[0].PermissionSlug).To(Equal("billing.manage"))
		Expect(entries[0].Metadata).To(HaveKeyWithValue("reason", resolver.ReasonNotGranted))
		Expect(entries[0].Metadata).To(HaveKeyWithValue("role", "editor"))
	})

	It("denies malformed slugs without resolving", func() {
		before := dir.Calls()
		result, err := check("projects")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Granted).To(BeFalse())
		Expect(result.Reason).To(Equal(resolver.ReasonInvalidFormat))
		Expect(dir.Calls()).To(Equal(before))
		Expect(sink.Entries()).To(HaveLen(1))
	})

	It("denies users with no active role in the team", func() {
		result, err := checker.Check(ctx, resolver.CheckRequest{UserID: "alice", TeamID: "t9", Permission: "projects.read"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Granted).To(BeFalse())
		Expect(result.Reason).To(Equal(resolver.ReasonNoActiveRole))
		Expect(sink.Entries()).To(HaveLen(1))
	})

	It("stops granting once the role is deactivated", func() {
		result, _ := check("projects.read")
		Expect(result.Granted).To(BeTrue())

		dir.roles[4].IsActive = false
		result, err := check("projects.read")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Granted).To(BeFalse())
		Expect(result.Reason).To(Equal(resolver.ReasonNoActiveRole))
	})

	It("reports an audit failure on denial and still denies", func() {
		sink.SetShouldFail(true, errors.New("disk full"))

		result, err := check("billing.manage")
		Expect(result.Granted).To(BeFalse())
		Expect(err).To(MatchError(internal.ErrAuditUnavailable))
	})

	It("fails closed with a timeout error when resolution outlives the deadline", func() {
		slow := resolver.NewChecker(slowSource{}, sink, logger, resolver.WithTimeout(20*time.Millisecond))

		result, err := slow.Check(ctx, resolver.CheckRequest{UserID: "alice", TeamID: "t1", Permission: "projects.read"})
		Expect(result.Granted).To(BeFalse())
		Expect(result.Reason).To(Equal(resolver.ReasonTimeout))
		Expect(err).To(MatchError(internal.ErrCheckTimeout))
		Expect(internal.IsRetryable(err)).To(BeTrue())
	})

	It("fails closed with a store error when resolution fails", func() {
		broken := resolver.NewChecker(failingSource{err: errors.New("connection refused")}, sink, logger)

		result, err := broken.Check(ctx, resolver.CheckRequest{UserID: "alice", TeamID: "t1", Permission: "projects.read"})
		Expect(result.Granted).To(BeFalse())
		Expect(result.Reason).To(Equal(resolver.ReasonStoreUnavailable))
		Expect(err).To(MatchError(internal.ErrStoreUnavailable))
	})

	Describe("granted logging", func() {
		It("appends a checked entry inline when requested", func() {
			result, err := checker.Check(ctx, resolver.CheckRequest{UserID: "alice", TeamID: "t1", Permission: "projects.read", LogGranted: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Granted).To(BeTrue())

			entries := sink.Entries()
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Action).To(Equal(audit.ActionChecked))
		})

		It("routes through the async writer when one is configured", func() {
			sub := &MockSubmitter{}
			async := resolver.NewChecker(resolver.NewResolver(dir, dir, logger, nil), sink, logger,
				resolver.WithAsyncWriter(sub),
				resolver.WithGrantedLogging(true))

			result, err := async.Check(ctx, resolver.CheckRequest{UserID: "alice", TeamID: "t1", Permission: "projects.read"})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Granted).To(BeTrue())
			Expect(sub.entries).To(HaveLen(1))
			Expect(sink.Entries()).To(BeEmpty())
		})

		It("does not fail a grant when the inline append fails", func() {
			sink.SetShouldFail(true, errors.New("disk full"))
			result, err := checker.Check(ctx, resolver.CheckRequest{UserID: "alice", TeamID: "t1", Permission: "projects.read", LogGranted: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Granted).To(BeTrue())
		})
	})

	It("answers concurrent checks consistently", func() {
		var wg sync.WaitGroup
		results := make([]bool, 50)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				perm := "projects.read"
				if i%2 == 1 {
					perm = "billing.read"
				}
				r, err := checker.Check(ctx, resolver.CheckRequest{UserID: "alice", TeamID: "t1", Permission: perm})
				Expect(err).NotTo(HaveOccurred())
				results[i] = r.Granted
			}(i)
		}
		wg.Wait()

		for i, granted := range results {
			Expect(granted).To(Equal(i%2 == 0))
		}
		Expect(sink.Entries()).To(HaveLen(25))
	})
})
