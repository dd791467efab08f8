package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/resolver"
	"github.com/frahmantamala/teamboard/internal/transport/middleware"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// MockChecker grants the slugs in allowed and records every request.
type MockChecker struct {
	mu         sync.Mutex
	allowed    map[string]bool
	requests   []resolver.CheckRequest
	shouldFail error
}

func (m *MockChecker) Check(ctx context.Context, req resolver.CheckRequest) (resolver.PermissionCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.shouldFail != nil {
		return resolver.PermissionCheck{Reason: resolver.ReasonStoreUnavailable}, m.shouldFail
	}
	if m.allowed[req.Permission] {
		return resolver.PermissionCheck{Granted: true}, nil
	}
	return resolver.PermissionCheck{Reason: resolver.ReasonNotGranted}, nil
}

func (m *MockChecker) SetShouldFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = err
}

func errorCode(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body.Error.Code
}

var _ = Describe("RequirePermission", func() {
	var (
		checker *MockChecker
		router  *chi.Mux
		reached string
	)

	BeforeEach(func() {
		reached = ""
		checker = &MockChecker{allowed: map[string]bool{"team.manage": true}}
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = internal.TeamIDFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		router = chi.NewRouter()
		router.With(middleware.RequirePermission(checker, "team.manage", lg)).
			Put("/teams/{teamID}/members/{userID}/role", next)
		router.With(middleware.RequirePermission(checker, "billing.manage", lg)).
			Get("/billing", next)
		router.With(middleware.RequirePermission(checker, "team.manage", lg)).
			Get("/members", next)
	})

	serve := func(method, path, userID, teamHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		ctx := req.Context()
		if userID != "" {
			ctx = internal.ContextWithUserID(ctx, userID)
		}
		if teamHeader != "" {
			ctx = internal.ContextWithTeamID(ctx, teamHeader)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req.WithContext(ctx))
		return rec
	}

	It("passes granted requests through with the route's team", func() {
		rec := serve(http.MethodPut, "/teams/t1/members/u2/role", "u1", "t9")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(reached).To(Equal("t1"))

		Expect(checker.requests).To(HaveLen(1))
		req := checker.requests[0]
		Expect(req.UserID).To(Equal("u1"))
		Expect(req.TeamID).To(Equal("t1"))
		Expect(req.ResourceType).To(Equal("route"))
		Expect(req.ResourceID).To(Equal("PUT /teams/t1/members/u2/role"))
	})

	It("falls back to the acting team without a route parameter", func() {
		rec := serve(http.MethodGet, "/members", "u1", "t3")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(reached).To(Equal("t3"))
	})

	It("answers 401 without a user", func() {
		rec := serve(http.MethodGet, "/members", "", "t1")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(checker.requests).To(BeEmpty())
	})

	It("answers 400 without a team", func() {
		rec := serve(http.MethodGet, "/members", "u1", "")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeMissingTeam)))
	})

	It("answers 403 on denial", func() {
		rec := serve(http.MethodGet, "/billing", "u1", "t1")
		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodePermissionDenied)))
		Expect(reached).To(BeEmpty())
	})

	It("answers 503 with Retry-After when the check fails", func() {
		checker.SetShouldFail(internal.ErrCheckTimeout)
		rec := serve(http.MethodGet, "/members", "u1", "t1")
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(rec.Header().Get("Retry-After")).To(Equal("1"))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeCheckTimeout)))
		Expect(reached).To(BeEmpty())
	})

	It("maps unknown failures to store unavailable", func() {
		checker.SetShouldFail(errors.New("connection reset"))
		rec := serve(http.MethodGet, "/members", "u1", "t1")
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeStoreUnavailable)))
	})
})
