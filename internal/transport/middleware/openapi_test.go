package middleware_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	"github.com/frahmantamala/teamboard/api"
	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/transport/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RequestValidator", func() {
	var (
		handler http.Handler
		reached bool
	)

	BeforeEach(func() {
		reached = false
		lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		validator, err := middleware.NewRequestValidator(api.OpenAPI, lg)
		Expect(err).NotTo(HaveOccurred())

		handler = validator.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
			w.WriteHeader(http.StatusNoContent)
		}))
	})

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, path, nil)
		} else {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	It("loads the embedded document", func() {
		_, err := middleware.NewRequestValidator([]byte("not: [valid"), slog.Default())
		Expect(err).To(HaveOccurred())
	})

	It("passes conforming requests", func() {
		rec := serve(http.MethodGet, "/api/v1/permissions?group=module", "")
		Expect(rec.Code).To(Equal(http.StatusNoContent))
		Expect(reached).To(BeTrue())
	})

	It("rejects a query parameter outside its enum", func() {
		rec := serve(http.MethodGet, "/api/v1/permissions?group=team", "")
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeValidationFailed)))
		Expect(reached).To(BeFalse())
	})

	It("rejects a body missing a required field", func() {
		rec := serve(http.MethodPut, "/api/v1/teams/t1/members/u1/role", `{}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(reached).To(BeFalse())
	})

	It("accepts a complete body", func() {
		rec := serve(http.MethodPut, "/api/v1/teams/t1/members/u1/role", `{"role":"editor"}`)
		Expect(rec.Code).To(Equal(http.StatusNoContent))
	})

	It("ignores paths the document does not describe", func() {
		rec := serve(http.MethodGet, "/metrics", "")
		Expect(rec.Code).To(Equal(http.StatusNoContent))
	})
})
