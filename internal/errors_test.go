package internal_test

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/frahmantamala/teamboard/internal"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("AppError", func() {
	It("matches wrapped copies of a sentinel", func() {
		err := fmt.Errorf("check: %w", internal.ErrStoreUnavailable.WithCause(errors.New("conn refused")))
		Expect(errors.Is(err, internal.ErrStoreUnavailable)).To(BeTrue())
		Expect(errors.Is(err, internal.ErrAuditUnavailable)).To(BeFalse())
	})

	It("never mutates the sentinel", func() {
		_ = internal.ErrCheckTimeout.WithCause(errors.New("deadline"))
		_ = internal.ErrPermissionDenied.WithDetails(map[string]string{"permission": "billing.read"})
		Expect(internal.ErrCheckTimeout.Cause).To(BeNil())
		Expect(internal.ErrPermissionDenied.Details).To(BeNil())
	})

	It("exposes the cause through Unwrap", func() {
		cause := errors.New("disk full")
		Expect(errors.Is(internal.ErrAuditUnavailable.WithCause(cause), cause)).To(BeTrue())
	})

	It("marks only unavailability as retryable", func() {
		Expect(internal.IsRetryable(internal.ErrCheckTimeout)).To(BeTrue())
		Expect(internal.IsRetryable(fmt.Errorf("x: %w", internal.ErrStoreUnavailable))).To(BeTrue())
		Expect(internal.IsRetryable(internal.ErrPermissionDenied)).To(BeFalse())
		Expect(internal.IsRetryable(errors.New("plain"))).To(BeFalse())
	})

	It("renders with its own status", func() {
		status, _ := internal.ErrInsufficientHierarchy.ToHTTPResponse()
		Expect(status).To(Equal(http.StatusForbidden))
		status, _ = internal.ErrAuditUnavailable.ToHTTPResponse()
		Expect(status).To(Equal(http.StatusServiceUnavailable))
	})

	It("reports the first field message for validation errors", func() {
		err := internal.NewValidationFieldError("hierarchy_level", "hierarchy_level must not be negative", internal.ErrCodeInvalidHierarchy)
		Expect(err.Error()).To(Equal("hierarchy_level must not be negative"))
	})
})
