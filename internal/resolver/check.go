package resolver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/audit"
	"github.com/frahmantamala/teamboard/internal/catalog"
	"github.com/frahmantamala/teamboard/pkg/metrics"
)

type CheckRequest struct {
	UserID       string
	TeamID       string
	Permission   string
	ResourceType string
	ResourceID   string
	// LogGranted records a granted decision as a best-effort "checked" entry.
	LogGranted bool
}

type PermissionCheck struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

// Appender is the durable audit path; denials must reach it.
type Appender interface {
	Append(ctx context.Context, e *audit.Entry) (string, error)
}

// Submitter is the best-effort audit path for granted checks.
type Submitter interface {
	Submit(e audit.Entry) bool
}

type Checker struct {
	source     Source
	sink       Appender
	async      Submitter
	logger     *slog.Logger
	metrics    *metrics.Metrics
	timeout    time.Duration
	logGranted bool
}

type CheckerOption func(*Checker)

// WithAsyncWriter routes granted-check entries through w instead of writing them inline.
func WithAsyncWriter(w Submitter) CheckerOption {
	return func(c *Checker) { c.async = w }
}

func WithTimeout(d time.Duration) CheckerOption {
	return func(c *Checker) { c.timeout = d }
}

// WithGrantedLogging records every granted decision regardless of CheckRequest.LogGranted.
func WithGrantedLogging(enabled bool) CheckerOption {
	return func(c *Checker) { c.logGranted = enabled }
}

func WithMetrics(m *metrics.Metrics) CheckerOption {
	return func(c *Checker) { c.metrics = m }
}

func NewChecker(source Source, sink Appender, logger *slog.Logger, opts ...CheckerOption) *Checker {
	c := &Checker{
		source: source,
		sink:   sink,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check answers whether the user may perform req.Permission within req.TeamID. Every
// denial is appended to the audit log before Check returns, and a failed append is
// returned as ErrAuditUnavailable alongside the denied result. Resolution failures
// and timeouts fail closed: the result is a denial and the error is retryable.
func (c *Checker) Check(ctx context.Context, req CheckRequest) (PermissionCheck, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	slug, ok := catalog.Parse(req.Permission)
	if !ok {
		return c.deny(ctx, req, nil, ReasonInvalidFormat)
	}

	res, err := c.source.Resolve(ctx, req.UserID, req.TeamID)
	if err != nil {
		return c.failClosed(ctx, req, err)
	}
	if !res.Active {
		return c.deny(ctx, req, res, ReasonNoActiveRole)
	}
	if !res.Has(catalog.Format(slug)) {
		return c.deny(ctx, req, res, ReasonNotGranted)
	}

	c.metrics.RecordDecision(true, "")
	if req.LogGranted || c.logGranted {
		c.recordGranted(ctx, req, res)
	}
	return PermissionCheck{Granted: true}, nil
}

func (c *Checker) deny(ctx context.Context, req CheckRequest, res *Resolution, reason string) (PermissionCheck, error) {
	result := PermissionCheck{Granted: false, Reason: reason}
	c.metrics.RecordDecision(false, reason)

	c.logger.InfoContext(ctx, "permission denied",
		"user_id", req.UserID,
		"team_id", req.TeamID,
		"permission", req.Permission,
		"reason", reason)

	entry := c.entry(audit.ActionDenied, req, res, reason)
	_, err := c.sink.Append(ctx, entry)
	c.metrics.RecordAuditAppend(string(audit.ActionDenied), err)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to audit denied check",
			"user_id", req.UserID,
			"permission", req.Permission,
			"error", err)
		return result, internal.ErrAuditUnavailable.WithCause(err)
	}
	return result, nil
}

func (c *Checker) failClosed(ctx context.Context, req CheckRequest, err error) (PermissionCheck, error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		c.metrics.RecordDecision(false, ReasonTimeout)
		c.logger.WarnContext(ctx, "permission check timed out",
			"user_id", req.UserID,
			"team_id", req.TeamID,
			"permission", req.Permission,
			"error", err)
		return PermissionCheck{Reason: ReasonTimeout}, internal.ErrCheckTimeout.WithCause(err)
	}

	c.metrics.RecordDecision(false, ReasonStoreUnavailable)
	c.logger.ErrorContext(ctx, "permission resolution failed",
		"user_id", req.UserID,
		"team_id", req.TeamID,
		"permission", req.Permission,
		"error", err)

	if appErr, ok := internal.IsAppError(err); ok {
		return PermissionCheck{Reason: ReasonStoreUnavailable}, appErr
	}
	return PermissionCheck{Reason: ReasonStoreUnavailable}, internal.ErrStoreUnavailable.WithCause(err)
}

func (c *Checker) recordGranted(ctx context.Context, req CheckRequest, res *Resolution) {
	entry := c.entry(audit.ActionChecked, req, res, "")
	if c.async != nil {
		c.async.Submit(*entry)
		return
	}

	_, err := c.sink.Append(ctx, entry)
	c.metrics.RecordAuditAppend(string(audit.ActionChecked), err)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to audit granted check", "user_id", req.UserID, "permission", req.Permission, "error", err)
	}
}

func (c *Checker) entry(action audit.Action, req CheckRequest, res *Resolution, reason string) *audit.Entry {
	metadata := map[string]any{}
	if reason != "" {
		metadata["reason"] = reason
	}
	if res != nil && res.RoleSlug != "" {
		metadata["role"] = res.RoleSlug
	}
	return &audit.Entry{
		UserID:         req.UserID,
		TeamID:         req.TeamID,
		Action:         action,
		PermissionSlug: req.Permission,
		ResourceType:   req.ResourceType,
		ResourceID:     req.ResourceID,
		Metadata:       metadata,
	}
}
