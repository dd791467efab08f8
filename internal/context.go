package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	ContextUserKey ctxKey = "userID"
	ContextTeamKey ctxKey = "teamID"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if userID, ok := ctx.Value(ContextUserKey).(string); ok {
		return userID
	}
	return ""
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextUserKey, userID)
}

// TeamIDFromContext returns the team the caller is currently acting within.
func TeamIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if teamID, ok := ctx.Value(ContextTeamKey).(string); ok {
		return teamID
	}
	return ""
}

func ContextWithTeamID(ctx context.Context, teamID string) context.Context {
	return context.WithValue(ctx, ContextTeamKey, teamID)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
