package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/resolver"
	"github.com/go-chi/chi"
)

type PermissionChecker interface {
	Check(ctx context.Context, req resolver.CheckRequest) (resolver.PermissionCheck, error)
}

// RequirePermission admits the request only when the authenticated user holds
// permission in the acting team. The team comes from the {teamID} route parameter
// when the route has one, otherwise from X-Team-ID. Denials and check failures both
// stop the request.
func RequirePermission(checker PermissionChecker, permission string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := internal.UserIDFromContext(ctx)
			if userID == "" {
				writeAppError(w, internal.ErrInvalidToken)
				return
			}

			teamID := chi.URLParam(r, "teamID")
			if teamID == "" {
				teamID = internal.TeamIDFromContext(ctx)
			}
			if teamID == "" {
				writeAppError(w, internal.ErrMissingTeam)
				return
			}

			result, err := checker.Check(ctx, resolver.CheckRequest{
				UserID:       userID,
				TeamID:       teamID,
				Permission:   permission,
				ResourceType: "route",
				ResourceID:   r.Method + " " + r.URL.Path,
			})
			if err != nil {
				logger.ErrorContext(ctx, "route permission check failed",
					"user_id", userID,
					"team_id", teamID,
					"permission", permission,
					"error", err)
				if appErr, ok := internal.IsAppError(err); ok {
					writeAppError(w, appErr)
					return
				}
				writeAppError(w, internal.ErrStoreUnavailable.WithCause(err))
				return
			}

			if !result.Granted {
				logger.WarnContext(ctx, "access denied",
					"user_id", userID,
					"team_id", teamID,
					"required_permission", permission,
					"reason", result.Reason)
				writeAppError(w, internal.ErrPermissionDenied.WithDetails(map[string]string{
					"permission": permission,
					"reason":     result.Reason,
				}))
				return
			}

			next.ServeHTTP(w, r.WithContext(internal.ContextWithTeamID(ctx, teamID)))
		})
	}
}

func writeAppError(w http.ResponseWriter, appErr *internal.AppError) {
	status, body := appErr.ToHTTPResponse()
	if appErr.Retryable() {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
