package auth

import (
	"net/http"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/frahmantamala/teamboard/internal/transport"
	"github.com/frahmantamala/teamboard/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	validator *TokenValidator
}

func NewHandler(base *transport.BaseHandler, validator *TokenValidator) *Handler {
	return &Handler{
		BaseHandler: base,
		validator:   validator,
	}
}

// AuthMiddleware requires a valid bearer token and stores its subject as the user id.
// The X-Team-ID header, when present, becomes the acting team.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.Warn("auth middleware: missing authorization token", "path", r.URL.Path)
			h.HandleServiceError(w, internal.ErrInvalidToken)
			return
		}

		claims, err := h.validator.Validate(token)
		if err != nil {
			h.Logger.Warn("auth middleware: token validation failed", "error", err)
			h.HandleServiceError(w, err)
			return
		}

		ctx := internal.ContextWithUserID(r.Context(), claims.Subject)
		ctx = logger.With(ctx, "user_id", claims.Subject)
		if teamID := r.Header.Get(transport.HeaderTeamID); teamID != "" {
			ctx = internal.ContextWithTeamID(ctx, teamID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
