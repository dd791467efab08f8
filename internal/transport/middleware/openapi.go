package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/frahmantamala/teamboard/internal"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"
)

// RequestValidator checks requests against the published OpenAPI document before they
// reach a handler. Paths the document does not describe pass through untouched.
type RequestValidator struct {
	router routers.Router
	logger *slog.Logger
}

func NewRequestValidator(spec []byte, logger *slog.Logger) (*RequestValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(spec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}

	// match on path only; the server may be reached under any host
	doc.Servers = openapi3.Servers{{URL: "/api/v1"}}

	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &RequestValidator{router: router, logger: logger}, nil
}

func (v *RequestValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, pathParams, err := v.router.FindRoute(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				MultiError:         true,
				AuthenticationFunc: func(context.Context, *openapi3filter.AuthenticationInput) error { return nil },
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			v.logger.WarnContext(r.Context(), "request rejected by openapi validation",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err)
			writeAppError(w, validationError(err))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func validationError(err error) *internal.AppError {
	details := internal.ValidationErrors{}

	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			details.Errors = append(details.Errors, requestError(e))
		}
	} else {
		details.Errors = append(details.Errors, requestError(err))
	}
	return internal.NewValidationError("Validation failed", internal.ErrCodeValidationFailed).WithDetails(details)
}

func requestError(err error) internal.ValidationError {
	field := "request"
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			field = reqErr.Parameter.Name
		} else if reqErr.RequestBody != nil {
			field = "body"
		}
		msg := reqErr.Reason
		if msg == "" && reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return internal.ValidationError{Field: field, Message: strings.TrimSpace(msg), Code: string(internal.ErrCodeValidationFailed)}
	}
	return internal.ValidationError{Field: field, Message: err.Error(), Code: string(internal.ErrCodeValidationFailed)}
}
