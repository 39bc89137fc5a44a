// Package handlers implements the HTTP handlers for audits and
// consensus rounds. Handlers translate between the wire contracts in
// pkg/api and the application services; every rule beyond request
// shape lives below them.
package handlers

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appErrors "arbiter-backend/internal/errors"
	"arbiter-backend/pkg/api"
)

// validate is the shared request validator. Validation errors name
// fields by the JSON names clients actually sent.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest parses and validates a JSON request body into dst.
func decodeRequest(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return appErrors.Input("MALFORMED_BODY", "request body is not valid JSON").
			WithOperation(r.Method + " " + r.URL.Path).WithCause(err).Build()
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return appErrors.Input("INVALID_BODY", "request body failed validation").WithCause(err).Build()
	}

	msgs := make([]string, 0, len(verrs))
	details := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag()))
		details[fe.Field()] = fe.Tag()
	}
	return appErrors.Input("INVALID_BODY", "invalid request: "+strings.Join(msgs, ", ")).
		WithDetails(details).Build()
}

// handleServiceError converts service errors to HTTP responses. App
// errors carry their stable code to the client; anything unclassified
// is masked as an internal error.
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var appErr *appErrors.Error
	if !stderrors.As(err, &appErr) {
		logger.Error("unclassified handler error", zap.Error(err))
		api.Error(w, http.StatusInternalServerError, "An internal error occurred")
		return
	}

	status := statusFor(appErr.Type)
	if status >= http.StatusInternalServerError {
		logger.Error("request handling failed",
			zap.String("code", appErr.Code),
			zap.String("type", string(appErr.Type)),
			zap.Error(err),
		)
	}
	// Message never includes the cause chain, so it is safe to expose.
	api.ErrorCode(w, status, appErr.Code, appErr.Message)
}

func statusFor(t appErrors.ErrorType) int {
	switch t {
	case appErrors.ErrorTypeInput, appErrors.ErrorTypeStructural:
		return http.StatusBadRequest
	case appErrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case appErrors.ErrorTypeConflict:
		return http.StatusConflict
	case appErrors.ErrorTypeIntegrity, appErrors.ErrorTypeConsensusGap:
		return http.StatusUnprocessableEntity
	case appErrors.ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
