package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/shopfield/api/internal/platform/httpx"
)

const maxRequestBodySize = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeRequest reads a bounded JSON body into dst and validates its struct tags. It writes the error
// response itself and reports whether the handler may continue.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	ctx := r.Context()
	if err := decodeJSONBody(r, dst); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "request validation failed", http.StatusUnprocessableEntity).
				WithDetails(map[string]any{"fields": validationFields(fieldErrs)}))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxRequestBodySize {
		return errBodyTooLarge
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errEmptyBody
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func validationFields(errs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return fields
}
