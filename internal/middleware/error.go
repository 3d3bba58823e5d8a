package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"minisite-manager/internal/data"
	"minisite-manager/internal/logger"
	"minisite-manager/internal/service"
)

// AppError represents a custom error type for the application.
type AppError struct {
	Error   error
	Message string
	Code    int
}

// AppHandler is a custom handler function type that returns an AppError.
type AppHandler func(http.ResponseWriter, *http.Request) *AppError

// Fail maps a service or repository error onto the HTTP status it should
// produce.
func Fail(err error, message string) *AppError {
	var validation *service.ValidationError
	switch {
	case errors.As(err, &validation):
		return &AppError{Error: err, Message: validation.Error(), Code: http.StatusBadRequest}
	case errors.Is(err, data.ErrNotFound):
		return &AppError{Error: err, Message: message, Code: http.StatusNotFound}
	case errors.Is(err, data.ErrOptimisticLock),
		errors.Is(err, data.ErrVersionNumberConflict),
		errors.Is(err, data.ErrSlugConflict):
		return &AppError{Error: err, Message: message, Code: http.StatusConflict}
	default:
		return &AppError{Error: err, Message: message, Code: http.StatusInternalServerError}
	}
}

// Error is a middleware that converts handler errors into JSON error
// responses.
func Error(log logger.Logger) func(AppHandler) http.Handler {
	return func(next AppHandler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err, ok := rec.(error)
					if !ok {
						err = fmt.Errorf("%v", rec)
					}
					log.Error(err, "Panic recovered")
					writeError(w, http.StatusInternalServerError, "Internal Server Error")
				}
			}()

			err := next(w, r)
			if err != nil {
				log.Error(err.Error, err.Message)
				writeError(w, err.Code, err.Message)
			}
		})
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  message,
		"status": code,
	})
}
