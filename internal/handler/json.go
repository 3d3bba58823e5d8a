package handler

import (
	"encoding/json"
	"net/http"

	"minisite-manager/internal/middleware"
)

// respond writes v as the JSON response body with the given status code.
func respond(w http.ResponseWriter, code int, v interface{}) *middleware.AppError {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return &middleware.AppError{Error: err, Message: "Failed to encode response", Code: http.StatusInternalServerError}
	}
	return nil
}

// decode reads the request body into v, rejecting unknown fields.
func decode(r *http.Request, v interface{}) *middleware.AppError {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &middleware.AppError{Error: err, Message: "Invalid request body", Code: http.StatusBadRequest}
	}
	return nil
}
