package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mcoot/triviasync/internal/api/apierr"
)

// maxBodyBytes bounds request bodies; the largest is a chat message
const maxBodyBytes = 64 << 10

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// decode reads a single JSON object from the request body into v. An empty
// body leaves v at its zero value.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return NewInvalidRequestError("Request body too large")
		}
		return NewInvalidRequestError("Invalid request body")
	}
	if dec.More() {
		return NewInvalidRequestError("Request body must be a single JSON object")
	}
	return nil
}
