package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes data as the response body. Room state changes between polls,
// so nothing is cacheable.
func JSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
