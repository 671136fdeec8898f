package botapi

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the error envelope used by the Bot API itself.
type ErrorResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// WriteError writes a Bot API style JSON error with the given status.
func WriteError(w http.ResponseWriter, status int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		OK:          false,
		ErrorCode:   status,
		Description: description,
	})
}
