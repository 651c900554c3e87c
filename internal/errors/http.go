package errors

import (
	"encoding/json"
	"net/http"
)

// HTTPErrorResponse wraps a GateError for HTTP JSON responses.
type HTTPErrorResponse struct {
	Error GateError `json:"error"`
}

// WriteHTTPError writes a GateError as an HTTP JSON response.
func WriteHTTPError(w http.ResponseWriter, err *GateError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(HTTPErrorResponse{Error: *err})
}
