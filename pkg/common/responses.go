package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// MaxBodyBytes bounds request bodies. Graph payloads are the largest thing a
// client sends.
const MaxBodyBytes int64 = 4 << 20

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Type    string                 `json:"type"`
	Code    string                 `json:"code,omitempty"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MetaInfo contains metadata about the response
type MetaInfo struct {
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Count     *int   `json:"count,omitempty"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	})
}

// RespondList sends a list with its length in the metadata.
func RespondList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	n := len(items)
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    items,
		Meta:    &MetaInfo{Count: &n},
	})
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, info *ErrorInfo, requestID string) {
	resp := APIResponse{Success: false, Error: info}
	if requestID != "" {
		resp.Meta = &MetaInfo{
			RequestID: requestID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrEmptyBody is returned by the body parsers when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")

// ParseJSONBody parses a JSON request body with a size limit, rejecting
// fields the target does not declare.
func ParseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64) error {
	return decodeBody(w, r, v, maxBytes, true)
}

// ParseJSONBodyLenient is ParseJSONBody for payloads produced by the canvas
// library, which carry presentation keys the server ignores.
func ParseJSONBodyLenient(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64) error {
	return decodeBody(w, r, v, maxBytes, false)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64, strict bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	if strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	return nil
}
