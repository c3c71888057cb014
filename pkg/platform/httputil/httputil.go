// Package httputil renders JSON responses and domain errors.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "safereport/pkg/domain-errors"
)

// MaxBodyBytes bounds decoded request bodies.
const MaxBodyBytes = 1 << 20

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {"error", "error_description", ...details}.
// Internal errors carry no description so storage details never leak.
func WriteError(w http.ResponseWriter, err error) {
	de, ok := dErrors.As(err)
	if !ok {
		de = dErrors.New(dErrors.CodeInternal, "internal error")
	}
	body := map[string]any{"error": string(de.Code)}
	status := dErrors.HTTPStatus(de.Code)
	if status < http.StatusInternalServerError {
		body["error_description"] = de.Message
		for k, v := range de.Details {
			if k == "error" || k == "error_description" {
				continue
			}
			body[k] = v
		}
	}
	if de.Code == dErrors.CodeRateLimited {
		if minutes, ok := de.Detail("minutes_until_reset").(int); ok {
			w.Header().Set("Retry-After", itoa(minutes*60))
		}
	}
	WriteJSON(w, status, body)
}

// DecodeJSON decodes a bounded request body into dst. Fields dst does not
// declare are dropped.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeBadRequest, "request body is required")
		}
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
