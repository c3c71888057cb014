package testutil

import (
	"context"
	"net/http"

	"safereport/pkg/requestcontext"
)

// WithEmail adds a verified email claim to the request context, as the
// auth middleware does for a valid bearer token.
func WithEmail(req *http.Request, email string) *http.Request {
	return req.WithContext(requestcontext.WithEmail(req.Context(), email))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
