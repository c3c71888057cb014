package query

import (
	"context"
	"net/url"
	"strings"
)

// URLResolver turns a media storage key into a URL a client can fetch.
type URLResolver interface {
	ResolveURL(ctx context.Context, storageKey string) (string, error)
}

// BaseURLResolver serves media from a static base URL (CDN or bucket
// website endpoint).
type BaseURLResolver struct {
	base string
}

func NewBaseURLResolver(base string) *BaseURLResolver {
	return &BaseURLResolver{base: strings.TrimRight(base, "/")}
}

func (r *BaseURLResolver) ResolveURL(_ context.Context, storageKey string) (string, error) {
	if r.base == "" {
		return "/media/" + strings.TrimLeft(storageKey, "/"), nil
	}
	return url.JoinPath(r.base, strings.Split(strings.TrimLeft(storageKey, "/"), "/")...)
}
