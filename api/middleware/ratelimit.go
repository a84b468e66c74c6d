package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/irsalhamdi/course-checkout/api/web"
	"github.com/irsalhamdi/course-checkout/api/weberr"
	"github.com/irsalhamdi/course-checkout/core/claims"
)

type Allower interface {
	Allow(key string) bool
}

// RateLimit throttles authenticated callers by user id and everyone else by
// remote address.
func RateLimit(l Allower) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			key := "addr:" + r.RemoteAddr
			if clm, err := claims.Get(ctx); err == nil {
				key = "user:" + clm.UserID
			}

			if !l.Allow(key) {
				return weberr.TooManyRequests(
					errors.New("rate limit exceeded"),
					weberr.WithFields(map[string]any{"limit_key": key}),
				)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
