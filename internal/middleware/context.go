package middleware

import (
	"context"
	"net/http"
	"strconv"
)

// contextKey defines a custom type for context keys to avoid collisions.
type contextKey string

const userContextKey = contextKey("user")

// UserInfo represents the essential caller information stored in the
// request context. The numeric ID is issued by the surrounding identity
// layer and arrives on the X-User-ID header.
type UserInfo struct {
	ID int64
}

// GetUserInfo retrieves the user information from the request context.
func GetUserInfo(ctx context.Context) *UserInfo {
	if userInfo, ok := ctx.Value(userContextKey).(*UserInfo); ok {
		return userInfo
	}
	// Anonymous caller when no identity was attached.
	return &UserInfo{}
}

// SetUserInfo adds the user information to the request context.
func SetUserInfo(ctx context.Context, userInfo *UserInfo) context.Context {
	return context.WithValue(ctx, userContextKey, userInfo)
}

// Identity reads the caller's id from the X-User-ID header and stores it
// in the request context for the handlers.
func Identity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := r.Header.Get("X-User-ID"); raw != "" {
				if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
					r = r.WithContext(SetUserInfo(r.Context(), &UserInfo{ID: id}))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
