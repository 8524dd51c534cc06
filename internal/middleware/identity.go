package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/zhouzirui/car-advisor/backend/internal/service/session"
)

const (
	// SessionCookie carries the session id for browser clients.
	SessionCookie = "car_advisor_session"
	// SessionHeader carries the session id for API clients. It wins over the cookie.
	SessionHeader = "X-Session-ID"
)

type contextKey int

const (
	sessionIDKey contextKey = iota
	sessionCreatedKey
)

// SessionIDFromContext returns the session id bound by Identity, or "".
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID binds a session id to ctx.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionCreatedFromContext reports whether Identity minted the session for this request.
func SessionCreatedFromContext(ctx context.Context) bool {
	created, _ := ctx.Value(sessionCreatedKey).(bool)
	return created
}

// Identity resolves the caller's session, creating one on first visit or when
// the presented id has expired. The id is echoed back in the cookie and header.
func Identity(store *session.Store, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, created := store.GetOrCreate(r.Context(), sessionIDFromRequest(r))

			BindSession(w, sess.ID, secure)

			ctx := WithSessionID(r.Context(), sess.ID)
			if created {
				ctx = context.WithValue(ctx, sessionCreatedKey, true)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BindSession tells the client which session to present on later requests.
func BindSession(w http.ResponseWriter, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
	w.Header().Set(SessionHeader, id)
}

func sessionIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
