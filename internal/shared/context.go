// Package shared holds small cross-cutting helpers used by multiple
// domains.
package shared

import "context"

type contextKey string

const userIDKey contextKey = "user_id"

// ContextWithUserID stores the authenticated user id on the context.
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
