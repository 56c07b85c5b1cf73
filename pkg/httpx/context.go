package httpx

import "context"

type ctxKey string

const CtxKeyUserID ctxKey = "user_id"

// UserIDFromContext returns the subject set by AuthnMiddleware, or "".
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(CtxKeyUserID).(string)
	return id
}
