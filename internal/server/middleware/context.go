package middleware

import "context"

type contextKey string

// ContextKeyClient carries the authenticated orchestrator client name.
const ContextKeyClient contextKey = "client"

func ClientFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyClient).(string)
	return v, ok
}
