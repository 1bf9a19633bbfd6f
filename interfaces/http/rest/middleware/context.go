package middleware

import "context"

type contextKey int

const callerKey contextKey = iota

type callerHolder struct {
	userID string
}

func withCallerHolder(ctx context.Context, h *callerHolder) context.Context {
	return context.WithValue(ctx, callerKey, h)
}

func callerHolderFrom(ctx context.Context) *callerHolder {
	h, _ := ctx.Value(callerKey).(*callerHolder)
	return h
}
