package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxReporterID ctxKey = iota
	ctxRole
)

func WithIdentity(ctx context.Context, reporterID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxReporterID, reporterID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func ReporterID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxReporterID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("reporter_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}
