package context

import (
	"context"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	tenantIDKey  ctxKey = "tenant_id"
	runIDKey     ctxKey = "run_id"
	jobKey       ctxKey = "job"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return valueOf(ctx, requestIDKey)
}

func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return withValue(ctx, tenantIDKey, tenantID)
}

func TenantIDFromContext(ctx context.Context) string {
	return valueOf(ctx, tenantIDKey)
}

// WithRun tags ctx with the batch run identifier and job name.
func WithRun(ctx context.Context, job, runID string) context.Context {
	ctx = withValue(ctx, jobKey, job)
	return withValue(ctx, runIDKey, runID)
}

func RunIDFromContext(ctx context.Context) string {
	return valueOf(ctx, runIDKey)
}

func JobFromContext(ctx context.Context) string {
	return valueOf(ctx, jobKey)
}

func withValue(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func valueOf(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
