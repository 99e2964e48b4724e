package logging

import (
	"context"
)

type ctxKey string

const (
	TraceIDKey     = "trace_id"
	MessageIDKey   = "message_id"
	ServiceNameKey = "service_name"
	StageKey       = "stage"
	WorkerKey      = "worker"
)

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey(TraceIDKey), traceID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, ctxKey(MessageIDKey), messageID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ctxKey(ServiceNameKey), serviceName)
}

func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ctxKey(StageKey), stage)
}

func WithWorker(ctx context.Context, ordinal int) context.Context {
	return context.WithValue(ctx, ctxKey(WorkerKey), ordinal)
}

func GetTraceID(ctx context.Context) string {
	return getString(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return getString(ctx, MessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return getString(ctx, ServiceNameKey)
}

func GetStage(ctx context.Context) string {
	return getString(ctx, StageKey)
}

func GetWorker(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(ctxKey(WorkerKey)).(int)
	return v, ok
}

func getString(ctx context.Context, key string) string {
	if v, ok := ctx.Value(ctxKey(key)).(string); ok {
		return v
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 10)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, TraceIDKey, traceID)
	}

	if messageID := GetMessageID(ctx); messageID != "" {
		fields = append(fields, MessageIDKey, messageID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, ServiceNameKey, serviceName)
	}

	if stage := GetStage(ctx); stage != "" {
		fields = append(fields, StageKey, stage)
	}

	if worker, ok := GetWorker(ctx); ok {
		fields = append(fields, WorkerKey, worker)
	}

	return fields
}
