package domain

import "context"

type workerNameKey struct{}

// WithWorkerName stores the name of the worker processing the current reading.
func WithWorkerName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workerNameKey{}, name)
}

// WorkerName returns the worker name stored in ctx, or "caller" when absent.
func WorkerName(ctx context.Context) string {
	if ctx == nil {
		return "caller"
	}
	if name, ok := ctx.Value(workerNameKey{}).(string); ok && name != "" {
		return name
	}
	return "caller"
}
