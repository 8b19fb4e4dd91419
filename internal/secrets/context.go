package secrets

import "context"

type ctxKey struct{}

// WithSecret returns a context carrying value so that anything logged on
// behalf of this context can mask it. Empty values are ignored.
func WithSecret(ctx context.Context, value string) context.Context {
	if value == "" {
		return ctx
	}
	prev := FromContext(ctx)
	vals := make([]string, 0, len(prev)+1)
	vals = append(vals, prev...)
	return context.WithValue(ctx, ctxKey{}, append(vals, value))
}

// FromContext returns the secrets registered with WithSecret.
func FromContext(ctx context.Context) []string {
	vals, _ := ctx.Value(ctxKey{}).([]string)
	return vals
}
