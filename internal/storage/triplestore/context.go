package triplestore

import "context"

// RequestInfo — заголовки входящего запроса, которые пробрасываются в хранилище.
type RequestInfo struct {
	SessionID string
	CallID    string
}

type requestInfoKey struct{}

// WithRequestInfo сохраняет mu-session-id и mu-call-id в контексте.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom достаёт RequestInfo из контекста.
func RequestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info, ok
}
