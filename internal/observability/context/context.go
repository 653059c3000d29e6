package obscontext

import "context"

type requestIDKey struct{}

type shopIDKey struct{}

type actorKey struct{}

type actor struct {
	kind string
	id   string
}

// WithRequestID stores the request correlation ID in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request correlation ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// WithShopID stores the shop identifier for log correlation.
func WithShopID(ctx context.Context, shopID string) context.Context {
	return context.WithValue(ctx, shopIDKey{}, shopID)
}

// ShopIDFromContext returns the shop identifier, or "".
func ShopIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	shopID, _ := ctx.Value(shopIDKey{}).(string)
	return shopID
}

// WithActor stores the acting principal (api_key, system) and its id.
func WithActor(ctx context.Context, kind, id string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{kind: kind, id: id})
}

// ActorFromContext returns the actor kind and id, or empty strings.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	a, _ := ctx.Value(actorKey{}).(actor)
	return a.kind, a.id
}
