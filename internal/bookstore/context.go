package bookstore

import "context"

type clientContextKey struct{}

// ContextWithClient stores the request-scoped client in ctx.
func ContextWithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientContextKey{}, c)
}

// ClientFromContext extracts the request-scoped client.
func ClientFromContext(ctx context.Context) *Client {
	c, _ := ctx.Value(clientContextKey{}).(*Client)
	return c
}
