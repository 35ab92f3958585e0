package rbac

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/bookstore-admin/console/internal/bookstore"
	"github.com/bookstore-admin/console/internal/gateway"
	"github.com/bookstore-admin/console/internal/session"
)

var fetchGroup singleflight.Group

// FetchError reports that the permission catalog could not be loaded.
type FetchError struct {
	Err error
}

// Error implements error.
func (e *FetchError) Error() string {
	return "rbac: fetch permissions: " + e.Err.Error()
}

// Unwrap exposes the cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Catalog reads the permission list from the backend.
type Catalog struct {
	doer gateway.Doer
	// key collapses concurrent fetches made with the same credentials.
	key string
}

// NewCatalog constructs a Catalog. An empty key disables collapsing.
func NewCatalog(doer gateway.Doer, key string) *Catalog {
	return &Catalog{doer: doer, key: key}
}

// unauthorizedHandler is implemented by doers that can end their own
// session, see gateway.Caller.
type unauthorizedHandler interface {
	Unauthorized()
}

// FetchAll returns every permission. Failures are reported as *FetchError.
// A caller that joined another caller's fetch and got a 401 ends its own
// session as if it had made the call.
func (c *Catalog) FetchAll(ctx context.Context) ([]Permission, error) {
	if c.key == "" {
		return c.fetch(ctx)
	}
	ran := false
	ch := fetchGroup.DoChan("permissions:"+c.key, func() (any, error) {
		ran = true
		return c.fetch(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, &FetchError{Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			if !ran && errors.Is(res.Err, gateway.ErrUnauthorized) {
				if h, ok := c.doer.(unauthorizedHandler); ok {
					h.Unauthorized()
				}
			}
			return nil, res.Err
		}
		perms := res.Val.([]Permission)
		out := make([]Permission, len(perms))
		copy(out, perms)
		return out, nil
	}
}

func (c *Catalog) fetch(ctx context.Context) ([]Permission, error) {
	resp, err := c.doer.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/admin/permissions"})
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	var perms []Permission
	if err := resp.Decode(&perms); err != nil {
		return nil, &FetchError{Err: fmt.Errorf("decode: %w", err)}
	}
	if perms == nil {
		perms = []Permission{}
	}
	return perms, nil
}

// CatalogFromContext builds a Catalog over the request's bookstore client,
// keyed by the session's token fingerprint. It returns nil when the request
// carries no client.
func CatalogFromContext(ctx context.Context) *Catalog {
	client := bookstore.ClientFromContext(ctx)
	if client == nil {
		return nil
	}
	var key string
	if store := session.FromContext(ctx); store != nil {
		key = store.Fingerprint()
	}
	return NewCatalog(client.Doer(), key)
}
