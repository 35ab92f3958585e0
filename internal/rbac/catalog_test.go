package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstore-admin/console/internal/gateway"
)

func newCatalog(t *testing.T, handler http.HandlerFunc, key string) *Catalog {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	doer := gateway.NewClient(gateway.Options{BaseURL: srv.URL}).Bind(gateway.NewStaticToken("tok"), nil)
	return NewCatalog(doer, key)
}

func TestFetchAllAcceptsEnvelopeAndBareArray(t *testing.T) {
	for name, body := range map[string]string{
		"envelope": `{"data":[{"id":1,"name":"books-create"},{"id":2,"name":"books-delete"}]}`,
		"bare":     `[{"id":1,"name":"books-create"},{"id":2,"name":"books-delete"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			catalog := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/admin/permissions", r.URL.Path)
				_, _ = w.Write([]byte(body))
			}, "")
			perms, err := catalog.FetchAll(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 2}, IDs(perms))
		})
	}
}

func TestFetchAllWrapsFailures(t *testing.T) {
	catalog := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, "")
	_, err := catalog.FetchAll(context.Background())
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	var apiErr *gateway.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestFetchAllEmptyCatalog(t *testing.T) {
	catalog := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, "")
	perms, err := catalog.FetchAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, perms)
	assert.Empty(t, perms)
}

func TestFetchAllCollapsesConcurrentCalls(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	catalog := newCatalog(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`[{"id":7,"name":"orders-view"}]`))
	}, "fp-collapse")

	var wg sync.WaitGroup
	results := make([][]Permission, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			perms, err := catalog.FetchAll(context.Background())
			assert.NoError(t, err)
			results[i] = perms
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, perms := range results {
		assert.Equal(t, []int64{7}, IDs(perms))
	}
}

type countingToken struct {
	mu      sync.Mutex
	value   string
	cleared int
}

func (c *countingToken) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

func (c *countingToken) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = ""
	c.cleared++
}

func TestFetchAllSharedUnauthorizedEndsEverySession(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)
	client := gateway.NewClient(gateway.Options{BaseURL: srv.URL})

	tokens := []*countingToken{{value: "tok"}, {value: "tok"}}
	var redirects [2]atomic.Int32
	var wg sync.WaitGroup
	for i := range tokens {
		doer := client.Bind(tokens[i], func() { redirects[i].Add(1) })
		catalog := NewCatalog(doer, "fp-shared-401")
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := catalog.FetchAll(context.Background())
			assert.ErrorIs(t, err, gateway.ErrUnauthorized)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i, token := range tokens {
		assert.Empty(t, token.Token(), "request %d keeps its token", i)
		assert.Equal(t, 1, token.cleared, "request %d", i)
		assert.Equal(t, int32(1), redirects[i].Load(), "request %d", i)
	}
}
