package view

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookstore-admin/console/internal/shared"
)

type testPermission struct {
	Name   string
	Action string
}

type testGroup struct {
	Category    string
	Permissions []testPermission
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderStatusWritesPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.RenderStatus(rec, http.StatusBadGateway, "pages/permissions/list.html", TemplateData{
		Title:    "Permissions",
		UserName: "Ada",
		Flash:    &shared.FlashMessage{Kind: "success", Message: "Saved"},
		Data: map[string]any{
			"Groups": []testGroup{{Category: "book_orders", Permissions: []testPermission{{Name: "book_orders-list", Action: "list"}}}},
			"Total":  1,
			"Errors": map[string]string{"general": "Catalog is stale"},
		},
	})
	require.NoError(t, err)

	body := rec.Body.String()
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "Book Orders")
	assert.Contains(t, body, "book_orders-list")
	assert.Contains(t, body, "Catalog is stale")
	assert.Contains(t, body, "Saved")
	assert.Contains(t, body, "Ada")
}

func TestRenderStatusWritesNothingOnFailure(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	err = engine.RenderStatus(rec, http.StatusOK, "pages/missing.html", TemplateData{})
	assert.Error(t, err)
	assert.Zero(t, rec.Body.Len())
}
