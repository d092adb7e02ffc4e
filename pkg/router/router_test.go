package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/filebot/pkg/router"
)

func TestGroupRoutesAndParams(t *testing.T) {
	r := router.New()

	var order []string
	mw := func(tag string) router.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				order = append(order, tag)
				next.ServeHTTP(w, req)
			})
		}
	}

	api := r.Group("/api", mw("group"))
	api.Get("/broadcasts/{id}", "broadcasts.show", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(router.Param(req, "id")))
	}, mw("route"))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/broadcasts/abc", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Body.String())
	assert.Equal(t, []string{"group", "route"}, order)
}

func TestURLAndRoutes(t *testing.T) {
	r := router.New()
	r.Get("/file/{id}", "files.show", func(http.ResponseWriter, *http.Request) {})
	r.Post("/telegram/webhook", "telegram.webhook", func(http.ResponseWriter, *http.Request) {})
	r.Get("/healthz", "", func(http.ResponseWriter, *http.Request) {})

	url, err := r.URL("files.show", map[string]string{"id": "AgADx"})
	require.NoError(t, err)
	assert.Equal(t, "/file/AgADx", url)

	_, err = r.URL("files.show", nil)
	assert.Error(t, err)

	_, err = r.URL("missing", nil)
	assert.Error(t, err)

	routes := r.Routes()
	require.Len(t, routes, 2)
	assert.Equal(t, "/file/{id}", routes[0].Path)
	assert.Equal(t, http.MethodPost, routes[1].Method)
}
