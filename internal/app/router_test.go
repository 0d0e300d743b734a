package app

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mercadoleve/mercadoleve/internal/catalog"
	"github.com/mercadoleve/mercadoleve/internal/catalog/catalogtest"
	"github.com/mercadoleve/mercadoleve/internal/observability"
)

func testRouter(ready func(*http.Request) error) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterParams{
		Logger:         logger,
		Config:         &Config{AppEnv: "test", AppRateLimit: 1000},
		CatalogHandler: catalog.NewHandler(logger, catalog.NewService(catalogtest.New())),
		Metrics:        observability.NewMetrics(),
		Ready:          ready,
	})
}

func TestRouterHealthAndSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRouterReadiness(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(func(*http.Request) error { return errors.New("pg down") }).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouterMountsCatalogAndMetrics(t *testing.T) {
	router := testRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "mercadoleve_http_requests_total")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ocr/batches", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
