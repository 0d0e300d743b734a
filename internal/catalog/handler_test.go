package catalog_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mercadoleve/mercadoleve/internal/catalog"
	"github.com/mercadoleve/mercadoleve/internal/catalog/catalogtest"
)

func newCatalogRouter(repo *catalogtest.Repository) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := catalog.NewHandler(logger, catalog.NewService(repo))
	r := chi.NewRouter()
	r.Route("/catalog", h.MountRoutes)
	return r
}

func TestHandlerListSearch(t *testing.T) {
	repo := catalogtest.New()
	repo.Seed(catalog.Product{Name: "Arroz Tio João"})
	repo.Seed(catalog.Product{Name: "Feijão Carioca"})

	rec := httptest.NewRecorder()
	newCatalogRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/products?search=arroz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Products []catalog.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Products, 1)
	require.Equal(t, "Arroz Tio João", body.Products[0].Name)
}

func TestHandlerGet(t *testing.T) {
	repo := catalogtest.New()
	p := repo.Seed(catalog.Product{Name: "Leite"})
	router := newCatalogRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/products/"+p.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/products/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/catalog/products/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
