package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mercadoleve/mercadoleve/internal/catalog"
	"github.com/mercadoleve/mercadoleve/internal/catalog/catalogtest"
)

func strPtr(s string) *string { return &s }

func newReconciler(repo *catalogtest.Repository) *catalog.Reconciler {
	return catalog.NewReconciler(repo, catalog.ReconcilerConfig{})
}

func TestResolveByEANBackfillsUnit(t *testing.T) {
	repo := catalogtest.New()
	existing := repo.Seed(catalog.Product{Name: "Arroz Branco", EAN: strPtr("7891234567890")})

	res, err := newReconciler(repo).Resolve(context.Background(), catalog.Candidate{
		Name: "Something else entirely", EAN: "7891234567890", Unit: "5kg", Confidence: 0.9,
	})
	require.NoError(t, err)
	require.Equal(t, existing.ID, res.ProductID)
	require.Equal(t, catalog.MethodEAN, res.Method)

	stored, _ := repo.Product(existing.ID)
	require.Equal(t, "5kg", *stored.Unit)
}

func TestResolveByEANKeepsExistingUnit(t *testing.T) {
	repo := catalogtest.New()
	existing := repo.Seed(catalog.Product{Name: "Feijão", EAN: strPtr("12345678"), Unit: strPtr("1kg")})

	res, err := newReconciler(repo).Resolve(context.Background(), catalog.Candidate{EAN: "12345678", Unit: "2kg"})
	require.NoError(t, err)
	require.Equal(t, existing.ID, res.ProductID)

	stored, _ := repo.Product(existing.ID)
	require.Equal(t, "1kg", *stored.Unit)
}

func TestResolveByNamePrefersBrand(t *testing.T) {
	repo := catalogtest.New()
	first := repo.Seed(catalog.Product{Name: "Arroz Tipo 1 5kg", Brand: strPtr("Camil")})
	branded := repo.Seed(catalog.Product{Name: "Arroz Tipo 1 5kg", Brand: strPtr("Tio João")})

	rec := newReconciler(repo)
	res, err := rec.Resolve(context.Background(), catalog.Candidate{Name: "arroz tipo 1", Brand: "TIO JOÃO", Confidence: 0.9})
	require.NoError(t, err)
	require.Equal(t, branded.ID, res.ProductID)
	require.Equal(t, catalog.MethodName, res.Method)

	res, err = rec.Resolve(context.Background(), catalog.Candidate{Name: "Arroz Tipo 1", Brand: "Prato Fino", Confidence: 0.9})
	require.NoError(t, err)
	require.Equal(t, first.ID, res.ProductID)

	res, err = rec.Resolve(context.Background(), catalog.Candidate{Name: "  ARROZ tipo 1  ", Confidence: 0.1})
	require.NoError(t, err)
	require.Equal(t, first.ID, res.ProductID)
}

func TestResolveByNameBackfillsEANAndUnit(t *testing.T) {
	repo := catalogtest.New()
	existing := repo.Seed(catalog.Product{Name: "Leite Integral 1L"})

	res, err := newReconciler(repo).Resolve(context.Background(), catalog.Candidate{
		Name: "leite integral", EAN: "7890000000017", Unit: "1L", Confidence: 0.9,
	})
	require.NoError(t, err)
	require.Equal(t, existing.ID, res.ProductID)
	require.Equal(t, 1, repo.Backfills)

	stored, _ := repo.Product(existing.ID)
	require.Equal(t, "7890000000017", *stored.EAN)
	require.Equal(t, "1L", *stored.Unit)
}

func TestResolveIgnoresMalformedEAN(t *testing.T) {
	repo := catalogtest.New()
	existing := repo.Seed(catalog.Product{Name: "Café Torrado"})

	res, err := newReconciler(repo).Resolve(context.Background(), catalog.Candidate{Name: "café torrado", EAN: "78900ABC", Confidence: 0.9})
	require.NoError(t, err)
	require.Equal(t, existing.ID, res.ProductID)
	require.Zero(t, repo.Backfills)

	stored, _ := repo.Product(existing.ID)
	require.Nil(t, stored.EAN)
}

func TestResolveBackfillFailureStillMatches(t *testing.T) {
	repo := catalogtest.New()
	existing := repo.Seed(catalog.Product{Name: "Óleo de Soja"})
	repo.BackfillErr = errors.New("connection reset")

	res, err := newReconciler(repo).Resolve(context.Background(), catalog.Candidate{Name: "óleo de soja", EAN: "78912345", Confidence: 0.9})
	require.NoError(t, err)
	require.Equal(t, existing.ID, res.ProductID)
}

func TestResolveCreatesWhenConfident(t *testing.T) {
	repo := catalogtest.New()

	res, err := newReconciler(repo).Resolve(context.Background(), catalog.Candidate{
		Name: "Macarrão Espaguete", Brand: "Renata", EAN: "7896022200011", Unit: "500g", Confidence: 0.7,
	})
	require.NoError(t, err)
	require.Equal(t, catalog.MethodCreated, res.Method)
	require.True(t, res.Resolved())

	stored, ok := repo.Product(res.ProductID)
	require.True(t, ok)
	require.Equal(t, "Macarrão Espaguete", stored.Name)
	require.Equal(t, "Renata", *stored.Brand)
	require.Equal(t, "7896022200011", *stored.EAN)
	require.Equal(t, "500g", *stored.Unit)
}

func TestResolveBelowThresholdIsUnresolved(t *testing.T) {
	repo := catalogtest.New()

	res, err := newReconciler(repo).Resolve(context.Background(), catalog.Candidate{Name: "Biscoito", Confidence: 0.69})
	require.NoError(t, err)
	require.False(t, res.Resolved())
	require.Equal(t, catalog.MethodUnresolved, res.Method)
	require.Zero(t, repo.Len())
}

func TestResolveBlankNameIsUnresolved(t *testing.T) {
	repo := catalogtest.New()

	res, err := newReconciler(repo).Resolve(context.Background(), catalog.Candidate{Name: "   ", Confidence: 1})
	require.NoError(t, err)
	require.False(t, res.Resolved())
	require.Zero(t, repo.Len())
}

func TestResolveCustomThreshold(t *testing.T) {
	repo := catalogtest.New()
	threshold := 0.95
	rec := catalog.NewReconciler(repo, catalog.ReconcilerConfig{AutoCreateConfidence: &threshold})
	require.InDelta(t, 0.95, rec.Threshold(), 1e-9)

	res, err := rec.Resolve(context.Background(), catalog.Candidate{Name: "Sabão em Pó", Confidence: 0.9})
	require.NoError(t, err)
	require.False(t, res.Resolved())
}

func TestResolveZeroThresholdCreatesEveryCandidate(t *testing.T) {
	repo := catalogtest.New()
	zero := 0.0
	rec := catalog.NewReconciler(repo, catalog.ReconcilerConfig{AutoCreateConfidence: &zero})
	require.Zero(t, rec.Threshold())

	res, err := rec.Resolve(context.Background(), catalog.Candidate{Name: "Sabão em Pó", Confidence: 0.1})
	require.NoError(t, err)
	require.Equal(t, catalog.MethodCreated, res.Method)
	require.Equal(t, 1, repo.Len())

	require.InDelta(t, catalog.DefaultAutoCreateConfidence, catalog.NewReconciler(repo, catalog.ReconcilerConfig{}).Threshold(), 1e-9)
}

func TestResolveDuplicateEANRaceIsMatch(t *testing.T) {
	repo := catalogtest.New()
	var winner catalog.Product
	repo.BeforeCreate = func(r *catalogtest.Repository) {
		winner = r.Seed(catalog.Product{Name: "Açúcar Refinado", EAN: strPtr("7891910000197")})
	}

	res, err := newReconciler(repo).Resolve(context.Background(), catalog.Candidate{
		Name: "Acucar Cristal", EAN: "7891910000197", Confidence: 0.9,
	})
	require.NoError(t, err)
	require.Equal(t, catalog.MethodEAN, res.Method)
	require.Equal(t, winner.ID, res.ProductID)
	require.Equal(t, 1, repo.Len())
}

func TestResolveCreateFailureIsReturned(t *testing.T) {
	repo := catalogtest.New()
	repo.CreateErr = errors.New("database unavailable")

	res, err := newReconciler(repo).Resolve(context.Background(), catalog.Candidate{Name: "Farinha", Confidence: 0.9})
	require.Error(t, err)
	require.Equal(t, uuid.Nil, res.ProductID)
	require.False(t, res.Resolved())
}
