package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	rows    []Observation
	failFor PriceType
}

func (m *memoryStore) InsertObservation(_ context.Context, obs Observation) error {
	if obs.PriceType == m.failFor {
		return errors.New("insert rejected")
	}
	m.rows = append(m.rows, obs)
	return nil
}

func ptr[T any](v T) *T { return &v }

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestRecorder(store ObservationStore) *Recorder {
	return NewRecorder(store, WithClock(func() time.Time { return fixedNow }))
}

func baseInput() RecordInput {
	return RecordInput{
		ProductID:     uuid.New(),
		SupermarketID: uuid.New(),
		BatchID:       uuid.New(),
		UnitSize:      "5kg",
	}
}

func TestRecordRetailAndWholesale(t *testing.T) {
	store := &memoryStore{}
	in := baseInput()
	in.RetailPrice = ptr(24.9)
	in.WholesalePrice = ptr(22.5)
	in.MinWholesaleQty = ptr(3)

	n, err := newTestRecorder(store).Record(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, store.rows, 2)

	retail := store.rows[0]
	require.Equal(t, PriceRetail, retail.PriceType)
	require.Equal(t, "24.90", retail.Price.StringFixed(2))
	require.Equal(t, 1, retail.MinQuantity)
	require.Equal(t, SourceOCR, retail.Source)
	require.Equal(t, in.BatchID, retail.BatchID)
	require.Equal(t, "5kg", *retail.UnitSize)
	require.Equal(t, fixedNow, retail.CapturedAt)

	wholesale := store.rows[1]
	require.Equal(t, PriceWholesale, wholesale.PriceType)
	require.Equal(t, "22.50", wholesale.Price.StringFixed(2))
	require.Equal(t, 3, wholesale.MinQuantity)
}

func TestRecordWholesaleNeedsQuantity(t *testing.T) {
	store := &memoryStore{}
	in := baseInput()
	in.WholesalePrice = ptr(22.5)

	n, err := newTestRecorder(store).Record(context.Background(), in)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Empty(t, store.rows)

	in.MinWholesaleQty = ptr(0)
	n, err = newTestRecorder(store).Record(context.Background(), in)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRecordKeepsObservedPrecisionAndSkipsNonPositive(t *testing.T) {
	store := &memoryStore{}
	in := baseInput()
	in.RetailPrice = ptr(7.899)
	in.WholesalePrice = ptr(0.004)
	in.MinWholesaleQty = ptr(6)

	n, err := newTestRecorder(store).Record(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, "7.899", store.rows[0].Price.String())
	require.Equal(t, "0.004", store.rows[1].Price.String())

	in.RetailPrice = ptr(-1.0)
	in.WholesalePrice = ptr(0.0)
	n, err = newTestRecorder(store).Record(context.Background(), in)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRecordFailuresAreIndependent(t *testing.T) {
	store := &memoryStore{failFor: PriceRetail}
	in := baseInput()
	in.RetailPrice = ptr(10.0)
	in.WholesalePrice = ptr(9.0)
	in.MinWholesaleQty = ptr(12)

	n, err := newTestRecorder(store).Record(context.Background(), in)
	require.Error(t, err)
	require.Equal(t, 1, n)
	require.Len(t, store.rows, 1)
	require.Equal(t, PriceWholesale, store.rows[0].PriceType)
}

func TestRecordAppendsOnRepeat(t *testing.T) {
	store := &memoryStore{}
	in := baseInput()
	in.RetailPrice = ptr(5.0)
	rec := newTestRecorder(store)

	for i := 0; i < 2; i++ {
		_, err := rec.Record(context.Background(), in)
		require.NoError(t, err)
	}
	require.Len(t, store.rows, 2)
}

func TestRecordRequiresIdentifiers(t *testing.T) {
	_, err := newTestRecorder(&memoryStore{}).Record(context.Background(), RecordInput{RetailPrice: ptr(1.0)})
	require.Error(t, err)
}

func TestInsertRejectsUnknownPriceType(t *testing.T) {
	err := newTestRecorder(&memoryStore{}).insert(context.Background(), Observation{PriceType: "promo"})
	require.ErrorIs(t, err, ErrInvalidPriceType)
}

func TestRecordNotifiesObserverPerWrittenRow(t *testing.T) {
	store := &memoryStore{failFor: PriceWholesale}
	var seen []PriceType
	rec := NewRecorder(store, WithObserver(func(pt PriceType) { seen = append(seen, pt) }))
	in := baseInput()
	in.RetailPrice = ptr(3.5)
	in.WholesalePrice = ptr(3.0)
	in.MinWholesaleQty = ptr(6)

	_, err := rec.Record(context.Background(), in)
	require.Error(t, err)
	require.Equal(t, []PriceType{PriceRetail}, seen)
}
