package persistdeals

import (
	"context"
	"fmt"
	"testing"
	"time"

	"deal-engine/internal/common/camunda/camundatest"
	"deal-engine/internal/common/errors"
	"deal-engine/internal/common/logger"
	"deal-engine/internal/engine/dedup"
	"deal-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Collaborators
// ==========================

type MockStore struct {
	mock.Mock
}

func (m *MockStore) FindCandidates(ctx context.Context, ids, cities []string) ([]models.DealNormalized, error) {
	args := m.Called(ctx, ids, cities)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DealNormalized), args.Error(1)
}

func (m *MockStore) Upsert(ctx context.Context, deals []models.DealNormalized) error {
	args := m.Called(ctx, deals)
	return args.Error(0)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Lookup(ctx context.Context, hashes []string) (map[string]string, error) {
	args := m.Called(ctx, hashes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

func (m *MockCache) Store(ctx context.Context, deals []models.DealNormalized) (int, error) {
	args := m.Called(ctx, deals)
	return args.Int(0), args.Error(1)
}

type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) PublishPersisted(ctx context.Context, deals []models.DealNormalized) (int, error) {
	args := m.Called(ctx, deals)
	return args.Int(0), args.Error(1)
}

type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) Index() string {
	return "deals"
}

func (m *MockIndex) IndexDeals(ctx context.Context, deals []models.DealNormalized) (int, error) {
	args := m.Called(ctx, deals)
	return args.Int(0), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

var seen = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

func storedDeal() models.DealNormalized {
	return models.DealNormalized{
		ID:           "s1",
		Source:       "immobiliare",
		Address:      "Via Roma 123, Torino",
		City:         "Torino",
		Surface:      models.Float(100),
		PriceAsk:     models.Float(500000),
		Policy:       models.PolicyAllowed,
		Trust:        0.7,
		Fingerprint:  &models.Fingerprint{Hash: "h1"},
		DiscoveredAt: seen,
		UpdatedAt:    seen,
	}
}

func incomingDeals() []models.DealNormalized {
	return []models.DealNormalized{
		{
			ID:           "n1",
			Source:       "idealista",
			Address:      "Via Roma 123, Torino",
			City:         "Torino",
			Surface:      models.Float(110),
			Trust:        0.6,
			Fingerprint:  &models.Fingerprint{Hash: "h1"},
			DiscoveredAt: seen.Add(24 * time.Hour),
			UpdatedAt:    seen.Add(24 * time.Hour),
		},
		{
			ID:          "n2",
			Source:      "casa",
			Address:     "Corso Francia 5, Torino",
			City:        "Torino",
			Fingerprint: &models.Fingerprint{Hash: "h2"},
		},
		{
			ID:          "n3",
			Source:      "manual",
			City:        "Milano",
			Fingerprint: &models.Fingerprint{Hash: "sentinel", Sentinel: true},
		},
	}
}

type fixture struct {
	store *MockStore
	cache *MockCache
	index *MockIndex
	h     *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: &MockStore{}, cache: &MockCache{}, index: &MockIndex{}}
	h, err := NewHandler(HandlerOptions{
		CustomConfig: DefaultConfig(),
		Resolver:     dedup.New(dedup.Options{}),
		Store:        f.store,
		Cache:        f.cache,
		Index:        f.index,
		Logger:       logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	f.h = h
	return f
}

func (f *fixture) expectLookup() {
	f.cache.On("Lookup", mock.Anything, []string{"h1", "h2"}).Return(map[string]string{"h1": "s1"}, nil)
}

func (f *fixture) expectCandidates() {
	f.store.On("FindCandidates", mock.Anything, []string{"s1", "n1", "n2", "n3"}, []string{"Torino", "Milano"}).
		Return([]models.DealNormalized{storedDeal()}, nil)
}

func changedDeals(n int) interface{} {
	return mock.MatchedBy(func(deals []models.DealNormalized) bool { return len(deals) == n })
}

// ==========================
// Tests
// ==========================

func TestHandler_NewHandler(t *testing.T) {
	resolver := dedup.New(dedup.Options{})
	tests := []struct {
		name    string
		opts    HandlerOptions
		wantErr string
	}{
		{"missing resolver", HandlerOptions{Store: &MockStore{}, Cache: &MockCache{}, Index: &MockIndex{}}, "duplicate resolver is required"},
		{"missing store", HandlerOptions{Resolver: resolver, Cache: &MockCache{}, Index: &MockIndex{}}, "deal store is required"},
		{"missing cache", HandlerOptions{Resolver: resolver, Store: &MockStore{}, Index: &MockIndex{}}, "fingerprint cache is required"},
		{"missing index", HandlerOptions{Resolver: resolver, Store: &MockStore{}, Cache: &MockCache{}}, "deal index is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHandler(tt.opts)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestHandler_Execute(t *testing.T) {
	f := newFixture(t)
	f.expectLookup()
	f.expectCandidates()
	f.store.On("Upsert", mock.Anything, changedDeals(3)).Return(nil)
	f.index.On("IndexDeals", mock.Anything, changedDeals(3)).Return(3, nil)
	f.cache.On("Store", mock.Anything, changedDeals(3)).Return(2, nil)

	out, err := f.h.Execute(context.Background(), &Input{Deals: incomingDeals()})
	require.NoError(t, err)

	assert.Equal(t, 3, out.StoredCount)
	assert.Equal(t, 1, out.MergedCount)
	assert.Equal(t, 2, out.AddedCount)
	assert.Equal(t, 3, out.IndexedCount)
	assert.Equal(t, 2, out.CachedCount)

	require.Len(t, out.Deals, 3)
	merged := out.Deals[0]
	assert.Equal(t, "s1", merged.ID)
	assert.Equal(t, "immobiliare,idealista", merged.Source)
	assert.Equal(t, 110.0, *merged.Surface)
	assert.Equal(t, 500000.0, *merged.PriceAsk)
	assert.Equal(t, seen, merged.DiscoveredAt)
	assert.Equal(t, seen.Add(24*time.Hour), merged.UpdatedAt)
	assert.Equal(t, 0.7, merged.Trust)
	assert.Equal(t, "n2", out.Deals[1].ID)
	assert.Equal(t, "n3", out.Deals[2].ID)

	f.store.AssertExpectations(t)
	f.cache.AssertExpectations(t)
	f.index.AssertExpectations(t)
}

func TestHandler_Execute_Empty(t *testing.T) {
	f := newFixture(t)

	out, err := f.h.Execute(context.Background(), &Input{})
	require.NoError(t, err)
	assert.Empty(t, out.Deals)
	assert.NotNil(t, out.Deals)

	f.cache.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "FindCandidates", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_Execute_Failures(t *testing.T) {
	boom := fmt.Errorf("connection refused")

	tests := []struct {
		name  string
		setup func(f *fixture)
		code  errors.ErrorCode
	}{
		{
			name: "cache lookup",
			setup: func(f *fixture) {
				f.cache.On("Lookup", mock.Anything, mock.Anything).Return(nil, boom)
			},
			code: errors.ErrCodeFingerprintCacheFailed,
		},
		{
			name: "candidate query",
			setup: func(f *fixture) {
				f.expectLookup()
				f.store.On("FindCandidates", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)
			},
			code: errors.ErrCodeDealStoreFailed,
		},
		{
			name: "upsert",
			setup: func(f *fixture) {
				f.expectLookup()
				f.expectCandidates()
				f.store.On("Upsert", mock.Anything, mock.Anything).Return(boom)
			},
			code: errors.ErrCodeDealStoreFailed,
		},
		{
			name: "index",
			setup: func(f *fixture) {
				f.expectLookup()
				f.expectCandidates()
				f.store.On("Upsert", mock.Anything, mock.Anything).Return(nil)
				f.index.On("IndexDeals", mock.Anything, mock.Anything).Return(1, boom)
			},
			code: errors.ErrCodeDealIndexFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			_, err := f.h.Execute(context.Background(), &Input{Deals: incomingDeals()})
			require.Error(t, err)
			stdErr := err.(*errors.StandardError)
			assert.Equal(t, tt.code, stdErr.Code)
			assert.True(t, stdErr.Retryable)

			f.cache.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
		})
	}
}

func TestHandler_Execute_CacheRefreshFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.expectLookup()
	f.expectCandidates()
	f.store.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	f.index.On("IndexDeals", mock.Anything, mock.Anything).Return(3, nil)
	f.cache.On("Store", mock.Anything, mock.Anything).Return(0, fmt.Errorf("READONLY"))

	out, err := f.h.Execute(context.Background(), &Input{Deals: incomingDeals()})
	require.NoError(t, err)
	assert.Equal(t, 3, out.StoredCount)
	assert.Zero(t, out.CachedCount)
}

func TestHandler_Execute_PublishesChangedDeals(t *testing.T) {
	f := newFixture(t)
	events := &MockEvents{}
	f.h.events = events
	f.expectLookup()
	f.expectCandidates()
	f.store.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	f.index.On("IndexDeals", mock.Anything, mock.Anything).Return(3, nil)
	f.cache.On("Store", mock.Anything, mock.Anything).Return(2, nil)
	events.On("PublishPersisted", mock.Anything, changedDeals(3)).Return(1, fmt.Errorf("throttled")).Once()

	out, err := f.h.Execute(context.Background(), &Input{Deals: incomingDeals()})
	require.NoError(t, err, "publish failures do not fail the job")
	assert.Equal(t, 1, out.PublishedCount)
	assert.Equal(t, 3, out.StoredCount)
	events.AssertExpectations(t)
}

func TestHandler_Handle(t *testing.T) {
	f := newFixture(t)
	f.cache.On("Lookup", mock.Anything, []string{"h9"}).Return(map[string]string{}, nil)
	f.store.On("FindCandidates", mock.Anything, []string{"x1"}, []string{"Roma"}).Return([]models.DealNormalized{}, nil)
	f.store.On("Upsert", mock.Anything, changedDeals(1)).Return(nil)
	f.index.On("IndexDeals", mock.Anything, changedDeals(1)).Return(1, nil)
	f.cache.On("Store", mock.Anything, changedDeals(1)).Return(1, nil)
	client := camundatest.NewJobClient()

	f.h.Handle(client, camundatest.NewJob(51, TaskType, 3, map[string]interface{}{
		"deals": []interface{}{
			map[string]interface{}{"id": "x1", "address": "Via del Corso 10", "city": "Roma", "fingerprint": map[string]interface{}{"hash": "h9"}},
		},
	}))

	require.Len(t, client.Gateway.Completed, 1)
	vars, err := client.Gateway.CompletedVariables(0)
	require.NoError(t, err)
	assert.Equal(t, float64(1), vars["storedCount"])
	assert.Equal(t, float64(1), vars["addedCount"])
	assert.Equal(t, float64(0), vars["mergedCount"])
}

func TestHandler_Handle_RetryableFailure(t *testing.T) {
	f := newFixture(t)
	f.cache.On("Lookup", mock.Anything, mock.Anything).Return(map[string]string{}, nil)
	f.store.On("FindCandidates", mock.Anything, mock.Anything, mock.Anything).Return(nil, fmt.Errorf("too many connections"))
	client := camundatest.NewJobClient()

	f.h.Handle(client, camundatest.NewJob(52, TaskType, 3, map[string]interface{}{
		"deals": []interface{}{map[string]interface{}{"id": "x1", "city": "Roma"}},
	}))

	assert.Empty(t, client.Gateway.Completed)
	assert.Empty(t, client.Gateway.Thrown)
	require.Len(t, client.Gateway.Failed, 1)
	assert.Equal(t, int32(2), client.Gateway.Failed[0].Retries)
	assert.Contains(t, client.Gateway.Failed[0].ErrorMessage, "DEAL_STORE_UNAVAILABLE")
}

func TestCandidateKeys(t *testing.T) {
	ids, cities := candidateKeys([]models.DealNormalized{
		{ID: "a", City: "Torino", Fingerprint: &models.Fingerprint{Hash: "h1"}},
		{ID: "a", City: "Torino"},
		{City: "Roma", Fingerprint: &models.Fingerprint{Hash: "h2"}},
	}, map[string]string{"h1": "stored-1", "h2": "a"})

	assert.Equal(t, []string{"stored-1", "a"}, ids)
	assert.Equal(t, []string{"Torino", "Roma"}, cities)
}
