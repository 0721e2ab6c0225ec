package aggregatedeals

import (
	"context"
	"testing"
	"time"

	"deal-engine/internal/common/camunda/camundatest"
	"deal-engine/internal/common/config"
	"deal-engine/internal/common/errors"
	"deal-engine/internal/common/logger"
	"deal-engine/internal/common/metrics"
	"deal-engine/internal/engine"
	"deal-engine/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func createTestHandler(t *testing.T, defaultLimit int) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerOptions{
		CustomConfig: DefaultConfig(),
		Engine:       engine.New(config.EngineConfig{DefaultLimit: defaultLimit}, engine.Options{}),
		Logger:       logger.NewTestLogger(t),
	})
	require.NoError(t, err)
	return h
}

func fp(hash string) *models.Fingerprint {
	return &models.Fingerprint{Hash: hash, SurfaceRange: "0-100", PriceRange: "0-500k"}
}

// sampleDeals holds five deals, one of which duplicates "a".
func sampleDeals() []models.DealNormalized {
	return []models.DealNormalized{
		{ID: "a", Trust: 0.6, Fingerprint: fp("h1"), DiscoveredAt: base},
		{ID: "a-dup", Trust: 0.9, Fingerprint: fp("h1"), DiscoveredAt: base},
		{ID: "b", Trust: 0.79, Fingerprint: fp("h2"), DiscoveredAt: base.Add(-48 * time.Hour)},
		{ID: "c", Trust: 0.75, Fingerprint: fp("h3"), DiscoveredAt: base},
		{ID: "d", Trust: 0.3},
	}
}

func ids(deals []models.DealNormalized) []string {
	out := make([]string, len(deals))
	for i, d := range deals {
		out[i] = d.ID
	}
	return out
}

func intPtr(i int) *int { return &i }

func TestHandler_NewHandler(t *testing.T) {
	_, err := NewHandler(HandlerOptions{CustomConfig: DefaultConfig()})
	assert.ErrorContains(t, err, "engine is required")
}

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name         string
		defaultLimit int
		input        Input
		want         []string
	}{
		{
			name:  "trust ranking without limit",
			input: Input{Deals: sampleDeals()},
			want:  []string{"b", "c", "a", "d"},
		},
		{
			name:  "explicit limit",
			input: Input{Deals: sampleDeals(), Limit: intPtr(2), Ranking: engine.RankingTrust},
			want:  []string{"b", "c"},
		},
		{
			name:         "configured default limit",
			defaultLimit: 3,
			input:        Input{Deals: sampleDeals()},
			want:         []string{"b", "c", "a"},
		},
		{
			name:  "trending prefers recent near-ties",
			input: Input{Deals: sampleDeals(), Ranking: engine.RankingTrending},
			want:  []string{"c", "b", "a", "d"},
		},
		{
			name:  "limit larger than input",
			input: Input{Deals: sampleDeals(), Limit: intPtr(50)},
			want:  []string{"b", "c", "a", "d"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t, tt.defaultLimit)
			out, err := h.Execute(context.Background(), &tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(out.Deals))
			assert.Equal(t, 5, out.InputCount)
			assert.Equal(t, len(tt.want), out.OutputCount)
			assert.Equal(t, 5-len(tt.want), out.RemovedCount)
		})
	}
}

func TestHandler_Execute_Errors(t *testing.T) {
	h := createTestHandler(t, 0)

	_, err := h.Execute(context.Background(), &Input{Deals: sampleDeals(), Limit: intPtr(0)})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidLimit, err.(*errors.StandardError).Code)

	_, err = h.Execute(context.Background(), &Input{Deals: sampleDeals(), Ranking: "newest"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidRankingMode, err.(*errors.StandardError).Code)
}

func TestHandler_Execute_EmptyInput(t *testing.T) {
	out, err := createTestHandler(t, 10).Execute(context.Background(), &Input{})
	require.NoError(t, err)
	assert.NotNil(t, out.Deals)
	assert.Empty(t, out.Deals)
	assert.Zero(t, out.RemovedCount)
}

func TestHandler_Execute_CountsRemoved(t *testing.T) {
	h := createTestHandler(t, 0)
	before := testutil.ToFloat64(metrics.DealAggregationRemoved)

	_, err := h.Execute(context.Background(), &Input{Deals: sampleDeals(), Limit: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, before+4, testutil.ToFloat64(metrics.DealAggregationRemoved))
}

func TestHandler_Handle(t *testing.T) {
	h := createTestHandler(t, 0)
	client := camundatest.NewJobClient()

	h.Handle(client, camundatest.NewJob(41, TaskType, 3, map[string]interface{}{
		"deals": []interface{}{
			map[string]interface{}{"id": "x", "trust": 0.4},
			map[string]interface{}{"id": "y", "trust": 0.7},
		},
		"limit":   1,
		"ranking": "trust",
	}))

	require.Len(t, client.Gateway.Completed, 1)
	vars, err := client.Gateway.CompletedVariables(0)
	require.NoError(t, err)
	assert.Equal(t, float64(2), vars["inputCount"])
	assert.Equal(t, float64(1), vars["outputCount"])
	deals := vars["deals"].([]interface{})
	assert.Equal(t, "y", deals[0].(map[string]interface{})["id"])
}

func TestHandler_Handle_BusinessErrors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]interface{}
		code string
	}{
		{"negative limit", map[string]interface{}{"deals": []interface{}{}, "limit": -3}, "INVALID_LIMIT"},
		{"unknown ranking", map[string]interface{}{"deals": []interface{}{}, "ranking": "random"}, "INVALID_RANKING_MODE"},
		{"fractional limit", map[string]interface{}{"deals": []interface{}{}, "limit": 2.5}, "INVALID_DEAL_PAYLOAD"},
		{"deals not an array", map[string]interface{}{"deals": "none"}, "INVALID_DEAL_PAYLOAD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t, 0)
			client := camundatest.NewJobClient()

			h.Handle(client, camundatest.NewJob(42, TaskType, 3, tt.vars))

			assert.Empty(t, client.Gateway.Completed)
			require.Len(t, client.Gateway.Thrown, 1)
			assert.Equal(t, tt.code, client.Gateway.Thrown[0].ErrorCode)
		})
	}
}
