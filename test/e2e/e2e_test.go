// test/e2e/e2e_test.go
package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deal-engine/internal/common/aws"
	"deal-engine/internal/common/camunda/camundatest"
	"deal-engine/internal/common/config"
	"deal-engine/internal/common/logger"
	"deal-engine/internal/engine"
	"deal-engine/internal/models"
	"deal-engine/internal/repository"
	"deal-engine/pkg/registry"

	aggregatedeals "deal-engine/internal/workers/deals/aggregate-deals"
	calculatetrustscore "deal-engine/internal/workers/deals/calculate-trust-score"
	normalizedeal "deal-engine/internal/workers/deals/normalize-deal"
	persistdeals "deal-engine/internal/workers/deals/persist-deals"
	resolveduplicates "deal-engine/internal/workers/deals/resolve-duplicates"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// memoryStore keeps deals by id and remembers the last candidate query.
type memoryStore struct {
	mu         sync.Mutex
	deals      map[string]models.DealNormalized
	lastIDs    []string
	lastCities []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{deals: make(map[string]models.DealNormalized)}
}

func (s *memoryStore) FindCandidates(_ context.Context, ids, cities []string) ([]models.DealNormalized, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIDs, s.lastCities = ids, cities

	want := make(map[string]bool)
	for _, id := range ids {
		want["id:"+id] = true
	}
	for _, c := range cities {
		want["city:"+c] = true
	}
	var out []models.DealNormalized
	for _, d := range s.deals {
		if want["id:"+d.ID] || want["city:"+d.City] {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) Upsert(_ context.Context, deals []models.DealNormalized) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range deals {
		s.deals[d.ID] = d.Clone()
	}
	return nil
}

// bulkTransport accepts every Elasticsearch bulk request and keeps the
// indexed ids.
type bulkTransport struct {
	mu  sync.Mutex
	ids []string
}

func (b *bulkTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var items []string
	if req.Body != nil {
		sc := bufio.NewScanner(req.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for line := 0; sc.Scan(); line++ {
			if line%2 != 0 {
				continue
			}
			var action map[string]map[string]string
			if err := json.Unmarshal(sc.Bytes(), &action); err != nil {
				return nil, err
			}
			id := action["index"]["_id"]
			items = append(items, fmt.Sprintf(`{"index":{"_id":%q,"status":201}}`, id))
			b.mu.Lock()
			b.ids = append(b.ids, id)
			b.mu.Unlock()
		}
	}

	header := http.Header{}
	header.Set("X-Elastic-Product", "Elasticsearch")
	header.Set("Content-Type", "application/json")
	body := fmt.Sprintf(`{"errors":false,"items":[%s]}`, strings.Join(items, ","))
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

// topicSink records messages published to the deal topic.
type topicSink struct {
	mu       sync.Mutex
	messages []string
}

func (s *topicSink) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, awssdk.ToString(params.Message))
	return &sns.PublishOutput{MessageId: awssdk.String(fmt.Sprintf("m-%d", len(s.messages)))}, nil
}

type pipeline struct {
	normalize *normalizedeal.Handler
	score     *calculatetrustscore.Handler
	resolve   *resolveduplicates.Handler
	aggregate *aggregatedeals.Handler
	persist   *persistdeals.Handler
	store     *memoryStore
	es        *bulkTransport
	redis     *miniredis.Miniredis
	topic     *topicSink
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	log := logger.NewTestLogger(t)

	reg, err := registry.LoadRegistry("../../configs/activity-registry.json")
	require.NoError(t, err)

	eng := engine.New(config.EngineConfig{}, engine.Options{Now: func() time.Time { return now }})

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	es := &bulkTransport{}
	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{"http://es.local:9200"},
		Transport:    es,
		DisableRetry: true,
	})
	require.NoError(t, err)

	p := &pipeline{store: newMemoryStore(), es: es, redis: mr, topic: &topicSink{}}

	p.normalize, err = normalizedeal.NewHandler(normalizedeal.HandlerOptions{Registry: reg, Pipeline: eng.Pipeline, Logger: log})
	require.NoError(t, err)
	p.score, err = calculatetrustscore.NewHandler(calculatetrustscore.HandlerOptions{Registry: reg, Scorer: eng.Scorer, Logger: log})
	require.NoError(t, err)
	p.resolve, err = resolveduplicates.NewHandler(resolveduplicates.HandlerOptions{Registry: reg, Resolver: eng.Resolver, Logger: log})
	require.NoError(t, err)
	p.aggregate, err = aggregatedeals.NewHandler(aggregatedeals.HandlerOptions{Registry: reg, Engine: eng, Logger: log})
	require.NoError(t, err)
	p.persist, err = persistdeals.NewHandler(persistdeals.HandlerOptions{
		Registry: reg,
		Resolver: eng.Resolver,
		Store:    p.store,
		Cache:    repository.NewFingerprintCache(rdb, "deal:fp:", time.Hour),
		Index:    repository.NewDealIndex(esClient, "deals"),
		Events:   repository.NewDealEvents(aws.NewSNSClientWithAPI(p.topic), "arn:aws:sns:eu-south-1:000000000000:deals"),
		Logger:   log,
	})
	require.NoError(t, err)
	return p
}

// run executes a single job and returns its completed variables.
func run(t *testing.T, handle func(*camundatest.JobClient, map[string]interface{}), vars map[string]interface{}) map[string]interface{} {
	t.Helper()
	client := camundatest.NewJobClient()
	handle(client, vars)
	require.Empty(t, client.Gateway.Thrown, "job threw a BPMN error")
	require.Empty(t, client.Gateway.Failed, "job failed")
	require.Len(t, client.Gateway.Completed, 1)
	out, err := client.Gateway.CompletedVariables(0)
	require.NoError(t, err)
	return out
}

func rawListings() []interface{} {
	return []interface{}{
		map[string]interface{}{
			"id": "d1", "source": "idealista", "address": "Via Roma 123, Torino", "city": "Torino",
			"surface": 100, "priceAsk": 500000, "zoningHint": "residential",
		},
		map[string]interface{}{
			"id": "d1-imm", "source": "immobiliare", "address": "Via Roma 123, Torino", "city": "Torino",
			"surface": 105, "priceAsk": 510000, "zoningHint": "residential",
		},
		map[string]interface{}{
			"listingId": "d2", "portal": "casa", "address": "Corso Buenos Aires 10, Milano",
			"mq": "80 mq", "prezzo": "320k", "category": "negozio",
		},
		"not a listing",
		map[string]interface{}{"price": 1000},
	}
}

func TestPipeline_NormalizeAggregatePersist(t *testing.T) {
	p := newPipeline(t)

	normalized := run(t, func(c *camundatest.JobClient, v map[string]interface{}) {
		p.normalize.Handle(c, camundatest.NewJob(1, normalizedeal.TaskType, 3, v))
	}, map[string]interface{}{"deals": rawListings()})

	assert.Equal(t, float64(3), normalized["normalizedCount"])
	assert.Equal(t, float64(2), normalized["rejectedCount"])

	first := normalized["deals"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "allowed", first["policy"])
	assert.Greater(t, first["trust"].(float64), 0.0)
	fp := first["fingerprint"].(map[string]interface{})
	assert.Equal(t, "residential", fp["zoning"])
	assert.Equal(t, "0-100", fp["surfaceRange"])
	assert.Equal(t, "200k-500k", fp["priceRange"])

	aggregated := run(t, func(c *camundatest.JobClient, v map[string]interface{}) {
		p.aggregate.Handle(c, camundatest.NewJob(2, aggregatedeals.TaskType, 3, v))
	}, map[string]interface{}{"deals": normalized["deals"], "limit": 10})

	assert.Equal(t, float64(3), aggregated["outputCount"])
	ranked := aggregated["deals"].([]interface{})
	assert.Equal(t, "d1-imm", ranked[0].(map[string]interface{})["id"])

	persisted := run(t, func(c *camundatest.JobClient, v map[string]interface{}) {
		p.persist.Handle(c, camundatest.NewJob(3, persistdeals.TaskType, 3, v))
	}, map[string]interface{}{"deals": aggregated["deals"]})

	assert.Equal(t, float64(2), persisted["storedCount"])
	assert.Equal(t, float64(1), persisted["mergedCount"])
	assert.Equal(t, float64(2), persisted["addedCount"])
	assert.Equal(t, float64(2), persisted["indexedCount"])
	assert.Equal(t, float64(2), persisted["cachedCount"])
	assert.Equal(t, float64(2), persisted["publishedCount"])
	require.Len(t, p.topic.messages, 2)
	assert.Contains(t, p.topic.messages[0], `"eventType":"deal.persisted"`)

	require.Len(t, p.store.deals, 2)
	merged := p.store.deals["d1-imm"]
	assert.Equal(t, 105.0, *merged.Surface)
	assert.Equal(t, 510000.0, *merged.PriceAsk)
	assert.Equal(t, "immobiliare,idealista", merged.Source)
	assert.Equal(t, "Milano", p.store.deals["d2"].City)
	assert.ElementsMatch(t, []string{"d1-imm", "d2"}, p.es.ids)

	cachedID, err := p.redis.Get("deal:fp:" + p.store.deals["d2"].Fingerprint.Hash)
	require.NoError(t, err)
	assert.Equal(t, "d2", cachedID)

	// Re-ingesting a stored listing merges through the fingerprint cache.
	again := run(t, func(c *camundatest.JobClient, v map[string]interface{}) {
		p.persist.Handle(c, camundatest.NewJob(4, persistdeals.TaskType, 3, v))
	}, map[string]interface{}{"deals": []interface{}{ranked[2]}})

	assert.Equal(t, float64(1), again["mergedCount"])
	assert.Equal(t, float64(0), again["addedCount"])
	assert.Equal(t, []string{"d2"}, p.store.lastIDs)
	assert.Len(t, p.store.deals, 2)
}

func TestPipeline_DuplicateScenario(t *testing.T) {
	p := newPipeline(t)

	normalized := run(t, func(c *camundatest.JobClient, v map[string]interface{}) {
		p.normalize.Handle(c, camundatest.NewJob(10, normalizedeal.TaskType, 3, v))
	}, map[string]interface{}{"deals": []interface{}{
		map[string]interface{}{"id": "a", "source": "idealista", "address": "Via Roma 123, Torino", "surface": 100, "priceAsk": 500000},
		map[string]interface{}{"id": "b", "source": "idealista", "address": "Via Roma 123, Torino", "surface": 105, "priceAsk": 510000},
	}})
	deals := normalized["deals"].([]interface{})

	resolved := run(t, func(c *camundatest.JobClient, v map[string]interface{}) {
		p.resolve.Handle(c, camundatest.NewJob(11, resolveduplicates.TaskType, 3, v))
	}, map[string]interface{}{"a": deals[0], "b": deals[1]})

	assert.Equal(t, true, resolved["duplicates"])
	assert.Equal(t, "fuzzy", resolved["matchType"])
	merged := resolved["merged"].(map[string]interface{})
	assert.Equal(t, 105.0, merged["surface"])
	assert.Equal(t, 510000.0, merged["priceAsk"])

	scored := run(t, func(c *camundatest.JobClient, v map[string]interface{}) {
		p.score.Handle(c, camundatest.NewJob(12, calculatetrustscore.TaskType, 3, v))
	}, map[string]interface{}{"deal": merged})

	assert.Equal(t, merged["trust"], scored["trust"])
}

func TestPipeline_RejectsBadAggregation(t *testing.T) {
	p := newPipeline(t)
	client := camundatest.NewJobClient()

	p.aggregate.Handle(client, camundatest.NewJob(20, aggregatedeals.TaskType, 3, map[string]interface{}{
		"deals":   []interface{}{},
		"ranking": "cheapest",
	}))

	require.Len(t, client.Gateway.Thrown, 1)
	assert.Equal(t, "INVALID_RANKING_MODE", client.Gateway.Thrown[0].ErrorCode)
}
