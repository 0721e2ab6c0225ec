// internal/repository/deal_index.go
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"deal-engine/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

const dealMapping = `{
  "mappings": {
    "properties": {
      "id":           {"type": "keyword"},
      "source":       {"type": "keyword"},
      "address":      {"type": "text"},
      "city":         {"type": "keyword"},
      "location":     {"type": "geo_point"},
      "surface":      {"type": "double"},
      "priceAsk":     {"type": "double"},
      "zoningHint":   {"type": "keyword"},
      "policy":       {"type": "keyword"},
      "trust":        {"type": "double"},
      "fingerprint":  {"properties": {"hash": {"type": "keyword"}, "sentinel": {"type": "boolean"}}},
      "discoveredAt": {"type": "date"},
      "updatedAt":    {"type": "date"},
      "metadata":     {"type": "object", "enabled": false}
    }
  }
}`

// DealIndex writes normalized deals to an Elasticsearch index.
type DealIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewDealIndex(client *elasticsearch.Client, index string) *DealIndex {
	return &DealIndex{client: client, index: index}
}

func (x *DealIndex) Index() string {
	return x.index
}

// EnsureIndex creates the index with the deal mapping when it does not exist.
func (x *DealIndex) EnsureIndex(ctx context.Context) error {
	res, err := x.client.Indices.Exists(
		[]string{x.index},
		x.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("check index %s: %w", x.index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index %s: %s", x.index, res.Status())
	}

	res, err = x.client.Indices.Create(
		x.index,
		x.client.Indices.Create.WithBody(strings.NewReader(dealMapping)),
		x.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", x.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index %s: %s", x.index, res.Status())
	}
	return nil
}

type geoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type indexDocument struct {
	models.DealNormalized
	Location *geoPoint `json:"location,omitempty"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// IndexDeals bulk-indexes deals by id and returns how many were accepted.
// Item-level rejections are reported as an error alongside the count.
func (x *DealIndex) IndexDeals(ctx context.Context, deals []models.DealNormalized) (int, error) {
	if len(deals) == 0 {
		return 0, nil
	}

	body, err := bulkBody(deals)
	if err != nil {
		return 0, err
	}

	res, err := x.client.Bulk(
		bytes.NewReader(body),
		x.client.Bulk.WithIndex(x.index),
		x.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("bulk index: %s", res.Status())
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode bulk response: %w", err)
	}

	indexed := 0
	var failures []string
	for _, item := range parsed.Items {
		for _, result := range item {
			if result.Error == nil && result.Status < 300 {
				indexed++
				continue
			}
			reason := "unknown"
			if result.Error != nil {
				reason = result.Error.Type + ": " + result.Error.Reason
			}
			failures = append(failures, result.ID+" ("+reason+")")
		}
	}
	if len(failures) > 0 {
		return indexed, fmt.Errorf("bulk index rejected %d deals: %s", len(failures), strings.Join(failures, ", "))
	}
	return indexed, nil
}

func bulkBody(deals []models.DealNormalized) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range deals {
		if err := enc.Encode(map[string]interface{}{"index": map[string]string{"_id": d.ID}}); err != nil {
			return nil, err
		}
		doc := indexDocument{DealNormalized: d}
		if d.Lat != nil && d.Lng != nil {
			doc.Location = &geoPoint{Lat: *d.Lat, Lon: *d.Lng}
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode deal %s: %w", d.ID, err)
		}
	}
	return buf.Bytes(), nil
}
