// internal/repository/deal_events.go
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"deal-engine/internal/models"
)

const EventDealPersisted = "deal.persisted"

// Publisher sends one message to a topic. Implemented by aws.SNSClient.
type Publisher interface {
	Publish(ctx context.Context, topicARN, subject, message string, attributes map[string]string) (string, error)
}

// DealEvents announces stored deals to downstream consumers such as the
// watchlist matcher.
type DealEvents struct {
	publisher Publisher
	topicARN  string
}

func NewDealEvents(publisher Publisher, topicARN string) *DealEvents {
	return &DealEvents{publisher: publisher, topicARN: topicARN}
}

type dealEvent struct {
	EventType string                `json:"eventType"`
	Deal      models.DealNormalized `json:"deal"`
}

// PublishPersisted publishes one event per deal, without its metadata, and
// stops at the first failure. It returns how many were published.
func (e *DealEvents) PublishPersisted(ctx context.Context, deals []models.DealNormalized) (int, error) {
	published := 0
	for _, d := range deals {
		d.Metadata = nil
		body, err := json.Marshal(dealEvent{EventType: EventDealPersisted, Deal: d})
		if err != nil {
			return published, fmt.Errorf("marshal event for deal %s: %w", d.ID, err)
		}

		_, err = e.publisher.Publish(ctx, e.topicARN, "", string(body), map[string]string{
			"eventType": EventDealPersisted,
			"city":      d.City,
			"zoning":    string(d.ZoningHint),
			"policy":    string(d.Policy),
			"trust":     strconv.FormatFloat(d.Trust, 'f', 2, 64),
		})
		if err != nil {
			return published, fmt.Errorf("publish deal %s: %w", d.ID, err)
		}
		published++
	}
	return published, nil
}
