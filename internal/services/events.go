package services

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// CatalogExchange is the topic exchange catalog events are published to.
const CatalogExchange = "catalog"

// Routing keys of catalog events.
const (
	EventProductCreated   = "product.created"
	EventProductUpdated   = "product.updated"
	EventProductDeleted   = "product.deleted"
	EventImageDeleted     = "image.deleted"
	EventArtifactOrphaned = "artifact.orphaned"
)

// EventPublisher sends a message to an exchange. *rabbitmq.Client implements it.
type EventPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// CatalogEvent is the JSON body of every catalog event.
type CatalogEvent struct {
	Type       string    `json:"type"`
	ProductID  string    `json:"product_id,omitempty"`
	ImageID    string    `json:"image_id,omitempty"`
	Reference  string    `json:"reference,omitempty"`
	Folder     string    `json:"folder,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// eventSink publishes events best-effort: failures are logged, never returned.
type eventSink struct {
	publisher EventPublisher
	log       *zap.SugaredLogger
}

func (s eventSink) emit(event CatalogEvent) {
	if s.publisher == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	body, err := json.Marshal(event)
	if err != nil {
		s.log.Errorw("marshal catalog event", "type", event.Type, "error", err)
		return
	}
	if err := s.publisher.Publish(CatalogExchange, event.Type, body); err != nil {
		s.log.Warnw("publish catalog event", "type", event.Type, "product_id", event.ProductID, "error", err)
		return
	}
	s.log.Debugw("published catalog event", "type", event.Type, "product_id", event.ProductID)
}
