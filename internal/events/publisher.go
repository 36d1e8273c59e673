package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"fasset-backend/internal/clients"
	"fasset-backend/internal/config"
	"fasset-backend/internal/models"
	"fasset-backend/internal/repository"
)

// Publisher persists one audit row per protocol event and pushes the same
// payload over NATS. A nil NATS client degrades to audit-only mode; event
// publication never fails a protocol operation.
type Publisher struct {
	nats   *clients.NATSClient
	events repository.EventRepository
}

var (
	publisher     *Publisher
	publisherOnce sync.Once
)

// InitPublisher wires the process-wide event publisher. The NATS client may
// be nil when NATS is not configured.
func InitPublisher(nats *clients.NATSClient, events repository.EventRepository) *Publisher {
	publisherOnce.Do(func() {
		publisher = &Publisher{nats: nats, events: events}
		if nats == nil {
			log.Println("NATS not configured, events will be persisted only")
		} else {
			log.Printf("✅ Event publisher initialized, prefix=%s", config.AppConfig.NATS.SubjectPrefix)
		}
	})
	return publisher
}

// GetPublisher returns the process-wide publisher, nil before InitPublisher.
func GetPublisher() *Publisher {
	return publisher
}

// Publish records and broadcasts one protocol event. The subject is the
// event type; vault-scoped payloads carry the vault for consumer filtering.
func (p *Publisher) Publish(ctx context.Context, eventType models.ProtocolEventType, vault string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️ [Events] failed to marshal %s payload: %v", eventType, err)
		return
	}

	row := &models.ProtocolEvent{
		EventType: eventType,
		Vault:     vault,
		Payload:   string(data),
	}
	if err := p.events.CreateEvent(ctx, row); err != nil {
		log.Printf("⚠️ [Events] failed to persist %s event: %v", eventType, err)
	}

	if p.nats == nil {
		return
	}
	if err := p.nats.Publish(string(eventType), payload); err != nil {
		log.Printf("⚠️ [Events] failed to publish %s event: %v", eventType, err)
	}
}
