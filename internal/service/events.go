package service

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"
)

// Config-change subjects. Downstream evaluators and websocket clients
// subscribe to geofence.config.> to pick up changes.
const (
	SubjectConfigAll       = "geofence.config.>"
	SubjectGeofenceCreated = "geofence.config.geofence.created"
	SubjectGeofenceUpdated = "geofence.config.geofence.updated"
	SubjectGeofenceState   = "geofence.config.geofence.state"
	SubjectGeofenceDeleted = "geofence.config.geofence.deleted"
	SubjectRuleCreated     = "geofence.config.rule.created"
	SubjectRuleUpdated     = "geofence.config.rule.updated"
	SubjectRuleState       = "geofence.config.rule.state"
	SubjectRuleDeleted     = "geofence.config.rule.deleted"
)

// EventPublisher pushes config-change notifications over NATS. Publishing
// is best effort: a failed publish is logged, never surfaced to the
// caller.
type EventPublisher struct {
	nc *nats.Conn
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(nc *nats.Conn) *EventPublisher {
	return &EventPublisher{nc: nc}
}

// Publish sends payload as JSON on subject. Safe to call on a nil
// publisher.
func (p *EventPublisher) Publish(subject string, payload interface{}) {
	if p == nil || p.nc == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Events] Failed to marshal event for %s: %v", subject, err)
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Printf("[Events] Failed to publish %s: %v", subject, err)
	}
}
