package stream

import (
	"context"
	"log"
	"sync"
	"time"
)

// Event types published on the campaign event stream.
const (
	EventCampaignCreated   = "campaign.created"
	EventAttemptRecorded   = "attempt.recorded"
	EventCheckInEvaluated  = "checkin.evaluated"
	EventCampaignCompleted = "campaign.completed"
)

// Envelope is the wire shape of one campaign event.
type Envelope struct {
	Type       string      `json:"type"`
	CampaignID string      `json:"campaignId"`
	Payload    interface{} `json:"payload,omitempty"`
	Ts         time.Time   `json:"ts"`
}

// Sink publishes campaign events for downstream notification/UI layers.
// Publishing is best-effort; implementations log failures rather than
// propagate them into the campaign path.
type Sink interface {
	Publish(ctx context.Context, eventType, campaignID string, payload interface{})
}

// KafkaSink publishes envelopes keyed by campaign id.
type KafkaSink struct {
	producer *Producer
}

func NewKafkaSink(producer *Producer) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Publish(ctx context.Context, eventType, campaignID string, payload interface{}) {
	env := Envelope{
		Type:       eventType,
		CampaignID: campaignID,
		Payload:    payload,
		Ts:         time.Now().UTC(),
	}
	if _, err := s.producer.ProduceJSON(ctx, []byte(campaignID), env); err != nil {
		log.Printf("[events] publish %s for campaign %s failed: %v", eventType, campaignID, err)
	}
}

// NopSink drops events; used when no brokers are configured.
type NopSink struct{}

func (NopSink) Publish(ctx context.Context, eventType, campaignID string, payload interface{}) {}

// MemorySink records events for assertions in tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Envelope
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Publish(ctx context.Context, eventType, campaignID string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Envelope{Type: eventType, CampaignID: campaignID, Payload: payload, Ts: time.Now().UTC()})
}

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Envelope(nil), s.events...)
}
