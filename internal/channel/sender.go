package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/BidWorks/Outreach/internal/models"
)

// Payload is the message handed to a channel transport for one candidate.
type Payload struct {
	CampaignID string `json:"campaignId"`
	RequestID  string `json:"requestId"`
	Category   string `json:"category"`
	Subject    string `json:"subject,omitempty"`
	Body       string `json:"body"`
}

// Sender delivers a payload to a candidate over one channel. A returned error
// means the outcome is unknown (timeout, transport down); a definitive
// rejection comes back as AttemptResult{Status: AttemptFailed} with a nil
// error so callers can tell the two apart.
type Sender interface {
	Send(ctx context.Context, candidate models.Candidate, ch models.Channel, payload Payload) (models.AttemptResult, error)
}

// SentRecord is one delivery a MemorySender accepted.
type SentRecord struct {
	CandidateKey string
	Channel      models.Channel
	Payload      Payload
}

// MemorySender accepts everything by default and supports per-candidate
// failure injection. Used in tests and dev wiring.
type MemorySender struct {
	mu      sync.Mutex
	sent    []SentRecord
	reject  map[string]bool  // candidate key -> definitive failure
	errKeys map[string]error // candidate key -> transport error
	seq     int
}

func NewMemorySender() *MemorySender {
	return &MemorySender{
		reject:  map[string]bool{},
		errKeys: map[string]error{},
	}
}

// Reject makes sends to the candidate fail definitively.
func (m *MemorySender) Reject(candidateKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reject[candidateKey] = true
}

// Err makes sends to the candidate return a transport error.
func (m *MemorySender) Err(candidateKey string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errKeys[candidateKey] = err
}

func (m *MemorySender) Send(ctx context.Context, candidate models.Candidate, ch models.Channel, payload Payload) (models.AttemptResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.errKeys[candidate.Key]; ok {
		return models.AttemptResult{}, err
	}
	if m.reject[candidate.Key] {
		return models.AttemptResult{Status: models.AttemptFailed}, nil
	}
	m.seq++
	m.sent = append(m.sent, SentRecord{CandidateKey: candidate.Key, Channel: ch, Payload: payload})
	return models.AttemptResult{
		Status:      models.AttemptSent,
		ExternalRef: fmt.Sprintf("mem-%d", m.seq),
	}, nil
}

// Sent returns a copy of every accepted delivery.
func (m *MemorySender) Sent() []SentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentRecord(nil), m.sent...)
}
