package channel

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/BidWorks/Outreach/internal/models"
	"github.com/BidWorks/Outreach/internal/stream"
)

// outboundMessage is the envelope published to the outbound topic. Downstream
// delivery workers (email gateway, SMS bridge, form submitter) consume it and
// perform the actual transport-specific delivery.
type outboundMessage struct {
	Ref          string  `json:"ref"`
	Channel      string  `json:"channel"`
	CandidateKey string  `json:"candidateKey"`
	Address      string  `json:"address"`
	Payload      Payload `json:"payload"`
}

// KafkaSender hands sends to the outbound topic. Acceptance by the broker is
// reported as sent; delivery confirmation arrives later out of band and is
// recorded as a response or delivered status by the composition layer.
type KafkaSender struct {
	producer *stream.Producer
}

func NewKafkaSender(producer *stream.Producer) *KafkaSender {
	return &KafkaSender{producer: producer}
}

func (k *KafkaSender) Send(ctx context.Context, candidate models.Candidate, ch models.Channel, payload Payload) (models.AttemptResult, error) {
	addr := addressFor(candidate, ch)
	if addr == "" {
		// No contact point is a definitive failure, not a transport error.
		return models.AttemptResult{Status: models.AttemptFailed}, nil
	}

	ref := uuid.NewString()
	msg := outboundMessage{
		Ref:          ref,
		Channel:      string(ch),
		CandidateKey: candidate.Key,
		Address:      addr,
		Payload:      payload,
	}
	if _, err := k.producer.ProduceJSON(ctx, []byte(candidate.Key), msg); err != nil {
		return models.AttemptResult{}, fmt.Errorf("outbound produce: %w", err)
	}
	return models.AttemptResult{Status: models.AttemptSent, ExternalRef: ref}, nil
}

func addressFor(c models.Candidate, ch models.Channel) string {
	switch ch {
	case models.ChannelMessage:
		return c.Contacts.MessageID
	case models.ChannelEmail:
		return c.Contacts.Email
	case models.ChannelSMS:
		return c.Contacts.Phone
	case models.ChannelForm:
		return c.Contacts.FormURL
	}
	return ""
}
