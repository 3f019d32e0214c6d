package escalation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Notification is the payload published when a ticket is filed.
type Notification struct {
	TicketID  string    `json:"ticket_id"`
	CallSid   string    `json:"call_sid"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
}

// PublisherNotifier publishes notifications on a Watermill topic.
type PublisherNotifier struct {
	pub   message.Publisher
	topic string
}

var _ Notifier = &PublisherNotifier{}

func NewPublisherNotifier(pub message.Publisher, topic string) *PublisherNotifier {
	return &PublisherNotifier{pub: pub, topic: topic}
}

func (n *PublisherNotifier) Notify(ctx context.Context, t Ticket) error {
	if n == nil || n.pub == nil {
		return errors.New("notifier has no publisher")
	}
	payload, err := json.Marshal(Notification{
		TicketID:  t.ID,
		CallSid:   t.CallSid,
		Question:  t.Question,
		CreatedAt: t.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("ticket_id", t.ID)
	msg.SetContext(ctx)
	if err := n.pub.Publish(n.topic, msg); err != nil {
		return errors.Wrap(err, "publish notification")
	}
	return nil
}

// LogNotification is a router handler that stands in for texting the supervisor.
func LogNotification(msg *message.Message) error {
	var n Notification
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		log.Warn().Err(err).Str("component", "escalation").Msg("undecodable supervisor notification")
		return nil
	}
	log.Info().
		Str("component", "escalation").
		Str("ticket", n.TicketID).
		Str("call_sid", n.CallSid).
		Msgf("[SUPERVISOR NOTIFICATION] Hey, I need help answering: %s", n.Question)
	return nil
}
