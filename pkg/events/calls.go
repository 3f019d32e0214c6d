package events

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

type CallEventType string

const (
	CallStarted    CallEventType = "call.started"
	CallTranscript CallEventType = "call.transcript"
	CallReply      CallEventType = "call.reply"
	CallBargeIn    CallEventType = "call.barge_in"
	CallEnded      CallEventType = "call.ended"
)

type CallEvent struct {
	Type        CallEventType `json:"type"`
	StreamSid   string        `json:"stream_sid"`
	CallSid     string        `json:"call_sid,omitempty"`
	Interaction int           `json:"interaction,omitempty"`
	Index       *int          `json:"index,omitempty"`
	Text        string        `json:"text,omitempty"`
	At          time.Time     `json:"at"`
}

// CallEvents publishes call lifecycle events. A nil *CallEvents drops everything.
type CallEvents struct {
	pub   message.Publisher
	topic string
}

func NewCallEvents(pub message.Publisher, topic string) *CallEvents {
	return &CallEvents{pub: pub, topic: topic}
}

// Publish never fails the caller; errors are logged.
func (c *CallEvents) Publish(ev CallEvent) {
	if c == nil || c.pub == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Warn().Err(err).Str("component", "events").Msg("marshal call event")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("stream_sid", ev.StreamSid)
	msg.Metadata.Set("type", string(ev.Type))
	if err := c.pub.Publish(c.topic, msg); err != nil {
		log.Warn().Err(err).Str("component", "events").Str("type", string(ev.Type)).Msg("publish call event")
	}
}

// LogCallEvent is a router handler that writes call events to the log.
func LogCallEvent(msg *message.Message) error {
	var ev CallEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		log.Warn().Err(err).Str("component", "events").Msg("undecodable call event")
		return nil
	}
	e := log.Info().
		Str("component", "events").
		Str("type", string(ev.Type)).
		Str("stream_sid", ev.StreamSid)
	if ev.CallSid != "" {
		e = e.Str("call_sid", ev.CallSid)
	}
	if ev.Interaction > 0 {
		e = e.Int("interaction", ev.Interaction)
	}
	if ev.Index != nil {
		e = e.Int("index", *ev.Index)
	}
	e.Str("text", ev.Text).Msg("call event")
	return nil
}
