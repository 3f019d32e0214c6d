// Package protocol holds the media-stream wire format spoken between the
// telephony provider and the call server.
package protocol

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Inbound event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventMark      = "mark"
	EventStop      = "stop"
)

// Outbound event names.
const (
	EventClear = "clear"
)

var ErrMalformed = errors.New("malformed media stream event")

// Inbound is a decoded provider event. Only the field matching Event is populated.
type Inbound struct {
	Event          string     `json:"event"`
	SequenceNumber string     `json:"sequenceNumber,omitempty"`
	StreamSid      string     `json:"streamSid,omitempty"`
	Start          *StartInfo `json:"start,omitempty"`
	Media          *MediaInfo `json:"media,omitempty"`
	Mark           *MarkInfo  `json:"mark,omitempty"`
}

type StartInfo struct {
	StreamSid  string            `json:"streamSid"`
	CallSid    string            `json:"callSid"`
	AccountSid string            `json:"accountSid,omitempty"`
	Tracks     []string          `json:"tracks,omitempty"`
	Custom     map[string]string `json:"customParameters,omitempty"`
}

type MediaInfo struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type MarkInfo struct {
	Name string `json:"name"`
}

// Decode parses one text frame. Unknown event names are returned as-is so
// callers can ignore them; structurally broken frames return ErrMalformed.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, errors.Wrap(ErrMalformed, err.Error())
	}
	in.Event = strings.TrimSpace(in.Event)
	if in.Event == "" {
		return Inbound{}, errors.Wrap(ErrMalformed, "missing event")
	}
	switch in.Event {
	case EventStart:
		if in.Start == nil || in.Start.StreamSid == "" {
			return Inbound{}, errors.Wrap(ErrMalformed, "start without streamSid")
		}
	case EventMedia:
		if in.Media == nil {
			return Inbound{}, errors.Wrap(ErrMalformed, "media without payload")
		}
	case EventMark:
		if in.Mark == nil {
			return Inbound{}, errors.Wrap(ErrMalformed, "mark without name")
		}
	}
	return in, nil
}

type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     outboundBody `json:"media"`
}

type outboundBody struct {
	Payload string `json:"payload"`
}

type outboundMark struct {
	Event     string   `json:"event"`
	StreamSid string   `json:"streamSid"`
	Mark      MarkInfo `json:"mark"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// EncodeMedia builds a media frame carrying base64 μ-law audio.
func EncodeMedia(streamSid, payload string) ([]byte, error) {
	return json.Marshal(outboundMedia{Event: EventMedia, StreamSid: streamSid, Media: outboundBody{Payload: payload}})
}

// EncodeMark builds the mark frame that follows a media frame.
func EncodeMark(streamSid, name string) ([]byte, error) {
	return json.Marshal(outboundMark{Event: EventMark, StreamSid: streamSid, Mark: MarkInfo{Name: name}})
}

// EncodeClear builds the frame that flushes the provider's playback buffer.
func EncodeClear(streamSid string) ([]byte, error) {
	return json.Marshal(outboundClear{Event: EventClear, StreamSid: streamSid})
}
