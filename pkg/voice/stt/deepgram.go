package stt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultDeepgramURL = "wss://api.deepgram.com/v1/listen"

type DeepgramConfig struct {
	APIKey       string
	Model        string
	URL          string
	Endpointing  time.Duration
	UtteranceEnd time.Duration
	KeepAlive    time.Duration
}

// Deepgram opens live transcription websockets.
type Deepgram struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer
}

var _ Transcriber = &Deepgram{}

func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	if cfg.URL == "" {
		cfg.URL = defaultDeepgramURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 8 * time.Second
	}
	return &Deepgram{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (d *Deepgram) listenURL() (string, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return "", errors.Wrap(err, "parse deepgram url")
	}
	q := u.Query()
	q.Set("model", d.cfg.Model)
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", "8000")
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	if d.cfg.Endpointing > 0 {
		q.Set("endpointing", strconv.FormatInt(d.cfg.Endpointing.Milliseconds(), 10))
	}
	if d.cfg.UtteranceEnd > 0 {
		q.Set("utterance_end_ms", strconv.FormatInt(d.cfg.UtteranceEnd.Milliseconds(), 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Deepgram) Open(ctx context.Context) (Stream, error) {
	target, err := d.listenURL()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+d.cfg.APIKey)
	conn, resp, err := d.dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dial deepgram: status %d", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "dial deepgram")
	}
	s := &deepgramStream{
		conn:    conn,
		results: make(chan Result, 64),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	go s.keepAlive(d.cfg.KeepAlive)
	log.Info().Str("component", "stt").Str("model", d.cfg.Model).Msg("deepgram stream opened")
	return s, nil
}

type deepgramStream struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	results chan Result
	done    chan struct{}
	once    sync.Once
	asm     assembler
}

func (s *deepgramStream) Results() <-chan Result { return s.results }

func (s *deepgramStream) SendAudio(audio []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram stream closed")
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

func (s *deepgramStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *deepgramStream) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.writeJSON(map[string]string{"type": "CloseStream"})
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *deepgramStream) keepAlive(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			if err := s.writeJSON(map[string]string{"type": "KeepAlive"}); err != nil {
				log.Debug().Err(err).Str("component", "stt").Msg("deepgram keepalive failed")
				return
			}
		}
	}
}

func (s *deepgramStream) readLoop() {
	defer close(s.results)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Warn().Err(err).Str("component", "stt").Msg("deepgram read failed")
			}
			return
		}
		var msg deepgramMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("component", "stt").Msg("deepgram: undecodable message")
			continue
		}
		for _, r := range s.asm.handle(msg) {
			select {
			case s.results <- r:
			case <-s.done:
				return
			}
		}
	}
}

type deepgramMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

func (m deepgramMessage) transcript() string {
	if len(m.Channel.Alternatives) == 0 {
		return ""
	}
	return m.Channel.Alternatives[0].Transcript
}

// assembler joins is_final fragments into one utterance, released on
// speech_final or, failing that, on UtteranceEnd.
type assembler struct {
	final       string
	speechFinal bool
}

func (a *assembler) handle(m deepgramMessage) []Result {
	if m.Type == "UtteranceEnd" {
		if a.speechFinal || strings.TrimSpace(a.final) == "" {
			return nil
		}
		out := Result{Text: strings.TrimSpace(a.final), Final: true}
		a.final = ""
		return []Result{out}
	}
	if m.Type != "" && m.Type != "Results" {
		return nil
	}
	text := m.transcript()
	if m.IsFinal && strings.TrimSpace(text) != "" {
		a.final += " " + text
		if m.SpeechFinal {
			a.speechFinal = true
			out := Result{Text: strings.TrimSpace(a.final), Final: true}
			a.final = ""
			return []Result{out}
		}
		a.speechFinal = false
		return nil
	}
	return []Result{{Text: text}}
}
