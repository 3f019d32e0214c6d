// Package tts turns reply text into μ-law 8 kHz audio for the phone line.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Synthesizer interface {
	// Synthesize returns raw μ-law 8 kHz mono audio.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

const defaultDeepgramSpeakURL = "https://api.deepgram.com/v1/speak"

type DeepgramConfig struct {
	APIKey  string
	Model   string
	URL     string
	Timeout time.Duration
}

// Deepgram calls the Aura speak endpoint.
type Deepgram struct {
	cfg    DeepgramConfig
	client *http.Client
}

var _ Synthesizer = &Deepgram{}

func NewDeepgram(cfg DeepgramConfig) *Deepgram {
	if cfg.URL == "" {
		cfg.URL = defaultDeepgramSpeakURL
	}
	if cfg.Model == "" {
		cfg.Model = "aura-asteria-en"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Deepgram{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (d *Deepgram) speakURL() (string, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return "", errors.Wrap(err, "parse deepgram speak url")
	}
	q := u.Query()
	q.Set("model", d.cfg.Model)
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", "8000")
	q.Set("container", "none")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Deepgram) Synthesize(ctx context.Context, text string) ([]byte, error) {
	target, err := d.speakURL()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, errors.Wrap(err, "marshal speak request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build speak request")
	}
	req.Header.Set("Authorization", "Token "+d.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "speak request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Errorf("speak request: status %d: %s", resp.StatusCode, string(msg))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read speak response")
	}
	log.Debug().Str("component", "tts").Int("bytes", len(audio)).Dur("took", time.Since(start)).Msg("synthesized")
	return audio, nil
}
